package metrics

import (
	"bytes"
	"log/slog"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/roomsync/roomsync/server/internal/store"
)

const namespace = "roomsync"

// contentType is the Prometheus text format, version 0.0.4.
const contentType = "text/plain; version=0.0.4; charset=utf-8"

// StatsSource is implemented by *store.Store.
type StatsSource interface {
	Stats() store.Stats
}

// Families converts a stats snapshot into metric families.
func Families(s store.Stats) []*dto.MetricFamily {
	out := []*dto.MetricFamily{
		gauge("rooms", "Number of rooms currently tracked.", float64(s.Rooms)),
		counter("state_reads_total", "Room state reads served.", float64(s.Reads)),
		counter("state_writes_total", "Room state writes applied.", float64(s.Writes)),
		counter("rooms_created_total", "Writes that created a new room.", float64(s.Created)),
		counter("writes_rejected_total", "Writes refused because the room cap was reached.", float64(s.Rejected)),
		counter("rooms_evicted_total", "Rooms removed after exceeding the TTL.", float64(s.Evicted)),
		counter("eviction_sweeps_total", "Completed eviction sweeps.", float64(s.Sweeps)),
		gauge("last_sweep_removed", "Rooms removed by the most recent sweep.", float64(s.LastSweepRemoved)),
	}
	if !s.LastSweep.IsZero() {
		out = append(out, gauge("last_sweep_timestamp_seconds",
			"Unix time of the most recent eviction sweep.",
			float64(s.LastSweep.UnixNano())/1e9))
	}
	return out
}

// Handler serves the current stats of src as Prometheus text.
func Handler(src StatsSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var buf bytes.Buffer
		for _, mf := range Families(src.Stats()) {
			if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
				slog.Error("metrics: encode failed", "family", mf.GetName(), "err", err)
				http.Error(w, "encode metrics", http.StatusInternalServerError)
				return
			}
		}

		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		buf.WriteTo(w) //nolint:errcheck
	})
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return family(name, help, dto.MetricType_GAUGE, &dto.Metric{
		Gauge: &dto.Gauge{Value: proto.Float64(v)},
	})
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return family(name, help, dto.MetricType_COUNTER, &dto.Metric{
		Counter: &dto.Counter{Value: proto.Float64(v)},
	})
}

func family(name, help string, typ dto.MetricType, m *dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(namespace + "_" + name),
		Help:   proto.String(help),
		Type:   typ.Enum(),
		Metric: []*dto.Metric{m},
	}
}
