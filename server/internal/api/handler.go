package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/roomsync/roomsync/server/internal/ratelimit"
	"github.com/roomsync/roomsync/server/internal/room"
	"github.com/roomsync/roomsync/server/internal/store"
)

// DefaultMaxBodyBytes bounds write request bodies when Options leaves it unset.
const DefaultMaxBodyBytes = 64 << 10

// Options configures the optional parts of the handler.
type Options struct {
	// Limiter throttles state writes per client IP. Nil disables limiting.
	Limiter *ratelimit.Limiter

	// Proxies may name the client IP through forwarding headers. Nil means
	// the connection's remote address is always used.
	Proxies *ratelimit.TrustedProxies

	// MaxBodyBytes bounds write request bodies. Zero uses DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// CORSOrigins lists allowed origins. Empty allows all.
	CORSOrigins []string

	// Metrics, if set, is mounted at GET /metrics.
	Metrics http.Handler
}

// Handler is the HTTP handler for the room state endpoints.
type Handler struct {
	store   *store.Store
	limiter *ratelimit.Limiter
	proxies *ratelimit.TrustedProxies
	maxBody int64
	router  *mux.Router
	root    http.Handler
}

// New creates a Handler wired to the given store and registers all routes.
func New(st *store.Store, opts Options) http.Handler {
	h := &Handler{
		store:   st,
		limiter: opts.Limiter,
		proxies: opts.Proxies,
		maxBody: opts.MaxBodyBytes,
		router:  mux.NewRouter(),
	}
	if h.maxBody <= 0 {
		h.maxBody = DefaultMaxBodyBytes
	}

	h.router.HandleFunc("/rooms/{id}/state", h.readState).Methods(http.MethodGet)
	h.router.HandleFunc("/rooms/{id}/state", h.writeState).Methods(http.MethodPost, http.MethodPut)
	h.router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	if opts.Metrics != nil {
		h.router.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	h.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.router.Use(requestLog)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h.root = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	}).Handler(h.router)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// readState returns GET /rooms/{id}/state.
func (h *Handler) readState(w http.ResponseWriter, r *http.Request) {
	id, err := room.Validate(mux.Vars(r)["id"])
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, toStateResponse(h.store.Get(id)))
}

// writeState handles POST|PUT /rooms/{id}/state.
func (h *Handler) writeState(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow(h.proxies.ClientIP(r)) {
		jsonErr(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	id, err := room.Validate(mux.Vars(r)["id"])
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	var req WriteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			jsonErr(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			jsonErr(w, http.StatusBadRequest, "request body required")
		default:
			jsonErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		}
		return
	}

	incoming, err := req.toState()
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := h.store.Put(id, incoming)
	if errors.Is(err, store.ErrCapacity) {
		slog.Warn("api: room cap reached, write refused", "room", id, "rooms", h.store.Count())
		jsonErr(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Debug("api: room state written",
		"room", id,
		"track", stored.TrackURI,
		"position_ms", stored.PositionMs,
		"playing", stored.IsPlaying,
	)

	jsonResp(w, http.StatusOK, WriteResponse{
		Success: true,
		RoomID:  id,
		State:   toStateResponse(stored),
	})
}

// health returns GET /health: liveness plus the number of tracked rooms.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{Status: "ok", Rooms: h.store.Count()})
}

// --- helpers ----------------------------------------------------------------

// toState validates field shapes and fills defaults. Timestamp 0 counts as
// missing and is stamped by the store.
func (req WriteRequest) toState() (room.State, error) {
	var s room.State
	if req.TrackURI != nil {
		s.TrackURI = *req.TrackURI
	}
	if req.IsPlaying != nil {
		s.IsPlaying = *req.IsPlaying
	}
	if req.PositionMs != nil {
		pos, err := millis("positionMs", *req.PositionMs)
		if err != nil {
			return room.State{}, err
		}
		s.PositionMs = pos
	}
	if req.Timestamp != nil {
		ts, err := millis("timestamp", *req.Timestamp)
		if err != nil {
			return room.State{}, err
		}
		s.Timestamp = ts
	}
	return s, nil
}

// millis truncates a JSON number to whole milliseconds.
func millis(field string, v float64) (int64, error) {
	if v < 0 || v >= math.MaxInt64 {
		return 0, fmt.Errorf("%s must be a non-negative number of milliseconds", field)
	}
	return int64(v), nil
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", id,
			"duration", time.Since(start),
		)
	})
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
