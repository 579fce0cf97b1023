// Package metrics exposes the room state store counters in the Prometheus
// text exposition format.
//
// Handler(src) serves GET /metrics. Families are rebuilt from src.Stats() on
// every request; nothing is registered globally.
package metrics
