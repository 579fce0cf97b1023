// Package api implements the HTTP interface of roomsync-server.
//
// New(store, opts) returns an http.Handler that serves:
//
//	GET      /rooms/{id}/state  — current register; default register if the room is unknown
//	POST|PUT /rooms/{id}/state  — replace the register, echo the stored value
//	GET      /health            — {"status":"ok","rooms":N}
//	GET      /metrics           — Prometheus text, when Options.Metrics is set
//
// Room ids are case-insensitive and reported upper-cased. The handler only
// validates and defaults request fields; conflict resolution belongs to the
// store. Errors are JSON bodies of the form {"error": "..."}.
//
// Writes are rate limited per client IP when Options.Limiter is set. CORS is
// applied to every route.
package api
