// Package store holds the in-memory room playback registers. It provides a
// thread-safe keyed store with last-writer-wins writes, a default register
// for unknown rooms, an optional room cap, and TTL eviction driven by Run.
package store
