// Package room defines the per-room playback register and the rules that
// govern it: identifier normalization, the default register for unknown rooms,
// and the last-writer-wins merge applied on every write.
//
// A State is a snapshot. PositionMs is the offset at Timestamp and is never
// advanced by the server; clients extrapolate from Timestamp themselves.
package room
