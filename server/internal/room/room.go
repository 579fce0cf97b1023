package room

import (
	"errors"
	"strings"
	"time"
)

// MaxIDLength is the longest room identifier accepted at the transport boundary.
const MaxIDLength = 128

// ErrInvalidID is returned by Validate for empty or oversized identifiers.
var ErrInvalidID = errors.New("invalid room id")

// State is the playback register for one room.
type State struct {
	// TrackURI identifies the current track. Empty means nothing is playing.
	TrackURI string

	// PositionMs is the playback offset in milliseconds at Timestamp.
	PositionMs int64

	IsPlaying bool

	// Timestamp is the write's logical clock in milliseconds since the epoch.
	// It is also the entry's eviction clock.
	Timestamp int64
}

// Time returns Timestamp as a time.Time.
func (s State) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Normalize canonicalizes a room identifier by upper-casing it. Identifiers
// that differ only in letter case map to the same room; whitespace is kept.
func Normalize(raw string) string {
	return strings.ToUpper(raw)
}

// Validate normalizes raw and rejects identifiers that are empty or longer
// than MaxIDLength.
func Validate(raw string) (string, error) {
	id := Normalize(raw)
	if id == "" || len(id) > MaxIDLength {
		return "", ErrInvalidID
	}
	return id, nil
}

// Default returns the register reported for a room that has never been written
// (or has been evicted): no track, zero position, paused, stamped now.
func Default(now time.Time) State {
	return State{Timestamp: now.UnixMilli()}
}

// Resolve merges an incoming write into the existing register.
//
// A missing Timestamp (zero) is stamped with now. The incoming register then
// replaces existing wholesale: the most recently received write wins, whatever
// the relation between the two timestamps.
func Resolve(existing *State, incoming State, now time.Time) State {
	if incoming.Timestamp == 0 {
		incoming.Timestamp = now.UnixMilli()
	}
	return incoming
}
