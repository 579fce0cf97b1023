package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roomsync/roomsync/server/internal/room"
)

// Default values applied by New for zero Config fields.
const (
	DefaultTTL           = time.Hour
	DefaultSweepInterval = 10 * time.Minute
	DefaultMaxRooms      = 10000

	minSweepInterval = time.Second
)

// ErrCapacity is returned by Put when a new room would exceed MaxRooms.
var ErrCapacity = errors.New("max rooms reached")

// Config controls retention and capacity.
type Config struct {
	// TTL is how long a register survives after its Timestamp.
	TTL time.Duration

	// SweepInterval is the Run loop cadence, independent of TTL.
	SweepInterval time.Duration

	// MaxRooms caps the number of distinct rooms. Negative means unlimited.
	MaxRooms int

	// LazyExpiry makes Get report registers older than TTL as the default
	// register even before a sweep has removed them.
	LazyExpiry bool
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.SweepInterval < minSweepInterval {
		c.SweepInterval = minSweepInterval
	}
	if c.MaxRooms == 0 {
		c.MaxRooms = DefaultMaxRooms
	}
	return c
}

// Stats is a point-in-time copy of the store's counters.
type Stats struct {
	Rooms            int
	Reads            uint64
	Writes           uint64
	Created          uint64
	Rejected         uint64
	Evicted          uint64
	Sweeps           uint64
	LastSweep        time.Time
	LastSweepRemoved int
}

// entry is a stored register plus the clock the evictor ages it by.
type entry struct {
	state room.State

	// clock is state.Timestamp, capped at the time the write was received, so
	// a client-supplied future timestamp cannot pin the room in memory.
	clock time.Time
}

func newEntry(st room.State, received time.Time) entry {
	clock := st.Time()
	if clock.After(received) {
		clock = received
	}
	return entry{state: st, clock: clock}
}

func (e entry) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.clock) > ttl
}

// Store is a thread-safe in-memory register store keyed by normalized room id.
// A background goroutine (Run) periodically evicts registers whose Timestamp
// is older than the configured TTL.
type Store struct {
	mu   sync.RWMutex
	data map[string]entry
	cfg  Config
	now  func() time.Time // injectable for deterministic tests

	lastSweep        time.Time
	lastSweepRemoved int

	reads    atomic.Uint64
	writes   atomic.Uint64
	created  atomic.Uint64
	rejected atomic.Uint64
	evicted  atomic.Uint64
	sweeps   atomic.Uint64
}

// New creates a Store. Zero fields in cfg take their package defaults.
func New(cfg Config) *Store {
	return &Store{
		data: make(map[string]entry),
		cfg:  cfg.withDefaults(),
		now:  time.Now,
	}
}

// Get returns a copy of the register for roomID, or the default register if
// the room is unknown. With LazyExpiry set, registers older than TTL are also
// reported as the default.
func (s *Store) Get(roomID string) room.State {
	st, _ := s.Lookup(roomID)
	return st
}

// Lookup is Get with a flag reporting whether a live register was found.
func (s *Store) Lookup(roomID string) (room.State, bool) {
	id := room.Normalize(roomID)
	now := s.now()
	s.reads.Add(1)

	s.mu.RLock()
	e, ok := s.data[id]
	lazy, ttl := s.cfg.LazyExpiry, s.cfg.TTL
	s.mu.RUnlock()

	if !ok || (lazy && e.expired(now, ttl)) {
		return room.Default(now), false
	}
	return e.state, true
}

// Put applies incoming to roomID using room.Resolve and returns the stored
// register. It fails only with ErrCapacity, when roomID is new and the store
// is full even after dropping expired registers.
func (s *Store) Put(roomID string, incoming room.State) (room.State, error) {
	id := room.Normalize(roomID)
	now := s.now()

	s.mu.Lock()
	existing, ok := s.data[id]
	if !ok && s.fullLocked() {
		removed := s.evictLocked(now)
		if s.fullLocked() {
			s.mu.Unlock()
			s.rejected.Add(1)
			logRemoved(removed)
			return room.State{}, ErrCapacity
		}
		defer logRemoved(removed)
	}

	var prev *room.State
	if ok {
		prev = &existing.state
	}
	st := room.Resolve(prev, incoming, now)
	s.data[id] = newEntry(st, now)
	s.mu.Unlock()

	s.writes.Add(1)
	if !ok {
		s.created.Add(1)
	}
	return st, nil
}

// Count returns the number of registers currently held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// TTL returns the current retention window.
func (s *Store) TTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.TTL
}

// SetLimits replaces TTL, MaxRooms and LazyExpiry. Zero values take the
// package defaults. Registers already above a lowered cap are kept; only new
// rooms are refused.
func (s *Store) SetLimits(ttl time.Duration, maxRooms int, lazy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	cfg.TTL = ttl
	cfg.MaxRooms = maxRooms
	cfg.LazyExpiry = lazy
	s.cfg = cfg.withDefaults()
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	st := Stats{
		Rooms:            len(s.data),
		LastSweep:        s.lastSweep,
		LastSweepRemoved: s.lastSweepRemoved,
	}
	s.mu.RUnlock()

	st.Reads = s.reads.Load()
	st.Writes = s.writes.Load()
	st.Created = s.created.Load()
	st.Rejected = s.rejected.Load()
	st.Evicted = s.evicted.Load()
	st.Sweeps = s.sweeps.Load()
	return st
}

// Evict removes registers for which now - Timestamp exceeds TTL and returns
// how many were removed. A Timestamp later than the write's arrival counts as
// the arrival time. Evict and Put share one lock, so a concurrent write
// is either seen by the sweep or recreates the room afterwards.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	removed := s.evictLocked(now)
	s.lastSweep = now
	s.lastSweepRemoved = len(removed)
	s.mu.Unlock()

	s.sweeps.Add(1)
	logRemoved(removed)
	return len(removed)
}

// Run starts the background eviction loop at the configured sweep interval.
// Run blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	s.mu.RLock()
	interval := s.cfg.SweepInterval
	s.mu.RUnlock()

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale rooms", "count", n, "remaining", s.Count())
			}
		}
	}
}

// --- internal ---------------------------------------------------------------

// fullLocked reports whether one more room would exceed the cap.
// Caller holds s.mu.
func (s *Store) fullLocked() bool {
	return s.cfg.MaxRooms >= 0 && len(s.data) >= s.cfg.MaxRooms
}

// evictLocked deletes expired registers and returns their ids.
// Caller holds s.mu for writing.
func (s *Store) evictLocked(now time.Time) []string {
	var removed []string
	for id, e := range s.data {
		if e.expired(now, s.cfg.TTL) {
			delete(s.data, id)
			removed = append(removed, id)
		}
	}
	s.evicted.Add(uint64(len(removed)))
	return removed
}

func logRemoved(ids []string) {
	for _, id := range ids {
		slog.Debug("store: cleaned up room", "room", id)
	}
}
