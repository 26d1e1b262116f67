package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Origin records what caused a state change.
type Origin string

const (
	OriginCommand Origin = "command"
	OriginClock   Origin = "clock"
	OriginRemote  Origin = "remote"
)

// Change describes one committed state change.
type Change struct {
	Previous State
	Current  State
	Origin   Origin
}

// Observer is notified of every committed change, in commit order.
//
// Observers run while the Store is locked: they must return quickly and must
// not call back into the Store.
type Observer func(Change)

// Store owns the single canonical State of a client. Commands, remote
// snapshots and clock expiry are all serialized through it.
type Store struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	state     State
	observers []Observer
}

// NewStore creates a Store holding an idle timer of the given length.
//
// The initial state is unversioned (LastUpdated is the Unix epoch), so the
// first snapshot learned from the channel always replaces it.
func NewStore(clock clockwork.Clock, minutes int) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		clock: clock,
		state: NewState(minutes, time.UnixMilli(0)),
	}
}

// Observe registers an observer for future changes.
func (s *Store) Observe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Now returns the Store's clock reading truncated to milliseconds.
func (s *Store) Now() time.Time {
	return truncateMillis(s.clock.Now())
}

// Projection returns the presentation view at the current time.
func (s *Store) Projection() Projection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Project(s.Now())
}

// Start starts or resumes the timer.
func (s *Store) Start() (State, bool) {
	return s.apply(OriginCommand, Start)
}

// Pause freezes a running timer.
func (s *Store) Pause() (State, bool) {
	return s.apply(OriginCommand, Pause)
}

// Reset returns to an idle timer of the given length.
func (s *Store) Reset(minutes int) (State, bool) {
	return s.apply(OriginCommand, func(st State, _ time.Time) State {
		return Reset(st, minutes)
	})
}

// AddTime lengthens the timer.
func (s *Store) AddTime(minutes int) (State, bool) {
	return s.apply(OriginCommand, func(st State, now time.Time) State {
		return AddTime(st, minutes, now)
	})
}

// RemoveTime shortens the timer.
func (s *Store) RemoveTime(minutes int) (State, bool) {
	return s.apply(OriginCommand, func(st State, now time.Time) State {
		return RemoveTime(st, minutes, now)
	})
}

// Expire completes a running timer whose end time has passed. It is driven
// by the scheduler, not by users.
func (s *Store) Expire() (State, bool) {
	return s.apply(OriginClock, Expire)
}

// Versioned reports whether the state has been stamped by a transition or
// learned from a remote snapshot.
func (s *Store) Versioned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastUpdated.UnixMilli() > 0
}

// Claim restamps the current state with a fresh version without changing its
// content. A client that finds the channel empty claims its state so it can
// be published as the authoritative one.
func (s *Store) Claim() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	next.LastUpdated = s.nextVersion(s.Now())
	s.commit(next, OriginCommand)
	return next.Clone()
}

// ApplyRemote merges a snapshot received from another client. It reports
// whether the snapshot was newer than the local state and therefore applied.
func (s *Store) ApplyRemote(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	next, accepted := Merge(s.state, snap.State(), now)
	if !accepted {
		log.Debug().
			Int64("remote_last_updated", snap.LastUpdated).
			Int64("local_last_updated", s.state.LastUpdated.UnixMilli()).
			Msg("ignoring stale remote snapshot")
		return false
	}

	s.commit(next, OriginRemote)
	return true
}

func (s *Store) apply(origin Origin, transition func(State, time.Time) State) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	next := transition(s.state.Clone(), now)
	if next.SameContent(s.state) {
		return s.state.Clone(), false
	}

	next.LastUpdated = s.nextVersion(now)
	s.commit(next, origin)
	return next.Clone(), true
}

// nextVersion returns a LastUpdated strictly greater than the current one.
func (s *Store) nextVersion(now time.Time) time.Time {
	floor := s.state.LastUpdated.Add(time.Millisecond)
	if now.Before(floor) {
		return floor
	}
	return now
}

func (s *Store) commit(next State, origin Origin) {
	change := Change{
		Previous: s.state,
		Current:  next.Clone(),
		Origin:   origin,
	}
	s.state = next

	log.Debug().
		Str("origin", string(origin)).
		Bool("running", next.IsRunning).
		Int64("duration_ms", next.Duration.Milliseconds()).
		Int64("last_updated", next.LastUpdated.UnixMilli()).
		Msg("timer state changed")

	for _, o := range s.observers {
		o(change)
	}
}
