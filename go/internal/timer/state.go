package timer

import "time"

const (
	// MinDuration is the floor for the configured duration and for a paused
	// remainder reduced by RemoveTime.
	MinDuration = time.Minute

	// MaxDuration is the ceiling for the configured duration. Larger minute
	// arguments are clamped to it.
	MaxDuration = 365 * 24 * time.Hour

	// DefaultMinutes is the duration a fresh or reset timer starts with.
	DefaultMinutes = 5

	// minRunwayOnRemove is the closest RemoveTime may pull a running end time
	// towards now.
	minRunwayOnRemove = time.Second
)

// Mode is the active mode of a timer, derived from its raw fields and the
// current time.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeRunning   Mode = "running"
	ModePaused    Mode = "paused"
	ModeCompleted Mode = "completed"
)

// State is the canonical timer state shared by every client.
//
// Only raw fields live here. Completion and pause are derived on demand by
// IsComplete and IsPaused so they can never disagree with the raw fields.
type State struct {
	Duration        time.Duration
	StartTime       *time.Time
	EndTime         *time.Time
	IsRunning       bool
	PausedRemaining *time.Duration
	LastUpdated     time.Time
}

// NewState returns an idle timer of the given length stamped at now.
func NewState(minutes int, now time.Time) State {
	return State{
		Duration:    minutesToDuration(minutes, MinDuration),
		LastUpdated: truncateMillis(now),
	}
}

// IsPaused reports whether the timer is frozen with a stored remainder.
func (s State) IsPaused() bool {
	return !s.IsRunning && s.PausedRemaining != nil
}

// IsComplete reports whether a run has finished at now.
func (s State) IsComplete(now time.Time) bool {
	return !s.IsRunning && s.StartTime != nil && s.EndTime != nil && !now.Before(*s.EndTime)
}

// Mode returns the active mode at now.
func (s State) Mode(now time.Time) Mode {
	switch {
	case s.IsRunning:
		return ModeRunning
	case s.IsPaused():
		return ModePaused
	case s.IsComplete(now):
		return ModeCompleted
	default:
		return ModeIdle
	}
}

// SameContent reports whether two states carry the same raw fields, ignoring
// LastUpdated.
func (s State) SameContent(other State) bool {
	return s.Duration == other.Duration &&
		s.IsRunning == other.IsRunning &&
		equalTime(s.StartTime, other.StartTime) &&
		equalTime(s.EndTime, other.EndTime) &&
		equalDuration(s.PausedRemaining, other.PausedRemaining)
}

// Equal reports whether two states carry identical raw fields including
// LastUpdated.
func (s State) Equal(other State) bool {
	return s.SameContent(other) && s.LastUpdated.Equal(other.LastUpdated)
}

// Clone returns a deep copy so callers can never alias the Store's pointers.
func (s State) Clone() State {
	out := s
	if s.StartTime != nil {
		t := *s.StartTime
		out.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	if s.PausedRemaining != nil {
		d := *s.PausedRemaining
		out.PausedRemaining = &d
	}
	return out
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func equalDuration(a, b *time.Duration) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}

func minutesToDuration(minutes int, floor time.Duration) time.Duration {
	d := clampMinutes(minutes)
	if d < floor {
		return floor
	}
	return d
}

// clampMinutes converts minutes to a duration in [0, MaxDuration] without
// overflowing.
func clampMinutes(minutes int) time.Duration {
	if minutes <= 0 {
		return 0
	}
	if int64(minutes) >= int64(MaxDuration/time.Minute) {
		return MaxDuration
	}
	return time.Duration(minutes) * time.Minute
}

// truncateMillis drops sub-millisecond precision and the monotonic reading so
// local times survive a round trip through the wire format unchanged.
func truncateMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}
