package timer

import "time"

// Projection is the read-only view handed to presentation code. It is
// recomputed from State and the current time and never written back.
type Projection struct {
	RemainingMs      int64   `json:"remainingMs"`
	RemainingSeconds int64   `json:"remainingSeconds"`
	TotalSeconds     int64   `json:"totalSeconds"`
	Progress         float64 `json:"progress"`
	IsRunning        bool    `json:"isRunning"`
	IsPaused         bool    `json:"isPaused"`
	IsComplete       bool    `json:"isComplete"`
	Mode             Mode    `json:"mode"`
}

// Remaining returns the time left at now: the live countdown while running,
// the frozen remainder while paused, zero once complete and the full duration
// otherwise.
func (s State) Remaining(now time.Time) time.Duration {
	switch {
	case s.IsRunning && s.EndTime != nil:
		if left := s.EndTime.Sub(now); left > 0 {
			return left
		}
		return 0
	case s.IsPaused():
		return *s.PausedRemaining
	case s.IsComplete(now):
		return 0
	default:
		return s.Duration
	}
}

// DisplaySeconds converts a remaining duration to the seconds shown to the
// user. It rounds up so the display only reaches zero at true expiry.
func DisplaySeconds(remaining time.Duration) int64 {
	if remaining <= 0 {
		return 0
	}
	ms := remaining.Milliseconds()
	secs := (ms + 999) / 1000
	if secs < 1 {
		return 1
	}
	return secs
}

// Project computes the presentation view of s at now.
func (s State) Project(now time.Time) Projection {
	remaining := s.Remaining(now)
	total := DisplaySeconds(s.Duration)

	progress := 0.0
	if s.Duration > 0 {
		progress = float64(remaining) / float64(s.Duration) * 100
	}
	if progress > 100 {
		progress = 100
	}
	if progress < 0 {
		progress = 0
	}

	return Projection{
		RemainingMs:      remaining.Milliseconds(),
		RemainingSeconds: DisplaySeconds(remaining),
		TotalSeconds:     total,
		Progress:         progress,
		IsRunning:        s.IsRunning,
		IsPaused:         s.IsPaused(),
		IsComplete:       s.IsComplete(now),
		Mode:             s.Mode(now),
	}
}
