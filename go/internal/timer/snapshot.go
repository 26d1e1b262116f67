package timer

import "time"

// Snapshot is the wire form of State exchanged over the message channel.
// Times are Unix milliseconds. Absent optional fields are nil and encode as
// null, which is the explicit "no value" marker on the wire.
type Snapshot struct {
	DurationMs        int64  `json:"durationMs"`
	StartTime         *int64 `json:"startTime"`
	EndTime           *int64 `json:"endTime"`
	IsRunning         bool   `json:"isRunning"`
	PausedRemainingMs *int64 `json:"pausedRemainingMs"`
	LastUpdated       int64  `json:"lastUpdated"`
}

// Snapshot converts the state to its wire form.
func (s State) Snapshot() Snapshot {
	snap := Snapshot{
		DurationMs:  s.Duration.Milliseconds(),
		IsRunning:   s.IsRunning,
		LastUpdated: s.LastUpdated.UnixMilli(),
	}
	if s.StartTime != nil {
		ms := s.StartTime.UnixMilli()
		snap.StartTime = &ms
	}
	if s.EndTime != nil {
		ms := s.EndTime.UnixMilli()
		snap.EndTime = &ms
	}
	if s.PausedRemaining != nil {
		ms := s.PausedRemaining.Milliseconds()
		snap.PausedRemainingMs = &ms
	}
	return snap
}

// State converts a wire snapshot back to a State.
func (snap Snapshot) State() State {
	s := State{
		Duration:    time.Duration(snap.DurationMs) * time.Millisecond,
		IsRunning:   snap.IsRunning,
		LastUpdated: time.UnixMilli(snap.LastUpdated),
	}
	if snap.StartTime != nil {
		s.StartTime = timePtr(time.UnixMilli(*snap.StartTime))
	}
	if snap.EndTime != nil {
		s.EndTime = timePtr(time.UnixMilli(*snap.EndTime))
	}
	if snap.PausedRemainingMs != nil {
		s.PausedRemaining = durationPtr(time.Duration(*snap.PausedRemainingMs) * time.Millisecond)
	}
	return s
}
