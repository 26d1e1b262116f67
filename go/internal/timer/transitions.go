package timer

import "time"

// The functions in this file are the pure transition rules of the timer. They
// never read a clock and never touch LastUpdated; the Store stamps versions
// after deciding a transition changed something.

// Start begins a run, resuming from the paused remainder when there is one.
// Starting a timer that is already running leaves it untouched.
func Start(s State, now time.Time) State {
	if s.IsRunning {
		return s
	}

	timeToRun := s.Duration
	if s.PausedRemaining != nil {
		timeToRun = *s.PausedRemaining
	}

	next := s.Clone()
	next.StartTime = timePtr(now)
	next.EndTime = timePtr(now.Add(timeToRun))
	next.IsRunning = true
	next.PausedRemaining = nil
	return next
}

// Pause freezes a running timer with whatever time is left. A run whose end
// has already passed is expired instead, so pause never yields a zero
// remainder.
func Pause(s State, now time.Time) State {
	if !s.IsRunning {
		return s
	}

	remaining := time.Duration(0)
	if s.EndTime != nil {
		remaining = s.EndTime.Sub(now)
	}
	if remaining <= 0 {
		return Expire(s, now)
	}

	next := s.Clone()
	next.PausedRemaining = durationPtr(remaining)
	next.StartTime = nil
	next.EndTime = nil
	next.IsRunning = false
	return next
}

// Reset discards the current run and returns to an idle timer of the given
// length. Lengths under one minute are clamped to one minute.
func Reset(s State, minutes int) State {
	return State{
		Duration:    minutesToDuration(minutes, MinDuration),
		LastUpdated: s.LastUpdated,
	}
}

// AddTime lengthens the timer by the given minutes.
func AddTime(s State, minutes int, now time.Time) State {
	return adjust(s, clampMinutes(minutes), now)
}

// RemoveTime shortens the timer by the given minutes, never dropping the
// duration under one minute and never pulling a running end time closer than
// one second from now.
func RemoveTime(s State, minutes int, now time.Time) State {
	return adjust(s, -clampMinutes(minutes), now)
}

// Expire finishes a run whose end time has been reached. Start and end are
// kept so the result derives as complete rather than idle.
func Expire(s State, now time.Time) State {
	if !s.IsRunning || s.EndTime == nil || now.Before(*s.EndTime) {
		return s
	}

	next := s.Clone()
	next.IsRunning = false
	next.PausedRemaining = nil
	return next
}

// Merge resolves a remote snapshot against the local state with
// last-writer-wins on LastUpdated. It returns the state to keep and whether
// the remote one was accepted. An accepted snapshot that claims to be running
// past its end time on the local clock is expired on the way in.
func Merge(s State, remote State, now time.Time) (State, bool) {
	if !remote.LastUpdated.After(s.LastUpdated) {
		return s, false
	}

	next := remote.Clone()
	if next.IsRunning && next.EndTime != nil && !now.Before(*next.EndTime) {
		next = Expire(next, now)
	}
	return next, true
}

func adjust(s State, delta time.Duration, now time.Time) State {
	// Additions saturate at MaxDuration so the end time always moves later.
	if room := max(MaxDuration-s.Duration, 0); delta > room {
		delta = room
	}
	if delta == 0 {
		return s
	}

	next := s.Clone()
	next.Duration = s.Duration + delta
	if next.Duration < MinDuration {
		next.Duration = MinDuration
	}

	switch s.Mode(now) {
	case ModeRunning:
		if s.EndTime == nil {
			break
		}
		end := s.EndTime.Add(delta)
		if delta < 0 {
			floor := now.Add(minRunwayOnRemove)
			if end.Before(floor) {
				end = floor
			}
			if end.After(*s.EndTime) {
				end = *s.EndTime
			}
		}
		next.EndTime = timePtr(end)

	case ModeCompleted:
		next.StartTime = nil
		next.EndTime = nil
		next.IsRunning = false

	case ModePaused:
		remaining := *s.PausedRemaining + delta
		if delta < 0 {
			floor := min(*s.PausedRemaining, MinDuration)
			if remaining < floor {
				remaining = floor
			}
		}
		next.PausedRemaining = durationPtr(remaining)
	}

	return next
}
