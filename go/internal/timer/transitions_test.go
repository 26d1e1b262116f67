package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.UnixMilli(1_700_000_000_000)

func runningState(start time.Time, duration, remaining time.Duration) State {
	end := start.Add(remaining)
	return State{
		Duration:    duration,
		StartTime:   timePtr(start),
		EndTime:     timePtr(end),
		IsRunning:   true,
		LastUpdated: start,
	}
}

func TestStartUsesDurationWhenIdle(t *testing.T) {
	s := NewState(5, t0)

	next := Start(s, t0)

	require.True(t, next.IsRunning)
	require.NotNil(t, next.StartTime)
	require.NotNil(t, next.EndTime)
	assert.True(t, next.StartTime.Equal(t0))
	assert.True(t, next.EndTime.Equal(t0.Add(5*time.Minute)))
	assert.Nil(t, next.PausedRemaining)
}

func TestStartWhileRunningIsNoop(t *testing.T) {
	s := runningState(t0, 5*time.Minute, 5*time.Minute)

	next := Start(s, t0.Add(time.Minute))

	assert.True(t, next.Equal(s))
}

func TestPauseThenResume(t *testing.T) {
	s := Start(NewState(5, t0), t0)

	pausedAt := t0.Add(90 * time.Second)
	paused := Pause(s, pausedAt)
	require.True(t, paused.IsPaused())
	assert.False(t, paused.IsRunning)
	assert.Nil(t, paused.StartTime)
	assert.Nil(t, paused.EndTime)
	assert.Equal(t, 210*time.Second, *paused.PausedRemaining)

	resumedAt := pausedAt.Add(10 * time.Minute)
	resumed := Start(paused, resumedAt)
	require.True(t, resumed.IsRunning)
	assert.True(t, resumed.EndTime.Equal(resumedAt.Add(210*time.Second)))
	assert.Nil(t, resumed.PausedRemaining)
}

func TestPauseWhenNotRunningIsNoop(t *testing.T) {
	s := NewState(5, t0)
	assert.True(t, Pause(s, t0).Equal(s))
}

func TestPausePastEndExpires(t *testing.T) {
	s := runningState(t0, time.Minute, time.Minute)

	next := Pause(s, t0.Add(2*time.Minute))

	assert.False(t, next.IsRunning)
	assert.False(t, next.IsPaused())
	assert.True(t, next.IsComplete(t0.Add(2*time.Minute)))
}

func TestResetReturnsToDefaults(t *testing.T) {
	s := runningState(t0, 10*time.Minute, 4*time.Minute)

	next := Reset(s, 7)

	assert.Equal(t, 7*time.Minute, next.Duration)
	assert.Nil(t, next.StartTime)
	assert.Nil(t, next.EndTime)
	assert.Nil(t, next.PausedRemaining)
	assert.False(t, next.IsRunning)
	assert.Equal(t, 1*time.Minute, Reset(s, 0).Duration)
}

func TestAddTimeWhileRunning(t *testing.T) {
	s := Start(NewState(5, t0), t0)

	next := AddTime(s, 5, t0.Add(time.Minute))

	assert.True(t, next.IsRunning)
	assert.Equal(t, 10*time.Minute, next.Duration)
	assert.True(t, next.EndTime.Equal(t0.Add(600_000*time.Millisecond)))
}

func TestHugeMinuteArgumentsSaturate(t *testing.T) {
	const huge = 200_000_000
	running := Start(NewState(5, t0), t0)
	paused := Pause(running, t0.Add(time.Minute))

	tests := []struct {
		name         string
		apply        func() State
		wantDuration time.Duration
		check        func(t *testing.T, next State)
	}{
		{
			name:         "add while running moves the end later",
			apply:        func() State { return AddTime(running, huge, t0) },
			wantDuration: MaxDuration,
			check: func(t *testing.T, next State) {
				assert.True(t, next.IsRunning)
				assert.True(t, next.EndTime.Equal(t0.Add(MaxDuration)))
			},
		},
		{
			name:         "add while paused grows the remainder",
			apply:        func() State { return AddTime(paused, huge, t0.Add(time.Minute)) },
			wantDuration: MaxDuration,
			check: func(t *testing.T, next State) {
				require.NotNil(t, next.PausedRemaining)
				assert.Equal(t, MaxDuration-time.Minute, *next.PausedRemaining)
			},
		},
		{
			name:         "add at the ceiling is a no-op",
			apply:        func() State { return AddTime(NewState(huge, t0), 5, t0) },
			wantDuration: MaxDuration,
		},
		{
			name:         "remove while running clamps near now",
			apply:        func() State { return RemoveTime(running, huge, t0) },
			wantDuration: MinDuration,
			check: func(t *testing.T, next State) {
				assert.True(t, next.EndTime.Equal(t0.Add(time.Second)))
			},
		},
		{
			name:         "reset",
			apply:        func() State { return Reset(running, huge) },
			wantDuration: MaxDuration,
		},
		{
			name:         "new state",
			apply:        func() State { return NewState(huge, t0) },
			wantDuration: MaxDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := tt.apply()
			assert.Equal(t, tt.wantDuration, next.Duration)
			if tt.check != nil {
				tt.check(t, next)
			}
		})
	}
}

func TestRemoveTimeClampedNearEnd(t *testing.T) {
	now := t0.Add(297 * time.Second)
	s := runningState(t0, 5*time.Minute, 5*time.Minute)
	require.Equal(t, 3*time.Second, s.EndTime.Sub(now))

	next := RemoveTime(s, 5, now)

	assert.True(t, next.IsRunning)
	assert.True(t, next.EndTime.Equal(now.Add(time.Second)))
	assert.Equal(t, MinDuration, next.Duration)
	assert.Positive(t, next.Remaining(now))
}

func TestRemoveTimeNeverExtendsRun(t *testing.T) {
	now := t0.Add(299_500 * time.Millisecond)
	s := runningState(t0, 5*time.Minute, 5*time.Minute)

	next := RemoveTime(s, 1, now)

	assert.True(t, next.EndTime.Equal(*s.EndTime))
}

func TestRemoveTimeWhileRunningShiftsEnd(t *testing.T) {
	s := runningState(t0, 10*time.Minute, 10*time.Minute)

	next := RemoveTime(s, 3, t0.Add(time.Minute))

	assert.Equal(t, 7*time.Minute, next.Duration)
	assert.True(t, next.EndTime.Equal(t0.Add(7*time.Minute)))
}

func TestAdjustAfterCompletionReturnsToIdle(t *testing.T) {
	s := Expire(runningState(t0, 5*time.Minute, 5*time.Minute), t0.Add(5*time.Minute))
	require.True(t, s.IsComplete(t0.Add(5*time.Minute)))

	next := AddTime(s, 2, t0.Add(6*time.Minute))

	assert.Equal(t, ModeIdle, next.Mode(t0.Add(6*time.Minute)))
	assert.Equal(t, 7*time.Minute, next.Duration)
	assert.Nil(t, next.StartTime)
	assert.Nil(t, next.EndTime)
}

func TestAdjustWhilePaused(t *testing.T) {
	s := Pause(Start(NewState(5, t0), t0), t0.Add(time.Minute))
	require.Equal(t, 4*time.Minute, *s.PausedRemaining)

	added := AddTime(s, 2, t0.Add(2*time.Minute))
	assert.Equal(t, 6*time.Minute, *added.PausedRemaining)
	assert.Equal(t, 7*time.Minute, added.Duration)

	removed := RemoveTime(s, 10, t0.Add(2*time.Minute))
	assert.Equal(t, MinDuration, *removed.PausedRemaining)
	assert.Equal(t, MinDuration, removed.Duration)
}

func TestRemoveTimeNeverRaisesShortPausedRemainder(t *testing.T) {
	s := Pause(Start(NewState(1, t0), t0), t0.Add(30*time.Second))
	require.Equal(t, 30*time.Second, *s.PausedRemaining)

	next := RemoveTime(s, 1, t0.Add(time.Minute))

	assert.Equal(t, 30*time.Second, *next.PausedRemaining)
}

func TestAdjustWhileIdleOnlyChangesDuration(t *testing.T) {
	s := NewState(5, t0)

	next := AddTime(s, 3, t0)

	assert.Equal(t, 8*time.Minute, next.Duration)
	assert.Equal(t, ModeIdle, next.Mode(t0))
	assert.True(t, RemoveTime(s, -2, t0).Equal(s))
}

func TestExpireKeepsStartAndEnd(t *testing.T) {
	s := runningState(t0, 5*time.Minute, 5*time.Minute)

	assert.True(t, Expire(s, t0.Add(4*time.Minute)).Equal(s))

	end := t0.Add(5 * time.Minute)
	next := Expire(s, end)
	assert.False(t, next.IsRunning)
	assert.NotNil(t, next.StartTime)
	assert.NotNil(t, next.EndTime)
	assert.True(t, next.IsComplete(end))
	assert.Equal(t, ModeCompleted, next.Mode(end))
}

func TestMergeRejectsStaleAndDuplicate(t *testing.T) {
	local := NewState(5, t0)
	remote := Start(NewState(5, t0), t0)
	remote.LastUpdated = t0.Add(time.Millisecond)

	merged, accepted := Merge(local, remote, t0)
	require.True(t, accepted)
	assert.True(t, merged.Equal(remote))

	again, accepted := Merge(merged, remote, t0)
	assert.False(t, accepted)
	assert.True(t, again.Equal(merged))

	older := remote.Clone()
	older.LastUpdated = t0.Add(-time.Second)
	_, accepted = Merge(merged, older, t0)
	assert.False(t, accepted)
}

func TestMergeExpiresRemoteRunPastItsEnd(t *testing.T) {
	now := t0
	local := NewState(5, now.Add(-time.Minute))
	remote := State{
		Duration:    5 * time.Minute,
		StartTime:   timePtr(now.Add(-5*time.Minute - 5*time.Second)),
		EndTime:     timePtr(now.Add(-5 * time.Second)),
		IsRunning:   true,
		LastUpdated: now.Add(time.Millisecond),
	}

	merged, accepted := Merge(local, remote, now)

	require.True(t, accepted)
	assert.False(t, merged.IsRunning)
	assert.True(t, merged.IsComplete(now))
	assert.True(t, merged.LastUpdated.Equal(remote.LastUpdated))
}
