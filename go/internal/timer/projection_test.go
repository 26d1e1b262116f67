package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisplaySecondsRoundsUp(t *testing.T) {
	tests := []struct {
		remaining time.Duration
		want      int64
	}{
		{60000 * time.Millisecond, 60},
		{59999 * time.Millisecond, 60},
		{1000 * time.Millisecond, 1},
		{999 * time.Millisecond, 1},
		{1 * time.Millisecond, 1},
		{500 * time.Microsecond, 1},
		{0, 0},
		{-time.Second, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DisplaySeconds(tt.remaining), "remaining %s", tt.remaining)
	}
}

func TestRemainingByMode(t *testing.T) {
	idle := NewState(5, t0)
	assert.Equal(t, 5*time.Minute, idle.Remaining(t0))

	running := Start(idle, t0)
	assert.Equal(t, 4*time.Minute, running.Remaining(t0.Add(time.Minute)))
	assert.Equal(t, time.Duration(0), running.Remaining(t0.Add(6*time.Minute)))

	paused := Pause(running, t0.Add(2*time.Minute))
	assert.Equal(t, 3*time.Minute, paused.Remaining(t0.Add(time.Hour)))

	done := Expire(running, t0.Add(5*time.Minute))
	assert.Equal(t, time.Duration(0), done.Remaining(t0.Add(5*time.Minute)))
}

func TestProjectRunningTimer(t *testing.T) {
	s := Start(NewState(1, t0), t0)

	p := s.Project(t0.Add(15*time.Second + 1*time.Millisecond))

	assert.Equal(t, int64(45), p.RemainingSeconds)
	assert.Equal(t, int64(60), p.TotalSeconds)
	assert.InDelta(t, 75.0, p.Progress, 0.01)
	assert.True(t, p.IsRunning)
	assert.False(t, p.IsPaused)
	assert.False(t, p.IsComplete)
	assert.Equal(t, ModeRunning, p.Mode)
}

func TestProjectFlagsAreExclusive(t *testing.T) {
	now := t0.Add(5 * time.Minute)
	states := []State{
		NewState(5, t0),
		Start(NewState(5, t0), t0),
		Pause(Start(NewState(5, t0), t0), t0.Add(time.Minute)),
		Expire(Start(NewState(5, t0), t0), now),
	}

	for _, s := range states {
		p := s.Project(now)
		assert.False(t, p.IsRunning && p.IsPaused)
		if p.IsComplete {
			assert.False(t, p.IsRunning)
		}
	}

	done := states[3].Project(now)
	assert.True(t, done.IsComplete)
	assert.Equal(t, int64(0), done.RemainingSeconds)
	assert.Equal(t, 0.0, done.Progress)
}
