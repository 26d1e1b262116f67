package timer

import (
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *clockwork.FakeClock, *[]Change) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(t0)
	store := NewStore(clock, DefaultMinutes)

	var changes []Change
	store.Observe(func(c Change) {
		changes = append(changes, c)
	})
	return store, clock, &changes
}

func TestStoreStampsStrictlyIncreasingVersions(t *testing.T) {
	store, _, changes := newTestStore(t)
	initial := store.State().LastUpdated

	// The fake clock never moves, so every change must still advance.
	_, changed := store.Start()
	require.True(t, changed)
	_, changed = store.Pause()
	require.True(t, changed)
	_, changed = store.AddTime(1)
	require.True(t, changed)

	require.Len(t, *changes, 3)
	prev := initial
	for _, c := range *changes {
		assert.True(t, c.Current.LastUpdated.After(prev))
		assert.True(t, c.Current.LastUpdated.After(c.Previous.LastUpdated))
		prev = c.Current.LastUpdated
	}
	assert.True(t, store.State().LastUpdated.Equal(t0.Add(2*time.Millisecond)))
}

func TestStoreStartsUnversioned(t *testing.T) {
	store, clock, changes := newTestStore(t)
	require.False(t, store.Versioned())

	// Any remote snapshot beats the initial state.
	require.True(t, store.ApplyRemote(NewState(7, time.UnixMilli(1)).Snapshot()))
	assert.True(t, store.Versioned())

	clock.Advance(time.Second)
	claimed := store.Claim()
	assert.Equal(t, 7*time.Minute, claimed.Duration)
	assert.True(t, claimed.LastUpdated.Equal(t0.Add(time.Second)))
	require.Len(t, *changes, 2)
	assert.Equal(t, OriginCommand, (*changes)[1].Origin)
}

func TestStoreVersionFollowsClock(t *testing.T) {
	store, clock, _ := newTestStore(t)

	clock.Advance(2 * time.Second)
	st, changed := store.Start()

	require.True(t, changed)
	assert.True(t, st.LastUpdated.Equal(t0.Add(2*time.Second)))
}

func TestStoreNoopCommandDoesNotNotify(t *testing.T) {
	store, _, changes := newTestStore(t)
	before := store.State()

	st, changed := store.Pause()

	assert.False(t, changed)
	assert.True(t, st.Equal(before))
	assert.Empty(t, *changes)
}

func TestStoreTagsChangeOrigin(t *testing.T) {
	store, clock, changes := newTestStore(t)

	store.Start()
	clock.Advance(5 * time.Minute)
	store.Expire()

	remote := NewState(3, t0.Add(time.Hour))
	require.True(t, store.ApplyRemote(remote.Snapshot()))

	require.Len(t, *changes, 3)
	assert.Equal(t, OriginCommand, (*changes)[0].Origin)
	assert.Equal(t, OriginClock, (*changes)[1].Origin)
	assert.Equal(t, OriginRemote, (*changes)[2].Origin)
}

func TestStoreApplyRemoteIsIdempotent(t *testing.T) {
	store, clock, changes := newTestStore(t)

	remote := Start(NewState(10, t0), t0)
	remote.LastUpdated = t0.Add(time.Second)
	snap := remote.Snapshot()

	clock.Advance(500 * time.Millisecond)
	assert.True(t, store.ApplyRemote(snap))
	assert.False(t, store.ApplyRemote(snap))
	assert.Len(t, *changes, 1)

	st := store.State()
	assert.True(t, st.Equal(remote))
	assert.True(t, st.LastUpdated.Equal(t0.Add(time.Second)))
}

func TestStoreApplyRemoteIgnoresOlder(t *testing.T) {
	store, clock, _ := newTestStore(t)
	clock.Advance(time.Second)
	local, _ := store.Start()

	older := NewState(30, t0)
	assert.False(t, store.ApplyRemote(older.Snapshot()))
	assert.True(t, store.State().Equal(local))
}

func TestStoreCommandAfterRemoteStaysAhead(t *testing.T) {
	store, _, _ := newTestStore(t)

	// A remote client with a fast clock wrote a version from the future.
	ahead := NewState(5, t0.Add(time.Minute))
	require.True(t, store.ApplyRemote(Start(ahead, t0).Snapshot()))

	st, changed := store.Pause()

	require.True(t, changed)
	assert.True(t, st.LastUpdated.After(t0.Add(time.Minute)))
}

func TestStoreModesStayExclusive(t *testing.T) {
	store, clock, _ := newTestStore(t)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		switch rng.Intn(6) {
		case 0:
			store.Start()
		case 1:
			store.Pause()
		case 2:
			store.Reset(rng.Intn(4))
		case 3:
			store.AddTime(rng.Intn(3))
		case 4:
			store.RemoveTime(rng.Intn(3))
		case 5:
			store.Expire()
		}
		clock.Advance(time.Duration(rng.Intn(90_000)) * time.Millisecond)

		st := store.State()
		now := store.Now()
		assert.False(t, st.IsRunning && st.IsPaused(), "step %d", i)
		assert.False(t, st.IsRunning && st.IsComplete(now), "step %d", i)
		assert.False(t, st.IsPaused() && st.IsComplete(now), "step %d", i)
		assert.GreaterOrEqual(t, st.Duration, MinDuration, "step %d", i)
		if st.IsRunning {
			assert.NotNil(t, st.StartTime, "step %d", i)
			assert.NotNil(t, st.EndTime, "step %d", i)
		}
		if st.IsPaused() {
			assert.Positive(t, *st.PausedRemaining, "step %d", i)
		}
	}
}

func TestStoreExecute(t *testing.T) {
	store, _, _ := newTestStore(t)

	st, changed, err := store.Execute(Command{Type: CommandAddTime, Minutes: 2})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 7*time.Minute, st.Duration)

	st, _, err = store.Execute(Command{Type: CommandReset})
	require.NoError(t, err)
	assert.Equal(t, DefaultMinutes*time.Minute, st.Duration)

	_, _, err = store.Execute(Command{Type: "rewind"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestSnapshotRoundTrip(t *testing.T) {
	states := []State{
		NewState(5, t0),
		Start(NewState(5, t0), t0),
		Pause(Start(NewState(5, t0), t0), t0.Add(1234*time.Millisecond)),
		Expire(Start(NewState(1, t0), t0), t0.Add(time.Minute)),
	}

	for _, s := range states {
		assert.True(t, s.Snapshot().State().Equal(s))
	}

	idle := NewState(5, t0).Snapshot()
	assert.Nil(t, idle.StartTime)
	assert.Nil(t, idle.EndTime)
	assert.Nil(t, idle.PausedRemainingMs)
	assert.Equal(t, int64(300_000), idle.DurationMs)
}
