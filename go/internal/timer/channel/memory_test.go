package channel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	messages []Message
	statuses []Status
}

func (r *recorder) OnMessage(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *recorder) OnStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func TestMemoryDeliversToAllSubscribers(t *testing.T) {
	ctx := context.Background()
	ch := NewMemory("countdown-timer", 3)

	a, b := &recorder{}, &recorder{}
	_, err := ch.Subscribe(ctx, a)
	require.NoError(t, err)
	subB, err := ch.Subscribe(ctx, b)
	require.NoError(t, err)

	require.NoError(t, ch.Publish(ctx, Message{ID: "1", Publisher: "a", Data: []byte("x")}))
	require.NoError(t, subB.Unsubscribe())
	require.NoError(t, ch.Publish(ctx, Message{ID: "2", Publisher: "a", Data: []byte("y")}))

	assert.Len(t, a.messages, 2)
	assert.Len(t, b.messages, 1)
	assert.Equal(t, []Status{StatusConnected}, a.statuses)
}

func TestMemoryHistoryKeepsNewest(t *testing.T) {
	ctx := context.Background()
	ch := NewMemory("countdown-timer", 2)

	empty, err := ch.History(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, ch.Publish(ctx, Message{ID: id}))
	}

	all, err := ch.History(ctx, 5)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].ID)
	assert.Equal(t, "3", all[1].ID)

	last, err := ch.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "3", last[0].ID)
}

func TestMemoryDisconnectFailsOperations(t *testing.T) {
	ctx := context.Background()
	ch := NewMemory("countdown-timer", 0)
	r := &recorder{}
	_, err := ch.Subscribe(ctx, r)
	require.NoError(t, err)

	ch.SetConnected(false)
	assert.ErrorIs(t, ch.Publish(ctx, Message{ID: "1"}), ErrDisconnected)
	_, err = ch.History(ctx, 1)
	assert.ErrorIs(t, err, ErrDisconnected)

	ch.SetConnected(true)
	assert.NoError(t, ch.Publish(ctx, Message{ID: "2"}))
	assert.Equal(t, []Status{StatusConnected, StatusDisconnected, StatusConnected}, r.statuses)

	require.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.Publish(ctx, Message{ID: "3"}), ErrClosed)
}
