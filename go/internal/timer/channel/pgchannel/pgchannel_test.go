package pgchannel

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/synctimer/go/internal/dbconfig"
	"github.com/mcdev12/synctimer/go/internal/timer/channel"
)

type recorder struct {
	mu       sync.Mutex
	messages []channel.Message
	statuses []channel.Status
}

func (r *recorder) OnMessage(m channel.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *recorder) OnStatus(s channel.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func TestNotifyChannel(t *testing.T) {
	assert.Equal(t, "timer_countdown_timer", NotifyChannel("countdown-timer"))
	assert.Equal(t, "timer_room_42", NotifyChannel("Room 42"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		ev   pq.ListenerEventType
		want channel.Status
		ok   bool
	}{
		{pq.ListenerEventConnected, channel.StatusConnected, true},
		{pq.ListenerEventReconnected, channel.StatusConnected, true},
		{pq.ListenerEventDisconnected, channel.StatusDisconnected, true},
		{pq.ListenerEventConnectionAttemptFailed, channel.StatusDisconnected, true},
	}

	for _, tt := range tests {
		got, ok := statusFor(tt.ev)
		assert.Equal(t, tt.ok, ok)
		assert.Equal(t, tt.want, got)
	}
}

func TestListenerEventsReachSubscribers(t *testing.T) {
	c := &Channel{
		name:      "countdown-timer",
		listeners: make(map[int]channel.Listener),
		status:    channel.StatusConnected,
	}
	r := &recorder{}
	sub, err := c.Subscribe(context.Background(), r)
	require.NoError(t, err)

	c.onListenerEvent(pq.ListenerEventDisconnected, assert.AnError)
	c.onListenerEvent(pq.ListenerEventConnectionAttemptFailed, assert.AnError)
	c.onListenerEvent(pq.ListenerEventReconnected, nil)
	require.NoError(t, sub.Unsubscribe())
	c.onListenerEvent(pq.ListenerEventDisconnected, nil)

	assert.Equal(t, []channel.Status{
		channel.StatusConnected,
		channel.StatusDisconnected,
		channel.StatusConnected,
	}, r.statuses)
}

func TestToMessage(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	msg := toMessage(MessageRow{
		ID:          7,
		Channel:     "countdown-timer",
		MessageID:   "client-a-1",
		Publisher:   "client-a",
		Payload:     []byte(`{}`),
		PublishedAt: at,
	})

	assert.Equal(t, "client-a-1", msg.ID)
	assert.Equal(t, "client-a", msg.Publisher)
	assert.Equal(t, []byte(`{}`), msg.Data)
	assert.True(t, msg.PublishedAt.Equal(at))
}

// Runs against a real database when PGCHANNEL_TEST is set; connection
// settings come from DB_*.
func TestChannelAgainstDatabase(t *testing.T) {
	if os.Getenv("PGCHANNEL_TEST") == "" {
		t.Skip("PGCHANNEL_TEST not set")
	}

	for _, driver := range []string{dbconfig.DriverPgx, dbconfig.DriverPostgres} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			cfg := DefaultConfig()
			cfg.DB = dbconfig.NewConfigFromEnv()
			cfg.DB.Driver = driver
			cfg.HistoryDepth = 2
			name := "test-" + uuid.NewString()

			ch, err := Open(ctx, name, cfg)
			require.NoError(t, err)
			t.Cleanup(func() { _ = ch.Close() })

			r := &recorder{}
			_, err = ch.Subscribe(ctx, r)
			require.NoError(t, err)

			for _, id := range []string{"a-1", "a-2", "a-3"} {
				require.NoError(t, ch.Publish(ctx, channel.Message{ID: id, Publisher: "a", Data: []byte(id)}))
			}
			require.NoError(t, ch.Publish(ctx, channel.Message{ID: "a-3", Publisher: "a", Data: []byte("a-3")}))

			require.Eventually(t, func() bool { return r.count() >= 2 }, 5*time.Second, 20*time.Millisecond)

			history, err := ch.History(ctx, 10)
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, "a-2", history[0].ID)
			assert.Equal(t, "a-3", history[1].ID)
		})
	}
}
