package natschannel

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/synctimer/go/internal/timer/channel"
)

func TestSubjectAndStreamName(t *testing.T) {
	assert.Equal(t, "timer.countdown-timer", Subject("countdown-timer"))
	assert.Equal(t, "timer.team_room_1", Subject("team room.1"))
	assert.Equal(t, "TIMER_COUNTDOWN-TIMER", StreamName("countdown-timer"))
	assert.Equal(t, "TIMER_A_B", StreamName("a>b"))
}

func TestIsStreamConfigEqual(t *testing.T) {
	a := jetstream.StreamConfig{
		Name:              "TIMER_X",
		Subjects:          []string{"timer.x"},
		MaxMsgsPerSubject: 10,
		Duplicates:        time.Minute,
	}
	b := a
	assert.True(t, isStreamConfigEqual(a, b))

	b.MaxMsgsPerSubject = 5
	assert.False(t, isStreamConfigEqual(a, b))
}

func TestFromRaw(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	raw := &jetstream.RawStreamMsg{
		Subject: "timer.x",
		Header: nats.Header{
			headerPublisher: []string{"client-a"},
			headerMessageID: []string{"client-a-1"},
		},
		Data: []byte(`{}`),
		Time: at,
	}

	msg := fromRaw(raw)

	assert.Equal(t, "client-a", msg.Publisher)
	assert.Equal(t, "client-a-1", msg.ID)
	assert.Equal(t, []byte(`{}`), msg.Data)
	assert.True(t, msg.PublishedAt.Equal(at))
}

type recorder struct {
	mu       sync.Mutex
	messages []channel.Message
}

func (r *recorder) OnMessage(m channel.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *recorder) OnStatus(channel.Status) {}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// Runs against a real server when NATS_TEST_URL is set.
func TestChannelAgainstServer(t *testing.T) {
	url := os.Getenv("NATS_TEST_URL")
	if url == "" {
		t.Skip("NATS_TEST_URL not set")
	}

	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.HistoryDepth = 3
	name := "test-" + uuid.NewString()

	ch, err := Dial(ctx, name, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ch.js.DeleteStream(context.Background(), ch.config.StreamName)
		_ = ch.Close()
	})

	r := &recorder{}
	sub, err := ch.Subscribe(ctx, r)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	for _, id := range []string{"a-1", "a-2", "a-3", "a-4"} {
		require.NoError(t, ch.Publish(ctx, channel.Message{ID: id, Publisher: "a", Data: []byte(id)}))
	}
	// Same ID inside the duplicate window is dropped by JetStream.
	require.NoError(t, ch.Publish(ctx, channel.Message{ID: "a-4", Publisher: "a", Data: []byte("a-4")}))

	require.Eventually(t, func() bool { return r.count() >= 4 }, 5*time.Second, 20*time.Millisecond)

	last, err := ch.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "a-4", last[0].ID)
	assert.Equal(t, "a", last[0].Publisher)

	all, err := ch.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a-2", all[0].ID)
	assert.Equal(t, "a-4", all[2].ID)
}
