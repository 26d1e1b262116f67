// Package pgchannel implements the timer channel on Postgres. A table holds
// the per-channel history and LISTEN/NOTIFY carries live delivery.
package pgchannel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/synctimer/go/internal/dbconfig"
	"github.com/mcdev12/synctimer/go/internal/sqlutil"
	"github.com/mcdev12/synctimer/go/internal/timer/channel"
)

type Config struct {
	DB           dbconfig.Config
	HistoryDepth int
	// MinReconnect and MaxReconnect bound the LISTEN connection backoff.
	MinReconnect   time.Duration
	MaxReconnect   time.Duration
	PingInterval   time.Duration
	RequestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		DB:             dbconfig.Default(),
		HistoryDepth:   channel.DefaultHistoryDepth,
		MinReconnect:   time.Second,
		MaxReconnect:   30 * time.Second,
		PingInterval:   90 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

// Channel is a channel.Channel stored in timer_channel_messages.
type Channel struct {
	name          string
	notifyChannel string
	cfg           Config

	db       *sql.DB
	queries  *Queries
	listener *pq.Listener

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	listeners map[int]channel.Listener
	nextID    int
	status    channel.Status
	closed    bool
}

// NotifyChannel returns the LISTEN/NOTIFY channel name for a timer channel.
func NotifyChannel(name string) string {
	return "timer_" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, name)
}

// Open connects to Postgres, creates the message table if needed and starts
// listening for notifications on the named channel.
func Open(ctx context.Context, name string, cfg Config) (*Channel, error) {
	if err := cfg.DB.Validate(); err != nil {
		return nil, err
	}
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = channel.DefaultHistoryDepth
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultConfig().PingInterval
	}

	dsn := cfg.DB.DSN()
	db, err := sql.Open(cfg.DB.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	octx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	if err := db.PingContext(octx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	c := &Channel{
		name:          name,
		notifyChannel: NotifyChannel(name),
		cfg:           cfg,
		db:            db,
		queries:       New(db),
		listeners:     make(map[int]channel.Listener),
		status:        channel.StatusConnected,
		done:          make(chan struct{}),
	}

	if err := c.queries.CreateSchema(octx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	c.listener = pq.NewListener(dsn, cfg.MinReconnect, cfg.MaxReconnect, c.onListenerEvent)
	if err := c.listener.Listen(c.notifyChannel); err != nil {
		c.listener.Close()
		db.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	c.cancel = runCancel
	go c.run(runCtx)

	log.Info().
		Str("channel", name).
		Str("notify_channel", c.notifyChannel).
		Str("driver", cfg.DB.Driver).
		Msg("listening for notifications")

	return c, nil
}

func (c *Channel) onListenerEvent(ev pq.ListenerEventType, err error) {
	if err != nil {
		log.Error().Err(err).Str("channel", c.name).Msg("listener event")
	}

	status, ok := statusFor(ev)
	if !ok {
		return
	}
	c.setStatus(status)
}

func statusFor(ev pq.ListenerEventType) (channel.Status, bool) {
	switch ev {
	case pq.ListenerEventConnected, pq.ListenerEventReconnected:
		return channel.StatusConnected, true
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		return channel.StatusDisconnected, true
	default:
		return "", false
	}
}

func (c *Channel) setStatus(s channel.Status) {
	c.mu.Lock()
	if c.status == s || c.closed {
		c.mu.Unlock()
		return
	}
	c.status = s
	listeners := c.snapshotListenersLocked()
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnStatus(s)
	}
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case note := <-c.listener.Notify:
			if note == nil {
				// nil notification means the connection was re-established and
				// notifications may have been missed; listeners re-sync on the
				// Connected status.
				continue
			}
			if err := c.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Str("channel", c.name).Msg("failed to handle notification")
			}
		case <-pingTicker.C:
			if err := c.listener.Ping(); err != nil {
				log.Error().Err(err).Str("channel", c.name).Msg("failed to ping listener")
			}
		}
	}
}

// handleNotification fetches the row named by a notification payload and
// delivers it to subscribers.
func (c *Channel) handleNotification(ctx context.Context, extra string) error {
	id, err := strconv.ParseInt(extra, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid message id in notification: %w", err)
	}

	qctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	row, err := c.queries.GetMessage(qctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug().Int64("id", id).Msg("notified message already pruned")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch message: %w", err)
	}

	msg := toMessage(row)
	c.mu.Lock()
	listeners := c.snapshotListenersLocked()
	c.mu.Unlock()
	for _, l := range listeners {
		l.OnMessage(msg)
	}
	return nil
}

func toMessage(row MessageRow) channel.Message {
	return channel.Message{
		ID:          row.MessageID,
		Publisher:   row.Publisher,
		Data:        row.Payload,
		PublishedAt: row.PublishedAt,
	}
}

func (c *Channel) Name() string { return c.name }

// Publish stores the message, notifies listeners and prunes history in one
// transaction. A message ID that is already stored is dropped silently.
func (c *Channel) Publish(ctx context.Context, msg channel.Message) error {
	if c.isClosed() {
		return channel.ErrClosed
	}

	err := sqlutil.Run(ctx, c.db, c.queries.WithTx, func(q *Queries) error {
		id, err := q.InsertMessage(ctx, InsertMessageParams{
			Channel:   c.name,
			MessageID: msg.ID,
			Publisher: msg.Publisher,
			Payload:   msg.Data,
		})
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug().Str("message_id", msg.ID).Msg("duplicate message dropped")
			return nil
		}
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if err := q.NotifyMessage(ctx, c.notifyChannel, strconv.FormatInt(id, 10)); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		if _, err := q.PruneMessages(ctx, c.name, c.cfg.HistoryDepth); err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish to postgres: %w", err)
	}
	return nil
}

func (c *Channel) History(ctx context.Context, count int) ([]channel.Message, error) {
	if c.isClosed() {
		return nil, channel.ErrClosed
	}
	if count <= 0 {
		return nil, nil
	}

	rows, err := c.queries.RecentMessages(ctx, c.name, count)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	out := make([]channel.Message, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = toMessage(row)
	}
	return out, nil
}

func (c *Channel) Subscribe(ctx context.Context, l channel.Listener) (channel.Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, channel.ErrClosed
	}
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	status := c.status
	c.mu.Unlock()

	l.OnStatus(status)
	return &subscription{c: c, id: id}, nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.listeners = make(map[int]channel.Listener)
	c.mu.Unlock()

	c.cancel()
	<-c.done

	return errors.Join(c.listener.Close(), c.db.Close())
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) snapshotListenersLocked() []channel.Listener {
	out := make([]channel.Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		out = append(out, l)
	}
	return out
}

type subscription struct {
	c    *Channel
	id   int
	once sync.Once
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.c.mu.Lock()
		delete(s.c.listeners, s.id)
		s.c.mu.Unlock()
	})
	return nil
}
