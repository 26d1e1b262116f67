// Package natschannel implements the timer channel on NATS. Live messages use
// a core subscription; JetStream keeps the per-channel history.
package natschannel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/synctimer/go/internal/timer/channel"
)

const (
	headerPublisher = "Timer-Publisher"
	headerMessageID = "Timer-Message-ID"

	subjectPrefix = "timer"
)

type Config struct {
	URL           string
	Token         string
	CredsFile     string
	ClientName    string
	StreamName    string
	HistoryDepth  int
	MaxReconnects int
	ReconnectWait time.Duration
	// DuplicateWindow is how long JetStream remembers message IDs.
	DuplicateWindow time.Duration
	RequestTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		HistoryDepth:    channel.DefaultHistoryDepth,
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		DuplicateWindow: 2 * time.Minute,
		RequestTimeout:  5 * time.Second,
	}
}

// Channel is a channel.Channel backed by one NATS subject.
type Channel struct {
	name    string
	subject string
	config  Config

	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream

	mu        sync.Mutex
	listeners map[int]channel.Listener
	nextID    int
}

// Dial connects to NATS and prepares the history stream for the named
// channel. Servers without JetStream still work, without history.
func Dial(ctx context.Context, name string, cfg Config) (*Channel, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = channel.DefaultHistoryDepth
	}
	if cfg.StreamName == "" {
		cfg.StreamName = StreamName(name)
	}

	c := &Channel{
		name:      name,
		subject:   Subject(name),
		config:    cfg,
		listeners: make(map[int]channel.Listener),
	}

	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Str("channel", name).Msg("NATS disconnected")
			c.notifyStatus(channel.StatusDisconnected)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Str("channel", name).Msg("NATS reconnected")
			c.notifyStatus(channel.StatusConnected)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info().Str("channel", name).Msg("NATS connection closed")
			c.notifyStatus(channel.StatusDisconnected)
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Str("channel", name).Msg("NATS error")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	if cfg.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	c.nc = nc

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	c.js = js

	sctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	stream, err := c.ensureStream(sctx)
	switch {
	case errors.Is(err, jetstream.ErrJetStreamNotEnabled), errors.Is(err, jetstream.ErrJetStreamNotEnabledForAccount):
		log.Warn().
			Str("url", nc.ConnectedUrl()).
			Msg("JetStream not available, channel history disabled")
	case err != nil:
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	default:
		c.stream = stream
	}

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("subject", c.subject).
		Str("stream", cfg.StreamName).
		Bool("history", c.stream != nil).
		Msg("connected to NATS channel")

	return c, nil
}

// Subject returns the NATS subject carrying the named channel.
func Subject(name string) string {
	return subjectPrefix + "." + sanitize(name, '_')
}

// StreamName returns the default JetStream stream name for the named channel.
func StreamName(name string) string {
	return "TIMER_" + strings.ToUpper(sanitize(name, '_'))
}

func sanitize(name string, repl rune) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return repl
		}
	}, name)
}

func (c *Channel) ensureStream(ctx context.Context) (jetstream.Stream, error) {
	sc := jetstream.StreamConfig{
		Name:              c.config.StreamName,
		Description:       "Countdown timer snapshots for channel " + c.name,
		Subjects:          []string{c.subject},
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: int64(c.config.HistoryDepth),
		Storage:           jetstream.FileStorage,
		Replicas:          1,
		Duplicates:        c.config.DuplicateWindow,
	}

	stream, err := c.js.Stream(ctx, c.config.StreamName)
	if err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return nil, err
		}
		stream, err = c.js.CreateStream(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", c.config.StreamName).
			Msg("created JetStream stream")
		return stream, nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		stream, err = c.js.UpdateStream(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", c.config.StreamName).
			Msg("updated JetStream stream")
	}
	return stream, nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxMsgsPerSubject == b.MaxMsgsPerSubject &&
		a.Duplicates == b.Duplicates &&
		len(a.Subjects) == 1 && a.Subjects[0] == b.Subjects[0]
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) Publish(ctx context.Context, msg channel.Message) error {
	if c.nc.IsClosed() {
		return channel.ErrClosed
	}
	if !c.nc.IsConnected() {
		return channel.ErrDisconnected
	}

	m := &nats.Msg{
		Subject: c.subject,
		Data:    msg.Data,
		Header: nats.Header{
			headerPublisher: []string{msg.Publisher},
			headerMessageID: []string{msg.ID},
		},
	}

	if c.stream == nil {
		if err := c.nc.PublishMsg(m); err != nil {
			return fmt.Errorf("publish to NATS: %w", err)
		}
		return nil
	}

	ack, err := c.js.PublishMsg(ctx, m,
		jetstream.WithMsgID(msg.ID),
		jetstream.WithExpectStream(c.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", c.subject).
		Str("message_id", msg.ID).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published to JetStream")
	return nil
}

func (c *Channel) History(ctx context.Context, count int) ([]channel.Message, error) {
	if c.nc.IsClosed() {
		return nil, channel.ErrClosed
	}
	if !c.nc.IsConnected() {
		return nil, channel.ErrDisconnected
	}
	if c.stream == nil || count <= 0 {
		return nil, nil
	}

	if count == 1 {
		raw, err := c.stream.GetLastMsgForSubject(ctx, c.subject)
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get last message: %w", err)
		}
		return []channel.Message{fromRaw(raw)}, nil
	}

	info, err := c.stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("get stream info: %w", err)
	}
	if info.State.Msgs == 0 {
		return nil, nil
	}

	var newestFirst []channel.Message
	for seq := info.State.LastSeq; seq >= info.State.FirstSeq && seq > 0 && len(newestFirst) < count; seq-- {
		raw, err := c.stream.GetMsg(ctx, seq)
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get message %d: %w", seq, err)
		}
		if raw.Subject != c.subject {
			continue
		}
		newestFirst = append(newestFirst, fromRaw(raw))
	}

	out := make([]channel.Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(out)-1-i] = m
	}
	return out, nil
}

func fromRaw(raw *jetstream.RawStreamMsg) channel.Message {
	return channel.Message{
		ID:          raw.Header.Get(headerMessageID),
		Publisher:   raw.Header.Get(headerPublisher),
		Data:        raw.Data,
		PublishedAt: raw.Time,
	}
}

func (c *Channel) Subscribe(ctx context.Context, l channel.Listener) (channel.Subscription, error) {
	if c.nc.IsClosed() {
		return nil, channel.ErrClosed
	}

	sub, err := c.nc.Subscribe(c.subject, func(m *nats.Msg) {
		l.OnMessage(channel.Message{
			ID:          m.Header.Get(headerMessageID),
			Publisher:   m.Header.Get(headerPublisher),
			Data:        m.Data,
			PublishedAt: time.Now(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", c.subject, err)
	}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	if c.nc.IsConnected() {
		l.OnStatus(channel.StatusConnected)
	} else {
		l.OnStatus(channel.StatusDisconnected)
	}

	return &subscription{c: c, id: id, sub: sub}, nil
}

func (c *Channel) notifyStatus(s channel.Status) {
	c.mu.Lock()
	listeners := make([]channel.Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnStatus(s)
	}
}

func (c *Channel) Close() error {
	if c.nc == nil {
		return nil
	}
	if err := c.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		c.nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

type subscription struct {
	c    *Channel
	id   int
	sub  *nats.Subscription
	once sync.Once
}

func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.c.mu.Lock()
		delete(s.c.listeners, s.id)
		s.c.mu.Unlock()
		err = s.sub.Unsubscribe()
	})
	return err
}
