// Package bridge keeps a timer Store in step with the shared channel: it
// merges inbound snapshots and publishes local changes, never echoing back a
// change that arrived from the channel.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/synctimer/go/internal/timer"
	"github.com/mcdev12/synctimer/go/internal/timer/channel"
	"github.com/mcdev12/synctimer/go/internal/timer/codec"
)

type Config struct {
	// ClientID identifies this client on the channel.
	ClientID       string
	PublishTimeout time.Duration
	HistoryTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		PublishTimeout: 5 * time.Second,
		HistoryTimeout: 5 * time.Second,
	}
}

// Bridge is the synchronization glue between one Store and one Channel.
//
// Publishing is enabled only after the first successful initial sync. Local
// changes waiting to go out are held in a single-slot outbox: a newer change
// replaces an older one and a failed publish stays queued until the next
// Nudge or local change.
type Bridge struct {
	store   *timer.Store
	ch      channel.Channel
	codec   codec.Codec
	cfg     Config
	clock   clockwork.Clock
	metrics MetricsCollector

	mu           sync.Mutex
	status       channel.Status
	ready        bool
	needSync     bool
	pending      *timer.Snapshot
	pendingSince time.Time
	baseline     *timer.State
	observers    []func(channel.Status)

	syncCh chan struct{}
	wakeCh chan struct{}
}

// New creates a Bridge and registers it as an observer of store. Call Run to
// connect it to the channel.
func New(store *timer.Store, ch channel.Channel, c codec.Codec, cfg Config, clock clockwork.Clock, metrics MetricsCollector) *Bridge {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	if cfg.HistoryTimeout <= 0 {
		cfg.HistoryTimeout = DefaultConfig().HistoryTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}

	b := &Bridge{
		store:   store,
		ch:      ch,
		codec:   c,
		cfg:     cfg,
		clock:   clock,
		metrics: metrics,
		status:  channel.StatusConnecting,
		syncCh:  make(chan struct{}, 1),
		wakeCh:  make(chan struct{}, 1),
	}
	store.Observe(b.onChange)
	return b
}

// Run subscribes to the channel and processes syncs and publishes until ctx
// is cancelled. The subscription is released on return.
func (b *Bridge) Run(ctx context.Context) error {
	sub, err := b.ch.Subscribe(ctx, b)
	if err != nil {
		return fmt.Errorf("subscribe to channel %s: %w", b.ch.Name(), err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Msg("failed to release channel subscription")
		}
	}()

	log.Info().
		Str("channel", b.ch.Name()).
		Str("client_id", b.cfg.ClientID).
		Str("codec", b.codec.Name()).
		Msg("bridge started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("channel", b.ch.Name()).Msg("bridge shutting down")
			return nil
		case <-b.syncCh:
			b.sync(ctx)
		case <-b.wakeCh:
			b.flush(ctx)
		}
	}
}

// Nudge retries a pending initial sync or a pending publish. The scheduler
// calls it on every tick.
func (b *Bridge) Nudge() {
	b.mu.Lock()
	needSync := b.needSync && b.status == channel.StatusConnected
	pending := b.pending != nil && b.ready && b.status == channel.StatusConnected
	b.mu.Unlock()

	if needSync {
		signal(b.syncCh)
	}
	if pending {
		signal(b.wakeCh)
	}
}

// Status returns the last connection status reported by the channel.
func (b *Bridge) Status() channel.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Ready reports whether the initial sync has completed and local publishing
// is enabled.
func (b *Bridge) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Pending reports whether a local snapshot is waiting to be published.
func (b *Bridge) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending != nil
}

// ObserveStatus registers fn for connection status changes. Status never
// mutates the timer state; it is surfaced for display only.
func (b *Bridge) ObserveStatus(fn func(channel.Status)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, fn)
}

// OnStatus implements channel.Listener.
func (b *Bridge) OnStatus(s channel.Status) {
	b.mu.Lock()
	if b.status == s {
		b.mu.Unlock()
		return
	}
	b.status = s
	if s == channel.StatusConnected {
		b.needSync = true
	}
	observers := append(([]func(channel.Status))(nil), b.observers...)
	b.mu.Unlock()

	log.Info().Str("channel", b.ch.Name()).Str("status", string(s)).Msg("channel status changed")
	b.metrics.RecordConnected(s == channel.StatusConnected)
	for _, fn := range observers {
		fn(s)
	}

	if s == channel.StatusConnected {
		signal(b.syncCh)
	}
}

// OnMessage implements channel.Listener.
func (b *Bridge) OnMessage(msg channel.Message) {
	if msg.Publisher != "" && msg.Publisher == b.cfg.ClientID {
		b.metrics.RecordEchoDropped()
		return
	}

	snap, err := b.codec.Unmarshal(msg.Data)
	if err != nil {
		b.metrics.RecordDecodeFailure()
		log.Warn().Err(err).Str("message_id", msg.ID).Str("publisher", msg.Publisher).Msg("dropping undecodable message")
		return
	}

	applied := b.store.ApplyRemote(snap)
	b.metrics.RecordRemoteSnapshot(applied)
}

// onChange runs under the Store lock for every committed change.
func (b *Bridge) onChange(c timer.Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := c.Current
	if c.Origin == timer.OriginRemote {
		// The channel already carries this state; anything older waiting in
		// the outbox has lost.
		b.baseline = &current
		b.setPendingLocked(nil)
		return
	}

	if b.baseline != nil && current.SameContent(*b.baseline) {
		b.setPendingLocked(nil)
		return
	}

	snap := current.Snapshot()
	b.setPendingLocked(&snap)
	if b.ready && b.status == channel.StatusConnected {
		signal(b.wakeCh)
	}
}

func (b *Bridge) setPendingLocked(snap *timer.Snapshot) {
	had := b.pending != nil
	b.pending = snap
	if had != (snap != nil) {
		b.metrics.RecordPending(snap != nil)
		if snap != nil {
			b.pendingSince = b.clock.Now()
		}
	}
}

// sync retrieves the most recent snapshot on the channel and merges it. On
// success publishing is enabled; on failure needSync stays set so the next
// Nudge retries.
func (b *Bridge) sync(ctx context.Context) {
	b.mu.Lock()
	run := b.needSync && b.status == channel.StatusConnected
	b.mu.Unlock()
	if !run {
		return
	}

	hctx, cancel := context.WithTimeout(ctx, b.cfg.HistoryTimeout)
	msgs, err := b.ch.History(hctx, 1)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("channel", b.ch.Name()).Msg("initial sync failed, will retry")
		return
	}

	var (
		remote  *timer.State
		applied bool
	)
	if len(msgs) > 0 {
		msg := msgs[len(msgs)-1]
		snap, err := b.codec.Unmarshal(msg.Data)
		if err != nil {
			b.metrics.RecordDecodeFailure()
			log.Warn().Err(err).Str("message_id", msg.ID).Msg("ignoring undecodable history message")
		} else {
			st := snap.State()
			remote = &st
			applied = b.store.ApplyRemote(snap)
			b.metrics.RecordRemoteSnapshot(applied)
		}
	}

	if remote == nil && !b.store.Versioned() {
		// Empty channel: this client's state becomes authoritative.
		b.store.Claim()
	}
	current := b.store.State()

	b.mu.Lock()
	b.needSync = false
	first := !b.ready
	b.ready = true
	if remote != nil && !applied && b.baseline == nil {
		b.baseline = remote
	}
	if remote == nil || current.LastUpdated.After(remote.LastUpdated) {
		if (b.baseline == nil || !current.SameContent(*b.baseline)) &&
			(b.pending == nil || b.pending.LastUpdated < current.LastUpdated.UnixMilli()) {
			snap := current.Snapshot()
			b.setPendingLocked(&snap)
		}
	}
	hasPending := b.pending != nil
	b.mu.Unlock()

	log.Info().
		Str("channel", b.ch.Name()).
		Bool("found", remote != nil).
		Bool("applied", applied).
		Bool("first", first).
		Bool("pending", hasPending).
		Msg("initial sync complete")

	if hasPending {
		b.flush(ctx)
	}
}

// flush publishes the outbox snapshot if publishing is allowed.
func (b *Bridge) flush(ctx context.Context) {
	b.mu.Lock()
	if !b.ready || b.status != channel.StatusConnected || b.pending == nil {
		b.mu.Unlock()
		return
	}
	snap := *b.pending
	b.mu.Unlock()

	data, err := b.codec.Marshal(snap)
	if err != nil {
		// Encoding a well-formed snapshot cannot fail; drop it rather than
		// retrying forever.
		log.Error().Err(err).Msg("failed to encode snapshot")
		b.mu.Lock()
		if b.pending != nil && b.pending.LastUpdated == snap.LastUpdated {
			b.setPendingLocked(nil)
		}
		b.mu.Unlock()
		return
	}

	msg := channel.Message{
		ID:          MessageID(b.cfg.ClientID, snap.LastUpdated),
		Publisher:   b.cfg.ClientID,
		Data:        data,
		PublishedAt: b.clock.Now(),
	}

	start := b.clock.Now()
	pctx, cancel := context.WithTimeout(ctx, b.cfg.PublishTimeout)
	err = b.ch.Publish(pctx, msg)
	cancel()
	b.metrics.RecordPublish(err == nil, b.clock.Since(start))

	if err != nil {
		log.Warn().
			Err(err).
			Str("message_id", msg.ID).
			Msg("failed to publish snapshot, keeping it queued")
		return
	}

	log.Debug().
		Str("message_id", msg.ID).
		Int64("last_updated", snap.LastUpdated).
		Msg("published snapshot")

	b.mu.Lock()
	published := snap.State()
	if b.baseline == nil || !b.baseline.LastUpdated.After(published.LastUpdated) {
		b.baseline = &published
	}
	if b.pending != nil && b.pending.LastUpdated == snap.LastUpdated {
		b.setPendingLocked(nil)
	}
	b.mu.Unlock()
}

// MessageID is the channel message ID of a snapshot published by clientID.
// Retries of the same snapshot share an ID.
func MessageID(clientID string, lastUpdated int64) string {
	return fmt.Sprintf("%s-%d", clientID, lastUpdated)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
