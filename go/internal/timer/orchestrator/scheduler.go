// Package orchestrator drives the timer from the clock: it refreshes the
// projection, expires finished runs and wakes its tick hooks.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/synctimer/go/internal/timer"
)

// Policy selects how the next wake-up is scheduled.
type Policy string

const (
	// PolicyFixed recomputes on a fixed one-second cadence.
	PolicyFixed Policy = "fixed"
	// PolicyRefined wakes exactly when the displayed second will next change.
	PolicyRefined Policy = "refined"
)

const (
	FixedInterval = time.Second
	// MinDelay is the shortest wake-up delay under the refined policy.
	MinDelay = 100 * time.Millisecond
	// IdleInterval is the cadence while nothing is counting down.
	IdleInterval = time.Second
)

// ParsePolicy parses a policy name. An empty name selects PolicyRefined.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(name))) {
	case "", PolicyRefined:
		return PolicyRefined, nil
	case PolicyFixed:
		return PolicyFixed, nil
	default:
		return "", fmt.Errorf("unknown scheduler policy %q", name)
	}
}

// TickHook is called after every recomputation with the fresh projection.
type TickHook func(timer.Projection)

// Scheduler is the recomputation loop for one Store.
type Scheduler struct {
	store   *timer.Store
	clock   clockwork.Clock
	policy  Policy
	metrics MetricsCollector

	hooksMu sync.Mutex
	hooks   []TickHook

	// wakeCh is signalled on command and remote changes so the schedule is
	// recomputed against the new state. Clock changes come from tick itself.
	wakeCh chan struct{}
}

func New(store *timer.Store, clock clockwork.Clock, policy Policy, metrics MetricsCollector) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if policy == "" {
		policy = PolicyRefined
	}
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}

	s := &Scheduler{
		store:   store,
		clock:   clock,
		policy:  policy,
		metrics: metrics,
		wakeCh:  make(chan struct{}, 1),
	}
	store.Observe(func(c timer.Change) {
		if c.Origin == timer.OriginClock {
			return
		}
		select {
		case s.wakeCh <- struct{}{}:
		default:
		}
	})
	return s
}

// OnTick registers a hook run after every recomputation.
func (s *Scheduler) OnTick(h TickHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Run ticks until ctx is cancelled. The pending wake-up is cancelled on
// return.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Str("policy", string(s.policy)).Msg("scheduler started")

	t := s.clock.NewTimer(s.tick())
	defer stopAndDrainTimer(t)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler shutting down")
			return nil
		case <-t.Chan():
			t.Reset(s.tick())
		case <-s.wakeCh:
			stopAndDrainTimer(t)
			t.Reset(s.tick())
		}
	}
}

// tick refreshes the projection, expires a finished run and returns the
// delay until the next wake-up.
func (s *Scheduler) tick() time.Duration {
	if st, expired := s.store.Expire(); expired {
		s.metrics.RecordExpiry()
		log.Info().
			Int64("end_time", st.EndTime.UnixMilli()).
			Msg("timer expired")
	}

	st := s.store.State()
	now := s.store.Now()
	p := st.Project(now)

	s.metrics.RecordTick()
	s.metrics.RecordRemainingSeconds(p.RemainingSeconds)

	s.hooksMu.Lock()
	hooks := append([]TickHook(nil), s.hooks...)
	s.hooksMu.Unlock()
	for _, h := range hooks {
		h(p)
	}

	delay := NextDelay(s.policy, st, now)
	log.Trace().Dur("delay", delay).Int64("remaining_seconds", p.RemainingSeconds).Msg("scheduled next tick")
	return delay
}

// NextDelay returns how long to wait before the next recomputation.
//
// Under the refined policy a running timer wakes exactly when the ceiling of
// its remaining seconds drops by one, never sooner than MinDelay.
func NextDelay(policy Policy, st timer.State, now time.Time) time.Duration {
	if policy == PolicyFixed {
		return FixedInterval
	}
	if !st.IsRunning {
		return IdleInterval
	}

	remaining := st.Remaining(now)
	if remaining <= 0 {
		return MinDelay
	}

	shown := timer.DisplaySeconds(remaining)
	delay := remaining - time.Duration(shown-1)*time.Second
	if delay < MinDelay {
		return MinDelay
	}
	return delay
}

// stopAndDrainTimer safely stops a timer and drains its channel.
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
