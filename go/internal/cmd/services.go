package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/synctimer/go/internal/config"
	"github.com/mcdev12/synctimer/go/internal/timer"
	"github.com/mcdev12/synctimer/go/internal/timer/bridge"
	"github.com/mcdev12/synctimer/go/internal/timer/channel"
	"github.com/mcdev12/synctimer/go/internal/timer/codec"
	"github.com/mcdev12/synctimer/go/internal/timer/gateway"
	"github.com/mcdev12/synctimer/go/internal/timer/metrics"
	"github.com/mcdev12/synctimer/go/internal/timer/orchestrator"
)

type Services struct {
	Store     *timer.Store
	Channel   channel.Channel
	Bridge    *bridge.Bridge
	Scheduler *orchestrator.Scheduler
	Gateway   *gateway.Service
	Registry  *prometheus.Registry
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	// Wire up the client
	// Channel → Store → Bridge/Scheduler → Gateway

	c, err := codec.ByName(cfg.Channel.Codec)
	if err != nil {
		return nil, err
	}
	policy, err := orchestrator.ParsePolicy(cfg.Timer.SchedulerPolicy)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	ch, err := openChannel(ctx, cfg)
	if err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	store := timer.NewStore(clock, cfg.Timer.DefaultMinutes)

	bridgeConfig := bridge.DefaultConfig()
	bridgeConfig.ClientID = cfg.ClientID
	timerBridge := bridge.New(store, ch, c, bridgeConfig, clock, collector)

	scheduler := orchestrator.New(store, clock, policy, collector)
	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.Clock = clock
	gatewayService := gateway.NewService(gatewayConfig, store, timerBridge)

	// Every tick retries whatever the bridge still owes the channel and
	// refreshes the displays.
	scheduler.OnTick(func(timer.Projection) { timerBridge.Nudge() })
	scheduler.OnTick(gatewayService.BroadcastProjection)
	timerBridge.ObserveStatus(func(channel.Status) { gatewayService.BroadcastView() })

	log.Info().
		Str("codec", c.Name()).
		Str("policy", string(policy)).
		Int("default_minutes", cfg.Timer.DefaultMinutes).
		Msg("services initialized")

	return &Services{
		Store:     store,
		Channel:   ch,
		Bridge:    timerBridge,
		Scheduler: scheduler,
		Gateway:   gatewayService,
		Registry:  registry,
	}, nil
}

// Close releases the channel.
func (s *Services) Close() {
	if err := s.Channel.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close channel")
	}
}

func describe(cfg config.Config) string {
	switch cfg.Channel.Backend {
	case config.BackendPostgres:
		return fmt.Sprintf("postgres://%s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	case config.BackendMemory:
		return "memory"
	default:
		return cfg.NATS.URL
	}
}
