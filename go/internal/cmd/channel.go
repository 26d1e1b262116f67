package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/synctimer/go/internal/config"
	"github.com/mcdev12/synctimer/go/internal/timer/channel"
	"github.com/mcdev12/synctimer/go/internal/timer/channel/natschannel"
	"github.com/mcdev12/synctimer/go/internal/timer/channel/pgchannel"
)

func openChannel(ctx context.Context, cfg config.Config) (channel.Channel, error) {
	var (
		ch  channel.Channel
		err error
	)

	switch cfg.Channel.Backend {
	case config.BackendMemory:
		log.Warn().Msg("memory channel only synchronizes clients inside this process")
		ch = channel.NewMemory(cfg.Channel.Name, cfg.NATS.HistoryDepth)

	case config.BackendPostgres:
		pgConfig := pgchannel.DefaultConfig()
		pgConfig.DB = cfg.Database
		pgConfig.HistoryDepth = cfg.NATS.HistoryDepth
		ch, err = pgchannel.Open(ctx, cfg.Channel.Name, pgConfig)

	default:
		natsConfig := natschannel.DefaultConfig()
		natsConfig.URL = cfg.NATS.URL
		natsConfig.Token = cfg.NATS.Token
		natsConfig.CredsFile = cfg.NATS.CredsFile
		natsConfig.StreamName = cfg.NATS.Stream
		natsConfig.HistoryDepth = cfg.NATS.HistoryDepth
		natsConfig.ClientName = "synctimer-" + cfg.ClientID
		ch, err = natschannel.Dial(ctx, cfg.Channel.Name, natsConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s channel: %w", cfg.Channel.Backend, err)
	}

	log.Info().
		Str("backend", string(cfg.Channel.Backend)).
		Str("endpoint", describe(cfg)).
		Str("channel", ch.Name()).
		Msg("channel opened")
	return ch, nil
}
