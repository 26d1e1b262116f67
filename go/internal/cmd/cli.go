package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/synctimer/go/internal/config"
	"github.com/mcdev12/synctimer/go/internal/timer"
	"github.com/mcdev12/synctimer/go/internal/timer/codec"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 5 * time.Second

var configFile string

func buildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "synctimer",
		Short: "Shared countdown timer synchronized across devices",
		Long: `synctimer runs one client of a shared countdown timer. Every client
keeps a full copy of the timer and exchanges snapshots over a message
channel (NATS, Postgres or in-process memory); the newest write wins.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildSnapshotCommand())
	rootCmd.AddCommand(buildVersionCommand())

	return rootCmd
}

// flagOverrides are the command line settings applied on top of the file and
// environment.
type flagOverrides struct {
	backend  string
	channel  string
	codec    string
	clientID string
	policy   string
	logLevel string
	port     int
}

func (o *flagOverrides) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.backend, "backend", "", "channel backend: nats, postgres or memory")
	cmd.Flags().StringVar(&o.channel, "channel", "", "channel name shared by every client")
	cmd.Flags().StringVar(&o.codec, "codec", "", "snapshot encoding: json or cbor")
	cmd.Flags().StringVar(&o.clientID, "client-id", "", "identity of this client on the channel")
	cmd.Flags().StringVar(&o.policy, "policy", "", "scheduler policy: refined or fixed")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "", "log level")
	cmd.Flags().IntVar(&o.port, "port", 0, "gateway HTTP port")
}

func (o *flagOverrides) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Channel.Backend = config.Backend(o.backend)
	}
	if flags.Changed("channel") {
		cfg.Channel.Name = o.channel
	}
	if flags.Changed("codec") {
		cfg.Channel.Codec = o.codec
	}
	if flags.Changed("client-id") {
		cfg.ClientID = o.clientID
	}
	if flags.Changed("policy") {
		cfg.Timer.SchedulerPolicy = o.policy
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("port") {
		cfg.Gateway.Port = o.port
	}
}

func loadConfig(cmd *cobra.Command, overrides *flagOverrides) (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	overrides.apply(cmd, &cfg)

	cfg, err = cfg.Resolve()
	if err != nil {
		return config.Config{}, err
	}
	zerolog.SetGlobalLevel(cfg.Level())
	return cfg, nil
}

func buildRunCommand() *cobra.Command {
	overrides := &flagOverrides{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a timer client with its display gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, overrides)
			if err != nil {
				return err
			}
			return runClient(cmd.Context(), cfg)
		},
	}
	overrides.register(cmd)

	return cmd
}

func runClient(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	log.Info().
		Str("client_id", cfg.ClientID).
		Str("backend", string(cfg.Channel.Backend)).
		Str("channel", cfg.Channel.Name).
		Msg("synctimer started")

	err = serve(ctx, setupServer(cfg, services),
		component{name: "gateway", run: services.Gateway.Start},
		component{name: "scheduler", run: services.Scheduler.Run},
		component{name: "bridge", run: services.Bridge.Run},
	)
	if err != nil {
		return err
	}

	log.Info().Msg("synctimer stopped")
	return nil
}

// component is a long-running loop that returns when its context ends.
type component struct {
	name string
	run  func(context.Context) error
}

// serve runs the HTTP server and every component until ctx is cancelled or
// one of them fails. The first failure cancels the rest and is returned.
func serve(ctx context.Context, server *http.Server, components ...component) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, c := range components {
		g.Go(func() error {
			if err := c.run(gctx); err != nil {
				log.Error().Err(err).Str("component", c.name).Msg("component stopped with error")
				return fmt.Errorf("%s: %w", c.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("stopping gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("gateway server shutdown failed")
		}
		return nil
	})

	return g.Wait()
}

// snapshotOutput is what the snapshot command prints.
type snapshotOutput struct {
	Channel    string            `json:"channel"`
	Found      bool              `json:"found"`
	Snapshot   *timer.Snapshot   `json:"snapshot,omitempty"`
	Projection *timer.Projection `json:"projection,omitempty"`
}

func buildSnapshotCommand() *cobra.Command {
	overrides := &flagOverrides{}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the latest timer snapshot on the channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, overrides)
			if err != nil {
				return err
			}
			return printSnapshot(cmd, cfg)
		},
	}
	overrides.register(cmd)

	return cmd
}

func printSnapshot(cmd *cobra.Command, cfg config.Config) error {
	c, err := codec.ByName(cfg.Channel.Codec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	ch, err := openChannel(ctx, cfg)
	if err != nil {
		return err
	}
	defer ch.Close()

	latest, err := ch.History(ctx, 1)
	if err != nil {
		return fmt.Errorf("failed to read channel history: %w", err)
	}

	out := snapshotOutput{Channel: cfg.Channel.Name}
	if len(latest) > 0 {
		snap, err := c.Unmarshal(latest[0].Data)
		if err != nil {
			return fmt.Errorf("failed to decode latest snapshot: %w", err)
		}
		p := snap.State().Project(clockwork.NewRealClock().Now())
		out.Found = true
		out.Snapshot = &snap
		out.Projection = &p
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func buildVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the synctimer version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "synctimer %s\n", version)
		},
	}
}
