// Package config assembles the synctimer settings from defaults, an optional
// YAML file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/synctimer/go/internal/dbconfig"
	"github.com/mcdev12/synctimer/go/internal/timer"
	"github.com/mcdev12/synctimer/go/internal/timer/channel"
	"github.com/mcdev12/synctimer/go/internal/timer/codec"
	"github.com/mcdev12/synctimer/go/internal/timer/orchestrator"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Backend selects the channel transport.
type Backend string

const (
	BackendNATS     Backend = "nats"
	BackendPostgres Backend = "postgres"
	BackendMemory   Backend = "memory"
)

const (
	// DemoNATSURL is the shared public server used when no NATS settings are
	// supplied. Anyone can read and write its subjects.
	DemoNATSURL = "nats://demo.nats.io:4222"

	DefaultChannelName = "countdown-timer"
	DefaultGatewayPort = 8081
)

type Config struct {
	ClientID string `yaml:"client_id"`
	LogLevel string `yaml:"log_level"`

	Channel struct {
		Backend Backend `yaml:"backend"`
		Name    string  `yaml:"name"`
		Codec   string  `yaml:"codec"`
	} `yaml:"channel"`

	NATS struct {
		URL          string `yaml:"url"`
		Token        string `yaml:"token"`
		CredsFile    string `yaml:"creds"`
		Stream       string `yaml:"stream"`
		HistoryDepth int    `yaml:"history_depth"`
	} `yaml:"nats"`

	Database dbconfig.Config `yaml:"database"`

	Timer struct {
		DefaultMinutes  int    `yaml:"default_minutes"`
		SchedulerPolicy string `yaml:"scheduler_policy"`
	} `yaml:"timer"`

	Gateway struct {
		Port int `yaml:"port"`
	} `yaml:"gateway"`
}

// Default returns the built-in settings.
func Default() Config {
	var c Config
	c.LogLevel = zerolog.InfoLevel.String()
	c.Channel.Backend = BackendNATS
	c.Channel.Name = DefaultChannelName
	c.Channel.Codec = codec.JSON{}.Name()
	c.NATS.HistoryDepth = channel.DefaultHistoryDepth
	c.Database = dbconfig.Default()
	c.Timer.DefaultMinutes = timer.DefaultMinutes
	c.Timer.SchedulerPolicy = string(orchestrator.PolicyRefined)
	c.Gateway.Port = DefaultGatewayPort
	return c
}

// Load reads .env (if present), then the YAML file at path (if non-empty),
// then environment overrides. The result is not validated yet.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ClientID = getEnv("CLIENT_ID", c.ClientID)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Channel.Backend = Backend(getEnv("CHANNEL_BACKEND", string(c.Channel.Backend)))
	c.Channel.Name = getEnv("CHANNEL_NAME", c.Channel.Name)
	c.Channel.Codec = getEnv("CHANNEL_CODEC", c.Channel.Codec)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Token = getEnv("NATS_TOKEN", c.NATS.Token)
	c.NATS.CredsFile = getEnv("NATS_CREDS", c.NATS.CredsFile)
	c.NATS.Stream = getEnv("NATS_STREAM", c.NATS.Stream)
	c.NATS.HistoryDepth = getEnvAsInt("NATS_HISTORY_DEPTH", c.NATS.HistoryDepth)

	c.Database = c.Database.WithEnv()

	c.Timer.DefaultMinutes = getEnvAsInt("TIMER_DEFAULT_MINUTES", c.Timer.DefaultMinutes)
	c.Timer.SchedulerPolicy = getEnv("TIMER_SCHEDULER_POLICY", c.Timer.SchedulerPolicy)

	c.Gateway.Port = getEnvAsInt("GATEWAY_PORT", c.Gateway.Port)
}

// Resolve fills in the derived defaults (client identity, demo NATS server)
// and validates the result.
func (c Config) Resolve() (Config, error) {
	if c.ClientID == "" {
		c.ClientID = uuid.NewString()
	}

	if c.Channel.Backend == BackendNATS && c.NATS.URL == "" {
		if c.NATS.Token != "" || c.NATS.CredsFile != "" {
			return Config{}, fmt.Errorf("%w: NATS_URL is required when credentials are set", ErrInvalid)
		}
		log.Warn().
			Str("url", DemoNATSURL).
			Msg("no NATS server configured, falling back to the public demo server; timer state is visible to anyone")
		c.NATS.URL = DemoNATSURL
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks enum values and ranges, naming the offending key.
func (c Config) Validate() error {
	switch c.Channel.Backend {
	case BackendNATS, BackendMemory:
	case BackendPostgres:
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	default:
		return fmt.Errorf("%w: CHANNEL_BACKEND: unsupported backend %q", ErrInvalid, c.Channel.Backend)
	}

	if strings.TrimSpace(c.Channel.Name) == "" {
		return fmt.Errorf("%w: CHANNEL_NAME must not be empty", ErrInvalid)
	}
	if _, err := codec.ByName(c.Channel.Codec); err != nil {
		return fmt.Errorf("%w: CHANNEL_CODEC: %v", ErrInvalid, err)
	}
	if c.NATS.HistoryDepth <= 0 {
		return fmt.Errorf("%w: NATS_HISTORY_DEPTH must be positive, got %d", ErrInvalid, c.NATS.HistoryDepth)
	}
	if c.Timer.DefaultMinutes < 1 {
		return fmt.Errorf("%w: TIMER_DEFAULT_MINUTES must be at least 1, got %d", ErrInvalid, c.Timer.DefaultMinutes)
	}
	if _, err := orchestrator.ParsePolicy(c.Timer.SchedulerPolicy); err != nil {
		return fmt.Errorf("%w: TIMER_SCHEDULER_POLICY: %v", ErrInvalid, err)
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("%w: GATEWAY_PORT: invalid port %d", ErrInvalid, c.Gateway.Port)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: LOG_LEVEL: %v", ErrInvalid, err)
	}
	return nil
}

// Level returns the configured log level, defaulting to info.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring non-integer environment value")
	}
	return defaultValue
}
