package dbconfig

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
)

const (
	// DriverPgx is the pgx database/sql driver.
	DriverPgx = "pgx"
	// DriverPostgres is the lib/pq database/sql driver.
	DriverPostgres = "postgres"
)

// Config holds Postgres connection settings.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	// Driver selects the database/sql driver used for queries. LISTEN always
	// goes through lib/pq.
	Driver string `yaml:"driver"`
}

// Default returns local development settings.
func Default() Config {
	return Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "synctimer",
		SSLMode:  "disable",
		Driver:   DriverPgx,
	}
}

// NewConfigFromEnv reads DB_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Default().WithEnv()
}

// WithEnv returns c with any DB_* environment variables applied on top.
func (c Config) WithEnv() Config {
	if port, err := strconv.Atoi(getEnv("DB_PORT", "")); err == nil {
		c.Port = port
	}
	c.Host = getEnv("DB_HOST", c.Host)
	c.User = getEnv("DB_USER", c.User)
	c.Password = getEnv("DB_PASSWORD", c.Password)
	c.Database = getEnv("DB_NAME", c.Database)
	c.SSLMode = getEnv("DB_SSLMODE", c.SSLMode)
	c.Driver = getEnv("DB_DRIVER", c.Driver)
	return c
}

// Validate checks the driver name and port.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPgx, DriverPostgres:
	default:
		return fmt.Errorf("DB_DRIVER: unsupported driver %q", c.Driver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("DB_PORT: invalid port %d", c.Port)
	}
	return nil
}

// DSN returns the Postgres connection URL.
func (c Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
