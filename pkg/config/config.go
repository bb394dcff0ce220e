// Package config provides configuration loading for the Drover coordinator.
//
// Configuration is layered: compiled defaults, then an optional YAML file,
// then environment variables, then command-line flags. Later layers win.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete coordinator configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Queue       QueueConfig       `yaml:"queue"`
	Events      EventsConfig      `yaml:"events"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig configures the REST API listener
type ServerConfig struct {
	// Addr is the listen address (default ":8080")
	Addr string `yaml:"addr"`
}

// StorageConfig selects and configures the entity store
type StorageConfig struct {
	// Driver is one of "postgres", "bolt" or "memory"
	Driver string `yaml:"driver"`
	// DataDir is where the bolt backend keeps its database file
	DataDir  string         `yaml:"data_dir"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig configures the postgres backend
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// QueueConfig selects and configures the job queue
type QueueConfig struct {
	// Driver is one of "redis" or "memory"
	Driver string      `yaml:"driver"`
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis queue backend
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EventsConfig configures the NATS side channel. Both fields must be set
// for bus emission; otherwise events only reach the journal and the
// WebSocket stream.
type EventsConfig struct {
	// URL is the NATS server URL (e.g. "nats://localhost:4222")
	URL string `yaml:"url"`
	// Subject is the subject journal events are published to
	Subject string `yaml:"subject"`
}

// CoordinatorConfig tunes the coordination loops
type CoordinatorConfig struct {
	// TaskTimeout is how long a task may go without journal activity
	// before its release is canceled
	TaskTimeout time.Duration `yaml:"task_timeout"`
	// PollInterval is the time between status poll sweeps
	PollInterval time.Duration `yaml:"poll_interval"`
	// HealthInterval is the time between task service health sweeps
	HealthInterval time.Duration `yaml:"health_interval"`
	// Workers is the size of the job worker pool
	Workers int `yaml:"workers"`
}

// LogConfig configures logging output
type LogConfig struct {
	// Level is one of "debug", "info", "warn" or "error"
	Level string `yaml:"level"`
	// JSON switches from console to JSON output
	JSON bool `yaml:"json"`
}

// Default returns a Config with sensible defaults: bolt storage under
// ./drover-data, the in-process queue, no bus emission.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Storage: StorageConfig{
			Driver:  "bolt",
			DataDir: "./drover-data",
			Postgres: PostgresConfig{
				Host: "localhost",
				Port: 5432,
				Name: "drover",
				User: "drover",
			},
		},
		Queue: QueueConfig{
			Driver: "memory",
			Redis: RedisConfig{
				Host: "localhost",
				Port: 6379,
			},
		},
		Coordinator: CoordinatorConfig{
			TaskTimeout:    5 * time.Minute,
			PollInterval:   30 * time.Second,
			HealthInterval: 10 * time.Second,
			Workers:        4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	switch c.Storage.Driver {
	case "memory":
	case "bolt":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.data_dir is required for the bolt driver")
		}
	case "postgres":
		if c.Storage.Postgres.Host == "" || c.Storage.Postgres.Name == "" || c.Storage.Postgres.User == "" {
			return fmt.Errorf("storage.postgres host, name and user are required")
		}
	default:
		return fmt.Errorf("storage.driver must be postgres, bolt or memory, got %q", c.Storage.Driver)
	}

	switch c.Queue.Driver {
	case "memory":
	case "redis":
		if c.Queue.Redis.Host == "" {
			return fmt.Errorf("queue.redis.host is required for the redis driver")
		}
	default:
		return fmt.Errorf("queue.driver must be redis or memory, got %q", c.Queue.Driver)
	}

	if c.Coordinator.TaskTimeout <= 0 {
		return fmt.Errorf("coordinator.task_timeout must be positive")
	}
	if c.Coordinator.PollInterval <= 0 {
		return fmt.Errorf("coordinator.poll_interval must be positive")
	}
	if c.Coordinator.HealthInterval <= 0 {
		return fmt.Errorf("coordinator.health_interval must be positive")
	}
	if c.Coordinator.Workers <= 0 {
		return fmt.Errorf("coordinator.workers must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file layered over defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load builds the configuration from defaults, an optional file and the
// environment. An empty path skips the file layer. Flag overrides and
// validation are left to the caller.
func Load(path string) (*Config, error) {
	var config *Config
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	} else {
		config = Default()
	}

	if err := config.FromEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

// FromEnv overlays environment variables onto the configuration. Setting
// PG_NAME or PG_HOST selects the postgres storage driver, REDIS_HOST the
// redis queue driver, and DATA_DIR the bolt driver; postgres wins when
// both storage hints are present.
func (c *Config) FromEnv() error {
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		c.Server.Addr = addr
	}

	if dir := os.Getenv("DATA_DIR"); dir != "" {
		c.Storage.Driver = "bolt"
		c.Storage.DataDir = dir
	}

	pgSet := false
	if name := os.Getenv("PG_NAME"); name != "" {
		c.Storage.Postgres.Name = name
		pgSet = true
	}
	if host := os.Getenv("PG_HOST"); host != "" {
		c.Storage.Postgres.Host = host
		pgSet = true
	}
	if user := os.Getenv("PG_USER"); user != "" {
		c.Storage.Postgres.User = user
	}
	if pass := os.Getenv("PG_PASS"); pass != "" {
		c.Storage.Postgres.Password = pass
	}
	if port := os.Getenv("PG_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PG_PORT %q: %w", port, err)
		}
		c.Storage.Postgres.Port = n
	}
	if pgSet {
		c.Storage.Driver = "postgres"
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		c.Queue.Driver = "redis"
		c.Queue.Redis.Host = host
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid REDIS_PORT %q: %w", port, err)
		}
		c.Queue.Redis.Port = n
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.Events.URL = natsURL
	}
	if subject := os.Getenv("EVENTS_SUBJECT"); subject != "" {
		c.Events.Subject = subject
	}

	if timeout := os.Getenv("TASK_TIMEOUT"); timeout != "" {
		seconds, err := strconv.Atoi(timeout)
		if err != nil {
			return fmt.Errorf("invalid TASK_TIMEOUT %q: %w", timeout, err)
		}
		c.Coordinator.TaskTimeout = time.Duration(seconds) * time.Second
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if jsonOut := os.Getenv("LOG_JSON"); jsonOut != "" {
		b, err := strconv.ParseBool(jsonOut)
		if err != nil {
			return fmt.Errorf("invalid LOG_JSON %q: %w", jsonOut, err)
		}
		c.Log.JSON = b
	}

	return nil
}

// PostgresDSN builds the pgx connection string for the postgres backend
func (c *Config) PostgresDSN() string {
	pg := c.Storage.Postgres
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", pg.Host, pg.Port),
		Path:   pg.Name,
	}
	if pg.Password != "" {
		u.User = url.UserPassword(pg.User, pg.Password)
	} else {
		u.User = url.User(pg.User)
	}
	return u.String()
}

// RedisAddr builds the host:port address for the redis backend
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Queue.Redis.Host, c.Queue.Redis.Port)
}
