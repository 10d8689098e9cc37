package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "cmd/tokentable/config.yaml"

type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Simulator SimulatorConfig `yaml:"simulator"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type AppConfig struct {
	Name            string        `yaml:"name"`
	InstanceID      string        `yaml:"instance_id"`
	LoadDelay       time.Duration `yaml:"load_delay"` // artificial delay before the catalogue is installed
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type SimulatorConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MinInterval time.Duration `yaml:"min_interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
	MaxBatch    int           `yaml:"max_batch"`
	MaxDeltaPct float64       `yaml:"max_delta_pct"`
	Seed        uint64        `yaml:"seed"` // 0 = random
}

type NATSConfig struct {
	Enabled         bool          `yaml:"enabled"`
	URL             string        `yaml:"url"`
	BroadcastPrefix string        `yaml:"broadcast_prefix"`
	Timeout         time.Duration `yaml:"timeout"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

type GzipConfig struct {
	Enabled bool `yaml:"enabled"`
	Level   int  `yaml:"level"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"` // 0 keeps SSE streams open
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	CORS         CORSConfig    `yaml:"cors"`
	Gzip         GzipConfig    `yaml:"gzip"`
}

type StreamConfig struct {
	Heartbeat time.Duration `yaml:"heartbeat"`
	Buffer    int           `yaml:"buffer"`
}

type APIConfig struct {
	HTTP   HTTPConfig   `yaml:"http"`
	Stream StreamConfig `yaml:"stream"`
}

type PyroscopeConfig struct {
	Enabled    bool              `yaml:"enabled"`
	ServerAddr string            `yaml:"server_addr"`
	AuthToken  string            `yaml:"auth_token"`
	Tags       map[string]string `yaml:"tags"`
}

type MetricsConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Path      string          `yaml:"path"`
	Pyroscope PyroscopeConfig `yaml:"pyroscope"`
}

// Path resolves the config location: explicit flag, then CONFIG env, then the default
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("CONFIG"); env != "" {
		return env
	}
	return DefaultPath
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates the result
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default is the config used when no file is given (tests, snapshot CLI)
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "tokentable"
	}
	if c.App.InstanceID == "" {
		c.App.InstanceID = uuid.NewString()
	}
	if c.App.ShutdownTimeout <= 0 {
		c.App.ShutdownTimeout = 10 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Simulator.MinInterval <= 0 {
		c.Simulator.MinInterval = 2 * time.Second
	}
	if c.Simulator.MaxInterval <= 0 {
		c.Simulator.MaxInterval = 5 * time.Second
	}
	if c.Simulator.MaxBatch <= 0 {
		c.Simulator.MaxBatch = 3
	}
	if c.Simulator.MaxDeltaPct <= 0 {
		c.Simulator.MaxDeltaPct = 2.5
	}

	if c.PubSub.NATS.BroadcastPrefix == "" {
		c.PubSub.NATS.BroadcastPrefix = "tokens"
	}
	if c.PubSub.NATS.Timeout <= 0 {
		c.PubSub.NATS.Timeout = 5 * time.Second
	}

	if c.API.HTTP.Addr == "" {
		c.API.HTTP.Addr = ":8080"
	}
	if c.API.HTTP.ReadTimeout <= 0 {
		c.API.HTTP.ReadTimeout = 5 * time.Second
	}
	if c.API.HTTP.IdleTimeout <= 0 {
		c.API.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.API.Stream.Heartbeat <= 0 {
		c.API.Stream.Heartbeat = 15 * time.Second
	}
	if c.API.Stream.Buffer <= 0 {
		c.API.Stream.Buffer = 16
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug|info|warn|error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of json|console", c.Logging.Format))
	}

	if c.App.LoadDelay < 0 {
		errs = append(errs, errors.New("app.load_delay must not be negative"))
	}
	if c.Simulator.MaxInterval < c.Simulator.MinInterval {
		errs = append(errs, errors.New("simulator.max_interval must not be less than simulator.min_interval"))
	}
	if c.PubSub.NATS.Enabled && c.PubSub.NATS.URL == "" {
		errs = append(errs, errors.New("pubsub.nats.url is required when nats is enabled"))
	}
	if c.Metrics.Pyroscope.Enabled && c.Metrics.Pyroscope.ServerAddr == "" {
		errs = append(errs, errors.New("metrics.pyroscope.server_addr is required when pyroscope is enabled"))
	}
	if c.API.HTTP.Gzip.Level < -2 || c.API.HTTP.Gzip.Level > 9 {
		errs = append(errs, fmt.Errorf("api.http.gzip.level %d out of range", c.API.HTTP.Gzip.Level))
	}

	return errors.Join(errs...)
}
