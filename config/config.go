package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Environment variables read by Load. Values from a .env file are used only
// when the process environment does not set the same name.
const (
	EnvHost           = "ISOSERVE_HOST"
	EnvPort           = "ISOSERVE_PORT"
	EnvRoot           = "ISOSERVE_ROOT"
	EnvLogLevel       = "ISOSERVE_LOG_LEVEL"
	EnvLogFormat      = "ISOSERVE_LOG_FORMAT"
	EnvMetricsListen  = "ISOSERVE_METRICS_LISTEN"
	EnvMetricsRuntime = "ISOSERVE_METRICS_RUNTIME"
	EnvMaxConcurrent  = "ISOSERVE_MAX_CONCURRENT"
)

const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8000
	DefaultRoot            = "."
	DefaultShutdownTimeout = "10s"
)

var (
	ErrInvalidPort        = errors.New("port must be between 0 and 65535")
	ErrRootNotDir         = errors.New("root is not a directory")
	ErrInvalidConcurrency = errors.New("max_concurrent must not be negative")
)

type Config struct {
	Server  ServerConfig  `json:"server"`
	Log     LogConfig     `json:"log"`
	Metrics MetricsConfig `json:"metrics"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// Root is the directory whose tree is served. Made absolute by Validate.
	Root string `json:"root"`
	// MaxConcurrent bounds in-flight requests; 0 means no limit.
	MaxConcurrent   int    `json:"max_concurrent"`
	ShutdownTimeout string `json:"shutdown_timeout"`

	shutdownTimeoutDuration time.Duration
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // text, json
}

type MetricsConfig struct {
	// Listen is the address of the Prometheus listener. Empty disables it.
	Listen string `json:"listen"`
	// Runtime adds Go runtime and process metrics.
	Runtime bool `json:"runtime"`
}

// Default returns the configuration used when nothing else is given:
// the working directory served on 0.0.0.0:8000.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                    DefaultHost,
			Port:                    DefaultPort,
			Root:                    DefaultRoot,
			ShutdownTimeout:         DefaultShutdownTimeout,
			shutdownTimeoutDuration: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a configuration from defaults, the optional JSON file at
// configPath, the optional dotenv file at envPath and the process environment,
// in that order of increasing precedence. Missing files are not an error when
// their path is empty; a missing envPath is silently ignored.
func Load(configPath, envPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	dotenv := map[string]string{}
	if envPath != "" {
		vars, err := godotenv.Read(envPath)
		switch {
		case err == nil:
			dotenv = vars
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read env file %s: %w", envPath, err)
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Server.ToDuration(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvHost); ok {
		c.Server.Host = v
	}
	if v, ok := lookup(EnvPort); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, ErrInvalidPort)
		}
		c.Server.Port = port
	}
	if v, ok := lookup(EnvRoot); ok {
		c.Server.Root = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok {
		c.Log.Format = v
	}
	if v, ok := lookup(EnvMetricsListen); ok {
		c.Metrics.Listen = v
	}
	if v, ok := lookup(EnvMetricsRuntime); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMetricsRuntime, v, err)
		}
		c.Metrics.Runtime = b
	}
	if v, ok := lookup(EnvMaxConcurrent); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxConcurrent, v, err)
		}
		c.Server.MaxConcurrent = n
	}
	return nil
}

// Validate checks the configuration and resolves Server.Root to an absolute path.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d: %w", c.Server.Port, ErrInvalidPort)
	}
	if c.Server.MaxConcurrent < 0 {
		return fmt.Errorf("invalid max_concurrent %d: %w", c.Server.MaxConcurrent, ErrInvalidConcurrency)
	}

	root := c.Server.Root
	if root == "" {
		root = DefaultRoot
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("invalid root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", abs, ErrRootNotDir)
	}
	c.Server.Root = abs

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}

	return c.Server.ToDuration()
}

// Address returns the host:port the server binds.
func (s *ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ToDuration parses the duration strings after unmarshaling.
func (s *ServerConfig) ToDuration() error {
	if s.ShutdownTimeout == "" {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	d, err := time.ParseDuration(s.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("invalid shutdown_timeout duration: %w", err)
	}
	s.shutdownTimeoutDuration = d
	return nil
}

func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	return s.shutdownTimeoutDuration
}
