// Package config loads the ShotClock client configuration from a YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TransportREST    = "rest"
	TransportConnect = "connect"

	PlaybackLog  = "log"
	PlaybackNATS = "nats"

	MinPollInterval = time.Second
	MaxPollInterval = 60 * time.Second
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	SessionID string         `yaml:"session_id"`
	API       APIConfig      `yaml:"api"`
	Sync      SyncConfig     `yaml:"sync"`
	Gateway   GatewayConfig  `yaml:"gateway"`
	NATS      NATSConfig     `yaml:"nats"`
	Playback  PlaybackConfig `yaml:"playback"`
	Log       LogConfig      `yaml:"log"`
}

type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Transport string        `yaml:"transport"`
	Timeout   time.Duration `yaml:"timeout"`
}

type SyncConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	AutoAdvance     bool          `yaml:"auto_advance"`
	PlaybackTimeout time.Duration `yaml:"playback_timeout"`
}

type GatewayConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
}

type PlaybackConfig struct {
	Mode          string `yaml:"mode"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:   "http://localhost:8080",
			Transport: TransportREST,
			Timeout:   10 * time.Second,
		},
		Sync: SyncConfig{
			PollInterval:    5 * time.Second,
			AutoAdvance:     true,
			PlaybackTimeout: 2 * time.Second,
		},
		Gateway: GatewayConfig{
			Addr:           ":8090",
			AllowedOrigins: []string{"*"},
		},
		NATS: NATSConfig{
			URL:    "nats://127.0.0.1:4222",
			Stream: "SESSION_EVENTS",
		},
		Playback: PlaybackConfig{
			Mode:          PlaybackLog,
			SubjectPrefix: "playback",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies
// environment overrides. It does not validate.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.SessionID = getEnv("SHOTCLOCK_SESSION_ID", c.SessionID)
	c.API.BaseURL = getEnv("SHOTCLOCK_API_URL", c.API.BaseURL)
	c.API.Transport = strings.ToLower(getEnv("SHOTCLOCK_TRANSPORT", c.API.Transport))
	c.Sync.PollInterval = getEnvAsDuration("SHOTCLOCK_POLL_INTERVAL", c.Sync.PollInterval)
	c.Sync.AutoAdvance = getEnvAsBool("SHOTCLOCK_AUTO_ADVANCE", c.Sync.AutoAdvance)
	c.Gateway.Addr = getEnv("GATEWAY_ADDR", c.Gateway.Addr)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Enabled = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled)
	c.Playback.Mode = strings.ToLower(getEnv("PLAYBACK_MODE", c.Playback.Mode))
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.SessionID) == "" {
		errs = append(errs, errors.New("session_id is required"))
	}
	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	switch c.API.Transport {
	case TransportREST, TransportConnect:
	default:
		errs = append(errs, fmt.Errorf("api.transport must be %q or %q, got %q", TransportREST, TransportConnect, c.API.Transport))
	}
	if c.Sync.PollInterval < MinPollInterval || c.Sync.PollInterval > MaxPollInterval {
		errs = append(errs, fmt.Errorf("sync.poll_interval must be between %s and %s, got %s", MinPollInterval, MaxPollInterval, c.Sync.PollInterval))
	}
	switch c.Playback.Mode {
	case PlaybackLog:
	case PlaybackNATS:
		if !c.NATS.Enabled {
			errs = append(errs, errors.New("playback.mode nats requires nats.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("playback.mode must be %q or %q, got %q", PlaybackLog, PlaybackNATS, c.Playback.Mode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts a Go duration ("5s") or a number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
