package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv       string `env:"APP_ENV" default:"development"`
	Port         string `env:"PORT" default:"8080"`
	AppURL       string `env:"APP_URL" default:"http://localhost:8080"`
	LogLevel     string `env:"LOG_LEVEL" default:"info"`
	LogFormat    string `env:"LOG_FORMAT" default:"text"`
	RenderConfig string `env:"RENDER_CONFIG"`

	WSWriteTimeout    time.Duration `env:"WS_WRITE_TIMEOUT" default:"5s"`
	WSPingInterval    time.Duration `env:"WS_PING_INTERVAL" default:"30s"`
	WSMaxMessageBytes int64         `env:"WS_MAX_MESSAGE_BYTES" default:"1048576"` // 1 MiB

	MaxViewerConnections    int     `env:"MAX_VIEWER_CONNECTIONS" default:"1000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"50"`
	ConnectionRatePerSecond float64 `env:"CONNECTION_RATE_PER_SECOND" default:"10"`
	ConnectionBurst         int     `env:"CONNECTION_BURST" default:"20"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", cfg.Port)
	}

	if cfg.AppURL == "" {
		return errors.New("APP_URL is required")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	if !slices.Contains([]string{"text", "json"}, cfg.LogFormat) {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"WS_WRITE_TIMEOUT", cfg.WSWriteTimeout},
		{"WS_PING_INTERVAL", cfg.WSPingInterval},
		{"SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}

	limits := []struct {
		name  string
		value float64
	}{
		{"WS_MAX_MESSAGE_BYTES", float64(cfg.WSMaxMessageBytes)},
		{"MAX_VIEWER_CONNECTIONS", float64(cfg.MaxViewerConnections)},
		{"MAX_CONNECTIONS_PER_IP", float64(cfg.MaxConnectionsPerIP)},
		{"CONNECTION_RATE_PER_SECOND", cfg.ConnectionRatePerSecond},
		{"CONNECTION_BURST", float64(cfg.ConnectionBurst)},
	}
	for _, l := range limits {
		if l.value <= 0 {
			return fmt.Errorf("%s must be positive", l.name)
		}
	}

	return nil
}
