package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	scopeGroup  = "group"
	scopeGlobal = "global"
)

type Config struct {
	Host string `env:"HOST"`
	Port string `env:"PORT" default:"8080"`

	// THROTTLE_SCOPE is "group" (one cooldown per group) or "global"
	// (every group shares one cooldown clock).
	ThrottleInterval time.Duration `env:"THROTTLE_INTERVAL" default:"1s"`
	ThrottleScope    string        `env:"THROTTLE_SCOPE" default:"group"`

	GroupField string `env:"GROUP_FIELD" default:"group"`
	CountField string `env:"COUNT_FIELD" default:"clientCount"`

	AllowedOrigin  string  `env:"ALLOWED_ORIGIN"`
	MaxMessageSize int64   `env:"MAX_MESSAGE_SIZE" default:"65536"`
	SendBuffer     int     `env:"SEND_BUFFER" default:"256"`
	InboundRate    float64 `env:"INBOUND_RATE" default:"0"`
	InboundBurst   int     `env:"INBOUND_BURST" default:"20"`

	PingPeriod time.Duration `env:"PING_PERIOD" default:"27s"`
	PongWait   time.Duration `env:"PONG_WAIT" default:"30s"`
	WriteWait  time.Duration `env:"WRITE_WAIT" default:"10s"`

	MetricsTick time.Duration `env:"METRICS_TICK" default:"60s"`
	StopTimeout time.Duration `env:"STOP_TIMEOUT" default:"10s"`
	KillTimeout time.Duration `env:"KILL_TIMEOUT" default:"1s"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

func loadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Config) validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.ThrottleInterval <= 0 {
		return errors.New("THROTTLE_INTERVAL must be positive")
	}
	if c.ThrottleScope != scopeGroup && c.ThrottleScope != scopeGlobal {
		return fmt.Errorf("THROTTLE_SCOPE must be %q or %q, got %q", scopeGroup, scopeGlobal, c.ThrottleScope)
	}
	if c.GroupField == "" || c.CountField == "" {
		return errors.New("GROUP_FIELD and COUNT_FIELD must not be empty")
	}
	if c.GroupField == c.CountField {
		return errors.New("GROUP_FIELD and COUNT_FIELD must differ")
	}
	if c.MaxMessageSize <= 0 {
		return errors.New("MAX_MESSAGE_SIZE must be positive")
	}
	if c.SendBuffer <= 0 {
		return errors.New("SEND_BUFFER must be positive")
	}
	if c.InboundRate < 0 {
		return errors.New("INBOUND_RATE must not be negative")
	}
	if c.InboundRate > 0 && c.InboundBurst <= 0 {
		return errors.New("INBOUND_BURST must be positive when INBOUND_RATE is set")
	}
	if c.PingPeriod <= 0 || c.PongWait <= 0 || c.WriteWait <= 0 {
		return errors.New("PING_PERIOD, PONG_WAIT and WRITE_WAIT must be positive")
	}
	// Pings must reach the peer before its read deadline expires.
	if c.PingPeriod >= c.PongWait {
		return fmt.Errorf("PING_PERIOD (%s) must be less than PONG_WAIT (%s)", c.PingPeriod, c.PongWait)
	}
	if c.MetricsTick <= 0 {
		return errors.New("METRICS_TICK must be positive")
	}
	return nil
}
