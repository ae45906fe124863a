package config

import (
	"io"
	"log/slog"

	"github.com/jpalmerr/aether"
)

// BuildOptions converts parsed configuration into [aether.Option] values.
//
// The logger is passed through as-is; build it with [NewLogger] to honour
// log_level and log_format.
func BuildOptions(cfg *Config, logger *slog.Logger) []aether.Option {
	opts := []aether.Option{
		aether.WithHost(cfg.Host),
		aether.WithPort(cfg.Port),
		aether.WithShards(cfg.Shards),
		aether.WithOutboxSize(cfg.OutboxSize),
		aether.WithSweepInterval(cfg.SweepInterval.Duration()),
		aether.WithSweepConcurrency(cfg.SweepConcurrency),
		aether.WithWriteTimeout(cfg.WriteTimeout.Duration()),
		aether.WithMaxMessageBytes(cfg.MaxMessageBytes),
	}

	if cfg.DisableGlobalChannel {
		opts = append(opts, aether.WithoutGlobalChannel())
	} else {
		opts = append(opts, aether.WithGlobalChannel(cfg.GlobalChannel))
	}

	if cfg.Title != "" {
		opts = append(opts, aether.WithTitle(cfg.Title))
	}

	if logger != nil {
		opts = append(opts, aether.WithLogger(logger))
	}

	return opts
}

// NewLogger creates a logger writing to w in the configured format and
// level.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}
