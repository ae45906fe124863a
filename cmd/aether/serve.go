package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jpalmerr/aether"
	"github.com/jpalmerr/aether/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the Aether server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	Long: `Start the Aether server.

The server will:
  - Load configuration from the given YAML or TOML file, if any
  - Apply command-line flags on top of the file
  - Sweep expired keys in the background
  - Accept WebSocket clients at /ws and serve the console at /

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  aether serve
  aether serve -c aether.yaml
  aether serve -c /etc/aether/aether.toml --port 4000 --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServeFlags(serveCmd.Flags())
}

// addServeFlags defines the serve flags on flags.
func addServeFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "path to config file (.yaml, .yml or .toml)")
	flags.String("host", "", "interface to bind")
	flags.IntP("port", "p", 0, "HTTP port")
	flags.String("global-channel", "", "name of the channel every client receives")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "json or text")
}

// loadServeConfig reads the config file, if given, and applies flags that
// were set explicitly.
func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")

	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("global-channel") {
		cfg.GlobalChannel, _ = flags.GetString("global-channel")
		cfg.DisableGlobalChannel = false
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}

	logger := config.NewLogger(cfg, os.Stderr)
	logger.Info("config loaded",
		"host", cfg.Host,
		"port", cfg.Port,
		"shards", cfg.Shards,
		"outbox_size", cfg.OutboxSize,
		"sweep_interval", cfg.SweepInterval.Duration().String(),
	)

	ae, err := aether.New(config.BuildOptions(cfg, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create Aether: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- ae.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
