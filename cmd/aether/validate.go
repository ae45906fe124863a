package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/aether/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate an Aether configuration file without starting the server.

This command parses the YAML or TOML, expands environment variables, applies
defaults and validates all fields. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  aether validate -c aether.yaml
  aether validate --config /etc/aether/aether.toml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	global := cfg.GlobalChannel
	if cfg.DisableGlobalChannel {
		global = "(disabled)"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Listen:         %s:%d\n", cfg.Host, cfg.Port)
	fmt.Fprintf(out, "  Shards:         %d\n", cfg.Shards)
	fmt.Fprintf(out, "  Outbox size:    %d\n", cfg.OutboxSize)
	fmt.Fprintf(out, "  Sweep interval: %s\n", cfg.SweepInterval.Duration())
	fmt.Fprintf(out, "  Global channel: %s\n", global)
	fmt.Fprintf(out, "  Logging:        %s, %s\n", cfg.LogLevel, cfg.LogFormat)

	return nil
}
