// Package main is the entry point for the aether CLI.
//
// Aether can be embedded as a library or run as a standalone binary with a
// YAML or TOML configuration file. This CLI provides the standalone binary
// and a line-oriented client for poking at a running server.
//
// Usage:
//
//	aether serve -c aether.yaml             # Start the server
//	aether validate -c aether.yaml          # Validate configuration
//	aether client --url ws://host:3000/ws   # Send commands from stdin
//	aether version                          # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "aether",
	Short: "An in-memory key/value store with pub/sub over WebSocket",
	Long: `Aether is an in-memory key/value store with per-key expiry and
publish/subscribe channels, served over WebSocket with a JSON protocol.

Quick start:
  1. Run: aether serve
  2. Connect: aether client --url ws://127.0.0.1:3000/ws
  3. Type: {"set_string": {"key": "greeting", "value": "hello"}}

Example config:
  port: 3000
  sweep_interval: 1s
  global_channel: global
  log_level: info`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this aether binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "aether %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
