package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/aether"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ae, err := aether.New(
		aether.WithPort(3000),
		aether.WithTitle("Aether Demo"),
		aether.WithSweepInterval(500*time.Millisecond),
		aether.WithLogger(logger),
		aether.WithCommandCallback(func(ev aether.CommandEvent) {
			if ev.Failed() {
				logger.Warn("command rejected", "client_id", ev.ClientID, "command", ev.Command, "error", ev.Err)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create aether", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Aether Demo                                         ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:3000 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   A bot publishes on channel \"ticks\" every second     ║")
	fmt.Println("  ║   and keeps \"last_tick\" alive for 5 seconds.          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start the bot (see bot.go); it retries until the server is up
	go RunTickBot(ctx, "ws://127.0.0.1:3000/ws", logger)

	if err := ae.Start(ctx); err != nil {
		slog.Error("aether error", "error", err)
		os.Exit(1)
	}
}
