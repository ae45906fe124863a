package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jpalmerr/aether/internal/client"
	"github.com/jpalmerr/aether/internal/router"
)

// tickTTL is how long last_tick survives without a fresh tick.
const tickTTL int64 = 5

// RunTickBot connects as "tick-bot" and, every second, broadcasts the
// current time on "ticks" and stores it under "last_tick" with an expiry.
// Replies are drained and discarded.
func RunTickBot(ctx context.Context, url string, logger *slog.Logger) {
	c, err := client.Dial(ctx, url, client.Options{
		ClientID: "tick-bot",
		Attempts: 10,
		Delay:    100 * time.Millisecond,
	})
	if err != nil {
		logger.Error("tick bot could not connect", "error", err)
		return
	}
	defer func() { _ = c.Close() }()

	go func() {
		for {
			if _, err := c.Next(ctx); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			now := t.Format(time.RFC3339)
			ttl := tickTTL
			if err := c.Send(router.SetString{Key: "last_tick", Value: now, Expiration: &ttl}); err != nil {
				logger.Warn("tick bot send failed", "error", err)
				return
			}
			if err := c.Send(router.SendBroadcast{Channel: "ticks", Message: now}); err != nil {
				logger.Warn("tick bot send failed", "error", err)
				return
			}
		}
	}
}
