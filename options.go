package aether

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/aether/internal/sweeper"
)

// aeConfig holds mutable state during Aether construction.
type aeConfig struct {
	title                string
	host                 string
	port                 int
	shards               int
	outboxSize           int
	sweepInterval        time.Duration
	sweepConcurrency     int
	globalChannel        string
	disableGlobalChannel bool
	writeTimeout         time.Duration
	maxMessageBytes      int64
	clock                Clock
	logger               *slog.Logger
	commandCallbacks     []func(CommandEvent)
}

// Option is a function that configures an [Aether] instance during
// construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*aeConfig) error

// WithHost sets the interface the server binds. Defaults to 127.0.0.1.
//
// Use "0.0.0.0" or "" to listen on every interface.
func WithHost(host string) Option {
	return func(cfg *aeConfig) error {
		cfg.host = host
		return nil
	}
}

// WithPort sets the HTTP port. Defaults to 3000.
//
// Port 0 picks a free port at Start; read it back with [Aether.Addr].
//
// Returns an error if the port is outside 0-65535.
func WithPort(port int) Option {
	return func(cfg *aeConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithShards sets the number of lock shards used by both the value store
// and the channel registry. More shards mean less contention between
// unrelated keys and channels. Defaults to 32.
//
// Returns an error if n is zero or negative.
func WithShards(n int) Option {
	return func(cfg *aeConfig) error {
		if n <= 0 {
			return errors.New("shards must be positive")
		}
		cfg.shards = n
		return nil
	}
}

// WithOutboxSize sets how many broadcast deliveries may wait for a slow
// client before further deliveries to it are dropped. Defaults to 1000.
//
// Returns an error if n is zero or negative.
func WithOutboxSize(n int) Option {
	return func(cfg *aeConfig) error {
		if n <= 0 {
			return errors.New("outbox size must be positive")
		}
		cfg.outboxSize = n
		return nil
	}
}

// WithSweepInterval sets how often expired keys are swept. Expired keys
// are never returned between sweeps; the sweep only reclaims memory.
// Defaults to 1 second.
//
// Returns an error if d is shorter than 10ms.
func WithSweepInterval(d time.Duration) Option {
	return func(cfg *aeConfig) error {
		if d < sweeper.MinInterval {
			return fmt.Errorf("sweep interval must be at least %s", sweeper.MinInterval)
		}
		cfg.sweepInterval = d
		return nil
	}
}

// WithSweepConcurrency sets how many shards are swept at once.
// Defaults to 4.
//
// Returns an error if n is zero or negative.
func WithSweepConcurrency(n int) Option {
	return func(cfg *aeConfig) error {
		if n <= 0 {
			return errors.New("sweep concurrency must be positive")
		}
		cfg.sweepConcurrency = n
		return nil
	}
}

// WithGlobalChannel names the channel whose broadcasts reach every
// connected client, subscribed or not. Defaults to "global".
//
// Returns an error if name is empty; use [WithoutGlobalChannel] instead.
func WithGlobalChannel(name string) Option {
	return func(cfg *aeConfig) error {
		if name == "" {
			return errors.New("global channel name cannot be empty")
		}
		cfg.globalChannel = name
		cfg.disableGlobalChannel = false
		return nil
	}
}

// WithoutGlobalChannel disables the global channel. Every channel then
// only reaches its subscribers.
func WithoutGlobalChannel() Option {
	return func(cfg *aeConfig) error {
		cfg.disableGlobalChannel = true
		return nil
	}
}

// WithWriteTimeout bounds every frame written to a client. A client that
// cannot take a frame within the timeout is disconnected. Defaults to 5s.
//
// Returns an error if d is zero or negative.
func WithWriteTimeout(d time.Duration) Option {
	return func(cfg *aeConfig) error {
		if d <= 0 {
			return errors.New("write timeout must be positive")
		}
		cfg.writeTimeout = d
		return nil
	}
}

// WithMaxMessageBytes sets the largest frame a client may send. A larger
// frame closes the connection. Defaults to 1 MiB.
//
// Returns an error if n is zero or negative.
func WithMaxMessageBytes(n int64) Option {
	return func(cfg *aeConfig) error {
		if n <= 0 {
			return errors.New("max message bytes must be positive")
		}
		cfg.maxMessageBytes = n
		return nil
	}
}

// WithClock replaces the wall clock used for key expiry. Tests use it to
// expire keys without sleeping.
//
// Returns an error if the clock is nil.
func WithClock(clock Clock) Option {
	return func(cfg *aeConfig) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = clock
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Aether instance.
//
// If not specified, [slog.Default] is used.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	ae, err := aether.New(aether.WithLogger(logger))
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *aeConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithCommandCallback registers a function to be called after every
// executed command.
//
// The callback receives a [CommandEvent] with the client id, command name,
// execution time and the error, if any. Frames that fail to decode are not
// reported.
//
// Multiple callbacks may be registered; they execute in registration order.
//
// IMPORTANT: Callbacks run on the issuing client's read goroutine, so a
// slow callback delays that client's next command. Dispatch long work to a
// separate goroutine. Panics within callbacks are recovered and logged.
//
// Example:
//
//	ae, err := aether.New(
//	    aether.WithCommandCallback(func(ev aether.CommandEvent) {
//	        if ev.Err != nil {
//	            log.Printf("%s: %s failed: %v", ev.ClientID, ev.Command, ev.Err)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithCommandCallback(cb func(CommandEvent)) Option {
	return func(cfg *aeConfig) error {
		if cb == nil {
			return nil
		}
		cfg.commandCallbacks = append(cfg.commandCallbacks, cb)
		return nil
	}
}

// WithTitle sets the console title displayed in the browser tab and header.
//
// If not specified, defaults to "Aether".
func WithTitle(title string) Option {
	return func(cfg *aeConfig) error {
		cfg.title = title
		return nil
	}
}
