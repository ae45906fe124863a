package aether

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jpalmerr/aether/console"
	"github.com/jpalmerr/aether/internal/metrics"
	"github.com/jpalmerr/aether/internal/pubsub"
	"github.com/jpalmerr/aether/internal/router"
	"github.com/jpalmerr/aether/internal/server"
	"github.com/jpalmerr/aether/internal/store"
	"github.com/jpalmerr/aether/internal/sweeper"
)

const (
	defaultHost             = "127.0.0.1"
	defaultPort             = 3000
	defaultShards           = 32
	defaultSweepInterval    = time.Second
	defaultSweepConcurrency = 4
	defaultGlobalChannel    = "global"
)

// Aether is an in-memory key/value store with per-key expiry and a pub/sub
// channel registry, served to WebSocket clients over a JSON command
// protocol.
//
// It is created using [New] with functional options and started with
// [Aether.Start]. The typical lifecycle is:
//
//	ae, err := aether.New(aether.WithPort(3000))
//	if err != nil {
//	    slog.Error("failed to create aether", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	ae.Start(ctx) // blocks until context cancelled
//
// The store and the registry are created by New, so their contents survive
// for the lifetime of the Aether value, not just one Start.
type Aether struct {
	title            string
	host             string
	port             int
	outboxSize       int
	sweepInterval    time.Duration
	sweepConcurrency int
	writeTimeout     time.Duration
	maxMessageBytes  int64
	logger           *slog.Logger
	commandCallbacks []func(CommandEvent)

	store    *store.MemoryStore
	registry *pubsub.Registry
	router   *router.Router
	metrics  *metrics.Recorder

	mu   sync.Mutex
	addr net.Addr
}

// New creates a new [Aether] instance with the given options.
//
// Every option has a default:
//   - Listen address: 127.0.0.1:3000
//   - Shards: 32
//   - Outbox size: 1000 deliveries per session
//   - Sweep interval: 1 second, 4 shards at a time
//   - Global channel: "global"
//
// Returns an error if any option is invalid.
func New(opts ...Option) (*Aether, error) {
	cfg := &aeConfig{
		host:             defaultHost,
		port:             defaultPort,
		shards:           defaultShards,
		outboxSize:       pubsub.DefaultOutboxSize,
		sweepInterval:    defaultSweepInterval,
		sweepConcurrency: defaultSweepConcurrency,
		globalChannel:    defaultGlobalChannel,
		writeTimeout:     server.DefaultWriteTimeout,
		maxMessageBytes:  server.DefaultMaxMessageBytes,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	var clock store.Clock = store.SystemClock{}
	if cfg.clock != nil {
		clock = cfg.clock
	}

	var registryOpts []pubsub.RegistryOption
	if !cfg.disableGlobalChannel {
		registryOpts = append(registryOpts, pubsub.WithGlobalChannel(cfg.globalChannel))
	}

	st := store.NewMemoryStore(cfg.shards, clock)
	reg := pubsub.NewRegistry(cfg.shards, registryOpts...)

	return &Aether{
		title:            cfg.title,
		host:             cfg.host,
		port:             cfg.port,
		outboxSize:       cfg.outboxSize,
		sweepInterval:    cfg.sweepInterval,
		sweepConcurrency: cfg.sweepConcurrency,
		writeTimeout:     cfg.writeTimeout,
		maxMessageBytes:  cfg.maxMessageBytes,
		logger:           logger,
		commandCallbacks: cfg.commandCallbacks,
		store:            st,
		registry:         reg,
		router:           router.New(st, reg, router.WithLogger(logger)),
		metrics:          metrics.New(),
	}, nil
}

// Start begins sweeping expired keys and serving clients.
//
// Start is a blocking call that runs until the provided context is
// cancelled. During execution:
//
//   - Expired keys are swept once immediately, then every sweep interval
//   - The HTTP server listens on the configured address
//   - WebSocket clients connect at /ws
//   - The console is available at http://<host>:<port>/
//
// On cancellation every client connection is closed and Start waits for
// them to be torn down before returning.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server
// fails to start.
func (ae *Aether) Start(ctx context.Context) error {
	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	sw := sweeper.NewSweeper(ae.store, ae.sweepInterval, ae.sweepConcurrency, ae.logger)
	sw.Start(ctx)

	// track the results consumer goroutine to ensure clean shutdown
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range sw.Results() {
			if result.Error != nil {
				ae.logger.Error("sweep failed", "shard", result.Shard, "error", result.Error)
				continue
			}
			if result.Removed == 0 {
				continue
			}
			ae.metrics.ExpiredKeys(result.Removed)
			ae.logger.Debug("expired keys swept",
				"shard", result.Shard,
				"removed", result.Removed,
				"duration_us", result.Duration.Microseconds(),
			)
		}
	}()

	cleanup := func() {
		sw.Stop() // closes results channel
		wg.Wait()
	}

	srv := server.NewServer(server.Config{
		Host:            ae.host,
		Port:            ae.port,
		Store:           ae.store,
		Registry:        ae.registry,
		Router:          ae.router,
		Metrics:         ae.metrics,
		Assets:          console.Assets,
		Title:           ae.title,
		OutboxSize:      ae.outboxSize,
		WriteTimeout:    ae.writeTimeout,
		MaxMessageBytes: ae.maxMessageBytes,
		OnCommand:       ae.dispatchCommand,
	}, ae.logger)

	if err := srv.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	ae.mu.Lock()
	ae.addr = srv.Addr()
	ae.mu.Unlock()

	ae.logger.Info("aether started",
		"addr", srv.Addr().String(),
		"global_channel", ae.registry.GlobalChannel(),
		"sweep_interval", sw.Interval().String(),
	)

	<-ctx.Done()
	srv.Wait()
	cleanup()

	ae.mu.Lock()
	ae.addr = nil
	ae.mu.Unlock()

	ae.logger.Info("aether stopped")
	return nil
}

// dispatchCommand fans a server command event out to the registered
// callbacks.
func (ae *Aether) dispatchCommand(ev server.CommandEvent) {
	if len(ae.commandCallbacks) == 0 {
		return
	}
	event := CommandEvent{
		ClientID: ev.ClientID,
		Command:  ev.Command,
		Duration: ev.Duration,
		Err:      ev.Err,
	}
	for _, cb := range ae.commandCallbacks {
		invokeCallbackSafe(cb, event, ae.logger)
	}
}

// Addr returns the bound listen address while Start is running, or nil.
func (ae *Aether) Addr() net.Addr {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	return ae.addr
}

// Host returns the configured listen host.
func (ae *Aether) Host() string {
	return ae.host
}

// Port returns the configured HTTP port. Zero means a free port is picked
// at Start; use [Aether.Addr] to see it.
func (ae *Aether) Port() int {
	return ae.port
}

// GlobalChannel returns the global channel name, or "" when disabled.
func (ae *Aether) GlobalChannel() string {
	return ae.registry.GlobalChannel()
}

// SweepInterval returns the configured interval between expiry sweeps.
func (ae *Aether) SweepInterval() time.Duration {
	return ae.sweepInterval
}

// Stats is a point-in-time snapshot of an [Aether] instance.
type Stats struct {
	Keys     int
	Channels int
	Sessions int
}

// Stats returns the current key, channel and session counts.
func (ae *Aether) Stats() Stats {
	return Stats{
		Keys:     ae.store.Len(),
		Channels: ae.registry.ChannelCount(),
		Sessions: ae.registry.SessionCount(),
	}
}

// invokeCallbackSafe calls a command callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(CommandEvent), event CommandEvent, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("command callback panicked",
				"panic", r,
				"client_id", event.ClientID,
				"command", event.Command,
			)
		}
	}()
	cb(event)
}
