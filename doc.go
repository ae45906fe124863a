// Package aether provides an embeddable in-memory key/value store with
// per-key expiry and a publish/subscribe channel registry, served to
// WebSocket clients over a JSON command protocol.
//
// Each connected client is a session with a client id. Over one connection
// a client can store and read string or JSON values, optionally with an
// expiration in seconds, delete keys, subscribe to named channels, and
// broadcast text to them. Broadcast deliveries are pushed to each
// subscriber's connection alongside command replies.
//
// # Quick Start
//
// Start a server with graceful shutdown:
//
//	ae, _ := aether.New(aether.WithPort(3000))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	ae.Start(ctx) // blocks until context is cancelled
//
// Clients connect to ws://127.0.0.1:3000/ws, optionally with a client_id
// query parameter, and receive {"client_id": "..."} as the first frame.
//
// # Configuration
//
// Aether uses the functional options pattern for configuration:
//
//	ae, err := aether.New(
//	    aether.WithHost("0.0.0.0"),
//	    aether.WithShards(64),
//	    aether.WithOutboxSize(500),
//	    aether.WithSweepInterval(250 * time.Millisecond),
//	    aether.WithGlobalChannel("everyone"),
//	)
//
// The aether binary reads the same settings from a YAML or TOML file; see
// the config package.
//
// # Commands
//
// Every frame is a JSON object with exactly one key naming the command:
//
//	{"set_string": {"key": "k", "value": "v", "expiration": 60}}
//	{"get_string": {"key": "k"}}
//	{"set_json": {"key": "k", "value": {"a": [1, 2]}}}
//	{"get_json": {"key": "k", "path": "a.1"}}
//	{"delete_key": {"key": "k"}}
//	{"subscribe_broadcast": {"channel": "news", "subscribe_to_self": false}}
//	{"unsubscribe_broadcast": "news"}
//	{"send_broadcast": {"channel": "news", "message": "hello"}}
//
// # Architecture
//
// Aether consists of several internal packages (under internal/):
//
//   - internal/store: Sharded value store with lazy expiry
//   - internal/sweeper: Periodic removal of expired keys with a worker pool
//   - internal/pubsub: Sessions, bounded outboxes and the channel registry
//   - internal/router: Command validation and execution
//   - internal/codec: JSON wire format for commands and replies
//   - internal/server: WebSocket and HTTP endpoints
//   - internal/metrics: Prometheus instrumentation
//   - internal/client: WebSocket client used by the CLI
//   - console: Embedded web console assets
//
// The internal packages are not part of the public API and may change
// without notice.
package aether
