// Package server provides the WebSocket and HTTP front end for Aether.
//
// This package is internal to Aether and handles all transport concerns:
//
//   - Command connections: WebSocket at "/ws", one session per connection
//   - Health and stats: "/health" and "/api/stats" as JSON
//   - Metrics: Prometheus exposition at "/metrics"
//   - Console: the embedded HTML console at "/"
//
// Each connection has one goroutine reading and executing commands in order
// and one goroutine writing. The writer is the only one touching the socket
// for writes; it drains command replies and the session's broadcast outbox
// and pings the peer every 30 seconds.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests. Open WebSocket connections are
// closed with a going-away close frame.
//
// Users of the aether library should not need to interact with this package
// directly. The server is started automatically by [aether.Aether.Start].
package server
