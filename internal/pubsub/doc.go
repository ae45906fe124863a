// Package pubsub provides the channel registry and per-connection sessions.
//
// This package is internal to Aether. A [Session] represents one connected
// client: a stable client id, the set of channels it is subscribed to, and a
// bounded outbound queue. The [Registry] owns the channel to subscriber
// mapping and performs broadcast fan-out.
//
// Membership is bidirectional: a session is listed under a channel exactly
// when the channel is listed in the session. Both sides change together
// inside one critical section, and only the registry changes either side.
//
// Delivery never blocks the broadcaster. Messages are placed on each
// recipient's queue with a non-blocking send; a recipient whose queue is
// full misses that message rather than stalling the others.
package pubsub
