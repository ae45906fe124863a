// Package router executes typed commands against the value store and the
// channel registry.
//
// A [Router] holds no per-connection state. The connection that decoded a
// command passes its own [pubsub.Session] to [Router.Execute], which either
// commits the whole operation and returns a [Result], or changes nothing
// and returns an error:
//
//   - [*UnknownCommandError] for a command type the router does not handle
//   - [*InvalidArgumentError] for an empty key or channel, a negative or
//     overflowing expiration, a null JSON value, a typed read of a key
//     holding the other variant, or a malformed path
//
// A missing key is the [NotFound] result, not an error.
package router
