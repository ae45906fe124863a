package aether

import "time"

// CommandEvent describes one command executed for a client.
//
// CommandEvent is passed by value to callbacks registered with
// [WithCommandCallback].
type CommandEvent struct {
	// ClientID identifies the connection that issued the command.
	ClientID string

	// Command is the wire name, such as "set_string" or "send_broadcast".
	Command string

	// Duration is the time spent executing the command.
	Duration time.Duration

	// Err is the reason the command was rejected, or nil on success.
	Err error
}

// Failed reports whether the command was rejected.
func (e CommandEvent) Failed() bool {
	return e.Err != nil
}

// Clock supplies the current time for key expiry.
type Clock interface {
	Now() time.Time
}
