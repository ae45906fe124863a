package router

import (
	"encoding/json"

	"github.com/jpalmerr/aether/internal/store"
)

// Command names as they appear on the wire.
const (
	NameSetString   = "set_string"
	NameGetString   = "get_string"
	NameSetJSON     = "set_json"
	NameGetJSON     = "get_json"
	NameDeleteKey   = "delete_key"
	NameSubscribe   = "subscribe_broadcast"
	NameUnsubscribe = "unsubscribe_broadcast"
	NameBroadcast   = "send_broadcast"
)

// Command is one decoded client request. The set of commands is closed;
// only this package's types implement it.
type Command interface {
	// Name returns the wire name of the command.
	Name() string

	command()
}

// SetString stores a string value.
type SetString struct {
	Key   string
	Value string

	// Expiration is the time to live in seconds. nil means never expire.
	Expiration *int64
}

// GetString reads a string value.
type GetString struct {
	Key string
}

// SetJSON stores a JSON document.
type SetJSON struct {
	Key        string
	Value      json.RawMessage
	Expiration *int64
}

// GetJSON reads a JSON document, or the part of it addressed by Path.
type GetJSON struct {
	Key string

	// Path is a dot-separated list of object keys and array indexes, such
	// as "items.0.name". Empty selects the whole document.
	Path string
}

// DeleteKey removes a key.
type DeleteKey struct {
	Key string
}

// Subscribe adds the session to a channel.
type Subscribe struct {
	Channel string

	// ReceiveOwn delivers the session's own broadcasts on Channel back to it.
	ReceiveOwn bool
}

// Unsubscribe removes the session from a channel.
type Unsubscribe struct {
	Channel string
}

// SendBroadcast publishes a message on a channel.
type SendBroadcast struct {
	Channel string
	Message string
}

func (SetString) Name() string     { return NameSetString }
func (GetString) Name() string     { return NameGetString }
func (SetJSON) Name() string       { return NameSetJSON }
func (GetJSON) Name() string       { return NameGetJSON }
func (DeleteKey) Name() string     { return NameDeleteKey }
func (Subscribe) Name() string     { return NameSubscribe }
func (Unsubscribe) Name() string   { return NameUnsubscribe }
func (SendBroadcast) Name() string { return NameBroadcast }

func (SetString) command()     {}
func (GetString) command()     {}
func (SetJSON) command()       {}
func (GetJSON) command()       {}
func (DeleteKey) command()     {}
func (Subscribe) command()     {}
func (Unsubscribe) command()   {}
func (SendBroadcast) command() {}

// Result is the successful outcome of a command.
type Result interface {
	result()
}

// Ack confirms a write or a membership change.
type Ack struct{}

// Found carries the value a read returned.
type Found struct {
	Value store.Value
}

// NotFound reports a read of an absent or expired key.
type NotFound struct{}

// DeliveryCount reports how many sessions a broadcast was queued for.
type DeliveryCount struct {
	Recipients int

	// Dropped counts targeted sessions whose outbound queue was full.
	Dropped int
}

func (Ack) result()           {}
func (Found) result()         {}
func (NotFound) result()      {}
func (DeliveryCount) result() {}
