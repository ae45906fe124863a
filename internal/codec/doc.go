// Package codec translates between WebSocket frames and router values.
//
// Every inbound frame is a JSON object with exactly one key, the command
// name. Its value is an argument object, except for unsubscribe_broadcast
// whose argument is the bare channel name:
//
//	{"set_string": {"key": "k", "value": "v", "expiration": 20}}
//	{"get_json": {"key": "doc", "path": "items.0"}}
//	{"unsubscribe_broadcast": "news"}
//
// Unknown fields inside an argument object are ignored. A missing required
// field, a wrong JSON type, an unknown command or anything other than one
// top-level key is a [*DecodeError].
//
// Outbound frames share the [Envelope] shape; see the Encode functions.
package codec
