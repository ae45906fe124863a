package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jpalmerr/aether/internal/router"
)

// DecodeError describes a frame that could not be turned into a command.
type DecodeError struct {
	// Command is the command name, when the frame got far enough to name one.
	Command string

	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "codec: "
	if e.Command != "" {
		msg += e.Command + ": "
	}
	msg += e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type keyArgs struct {
	Key *string `json:"key"`
}

type setStringArgs struct {
	Key        *string `json:"key"`
	Value      *string `json:"value"`
	Expiration *int64  `json:"expiration,omitempty"`
}

type setJSONArgs struct {
	Key        *string         `json:"key"`
	Value      json.RawMessage `json:"value"`
	Expiration *int64          `json:"expiration,omitempty"`
}

type getJSONArgs struct {
	Key  *string `json:"key"`
	Path *string `json:"path,omitempty"`
}

type subscribeArgs struct {
	Channel         *string `json:"channel"`
	SubscribeToSelf *bool   `json:"subscribe_to_self,omitempty"`
}

type broadcastArgs struct {
	Channel *string `json:"channel"`
	Message *string `json:"message"`
}

// Decode parses one inbound frame into a command.
func Decode(data []byte) (router.Command, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &DecodeError{Reason: "frame is not a JSON object", Err: err}
	}
	if top == nil {
		return nil, &DecodeError{Reason: "frame is not a JSON object"}
	}
	if len(top) != 1 {
		keys := make([]string, 0, len(top))
		for k := range top {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, &DecodeError{Reason: fmt.Sprintf("frame must have exactly one command key, got %d %v", len(top), keys)}
	}

	for name, raw := range top {
		return decodeCommand(name, raw)
	}
	return nil, &DecodeError{Reason: "frame has no command"}
}

func decodeCommand(name string, raw json.RawMessage) (router.Command, error) {
	switch name {
	case router.NameSetString:
		var a setStringArgs
		if err := unmarshalArgs(name, raw, &a); err != nil {
			return nil, err
		}
		if err := requireFields(name, field{"key", a.Key != nil}, field{"value", a.Value != nil}); err != nil {
			return nil, err
		}
		return router.SetString{Key: *a.Key, Value: *a.Value, Expiration: a.Expiration}, nil

	case router.NameGetString:
		var a keyArgs
		if err := unmarshalArgs(name, raw, &a); err != nil {
			return nil, err
		}
		if err := requireFields(name, field{"key", a.Key != nil}); err != nil {
			return nil, err
		}
		return router.GetString{Key: *a.Key}, nil

	case router.NameSetJSON:
		var a setJSONArgs
		if err := unmarshalArgs(name, raw, &a); err != nil {
			return nil, err
		}
		if err := requireFields(name, field{"key", a.Key != nil}, field{"value", a.Value != nil}); err != nil {
			return nil, err
		}
		return router.SetJSON{Key: *a.Key, Value: a.Value, Expiration: a.Expiration}, nil

	case router.NameGetJSON:
		var a getJSONArgs
		if err := unmarshalArgs(name, raw, &a); err != nil {
			return nil, err
		}
		if err := requireFields(name, field{"key", a.Key != nil}); err != nil {
			return nil, err
		}
		cmd := router.GetJSON{Key: *a.Key}
		if a.Path != nil {
			cmd.Path = *a.Path
		}
		return cmd, nil

	case router.NameDeleteKey:
		var a keyArgs
		if err := unmarshalArgs(name, raw, &a); err != nil {
			return nil, err
		}
		if err := requireFields(name, field{"key", a.Key != nil}); err != nil {
			return nil, err
		}
		return router.DeleteKey{Key: *a.Key}, nil

	case router.NameSubscribe:
		var a subscribeArgs
		if err := unmarshalArgs(name, raw, &a); err != nil {
			return nil, err
		}
		if err := requireFields(name, field{"channel", a.Channel != nil}); err != nil {
			return nil, err
		}
		cmd := router.Subscribe{Channel: *a.Channel}
		if a.SubscribeToSelf != nil {
			cmd.ReceiveOwn = *a.SubscribeToSelf
		}
		return cmd, nil

	case router.NameUnsubscribe:
		var channel *string
		if err := json.Unmarshal(raw, &channel); err != nil {
			return nil, &DecodeError{Command: name, Reason: "argument must be a channel name string", Err: err}
		}
		if channel == nil {
			return nil, &DecodeError{Command: name, Reason: "argument must be a channel name string"}
		}
		return router.Unsubscribe{Channel: *channel}, nil

	case router.NameBroadcast:
		var a broadcastArgs
		if err := unmarshalArgs(name, raw, &a); err != nil {
			return nil, err
		}
		if err := requireFields(name, field{"channel", a.Channel != nil}, field{"message", a.Message != nil}); err != nil {
			return nil, err
		}
		return router.SendBroadcast{Channel: *a.Channel, Message: *a.Message}, nil

	default:
		return nil, &DecodeError{Command: name, Reason: "unknown command"}
	}
}

// unmarshalArgs decodes an argument object. Unknown fields are ignored.
func unmarshalArgs(name string, raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return &DecodeError{Command: name, Reason: "arguments must be a JSON object"}
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return &DecodeError{Command: name, Reason: "malformed arguments", Err: err}
	}
	return nil
}

type field struct {
	name    string
	present bool
}

// requireFields reports the first missing required field.
func requireFields(cmd string, fields ...field) error {
	for _, f := range fields {
		if !f.present {
			return &DecodeError{Command: cmd, Reason: "missing field " + f.name}
		}
	}
	return nil
}
