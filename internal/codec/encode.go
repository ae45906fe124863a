package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jpalmerr/aether/internal/pubsub"
	"github.com/jpalmerr/aether/internal/router"
	"github.com/jpalmerr/aether/internal/store"
)

// Status values of an [Envelope].
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Error kinds reported in [ErrorBody.Kind].
const (
	KindDecode          = "decode_error"
	KindUnknownCommand  = "unknown_command"
	KindInvalidArgument = "invalid_argument"
	KindInternal        = "internal"
)

// null is the literal sent for a read of an absent key.
var null = json.RawMessage("null")

// Envelope is the shape of every outbound frame. Exactly one group of
// fields is set per frame.
type Envelope struct {
	ClientID string `json:"client_id,omitempty"`

	Status    string `json:"status,omitempty"`
	Delivered *int   `json:"delivered,omitempty"`

	// GetString and GetJSON hold the literal null for an absent key.
	GetString json.RawMessage `json:"get_string,omitempty"`
	GetJSON   json.RawMessage `json:"get_json,omitempty"`

	Error *ErrorBody `json:"error,omitempty"`

	BroadcastMessage *pubsub.Message `json:"broadcast_message,omitempty"`
}

// ErrorBody details a failed command.
type ErrorBody struct {
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
	Field     string `json:"field,omitempty"`
	Operation string `json:"operation,omitempty"`
}

// IsNull reports whether raw is the JSON literal null.
func IsNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

// EncodeClientID encodes the greeting sent when a connection opens.
func EncodeClientID(id string) ([]byte, error) {
	return json.Marshal(Envelope{ClientID: id})
}

// EncodeBroadcast encodes a delivered broadcast.
func EncodeBroadcast(msg pubsub.Message) ([]byte, error) {
	return json.Marshal(Envelope{BroadcastMessage: &msg})
}

// EncodeResult encodes the reply to a command that succeeded. cmd selects
// the reply key for reads.
func EncodeResult(cmd router.Command, res router.Result) ([]byte, error) {
	var env Envelope

	switch r := res.(type) {
	case router.Ack:
		env.Status = StatusOK
	case router.DeliveryCount:
		n := r.Recipients
		env.Status = StatusOK
		env.Delivered = &n
	case router.NotFound:
		if err := setRead(&env, cmd, null); err != nil {
			return nil, err
		}
	case router.Found:
		raw, err := encodeValue(r.Value)
		if err != nil {
			return nil, err
		}
		if err := setRead(&env, cmd, raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("codec: unsupported result %T", res)
	}

	return json.Marshal(env)
}

func setRead(env *Envelope, cmd router.Command, raw json.RawMessage) error {
	switch cmd.(type) {
	case router.GetString:
		env.GetString = raw
	case router.GetJSON:
		env.GetJSON = raw
	default:
		return fmt.Errorf("codec: read result for %T", cmd)
	}
	return nil
}

func encodeValue(v store.Value) (json.RawMessage, error) {
	switch v.Kind() {
	case store.KindString:
		s, _ := v.Str()
		return json.Marshal(s)
	case store.KindJSON:
		doc, _ := v.JSON()
		return doc, nil
	default:
		return nil, fmt.Errorf("codec: cannot encode %s value", v.Kind())
	}
}

// ErrorOf converts err into the body sent to the client.
func ErrorOf(err error) ErrorBody {
	var (
		decodeErr  *DecodeError
		unknownErr *router.UnknownCommandError
		invalidErr *router.InvalidArgumentError
	)

	switch {
	case errors.As(err, &decodeErr):
		reason := decodeErr.Reason
		if decodeErr.Err != nil {
			reason += ": " + decodeErr.Err.Error()
		}
		return ErrorBody{Kind: KindDecode, Reason: reason, Operation: decodeErr.Command}
	case errors.As(err, &unknownErr):
		return ErrorBody{Kind: KindUnknownCommand, Reason: "unknown command", Operation: unknownErr.Name}
	case errors.As(err, &invalidErr):
		return ErrorBody{
			Kind:      KindInvalidArgument,
			Reason:    invalidErr.Reason,
			Field:     invalidErr.Field,
			Operation: invalidErr.Command,
		}
	default:
		return ErrorBody{Kind: KindInternal, Reason: err.Error()}
	}
}

// EncodeError encodes the reply to a command that failed.
func EncodeError(err error) ([]byte, error) {
	body := ErrorOf(err)
	return json.Marshal(Envelope{Status: StatusError, Error: &body})
}

// EncodeCommand encodes cmd as an inbound frame. It is the inverse of
// [Decode].
func EncodeCommand(cmd router.Command) ([]byte, error) {
	var args any

	switch c := cmd.(type) {
	case router.SetString:
		args = setStringArgs{Key: &c.Key, Value: &c.Value, Expiration: c.Expiration}
	case router.GetString:
		args = keyArgs{Key: &c.Key}
	case router.SetJSON:
		args = setJSONArgs{Key: &c.Key, Value: c.Value, Expiration: c.Expiration}
	case router.GetJSON:
		a := getJSONArgs{Key: &c.Key}
		if c.Path != "" {
			a.Path = &c.Path
		}
		args = a
	case router.DeleteKey:
		args = keyArgs{Key: &c.Key}
	case router.Subscribe:
		a := subscribeArgs{Channel: &c.Channel}
		if c.ReceiveOwn {
			a.SubscribeToSelf = &c.ReceiveOwn
		}
		args = a
	case router.Unsubscribe:
		args = c.Channel
	case router.SendBroadcast:
		args = broadcastArgs{Channel: &c.Channel, Message: &c.Message}
	default:
		return nil, fmt.Errorf("codec: cannot encode command %T", cmd)
	}

	return json.Marshal(map[string]any{cmd.Name(): args})
}
