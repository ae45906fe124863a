package codec

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/aether/internal/pubsub"
	"github.com/jpalmerr/aether/internal/router"
	"github.com/jpalmerr/aether/internal/store"
)

func seconds(n int64) *int64 { return &n }

func TestDecode_Commands(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  router.Command
	}{
		{
			name:  "set_string",
			frame: `{"set_string": {"key": "test", "value": "value"}}`,
			want:  router.SetString{Key: "test", Value: "value"},
		},
		{
			name:  "set_string with expiration",
			frame: `{"set_string": {"key": "expire", "value": "value", "expiration": 20}}`,
			want:  router.SetString{Key: "expire", Value: "value", Expiration: seconds(20)},
		},
		{
			name:  "get_string",
			frame: `{"get_string": {"key": "test"}}`,
			want:  router.GetString{Key: "test"},
		},
		{
			name:  "set_json",
			frame: `{"set_json": {"key": "doc", "value": {"a": [1, 2]}}}`,
			want:  router.SetJSON{Key: "doc", Value: json.RawMessage(`{"a": [1, 2]}`)},
		},
		{
			name:  "get_json with path",
			frame: `{"get_json": {"key": "doc", "path": "a.0"}}`,
			want:  router.GetJSON{Key: "doc", Path: "a.0"},
		},
		{
			name:  "delete_key",
			frame: `{"delete_key": {"key": "k"}}`,
			want:  router.DeleteKey{Key: "k"},
		},
		{
			name:  "subscribe_broadcast",
			frame: `{"subscribe_broadcast": {"channel": "test_channel"}}`,
			want:  router.Subscribe{Channel: "test_channel"},
		},
		{
			name:  "subscribe_broadcast to self",
			frame: `{"subscribe_broadcast": {"channel": "c", "subscribe_to_self": true}}`,
			want:  router.Subscribe{Channel: "c", ReceiveOwn: true},
		},
		{
			name:  "unsubscribe_broadcast bare string",
			frame: `{"unsubscribe_broadcast": "test_channel"}`,
			want:  router.Unsubscribe{Channel: "test_channel"},
		},
		{
			name:  "send_broadcast",
			frame: `{"send_broadcast": {"channel": "test_channel", "message": "test message"}}`,
			want:  router.SendBroadcast{Channel: "test_channel", Message: "test message"},
		},
		{
			name:  "unknown fields ignored",
			frame: `{"get_string": {"key": "k", "extra": [1, 2, 3]}}`,
			want:  router.GetString{Key: "k"},
		},
		{
			name:  "empty key reaches router",
			frame: `{"get_string": {"key": ""}}`,
			want:  router.GetString{Key: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_NullJSONValueReachesRouter(t *testing.T) {
	got, err := Decode([]byte(`{"set_json": {"key": "doc", "value": null}}`))
	require.NoError(t, err)

	cmd, ok := got.(router.SetJSON)
	require.True(t, ok)
	assert.True(t, IsNull(cmd.Value))
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		command string
	}{
		{"not json", `set_string`, ""},
		{"not an object", `["set_string"]`, ""},
		{"null frame", `null`, ""},
		{"no keys", `{}`, ""},
		{"two keys", `{"get_string": {"key": "a"}, "delete_key": {"key": "a"}}`, ""},
		{"unknown command", `{"flush_all": {}}`, "flush_all"},
		{"missing key", `{"get_string": {}}`, "get_string"},
		{"missing value", `{"set_string": {"key": "k"}}`, "set_string"},
		{"missing json value", `{"set_json": {"key": "k"}}`, "set_json"},
		{"null key", `{"get_string": {"key": null}}`, "get_string"},
		{"wrong value type", `{"set_string": {"key": "k", "value": 5}}`, "set_string"},
		{"fractional expiration", `{"set_string": {"key": "k", "value": "v", "expiration": 1.5}}`, "set_string"},
		{"string expiration", `{"set_string": {"key": "k", "value": "v", "expiration": "20"}}`, "set_string"},
		{"args not object", `{"get_string": "k"}`, "get_string"},
		{"unsubscribe object", `{"unsubscribe_broadcast": {"channel": "c"}}`, "unsubscribe_broadcast"},
		{"unsubscribe null", `{"unsubscribe_broadcast": null}`, "unsubscribe_broadcast"},
		{"missing message", `{"send_broadcast": {"channel": "c"}}`, "send_broadcast"},
		{"subscribe_to_self not bool", `{"subscribe_broadcast": {"channel": "c", "subscribe_to_self": "yes"}}`, "subscribe_broadcast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Decode([]byte(tt.frame))
			assert.Nil(t, cmd)

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "error %v is not a DecodeError", err)
			assert.Equal(t, tt.command, decodeErr.Command)
		})
	}
}

func TestEncodeCommand_DecodesBack(t *testing.T) {
	cmds := []router.Command{
		router.SetString{Key: "k", Value: "v", Expiration: seconds(3)},
		router.GetString{Key: "k"},
		router.SetJSON{Key: "d", Value: json.RawMessage(`{"x":true}`)},
		router.GetJSON{Key: "d", Path: "x"},
		router.GetJSON{Key: "d"},
		router.DeleteKey{Key: "k"},
		router.Subscribe{Channel: "c", ReceiveOwn: true},
		router.Unsubscribe{Channel: "c"},
		router.SendBroadcast{Channel: "c", Message: "m"},
	}

	for _, cmd := range cmds {
		frame, err := EncodeCommand(cmd)
		require.NoError(t, err)

		got, err := Decode(frame)
		require.NoError(t, err, string(frame))
		assert.Equal(t, cmd, got)
	}
}

func TestEncodeCommand_UnsubscribeIsBareString(t *testing.T) {
	frame, err := EncodeCommand(router.Unsubscribe{Channel: "news"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"unsubscribe_broadcast": "news"}`, string(frame))
}

func TestEncodeResult(t *testing.T) {
	tests := []struct {
		name string
		cmd  router.Command
		res  router.Result
		want string
	}{
		{"ack", router.SetString{Key: "k"}, router.Ack{}, `{"status": "ok"}`},
		{"delivered zero", router.SendBroadcast{Channel: "c"}, router.DeliveryCount{}, `{"status": "ok", "delivered": 0}`},
		{"delivered", router.SendBroadcast{Channel: "c"}, router.DeliveryCount{Recipients: 2, Dropped: 1}, `{"status": "ok", "delivered": 2}`},
		{"string found", router.GetString{Key: "k"}, router.Found{Value: store.StringValue("value")}, `{"get_string": "value"}`},
		{"string missing", router.GetString{Key: "k"}, router.NotFound{}, `{"get_string": null}`},
		{"json found", router.GetJSON{Key: "k"}, router.Found{Value: store.JSONValue(json.RawMessage(`{"a": 1}`))}, `{"get_json": {"a": 1}}`},
		{"json missing", router.GetJSON{Key: "k"}, router.NotFound{}, `{"get_json": null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeResult(tt.cmd, tt.res)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestEncodeResult_ReadForWriteCommand(t *testing.T) {
	_, err := EncodeResult(router.SetString{Key: "k"}, router.NotFound{})
	assert.Error(t, err)
}

func TestEncodeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorBody
	}{
		{
			name: "decode",
			err:  &DecodeError{Command: "get_string", Reason: "missing field key"},
			want: ErrorBody{Kind: KindDecode, Reason: "missing field key", Operation: "get_string"},
		},
		{
			name: "unknown",
			err:  &router.UnknownCommandError{Name: "x"},
			want: ErrorBody{Kind: KindUnknownCommand, Reason: "unknown command", Operation: "x"},
		},
		{
			name: "invalid",
			err:  &router.InvalidArgumentError{Command: "set_string", Field: "expiration", Reason: "must not be negative"},
			want: ErrorBody{Kind: KindInvalidArgument, Reason: "must not be negative", Field: "expiration", Operation: "set_string"},
		},
		{
			name: "internal",
			err:  pubsub.ErrSessionClosed,
			want: ErrorBody{Kind: KindInternal, Reason: "pubsub: session closed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeError(tt.err)
			require.NoError(t, err)

			var env Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			assert.Equal(t, StatusError, env.Status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.want, *env.Error)
		})
	}
}

func TestEncodeBroadcast(t *testing.T) {
	frame, err := EncodeBroadcast(pubsub.Message{ClientID: "a", Channel: "c", Message: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"broadcast_message": {"client_id": "a", "channel": "c", "message": "hi"}}`, string(frame))
}

func TestEncodeClientID(t *testing.T) {
	frame, err := EncodeClientID("abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"client_id": "abc"}`, string(frame))
}

func TestEnvelope_NullRead(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"get_string": null}`), &env))
	assert.True(t, IsNull(env.GetString))
	assert.Nil(t, env.GetJSON)
}
