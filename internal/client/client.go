// Package client is a WebSocket client for the Aether command protocol.
//
// It is used by the aether CLI's client command and by tests. A [Client]
// owns one connection: [Dial] retries the handshake with exponential
// backoff and consumes the client id greeting, [Client.Send] writes one
// command frame, and [Client.Next] reads the next frame of any kind.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gorilla/websocket"

	"github.com/jpalmerr/aether/internal/codec"
	"github.com/jpalmerr/aether/internal/router"
)

const (
	defaultAttempts     = 5
	defaultDelay        = 200 * time.Millisecond
	defaultMaxDelay     = 5 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// ErrConflict is returned by Dial when the requested client id is already
// connected. It is not retried.
var ErrConflict = errors.New("client: client id already connected")

// Options configures [Dial]. The zero value is usable.
type Options struct {
	// ClientID requests a specific client id. Empty lets the server pick.
	ClientID string

	// Attempts is the number of handshake attempts. Zero means 5.
	Attempts uint

	// Delay is the initial backoff between attempts. Zero means 200ms.
	Delay time.Duration

	// MaxDelay caps the backoff. Zero means 5s.
	MaxDelay time.Duration

	// WriteTimeout bounds every frame write. Zero means 5s.
	WriteTimeout time.Duration

	// Header is sent with the handshake request.
	Header http.Header

	// OnRetry is called after each failed attempt with its zero-based
	// number and error. May be nil.
	OnRetry func(attempt uint, err error)
}

// Client is one open command connection.
//
// Send may be called concurrently with Next. Concurrent Sends are
// serialized; Next must only be called from one goroutine at a time.
type Client struct {
	ws           *websocket.Conn
	id           string
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to the /ws endpoint at rawURL and reads the greeting.
//
// A refused handshake, a dropped connection or a server error status is
// retried with exponential backoff until the attempts run out or ctx ends.
func Dial(ctx context.Context, rawURL string, opts Options) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("client: invalid url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}
	if opts.ClientID != "" {
		q := u.Query()
		q.Set("client_id", opts.ClientID)
		u.RawQuery = q.Encode()
	}

	if opts.Attempts == 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = defaultDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	var ws *websocket.Conn
	err = retry.Do(
		func() error {
			conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), opts.Header)
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			if err != nil {
				if resp != nil && resp.StatusCode == http.StatusConflict {
					return retry.Unrecoverable(ErrConflict)
				}
				if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return retry.Unrecoverable(fmt.Errorf("client: handshake refused: %s", resp.Status))
				}
				return err
			}
			ws = conn
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(opts.Attempts),
		retry.Delay(opts.Delay),
		retry.MaxDelay(opts.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if opts.OnRetry != nil {
				opts.OnRetry(n, err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", u.Redacted(), err)
	}

	c := &Client{ws: ws, writeTimeout: opts.WriteTimeout}

	greeting, err := c.Next(ctx)
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("client: read greeting: %w", err)
	}
	if greeting.ClientID == "" {
		_ = ws.Close()
		return nil, errors.New("client: first frame carried no client id")
	}
	c.id = greeting.ClientID
	return c, nil
}

// ID returns the client id the server assigned.
func (c *Client) ID() string {
	return c.id
}

// Send encodes cmd and writes it as one frame.
func (c *Client) Send(cmd router.Command) error {
	frame, err := codec.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	return c.SendRaw(frame)
}

// SendRaw writes frame as-is.
func (c *Client) SendRaw(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// NextRaw reads the next frame. A cancelled ctx or an expired deadline
// leaves the connection unusable.
func (c *Client) NextRaw(ctx context.Context) ([]byte, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			// only ctx sets read deadlines, so ctx is done or about to be
			<-ctx.Done()
			return nil, ctx.Err()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return data, nil
}

// Next reads the next frame and decodes it.
func (c *Client) Next(ctx context.Context) (codec.Envelope, error) {
	var env codec.Envelope
	data, err := c.NextRaw(ctx)
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("client: malformed frame: %w", err)
	}
	return env, nil
}

// Close sends a close frame and closes the connection. It is safe to call
// more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
