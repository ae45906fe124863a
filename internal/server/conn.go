package server

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/aether/internal/codec"
	"github.com/jpalmerr/aether/internal/pubsub"
	"github.com/jpalmerr/aether/internal/router"
)

const (
	// pongWait is how long a connection may stay silent before it is dropped.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = 30 * time.Second

	// replyQueueSize bounds replies waiting for the writer. A full queue
	// stalls the reader of the same connection, never anyone else.
	replyQueueSize = 64
)

// conn runs one WebSocket connection: a read loop that decodes and executes
// commands in arrival order, and a write pump that serializes replies and
// broadcast deliveries onto the socket.
type conn struct {
	srv     *Server
	ws      *websocket.Conn
	session *pubsub.Session
	replies chan []byte
}

func newConn(srv *Server, ws *websocket.Conn, session *pubsub.Session) *conn {
	return &conn{
		srv:     srv,
		ws:      ws,
		session: session,
		replies: make(chan []byte, replyQueueSize),
	}
}

// run blocks until the client disconnects or ctx is cancelled, then removes
// the session from every channel.
func (c *conn) run(ctx context.Context) {
	logger := c.srv.logger.With("client_id", c.session.ID())
	logger.Info("client connected")
	c.srv.cfg.Metrics.SessionOpened()

	ctx, cancel := context.WithCancel(ctx)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		// a failed writer must also stop a reader blocked on c.replies
		defer cancel()
		c.writePump(ctx)
	}()

	c.readLoop(ctx)
	cancel()
	<-writeDone

	c.srv.cfg.Registry.DropSession(c.session)
	_ = c.ws.Close()

	c.srv.cfg.Metrics.SessionClosed()
	logger.Info("client disconnected",
		"delivered", c.session.Delivered(),
		"dropped", c.session.Dropped(),
	)
}

// readLoop reads frames until the socket fails or ctx is cancelled. Each
// frame is executed to completion before the next is read.
func (c *conn) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(c.srv.cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.srv.logger.Debug("websocket read failed", "client_id", c.session.ID(), "error", err)
			}
			return
		}
		// any frame proves the peer is alive
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		reply := c.handle(data)
		if reply == nil {
			continue
		}
		select {
		case c.replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

// handle decodes and executes one frame and returns the encoded reply.
func (c *conn) handle(data []byte) []byte {
	cmd, err := codec.Decode(data)
	if err != nil {
		c.srv.cfg.Metrics.DecodeError()
		c.srv.logger.Debug("decode error", "client_id", c.session.ID(), "error", err)
		return c.encodeError(err)
	}

	start := time.Now()
	res, err := c.srv.cfg.Router.Execute(c.session, cmd)
	elapsed := time.Since(start)

	c.srv.cfg.Metrics.ObserveCommand(cmd.Name(), err, elapsed)
	if dc, ok := res.(router.DeliveryCount); ok {
		c.srv.cfg.Metrics.ObserveBroadcast(dc.Recipients, dc.Dropped)
	}
	if c.srv.cfg.OnCommand != nil {
		c.srv.cfg.OnCommand(CommandEvent{
			ClientID: c.session.ID(),
			Command:  cmd.Name(),
			Duration: elapsed,
			Err:      err,
		})
	}

	if err != nil {
		c.logCommandError(cmd, err)
		return c.encodeError(err)
	}

	c.srv.logger.Debug("command executed",
		"client_id", c.session.ID(),
		"command", cmd.Name(),
		"duration_us", elapsed.Microseconds(),
	)

	frame, err := codec.EncodeResult(cmd, res)
	if err != nil {
		c.srv.logger.Error("failed to encode result", "command", cmd.Name(), "error", err)
		return c.encodeError(err)
	}
	return frame
}

func (c *conn) logCommandError(cmd router.Command, err error) {
	var (
		invalidErr *router.InvalidArgumentError
		unknownErr *router.UnknownCommandError
	)
	attrs := []any{"client_id", c.session.ID(), "command", cmd.Name(), "error", err}

	switch {
	case errors.As(err, &invalidErr), errors.As(err, &unknownErr):
		c.srv.logger.Debug("command rejected", attrs...)
	case errors.Is(err, pubsub.ErrSessionClosed):
		// the connection is already being torn down
		c.srv.logger.Debug("command on closed session", attrs...)
	default:
		c.srv.logger.Error("command failed", attrs...)
	}
}

func (c *conn) encodeError(err error) []byte {
	frame, encErr := codec.EncodeError(err)
	if encErr != nil {
		c.srv.logger.Error("failed to encode error", "error", encErr)
		return nil
	}
	return frame
}

// writePump is the only goroutine that writes to the socket. It sends the
// client id greeting first, then replies and broadcast deliveries as they
// arrive, and pings on a timer.
func (c *conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// unblocks the read loop when the writer gives up first
		_ = c.ws.Close()
	}()

	greeting, err := codec.EncodeClientID(c.session.ID())
	if err != nil || c.write(websocket.TextMessage, greeting) != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(c.srv.cfg.WriteTimeout))
			return

		case reply := <-c.replies:
			if err := c.write(websocket.TextMessage, reply); err != nil {
				return
			}

		case msg := <-c.session.Outbox():
			frame, err := codec.EncodeBroadcast(msg)
			if err != nil {
				c.srv.logger.Error("failed to encode broadcast", "channel", msg.Channel, "error", err)
				continue
			}
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// write sends one frame under the write deadline.
func (c *conn) write(messageType int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout)); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		c.srv.logger.Debug("websocket write failed", "client_id", c.session.ID(), "error", err)
		return err
	}
	return nil
}
