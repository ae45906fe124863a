package pubsub

import (
	"sort"
	"sync"
	"sync/atomic"
)

// DefaultOutboxSize is the outbound queue capacity used when none is given.
const DefaultOutboxSize = 1000

// Message is one broadcast as delivered to a subscriber.
type Message struct {
	// ClientID identifies the session that sent the broadcast.
	ClientID string `json:"client_id"`

	// Channel is the channel the broadcast was sent on.
	Channel string `json:"channel"`

	// Message is the broadcast payload.
	Message string `json:"message"`
}

// SubscriptionOptions tunes how one subscription receives broadcasts.
type SubscriptionOptions struct {
	// ReceiveOwn delivers broadcasts the session itself sent on the channel.
	ReceiveOwn bool
}

// Session is the server-side state of one connected client.
//
// The subscribed-channel set is only changed by [Registry] methods, which
// hold the session's mutex for the whole bidirectional update. Broadcasts
// reach the session through its outbox, which the connection's writer drains.
type Session struct {
	id string

	mu       sync.Mutex
	channels map[string]SubscriptionOptions
	closed   bool

	outbox    chan Message
	done      chan struct{}
	closeOnce sync.Once

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewSession creates a session for clientID with an outbox of outboxSize
// messages. A size below 1 uses [DefaultOutboxSize].
func NewSession(clientID string, outboxSize int) *Session {
	if outboxSize < 1 {
		outboxSize = DefaultOutboxSize
	}
	return &Session{
		id:       clientID,
		channels: make(map[string]SubscriptionOptions),
		outbox:   make(chan Message, outboxSize),
		done:     make(chan struct{}),
	}
}

// ID returns the session's client id.
func (s *Session) ID() string {
	return s.id
}

// Channels returns the subscribed channel names in sorted order.
func (s *Session) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.channels))
	for name := range s.channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Subscribed reports whether the session is subscribed to channel.
func (s *Session) Subscribed(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[channel]
	return ok
}

// Outbox returns the queue of broadcasts waiting to be written.
//
// The channel is never closed; use [Session.Done] to detect teardown.
func (s *Session) Outbox() <-chan Message {
	return s.outbox
}

// Done is closed once the session has been dropped from the registry.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether the session has been dropped.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Delivered returns how many broadcasts were queued for this session.
func (s *Session) Delivered() uint64 {
	return s.delivered.Load()
}

// Dropped returns how many broadcasts were discarded because the outbox
// was full.
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

type outcome uint8

const (
	queued outcome = iota
	full
	gone
)

// deliver queues msg without blocking.
func (s *Session) deliver(msg Message) outcome {
	select {
	case <-s.done:
		return gone
	default:
	}

	select {
	case s.outbox <- msg:
		s.delivered.Add(1)
		return queued
	default:
		s.dropped.Add(1)
		return full
	}
}

// close marks the session done. Callers hold s.mu.
func (s *Session) close() {
	s.closed = true
	s.closeOnce.Do(func() { close(s.done) })
}
