package pubsub

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultShardCount is the number of channel shards used when none is given.
const DefaultShardCount = 32

// Delivery summarizes one broadcast.
type Delivery struct {
	// Recipients is the number of sessions the message was queued for.
	Recipients int

	// Dropped is the number of targeted sessions whose outbox was full.
	Dropped int
}

// Registry maps channel names to their subscribed sessions.
//
// Channels are spread over shards by xxhash of the name; each shard has its
// own [sync.RWMutex], so work on one channel never blocks another shard.
// Subscribe and Unsubscribe hold the shard's write lock, Broadcast its read
// lock, which makes every broadcast see a consistent subscriber set.
//
// Lock order is session, then channel shard. The attached-session set is
// never held together with a shard lock.
type Registry struct {
	shards []*channelShard
	global string

	mu       sync.RWMutex
	sessions map[string]*Session
}

type channelShard struct {
	mu       sync.RWMutex
	channels map[string]map[*Session]SubscriptionOptions
}

// RegistryOption configures a [Registry].
type RegistryOption func(*Registry)

// WithGlobalChannel names a channel whose broadcasts reach every attached
// session, subscribed or not. An empty name disables the behavior.
func WithGlobalChannel(name string) RegistryOption {
	return func(r *Registry) {
		r.global = name
	}
}

// NewRegistry creates a Registry with shardCount channel shards. A count
// below 1 uses [DefaultShardCount].
func NewRegistry(shardCount int, opts ...RegistryOption) *Registry {
	if shardCount < 1 {
		shardCount = DefaultShardCount
	}
	r := &Registry{
		shards:   make([]*channelShard, shardCount),
		sessions: make(map[string]*Session),
	}
	for i := range r.shards {
		r.shards[i] = &channelShard{channels: make(map[string]map[*Session]SubscriptionOptions)}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) shardFor(channel string) *channelShard {
	return r.shards[xxhash.Sum64String(channel)%uint64(len(r.shards))]
}

// GlobalChannel returns the configured global channel name, or "" if none.
func (r *Registry) GlobalChannel() string {
	return r.global
}

// Attach registers a live session so it can be reached through the global
// channel. Client ids are unique among attached sessions.
func (r *Registry) Attach(s *Session) error {
	if s.Closed() {
		return ErrSessionClosed
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.id]; exists {
		return ErrSessionExists
	}
	r.sessions[s.id] = s
	return nil
}

// Subscribe adds s to channel and channel to s.
//
// Subscribing again is a no-op apart from replacing the options.
func (r *Registry) Subscribe(s *Session, channel string, opts SubscriptionOptions) error {
	if channel == "" {
		return ErrEmptyChannel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	sh := r.shardFor(channel)
	sh.mu.Lock()
	subs, ok := sh.channels[channel]
	if !ok {
		subs = make(map[*Session]SubscriptionOptions)
		sh.channels[channel] = subs
	}
	subs[s] = opts
	sh.mu.Unlock()

	s.channels[channel] = opts
	return nil
}

// Unsubscribe removes the relation between s and channel. Unsubscribing from
// a channel the session is not in is a no-op. Empty channels are reclaimed.
func (r *Registry) Unsubscribe(s *Session, channel string) error {
	if channel == "" {
		return ErrEmptyChannel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if _, ok := s.channels[channel]; !ok {
		return nil
	}

	r.removeMember(s, channel)
	delete(s.channels, channel)
	return nil
}

// removeMember drops s from channel's subscriber set. Callers hold s.mu.
func (r *Registry) removeMember(s *Session, channel string) {
	sh := r.shardFor(channel)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	subs, ok := sh.channels[channel]
	if !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(sh.channels, channel)
	}
}

// Broadcast queues a message from sender on every current subscriber of
// channel.
//
// The subscriber set is read under the channel's lock, so sessions that
// subscribe or unsubscribe concurrently are either wholly in or wholly out
// of this delivery. The sender is skipped unless it subscribed with
// [SubscriptionOptions.ReceiveOwn]. On the global channel every attached
// session receives the message, the sender included.
//
// sender may be nil for messages that do not originate from a client.
// Broadcasting to a channel nobody is subscribed to delivers nothing and is
// not an error.
func (r *Registry) Broadcast(sender *Session, channel, text string) Delivery {
	msg := Message{Channel: channel, Message: text}
	if sender != nil {
		msg.ClientID = sender.id
	}

	if r.global != "" && channel == r.global {
		return r.broadcastGlobal(msg)
	}

	var d Delivery
	sh := r.shardFor(channel)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	for s, opts := range sh.channels[channel] {
		if s == sender && !opts.ReceiveOwn {
			continue
		}
		d.tally(s.deliver(msg))
	}
	return d
}

func (r *Registry) broadcastGlobal(msg Message) Delivery {
	var d Delivery

	r.mu.RLock()
	attached := make(map[*Session]struct{}, len(r.sessions))
	for _, s := range r.sessions {
		attached[s] = struct{}{}
		d.tally(s.deliver(msg))
	}
	r.mu.RUnlock()

	// explicit subscribers that never attached still hear the global channel
	sh := r.shardFor(msg.Channel)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	for s := range sh.channels[msg.Channel] {
		if _, ok := attached[s]; ok {
			continue
		}
		d.tally(s.deliver(msg))
	}
	return d
}

func (d *Delivery) tally(o outcome) {
	switch o {
	case queued:
		d.Recipients++
	case full:
		d.Dropped++
	}
}

// DropSession removes s from every channel it is subscribed to and from the
// attached sessions, then closes it. Later subscribes on s fail with
// [ErrSessionClosed]. Calling DropSession more than once is harmless.
func (r *Registry) DropSession(s *Session) {
	s.mu.Lock()
	for channel := range s.channels {
		r.removeMember(s, channel)
	}
	s.channels = make(map[string]SubscriptionOptions)
	s.close()
	s.mu.Unlock()

	r.mu.Lock()
	if attached, ok := r.sessions[s.id]; ok && attached == s {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()
}

// Subscribers returns the client ids subscribed to channel, sorted.
func (r *Registry) Subscribers(channel string) []string {
	sh := r.shardFor(channel)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	subs := sh.channels[channel]
	out := make([]string, 0, len(subs))
	for s := range subs {
		out = append(out, s.id)
	}
	sort.Strings(out)
	return out
}

// ChannelCount returns the number of channels with at least one subscriber.
func (r *Registry) ChannelCount() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.channels)
		sh.mu.RUnlock()
	}
	return n
}

// SessionCount returns the number of attached sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
