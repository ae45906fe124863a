package router

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/jpalmerr/aether/internal/pubsub"
	"github.com/jpalmerr/aether/internal/store"
)

// maxExpirationSeconds is the largest expiration whose duration fits in a
// time.Duration.
const maxExpirationSeconds = math.MaxInt64 / int64(time.Second)

// Broker is the subset of [pubsub.Registry] the router drives.
type Broker interface {
	Subscribe(s *pubsub.Session, channel string, opts pubsub.SubscriptionOptions) error
	Unsubscribe(s *pubsub.Session, channel string) error
	Broadcast(sender *pubsub.Session, channel, message string) pubsub.Delivery
}

// Router dispatches commands to a [store.Store] and a [Broker].
// It is safe for concurrent use.
type Router struct {
	store  store.Store
	broker Broker
	logger *slog.Logger
}

// Option configures a [Router].
type Option func(*Router)

// WithLogger sets the logger. The default is [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Router over st and broker.
func New(st store.Store, broker Broker, opts ...Option) *Router {
	r := &Router{
		store:  st,
		broker: broker,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs cmd on behalf of session s.
func (r *Router) Execute(s *pubsub.Session, cmd Command) (Result, error) {
	switch c := cmd.(type) {
	case SetString:
		return r.setString(c)
	case GetString:
		return r.getString(c)
	case SetJSON:
		return r.setJSON(c)
	case GetJSON:
		return r.getJSON(c)
	case DeleteKey:
		return r.deleteKey(c)
	case Subscribe:
		return r.subscribe(s, c)
	case Unsubscribe:
		return r.unsubscribe(s, c)
	case SendBroadcast:
		return r.broadcast(s, c)
	case nil:
		return nil, &UnknownCommandError{}
	default:
		return nil, &UnknownCommandError{Name: cmd.Name()}
	}
}

func (r *Router) setString(c SetString) (Result, error) {
	if c.Key == "" {
		return nil, invalid(c, "key", "must not be empty")
	}
	ttl, hasTTL, err := ttlFor(c, c.Expiration)
	if err != nil {
		return nil, err
	}
	r.put(c.Key, store.StringValue(c.Value), ttl, hasTTL)
	return Ack{}, nil
}

func (r *Router) setJSON(c SetJSON) (Result, error) {
	if c.Key == "" {
		return nil, invalid(c, "key", "must not be empty")
	}
	doc := bytes.TrimSpace(c.Value)
	if len(doc) == 0 || bytes.Equal(doc, []byte("null")) {
		return nil, invalid(c, "value", "must not be null")
	}
	if !json.Valid(doc) {
		return nil, invalid(c, "value", "is not valid JSON")
	}
	ttl, hasTTL, err := ttlFor(c, c.Expiration)
	if err != nil {
		return nil, err
	}
	r.put(c.Key, store.JSONValue(doc), ttl, hasTTL)
	return Ack{}, nil
}

func (r *Router) put(key string, v store.Value, ttl time.Duration, hasTTL bool) {
	if hasTTL {
		r.store.SetWithTTL(key, v, ttl)
		return
	}
	r.store.Set(key, v)
}

// ttlFor converts an expiration in seconds into a duration.
func ttlFor(cmd Command, seconds *int64) (time.Duration, bool, error) {
	if seconds == nil {
		return 0, false, nil
	}
	switch {
	case *seconds < 0:
		return 0, false, invalid(cmd, "expiration", "must not be negative")
	case *seconds > maxExpirationSeconds:
		return 0, false, invalid(cmd, "expiration", "is too large")
	}
	return time.Duration(*seconds) * time.Second, true, nil
}

func (r *Router) getString(c GetString) (Result, error) {
	if c.Key == "" {
		return nil, invalid(c, "key", "must not be empty")
	}
	v, ok := r.store.Get(c.Key)
	if !ok {
		return NotFound{}, nil
	}
	if v.Kind() != store.KindString {
		return nil, invalid(c, "key", "holds a "+v.Kind().String()+" value")
	}
	return Found{Value: v}, nil
}

func (r *Router) getJSON(c GetJSON) (Result, error) {
	if c.Key == "" {
		return nil, invalid(c, "key", "must not be empty")
	}
	parts, err := splitPath(c.Path)
	if err != nil {
		return nil, invalid(c, "path", err.Error())
	}

	v, ok := r.store.Get(c.Key)
	if !ok {
		return NotFound{}, nil
	}
	doc, isJSON := v.JSON()
	if !isJSON {
		return nil, invalid(c, "key", "holds a "+v.Kind().String()+" value")
	}
	if len(parts) == 0 {
		return Found{Value: v}, nil
	}

	sub, ok := extractPath(doc, parts)
	if !ok {
		return NotFound{}, nil
	}
	return Found{Value: store.JSONValue(sub)}, nil
}

func (r *Router) deleteKey(c DeleteKey) (Result, error) {
	if c.Key == "" {
		return nil, invalid(c, "key", "must not be empty")
	}
	r.store.Delete(c.Key)
	return Ack{}, nil
}

func (r *Router) subscribe(s *pubsub.Session, c Subscribe) (Result, error) {
	if c.Channel == "" {
		return nil, invalid(c, "channel", "must not be empty")
	}
	if err := r.broker.Subscribe(s, c.Channel, pubsub.SubscriptionOptions{ReceiveOwn: c.ReceiveOwn}); err != nil {
		return nil, err
	}
	return Ack{}, nil
}

func (r *Router) unsubscribe(s *pubsub.Session, c Unsubscribe) (Result, error) {
	if c.Channel == "" {
		return nil, invalid(c, "channel", "must not be empty")
	}
	if err := r.broker.Unsubscribe(s, c.Channel); err != nil {
		return nil, err
	}
	return Ack{}, nil
}

func (r *Router) broadcast(s *pubsub.Session, c SendBroadcast) (Result, error) {
	if c.Channel == "" {
		return nil, invalid(c, "channel", "must not be empty")
	}
	d := r.broker.Broadcast(s, c.Channel, c.Message)
	if d.Dropped > 0 {
		r.logger.Debug("broadcast dropped for full outboxes",
			"channel", c.Channel,
			"recipients", d.Recipients,
			"dropped", d.Dropped,
		)
	}
	return DeliveryCount{Recipients: d.Recipients, Dropped: d.Dropped}, nil
}
