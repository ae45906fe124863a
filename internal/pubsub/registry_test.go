package pubsub

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

func drain(s *Session) []Message {
	var out []Message
	for {
		select {
		case m := <-s.Outbox():
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestRegistry_SubscribeIsBidirectional(t *testing.T) {
	r := NewRegistry(4)
	a := NewSession("a", 8)

	if err := r.Subscribe(a, "news", SubscriptionOptions{}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if !a.Subscribed("news") {
		t.Error("session does not list news")
	}
	if got := r.Subscribers("news"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Subscribers(news) = %v, want [a]", got)
	}
}

func TestRegistry_SubscribeTwiceIsIdempotent(t *testing.T) {
	r := NewRegistry(4)
	a := NewSession("a", 8)
	b := NewSession("b", 8)

	_ = r.Subscribe(a, "news", SubscriptionOptions{})
	_ = r.Subscribe(a, "news", SubscriptionOptions{})
	_ = r.Subscribe(b, "news", SubscriptionOptions{})

	if got := r.Subscribers("news"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Subscribers(news) = %v, want [a b]", got)
	}
	if d := r.Broadcast(b, "news", "hi"); d.Recipients != 1 {
		t.Errorf("Broadcast() recipients = %d, want 1", d.Recipients)
	}
	if msgs := drain(a); len(msgs) != 1 {
		t.Errorf("a received %d messages, want 1", len(msgs))
	}
}

func TestRegistry_SubscribeEmptyChannel(t *testing.T) {
	r := NewRegistry(4)
	a := NewSession("a", 8)

	if err := r.Subscribe(a, "", SubscriptionOptions{}); !errors.Is(err, ErrEmptyChannel) {
		t.Errorf("Subscribe(\"\") error = %v, want ErrEmptyChannel", err)
	}
	if err := r.Unsubscribe(a, ""); !errors.Is(err, ErrEmptyChannel) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrEmptyChannel", err)
	}
}

func TestRegistry_UnsubscribeReclaimsChannel(t *testing.T) {
	r := NewRegistry(4)
	a := NewSession("a", 8)

	_ = r.Subscribe(a, "news", SubscriptionOptions{})
	if r.ChannelCount() != 1 {
		t.Fatalf("ChannelCount() = %d, want 1", r.ChannelCount())
	}

	if err := r.Unsubscribe(a, "news"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if a.Subscribed("news") {
		t.Error("session still lists news")
	}
	if r.ChannelCount() != 0 {
		t.Errorf("ChannelCount() = %d, want 0", r.ChannelCount())
	}

	// not subscribed: no-op
	if err := r.Unsubscribe(a, "news"); err != nil {
		t.Errorf("second Unsubscribe() error = %v", err)
	}
}

func TestRegistry_BroadcastSkipsSender(t *testing.T) {
	r := NewRegistry(4)
	a := NewSession("a", 8)
	b := NewSession("b", 8)

	_ = r.Subscribe(a, "room", SubscriptionOptions{})
	_ = r.Subscribe(b, "room", SubscriptionOptions{})

	d := r.Broadcast(a, "room", "hello")
	if d.Recipients != 1 || d.Dropped != 0 {
		t.Errorf("Broadcast() = %+v, want 1 recipient", d)
	}

	if msgs := drain(a); len(msgs) != 0 {
		t.Errorf("sender received %v, want nothing", msgs)
	}
	want := []Message{{ClientID: "a", Channel: "room", Message: "hello"}}
	if got := drain(b); !reflect.DeepEqual(got, want) {
		t.Errorf("b received %v, want %v", got, want)
	}
}

func TestRegistry_BroadcastReceiveOwn(t *testing.T) {
	r := NewRegistry(4)
	a := NewSession("a", 8)

	_ = r.Subscribe(a, "echo", SubscriptionOptions{ReceiveOwn: true})

	if d := r.Broadcast(a, "echo", "ping"); d.Recipients != 1 {
		t.Errorf("Broadcast() recipients = %d, want 1", d.Recipients)
	}
	if msgs := drain(a); len(msgs) != 1 || msgs[0].Message != "ping" {
		t.Errorf("a received %v, want its own ping", msgs)
	}
}

func TestRegistry_BroadcastNoSubscribers(t *testing.T) {
	r := NewRegistry(4)

	if d := r.Broadcast(nil, "empty", "x"); d != (Delivery{}) {
		t.Errorf("Broadcast() = %+v, want zero delivery", d)
	}
	if r.ChannelCount() != 0 {
		t.Errorf("ChannelCount() = %d, want 0", r.ChannelCount())
	}
}

func TestRegistry_BroadcastFullOutboxDrops(t *testing.T) {
	r := NewRegistry(4)
	slow := NewSession("slow", 1)
	fast := NewSession("fast", 8)

	_ = r.Subscribe(slow, "room", SubscriptionOptions{})
	_ = r.Subscribe(fast, "room", SubscriptionOptions{})

	r.Broadcast(nil, "room", "1")
	d := r.Broadcast(nil, "room", "2")

	if d.Recipients != 1 || d.Dropped != 1 {
		t.Errorf("Broadcast() = %+v, want 1 recipient and 1 dropped", d)
	}
	if slow.Dropped() != 1 {
		t.Errorf("slow.Dropped() = %d, want 1", slow.Dropped())
	}
	if got := drain(fast); len(got) != 2 {
		t.Errorf("fast received %d messages, want 2", len(got))
	}
}

func TestRegistry_GlobalChannelReachesAttached(t *testing.T) {
	r := NewRegistry(4, WithGlobalChannel("global"))
	a := NewSession("a", 8)
	b := NewSession("b", 8)
	loose := NewSession("loose", 8)

	if err := r.Attach(a); err != nil {
		t.Fatalf("Attach(a) error = %v", err)
	}
	if err := r.Attach(b); err != nil {
		t.Fatalf("Attach(b) error = %v", err)
	}
	_ = r.Subscribe(loose, "global", SubscriptionOptions{})
	_ = r.Subscribe(a, "global", SubscriptionOptions{})

	d := r.Broadcast(a, "global", "all")
	if d.Recipients != 3 {
		t.Errorf("Broadcast() recipients = %d, want 3", d.Recipients)
	}
	for _, s := range []*Session{a, b, loose} {
		if msgs := drain(s); len(msgs) != 1 {
			t.Errorf("%s received %d messages, want 1", s.ID(), len(msgs))
		}
	}
}

func TestRegistry_GlobalChannelDisabled(t *testing.T) {
	r := NewRegistry(4)
	a := NewSession("a", 8)
	_ = r.Attach(a)

	if d := r.Broadcast(nil, "global", "x"); d.Recipients != 0 {
		t.Errorf("Broadcast() recipients = %d, want 0", d.Recipients)
	}
	if r.GlobalChannel() != "" {
		t.Errorf("GlobalChannel() = %q, want empty", r.GlobalChannel())
	}
}

func TestRegistry_AttachDuplicate(t *testing.T) {
	r := NewRegistry(4)

	if err := r.Attach(NewSession("a", 1)); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if err := r.Attach(NewSession("a", 1)); !errors.Is(err, ErrSessionExists) {
		t.Errorf("Attach() duplicate error = %v, want ErrSessionExists", err)
	}
	if r.SessionCount() != 1 {
		t.Errorf("SessionCount() = %d, want 1", r.SessionCount())
	}
}

func TestRegistry_DropSession(t *testing.T) {
	r := NewRegistry(4, WithGlobalChannel("global"))
	a := NewSession("a", 8)
	b := NewSession("b", 8)

	_ = r.Attach(a)
	_ = r.Attach(b)
	for _, ch := range []string{"x", "y", "z"} {
		_ = r.Subscribe(a, ch, SubscriptionOptions{})
	}
	_ = r.Subscribe(b, "x", SubscriptionOptions{})

	r.DropSession(a)
	r.DropSession(a)

	if !a.Closed() {
		t.Error("Closed() = false after DropSession")
	}
	if got := a.Channels(); len(got) != 0 {
		t.Errorf("Channels() = %v, want empty", got)
	}
	if got := r.Subscribers("x"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Subscribers(x) = %v, want [b]", got)
	}
	if r.ChannelCount() != 1 {
		t.Errorf("ChannelCount() = %d, want 1", r.ChannelCount())
	}
	if r.SessionCount() != 1 {
		t.Errorf("SessionCount() = %d, want 1", r.SessionCount())
	}

	if err := r.Subscribe(a, "x", SubscriptionOptions{}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Subscribe() after drop error = %v, want ErrSessionClosed", err)
	}
	if err := r.Attach(a); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Attach() after drop error = %v, want ErrSessionClosed", err)
	}
	if d := r.Broadcast(nil, "global", "bye"); d.Recipients != 1 {
		t.Errorf("global Broadcast() recipients = %d, want 1", d.Recipients)
	}
}

func TestRegistry_DropSessionKeepsReplacement(t *testing.T) {
	r := NewRegistry(4)
	old := NewSession("a", 1)
	_ = r.Attach(old)

	r.DropSession(old)
	replacement := NewSession("a", 1)
	if err := r.Attach(replacement); err != nil {
		t.Fatalf("Attach(replacement) error = %v", err)
	}

	r.DropSession(old)
	if r.SessionCount() != 1 {
		t.Errorf("SessionCount() = %d, want 1", r.SessionCount())
	}
}

func TestRegistry_ConcurrentSubscribeAndBroadcast(t *testing.T) {
	r := NewRegistry(8)
	sender := NewSession("sender", 1)

	const n = 50
	sessions := make([]*Session, n)
	for i := range sessions {
		sessions[i] = NewSession(fmt.Sprintf("s-%d", i), 10000)
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Subscribe(s, "busy", SubscriptionOptions{})
				_ = r.Unsubscribe(s, "busy")
			}
			_ = r.Subscribe(s, "busy", SubscriptionOptions{})
		}(s)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			r.Broadcast(sender, "busy", "tick")
		}
	}()

	wg.Wait()

	if got := len(r.Subscribers("busy")); got != n {
		t.Errorf("Subscribers(busy) = %d, want %d", got, n)
	}
	d := r.Broadcast(sender, "busy", "final")
	if d.Recipients != n {
		t.Errorf("Broadcast() recipients = %d, want %d", d.Recipients, n)
	}
}

func TestRegistry_ConcurrentDropAndSubscribe(t *testing.T) {
	r := NewRegistry(8)

	for i := 0; i < 50; i++ {
		s := NewSession(fmt.Sprintf("s-%d", i), 1)
		_ = r.Attach(s)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = r.Subscribe(s, fmt.Sprintf("ch-%d", j), SubscriptionOptions{})
			}
		}()
		go func() {
			defer wg.Done()
			time.Sleep(time.Microsecond)
			r.DropSession(s)
		}()
		wg.Wait()

		// no subscription may outlive the drop
		for j := 0; j < 20; j++ {
			for _, id := range r.Subscribers(fmt.Sprintf("ch-%d", j)) {
				if id == s.ID() {
					t.Fatalf("dropped session %s still in ch-%d", id, j)
				}
			}
		}
	}

	if r.ChannelCount() != 0 {
		t.Errorf("ChannelCount() = %d, want 0", r.ChannelCount())
	}
}

func TestRegistry_ConcurrentGlobalBroadcastAndChurn(t *testing.T) {
	r := NewRegistry(4, WithGlobalChannel("global"))
	stop := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.Broadcast(nil, "global", "tick")
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s := NewSession(fmt.Sprintf("s-%d", i), 1)
			_ = r.Attach(s)
			_ = r.Subscribe(s, "global", SubscriptionOptions{})
			r.DropSession(s)
		}
	}()

	done := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(stop)
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("global broadcast and session churn did not finish")
	}

	if r.SessionCount() != 0 || r.ChannelCount() != 0 {
		t.Errorf("SessionCount() = %d, ChannelCount() = %d, want 0 and 0", r.SessionCount(), r.ChannelCount())
	}
}

func TestRegistry_GlobalChannelCountsAttachedSubscriberOnce(t *testing.T) {
	r := NewRegistry(4, WithGlobalChannel("global"))
	a := NewSession("a", 8)
	_ = r.Attach(a)
	_ = r.Subscribe(a, "global", SubscriptionOptions{})

	if d := r.Broadcast(nil, "global", "once"); d.Recipients != 1 {
		t.Errorf("Broadcast() recipients = %d, want 1", d.Recipients)
	}
	if msgs := drain(a); len(msgs) != 1 {
		t.Errorf("a received %d messages, want 1", len(msgs))
	}
}
