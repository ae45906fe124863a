package sweeper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/aether/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTarget counts sweeps per shard and optionally panics on one shard.
type fakeTarget struct {
	shards     int
	panicShard int
	sweeps     []atomic.Int64
	inFlight   atomic.Int64
	maxSeen    atomic.Int64
	hold       time.Duration
}

func newFakeTarget(shards int) *fakeTarget {
	return &fakeTarget{shards: shards, panicShard: -1, sweeps: make([]atomic.Int64, shards)}
}

func (f *fakeTarget) ShardCount() int { return f.shards }

func (f *fakeTarget) SweepShard(i int) int {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	f.sweeps[i].Add(1)
	if i == f.panicShard {
		panic("boom")
	}
	return i
}

func TestNewSweeper_Defaults(t *testing.T) {
	s := NewSweeper(newFakeTarget(2), time.Nanosecond, 0, nil)

	if s.Interval() != MinInterval {
		t.Errorf("Interval() = %v, want %v", s.Interval(), MinInterval)
	}
	if s.maxConcurrency != 1 {
		t.Errorf("maxConcurrency = %d, want 1", s.maxConcurrency)
	}
}

// TestSweeper_StopBeforeStart verifies that calling Stop() on a sweeper
// that was never started does not panic and closes the results channel.
func TestSweeper_StopBeforeStart(t *testing.T) {
	s := NewSweeper(newFakeTarget(2), time.Minute, 1, testLogger())

	s.Stop()

	if _, ok := <-s.Results(); ok {
		t.Error("expected results channel to be closed after Stop()")
	}
}

// TestSweeper_StopTwice verifies that Stop() is idempotent.
func TestSweeper_StopTwice(t *testing.T) {
	s := NewSweeper(newFakeTarget(2), time.Minute, 1, testLogger())
	s.Start(context.Background())

	go func() {
		for range s.Results() {
		}
	}()

	s.Stop()
	s.Stop()
}

func TestSweeper_StartAfterStopIsNoop(t *testing.T) {
	target := newFakeTarget(2)
	s := NewSweeper(target, time.Minute, 1, testLogger())

	s.Stop()
	s.Start(context.Background())

	time.Sleep(20 * time.Millisecond)
	if n := target.sweeps[0].Load(); n != 0 {
		t.Errorf("shard 0 swept %d times, want 0", n)
	}
}

func TestSweeper_SweepsEveryShardImmediately(t *testing.T) {
	target := newFakeTarget(4)
	s := NewSweeper(target, time.Hour, 2, testLogger())
	s.Start(context.Background())
	defer s.Stop()

	seen := make(map[int]Result)
	timeout := time.After(2 * time.Second)
	for len(seen) < 4 {
		select {
		case r := <-s.Results():
			seen[r.Shard] = r
		case <-timeout:
			t.Fatalf("timed out with %d of 4 shard results", len(seen))
		}
	}

	for i := 0; i < 4; i++ {
		r := seen[i]
		if r.Removed != i {
			t.Errorf("shard %d Removed = %d, want %d", i, r.Removed, i)
		}
		if r.Error != nil {
			t.Errorf("shard %d Error = %v", i, r.Error)
		}
		if r.SweptAt.IsZero() {
			t.Errorf("shard %d SweptAt is zero", i)
		}
	}
}

func TestSweeper_Ticks(t *testing.T) {
	target := newFakeTarget(1)
	s := NewSweeper(target, 10*time.Millisecond, 1, testLogger())
	s.Start(context.Background())

	count := 0
	timeout := time.After(2 * time.Second)
	for count < 3 {
		select {
		case <-s.Results():
			count++
		case <-timeout:
			t.Fatalf("got %d results, want at least 3", count)
		}
	}

	go func() {
		for range s.Results() {
		}
	}()
	s.Stop()
}

func TestSweeper_RespectsConcurrency(t *testing.T) {
	target := newFakeTarget(8)
	target.hold = 10 * time.Millisecond
	s := NewSweeper(target, time.Hour, 2, testLogger())
	s.Start(context.Background())

	for i := 0; i < 8; i++ {
		<-s.Results()
	}
	go func() {
		for range s.Results() {
		}
	}()
	s.Stop()

	if got := target.maxSeen.Load(); got > 2 {
		t.Errorf("max concurrent sweeps = %d, want <= 2", got)
	}
}

func TestSweeper_RecoversPanic(t *testing.T) {
	target := newFakeTarget(3)
	target.panicShard = 1
	s := NewSweeper(target, time.Hour, 1, testLogger())
	s.Start(context.Background())
	defer func() {
		go func() {
			for range s.Results() {
			}
		}()
		s.Stop()
	}()

	var panicked *Result
	for i := 0; i < 3; i++ {
		r := <-s.Results()
		if r.Shard == 1 {
			r := r
			panicked = &r
		}
	}

	if panicked == nil {
		t.Fatal("no result for the panicking shard")
	}
	if panicked.Error == nil || !strings.Contains(panicked.Error.Error(), "correlation_id") {
		t.Errorf("Error = %v, want a panic error with a correlation id", panicked.Error)
	}
}

func TestSweeper_ContextCancelClosesResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSweeper(newFakeTarget(1), time.Hour, 1, testLogger())
	s.Start(ctx)

	<-s.Results()
	cancel()

	select {
	case _, ok := <-s.Results():
		if ok {
			// a tick may have raced the cancel; the next read must see close
			if _, ok := <-s.Results(); ok {
				t.Error("results channel still open after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for results channel to close")
	}
	s.Stop()
}

// TestSweeper_ConcurrentStartStop verifies that calling Start() and Stop()
// concurrently does not race or panic. Run with -race.
func TestSweeper_ConcurrentStartStop(t *testing.T) {
	for i := 0; i < 100; i++ {
		s := NewSweeper(newFakeTarget(2), time.Minute, 1, testLogger())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			s.Stop()
		}()
		wg.Wait()

		for range s.Results() {
		}
	}
}

func TestSweeper_MemoryStore(t *testing.T) {
	clock := store.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	st := store.NewMemoryStore(4, clock)

	for i := 0; i < 10; i++ {
		st.SetWithTTL(fmt.Sprintf("temp-%d", i), store.StringValue("v"), time.Second)
	}
	st.Set("keep", store.StringValue("v"))
	clock.Advance(time.Minute)

	s := NewSweeper(st, time.Hour, 2, testLogger())
	s.Start(context.Background())

	removed := 0
	for i := 0; i < st.ShardCount(); i++ {
		removed += (<-s.Results()).Removed
	}
	go func() {
		for range s.Results() {
		}
	}()
	s.Stop()

	if removed != 10 {
		t.Errorf("removed = %d, want 10", removed)
	}
	if st.Len() != 1 {
		t.Errorf("Len() = %d, want 1", st.Len())
	}
}
