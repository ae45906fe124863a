package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MinInterval is the shortest interval a Sweeper will tick at.
const MinInterval = 10 * time.Millisecond

// Target is a sharded store whose shards can be swept one at a time.
type Target interface {
	// ShardCount returns the number of shards.
	ShardCount() int

	// SweepShard removes the expired entries of shard i and returns how
	// many were removed.
	SweepShard(i int) int
}

// Result holds the outcome of sweeping one shard.
type Result struct {
	// Shard is the index of the swept shard.
	Shard int

	// Removed is the number of expired entries removed.
	Removed int

	// Duration is the time the sweep held the shard.
	Duration time.Duration

	// SweptAt is when the sweep finished.
	SweptAt time.Time

	// Error is set when the sweep panicked.
	Error error
}

// Sweeper periodically removes expired entries from every shard of a
// [Target].
//
// Each tick fans the shards out to a bounded worker pool, so at most
// maxConcurrency shards are write-locked by the sweeper at any time. One
// [Result] per shard is emitted on [Sweeper.Results].
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Sweeper struct {
	target         Target
	interval       time.Duration
	maxConcurrency int
	results        chan Result
	logger         *slog.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewSweeper creates a [Sweeper] for target.
//
// interval is raised to [MinInterval] if shorter, and maxConcurrency to 1.
// The sweeper must be started with [Sweeper.Start] and stopped with
// [Sweeper.Stop]. Results must be drained from [Sweeper.Results].
func NewSweeper(target Target, interval time.Duration, maxConcurrency int, logger *slog.Logger) *Sweeper {
	if interval < MinInterval {
		interval = MinInterval
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		target:         target,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		results:        make(chan Result, target.ShardCount()),
		logger:         logger,
	}
}

// Interval returns the effective tick interval.
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Results returns a receive-only channel that emits one [Result] per swept
// shard. The channel is closed when the sweeper stops.
func (s *Sweeper) Results() <-chan Result {
	return s.results
}

// Start begins sweeping in a background goroutine: once immediately, then
// every interval until [Sweeper.Stop] is called or ctx is cancelled.
//
// If ctx is nil, context.Background() is used as the parent context.
// Start is idempotent, and a no-op after Stop.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	sweepCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		s.sweepAll(sweepCtx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				s.sweepAll(sweepCtx)
			}
		}
	}()
}

// Stop halts the sweeper and waits for in-flight sweeps to finish. The
// results channel is closed when Stop returns.
//
// Stop is idempotent. Calling Stop before Start is a safe no-op.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.results) })
}

// sweepAll sweeps every shard, respecting maxConcurrency.
func (s *Sweeper) sweepAll(ctx context.Context) {
	n := s.target.ShardCount()
	jobs := make(chan int, n)

	var wg sync.WaitGroup
	for i := 0; i < s.maxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for shard := range jobs {
				result := s.sweepShard(shard)
				select {
				case s.results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)

	wg.Wait()
}

// sweepShard sweeps one shard with panic recovery. A panic is logged with
// its stack trace under a correlation id, which the result's error carries.
func (s *Sweeper) sweepShard(shard int) (result Result) {
	start := time.Now()
	result.Shard = shard

	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			stack := debug.Stack()

			s.logger.Error("sweep panic",
				"correlation_id", correlationID,
				"shard", shard,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(stack),
			)

			result.Error = fmt.Errorf("sweep panic (correlation_id: %s)", correlationID)
		}
		result.SweptAt = time.Now()
		result.Duration = result.SweptAt.Sub(start)
	}()

	result.Removed = s.target.SweepShard(shard)
	return result
}
