package store

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultShardCount is the number of shards used when none is configured.
const DefaultShardCount = 32

// MemoryStore is a sharded in-memory implementation of [Store].
//
// Keys are assigned to shards by xxhash. Each shard has its own
// [sync.RWMutex]: reads of a shard share the lock, writes hold it
// exclusively, and operations on different shards never block each other.
//
// Expired entries stay in memory until a read finds them or [MemoryStore.SweepShard]
// removes them; either way they are never returned.
type MemoryStore struct {
	shards []*shard
	clock  Clock
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates a MemoryStore with shardCount shards.
//
// A shardCount below 1 falls back to [DefaultShardCount]. A nil clock uses
// [SystemClock].
func NewMemoryStore(shardCount int, clock Clock) *MemoryStore {
	if shardCount < 1 {
		shardCount = DefaultShardCount
	}
	if clock == nil {
		clock = SystemClock{}
	}

	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]Entry)}
	}
	return &MemoryStore{shards: shards, clock: clock}
}

func (m *MemoryStore) shardFor(key string) *shard {
	return m.shards[xxhash.Sum64String(key)%uint64(len(m.shards))]
}

// Set stores value under key with no expiration.
func (m *MemoryStore) Set(key string, value Value) {
	m.put(Entry{Key: key, Value: value})
}

// SetWithTTL stores value under key, expiring ttl from now.
func (m *MemoryStore) SetWithTTL(key string, value Value, ttl time.Duration) {
	m.put(Entry{Key: key, Value: value, ExpiresAt: ExpiresAt(m.clock.Now(), ttl)})
}

func (m *MemoryStore) put(e Entry) {
	sh := m.shardFor(e.Key)
	sh.mu.Lock()
	sh.entries[e.Key] = e
	sh.mu.Unlock()
}

// Get returns the live value stored under key.
//
// An expired entry is reported as absent and removed as a side effect.
func (m *MemoryStore) Get(key string) (Value, bool) {
	sh := m.shardFor(key)
	now := m.clock.Now()

	sh.mu.RLock()
	e, ok := sh.entries[key]
	sh.mu.RUnlock()

	if !ok {
		return Value{}, false
	}
	if Expired(e.ExpiresAt, now) {
		sh.removeExpired(key, now)
		return Value{}, false
	}
	return e.Value, true
}

// Delete removes key and reports whether a live entry was removed.
func (m *MemoryStore) Delete(key string) bool {
	sh := m.shardFor(key)
	now := m.clock.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		return false
	}
	delete(sh.entries, key)
	return !Expired(e.ExpiresAt, now)
}

// Len returns the number of live entries across all shards.
func (m *MemoryStore) Len() int {
	now := m.clock.Now()
	n := 0
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, e := range sh.entries {
			if !Expired(e.ExpiresAt, now) {
				n++
			}
		}
		sh.mu.RUnlock()
	}
	return n
}

// ShardCount returns the number of shards.
func (m *MemoryStore) ShardCount() int {
	return len(m.shards)
}

// SweepShard removes every expired entry from shard i and returns how many
// were removed. Out-of-range shard indexes remove nothing.
func (m *MemoryStore) SweepShard(i int) int {
	if i < 0 || i >= len(m.shards) {
		return 0
	}
	sh := m.shards[i]
	now := m.clock.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	removed := 0
	for key, e := range sh.entries {
		if Expired(e.ExpiresAt, now) {
			delete(sh.entries, key)
			removed++
		}
	}
	return removed
}

// removeExpired deletes key if the entry currently stored is still expired.
// The re-check under the write lock keeps a concurrent Set from being lost.
func (sh *shard) removeExpired(key string, now time.Time) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.entries[key]; ok && Expired(e.ExpiresAt, now) {
		delete(sh.entries, key)
	}
}
