// Package sweeper proactively removes expired entries from the value store.
//
// Reads already treat expired entries as absent and remove them lazily; the
// [Sweeper] reclaims the memory of keys that are never read again. It ticks
// at a fixed interval and sweeps every store shard through a small worker
// pool, emitting one [Result] per shard.
package sweeper
