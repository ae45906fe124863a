package store

import "time"

// Entry is the storage representation of one key.
//
// Entries are replaced wholesale; no field is ever updated in place.
type Entry struct {
	// Key is the entry's identifier.
	Key string

	// Value is the stored variant.
	Value Value

	// ExpiresAt is the absolute expiration. The zero time means the entry
	// never expires.
	ExpiresAt time.Time
}

// Store defines the operations the router performs on stored entries.
//
// Store implementations must be safe for concurrent access. A write to a key
// must be atomic with respect to reads and writes of the same key; reads of
// a key never observe a mix of two writes.
type Store interface {
	// Set inserts or replaces the entry for key with no expiration.
	Set(key string, value Value)

	// SetWithTTL inserts or replaces the entry for key, expiring ttl after
	// the call. A zero ttl produces an entry that is already expired.
	SetWithTTL(key string, value Value, ttl time.Duration)

	// Get returns the live value for key. ok is false when the key is absent
	// or its entry has expired.
	Get(key string) (value Value, ok bool)

	// Delete removes the live entry for key and reports whether one existed.
	Delete(key string) bool

	// Len returns the number of live entries.
	Len() int
}
