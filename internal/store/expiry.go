package store

import "time"

// Expired reports whether an entry expiring at expiresAt is absent at now.
//
// A zero expiresAt never expires. The boundary counts as expired: an entry
// whose expiration equals now is already gone.
func Expired(expiresAt, now time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return !now.Before(expiresAt)
}

// ExpiresAt returns the absolute expiration for a ttl measured from now.
func ExpiresAt(now time.Time, ttl time.Duration) time.Time {
	return now.Add(ttl)
}
