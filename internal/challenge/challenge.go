// Package challenge stores single-use login nonces keyed by username.
package challenge

import (
	"context"
	"crypto/subtle"
	"time"
)

// Store holds at most one live nonce per username.
type Store interface {
	// Put stores nonce for username, replacing any previous one, valid for ttl.
	Put(ctx context.Context, username string, nonce []byte, ttl time.Duration) error
	// ConsumeIfMatches removes the nonce for username and reports whether it existed,
	// had not expired and equals supplied. Removal happens regardless of the outcome.
	ConsumeIfMatches(ctx context.Context, username string, supplied []byte) (bool, error)
	// Forget drops any nonce for username.
	Forget(ctx context.Context, username string) error
}

func matches(stored, supplied []byte) bool {
	return len(stored) > 0 && subtle.ConstantTimeCompare(stored, supplied) == 1
}
