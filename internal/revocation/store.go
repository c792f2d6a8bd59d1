// Package revocation holds revoked token ids until their natural expiry.
package revocation

import (
	"context"
	"time"
)

// Store persists revoked jtis with a time to live.
type Store interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error
}

const keyPrefix = "blacklist:"

func key(jti string) string { return keyPrefix + jti }
