package auth

import (
	"context"
	"time"
)

// UserStore is the external user store. Implementations return ErrNotFound for missing
// records, ErrConflict for uniqueness violations, and anything else when unreachable.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, filter ListFilter) ([]User, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*User, error)
	UpdateRole(ctx context.Context, id string, role Role) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	Ping(ctx context.Context) error
}

// RevocationList is the best-effort token blacklist used by the service.
// Revoke never fails the caller; IsRevoked reports false when the list is unreachable.
type RevocationList interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration)
	IsRevoked(ctx context.Context, jti string) bool
}
