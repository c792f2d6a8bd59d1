package revocation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"corpsite.org/internal/auth"
)

// Reporter receives revocation outcomes; obs.Collectors implements it.
type Reporter interface {
	Revocation(ok bool)
}

// Outcome is the result of a revocation write. Callers may ignore it.
type Outcome struct {
	Err error
}

func (o Outcome) OK() bool { return o.Err == nil }

// Guard adapts a Store to auth.RevocationList: writes are best effort and
// reads fail open when the store cannot be reached.
type Guard struct {
	store    Store
	log      *zap.Logger
	reporter Reporter
}

var _ auth.RevocationList = (*Guard)(nil)

func NewGuard(store Store, log *zap.Logger, reporter Reporter) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{store: store, log: log, reporter: reporter}
}

// Store returns the wrapped store for readiness checks.
func (g *Guard) Store() Store { return g.store }

// Record revokes jti for ttl and reports what happened.
func (g *Guard) Record(ctx context.Context, jti string, ttl time.Duration) Outcome {
	if jti == "" || ttl <= 0 {
		return Outcome{}
	}
	err := g.store.Revoke(ctx, jti, ttl)
	if g.reporter != nil {
		g.reporter.Revocation(err == nil)
	}
	if err != nil {
		g.log.Warn("token revocation dropped",
			zap.String("jti", jti),
			zap.Duration("ttl", ttl),
			zap.Error(err),
		)
	}
	return Outcome{Err: err}
}

func (g *Guard) Revoke(ctx context.Context, jti string, ttl time.Duration) {
	_ = g.Record(ctx, jti, ttl)
}

func (g *Guard) IsRevoked(ctx context.Context, jti string) bool {
	revoked, err := g.store.IsRevoked(ctx, jti)
	if err != nil {
		g.log.Warn("revocation check failed, allowing token", zap.String("jti", jti), zap.Error(err))
		return false
	}
	return revoked
}
