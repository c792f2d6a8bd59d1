package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client)
}

func TestRedisStoreExpires(t *testing.T) {
	mr, store := newRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "jti-1", time.Minute))
	require.True(t, mr.Exists("blacklist:jti-1"))
	require.Equal(t, time.Minute, mr.TTL("blacklist:jti-1"))

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)

	mr.FastForward(2 * time.Minute)
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)
	require.NoError(t, store.Ping(ctx))
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, store := newRedis(t)
	mr.Close()
	ctx := context.Background()
	require.Error(t, store.Revoke(ctx, "jti", time.Minute))
	_, err := store.IsRevoked(ctx, "jti")
	require.Error(t, err)
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "a", time.Minute))
	require.NoError(t, store.Revoke(ctx, "b", time.Hour))
	revoked, _ := store.IsRevoked(ctx, "a")
	require.True(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, _ = store.IsRevoked(ctx, "a")
	require.False(t, revoked)
	require.Equal(t, 1, store.Len())

	now = now.Add(2 * time.Hour)
	require.Equal(t, 1, store.Purge())
	require.Zero(t, store.Len())
}

type failingStore struct{ err error }

func (f failingStore) Revoke(context.Context, string, time.Duration) error { return f.err }
func (f failingStore) IsRevoked(context.Context, string) (bool, error)     { return false, f.err }
func (f failingStore) Ping(context.Context) error                          { return f.err }

type countingReporter struct{ ok, dropped int }

func (c *countingReporter) Revocation(ok bool) {
	if ok {
		c.ok++
		return
	}
	c.dropped++
}

func TestGuardFailsOpen(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rep := &countingReporter{}
	g := NewGuard(failingStore{err: errors.New("connection refused")}, zap.New(core), rep)
	ctx := context.Background()

	out := g.Record(ctx, "jti", time.Minute)
	require.False(t, out.OK())
	require.Equal(t, 1, rep.dropped)
	require.False(t, g.IsRevoked(ctx, "jti"))
	require.Equal(t, 2, logs.Len())
	require.Equal(t, "token revocation dropped", logs.All()[0].Message)
}

func TestGuardSkipsExpired(t *testing.T) {
	store := NewMemoryStore()
	rep := &countingReporter{}
	g := NewGuard(store, nil, rep)
	ctx := context.Background()

	require.True(t, g.Record(ctx, "jti", 0).OK())
	require.Zero(t, store.Len())
	require.Zero(t, rep.ok+rep.dropped)

	g.Revoke(ctx, "jti", time.Minute)
	require.True(t, g.IsRevoked(ctx, "jti"))
	require.Equal(t, 1, rep.ok)
}
