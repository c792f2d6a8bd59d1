package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"corpsite.org/internal/auth"
	"corpsite.org/internal/store/memory"
)

type fakeRevocations struct {
	mu   sync.Mutex
	ttls map[string]time.Duration
}

func newFakeRevocations() *fakeRevocations {
	return &fakeRevocations{ttls: map[string]time.Duration{}}
}

func (f *fakeRevocations) Revoke(_ context.Context, jti string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	f.mu.Lock()
	f.ttls[jti] = ttl
	f.mu.Unlock()
}

func (f *fakeRevocations) IsRevoked(_ context.Context, jti string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ttls[jti]
	return ok
}

type fixture struct {
	svc     *auth.Service
	users   *memory.Store
	revoked *fakeRevocations
	tokens  *auth.TokenService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret", auth.WithAccessTTL(time.Hour))
	require.NoError(t, err)
	users := memory.New()
	revoked := newFakeRevocations()
	svc, err := auth.NewService(users, tokens, revoked)
	require.NoError(t, err)
	return &fixture{svc: svc, users: users, revoked: revoked, tokens: tokens}
}

func (f *fixture) seed(t *testing.T, username string, role auth.Role, status auth.Status) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword("passw0rd")
	require.NoError(t, err)
	u := &auth.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		Status:       status,
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func requireCode(t *testing.T, err error, code auth.Code) {
	t.Helper()
	require.Error(t, err)
	var ae *auth.Error
	require.True(t, errors.As(err, &ae), "expected *auth.Error, got %T", err)
	require.Equal(t, code, ae.Code)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "alice", auth.RoleUser, auth.StatusActive)
	f.seed(t, "sam", auth.RoleUser, auth.StatusSuspended)
	f.seed(t, "pat", auth.RoleUser, auth.StatusPending)
	f.seed(t, "ian", auth.RoleUser, auth.StatusInactive)

	user, pair, err := f.svc.Login(ctx, "alice@example.com", "passw0rd")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.NotNil(t, user.LastLoginAt)
	require.NotEmpty(t, pair.AccessToken)

	_, _, err = f.svc.Login(ctx, "alice", "passw0rd")
	require.NoError(t, err)

	_, _, err = f.svc.Login(ctx, "alice", "wrong-pass1")
	requireCode(t, err, auth.CodeInvalidCredentials)
	_, _, err = f.svc.Login(ctx, "nobody", "passw0rd")
	requireCode(t, err, auth.CodeInvalidCredentials)
	_, _, err = f.svc.Login(ctx, "sam", "passw0rd")
	requireCode(t, err, auth.CodeAccountSuspended)
	_, _, err = f.svc.Login(ctx, "pat", "passw0rd")
	requireCode(t, err, auth.CodeAccountPending)
	_, _, err = f.svc.Login(ctx, "ian", "passw0rd")
	requireCode(t, err, auth.CodeUserDisabled)
	_, _, err = f.svc.Login(ctx, "", "")
	requireCode(t, err, auth.CodeValidation)

	f.users.SetAvailable(false)
	_, _, err = f.svc.Login(ctx, "alice", "passw0rd")
	requireCode(t, err, auth.CodeServiceUnavailable)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seed(t, "alice", auth.RoleManager, auth.StatusActive)
	pair, err := f.tokens.Issue(auth.NewFullPrincipal(*u))
	require.NoError(t, err)

	p, claims, err := f.svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, auth.SourceStore, p.Source())
	require.Equal(t, u.ID, claims.Subject)

	_, _, err = f.svc.Authenticate(ctx, pair.RefreshToken)
	requireCode(t, err, auth.CodeInvalidTokenType)
	_, _, err = f.svc.Authenticate(ctx, "garbage")
	requireCode(t, err, auth.CodeInvalidToken)

	t.Run("store outage falls back to claims", func(t *testing.T) {
		f.users.SetAvailable(false)
		defer f.users.SetAvailable(true)
		p, _, err := f.svc.Authenticate(ctx, pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, auth.SourceClaims, p.Source())
		require.Equal(t, auth.RoleManager, p.Role())
		require.True(t, auth.View(p).Degraded)
	})

	t.Run("status comes from the store when reachable", func(t *testing.T) {
		_, err := f.users.UpdateStatus(ctx, u.ID, auth.StatusSuspended)
		require.NoError(t, err)
		_, _, err = f.svc.Authenticate(ctx, pair.AccessToken)
		requireCode(t, err, auth.CodeUserDisabled)
		_, err = f.users.UpdateStatus(ctx, u.ID, auth.StatusActive)
		require.NoError(t, err)
	})

	t.Run("revoked", func(t *testing.T) {
		f.svc.Logout(ctx, claims, "")
		_, _, err := f.svc.Authenticate(ctx, pair.AccessToken)
		requireCode(t, err, auth.CodeTokenRevoked)
	})
}

func TestAuthenticateUnknownUser(t *testing.T) {
	f := newFixture(t)
	ghost := auth.NewFullPrincipal(auth.User{ID: "ghost", Role: auth.RoleUser, Status: auth.StatusActive})
	pair, err := f.tokens.Issue(ghost)
	require.NoError(t, err)
	_, _, err = f.svc.Authenticate(context.Background(), pair.AccessToken)
	requireCode(t, err, auth.CodeUserNotFound)
}

func TestRefreshRotates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seed(t, "alice", auth.RoleUser, auth.StatusActive)
	pair, err := f.tokens.Issue(auth.NewFullPrincipal(*u))
	require.NoError(t, err)

	_, err = f.users.UpdateRole(ctx, u.ID, auth.RoleAdmin)
	require.NoError(t, err)

	next, p, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, auth.RoleAdmin, p.Role())
	claims, err := f.tokens.Verify(next.AccessToken)
	require.NoError(t, err)
	require.Equal(t, auth.RoleAdmin, claims.Role)

	_, _, err = f.svc.Refresh(ctx, pair.RefreshToken)
	requireCode(t, err, auth.CodeTokenRevoked)

	_, _, err = f.svc.Refresh(ctx, next.AccessToken)
	requireCode(t, err, auth.CodeInvalidTokenType)

	f.users.SetAvailable(false)
	_, _, err = f.svc.Refresh(ctx, next.RefreshToken)
	requireCode(t, err, auth.CodeServiceUnavailable)
}

func TestRefreshRejectsDisabledUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seed(t, "alice", auth.RoleUser, auth.StatusActive)
	pair, err := f.tokens.Issue(auth.NewFullPrincipal(*u))
	require.NoError(t, err)
	_, err = f.users.UpdateStatus(ctx, u.ID, auth.StatusInactive)
	require.NoError(t, err)
	_, _, err = f.svc.Refresh(ctx, pair.RefreshToken)
	requireCode(t, err, auth.CodeUserDisabled)
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seed(t, "alice", auth.RoleUser, auth.StatusActive)
	pair, err := f.tokens.Issue(auth.NewFullPrincipal(*u))
	require.NoError(t, err)
	access, err := f.tokens.Verify(pair.AccessToken)
	require.NoError(t, err)
	refresh, err := f.tokens.Verify(pair.RefreshToken)
	require.NoError(t, err)

	f.svc.Logout(ctx, access, pair.RefreshToken)
	require.True(t, f.revoked.IsRevoked(ctx, access.ID))
	require.True(t, f.revoked.IsRevoked(ctx, refresh.ID))
	require.LessOrEqual(t, f.revoked.ttls[access.ID], time.Hour)

	// A refresh token of another subject is left alone.
	other := f.seed(t, "bob", auth.RoleUser, auth.StatusActive)
	otherPair, err := f.tokens.Issue(auth.NewFullPrincipal(*other))
	require.NoError(t, err)
	otherRefresh, err := f.tokens.Verify(otherPair.RefreshToken)
	require.NoError(t, err)
	f.svc.Logout(ctx, access, otherPair.RefreshToken)
	require.False(t, f.revoked.IsRevoked(ctx, otherRefresh.ID))
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, pair, err := f.svc.Register(ctx, auth.RegisterInput{Username: "new_user", Email: "New@Example.com", Password: "passw0rd"})
	require.NoError(t, err)
	require.Equal(t, auth.RoleUser, user.Role)
	require.Equal(t, auth.StatusActive, user.Status)
	require.Equal(t, "new@example.com", user.Email)
	require.NotEmpty(t, pair.RefreshToken)

	_, _, err = f.svc.Register(ctx, auth.RegisterInput{Username: "new_user", Email: "x@example.com", Password: "passw0rd"})
	requireCode(t, err, auth.CodeUserExists)
	_, _, err = f.svc.Register(ctx, auth.RegisterInput{Username: "another", Email: "new@example.com", Password: "passw0rd"})
	requireCode(t, err, auth.CodeUserExists)

	for _, in := range []auth.RegisterInput{
		{Username: "ab", Email: "a@example.com", Password: "passw0rd"},
		{Username: "bad-name", Email: "a@example.com", Password: "passw0rd"},
		{Username: "valid", Email: "not-an-email", Password: "passw0rd"},
		{Username: "valid", Email: "a@example.com", Password: "password"},
		{Username: "valid", Email: "a@example.com", Password: strings.Repeat("passw0rd", 10)},
	} {
		_, _, err := f.svc.Register(ctx, in)
		requireCode(t, err, auth.CodeValidation)
	}

	f.users.SetAvailable(false)
	_, _, err = f.svc.Register(ctx, auth.RegisterInput{Username: "later", Email: "later@example.com", Password: "passw0rd"})
	requireCode(t, err, auth.CodeServiceUnavailable)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seed(t, "alice", auth.RoleUser, auth.StatusActive)

	err := f.svc.ChangePassword(ctx, u.ID, "wrong", "n3wpassword")
	requireCode(t, err, auth.CodeInvalidCredentials)
	err = f.svc.ChangePassword(ctx, u.ID, "passw0rd", "weak")
	requireCode(t, err, auth.CodeValidation)
	err = f.svc.ChangePassword(ctx, u.ID, "passw0rd", strings.Repeat("n3wpassword", 7))
	requireCode(t, err, auth.CodeValidation)

	require.NoError(t, f.svc.ChangePassword(ctx, u.ID, "passw0rd", "n3wpassword"))
	_, _, err = f.svc.Login(ctx, "alice", "n3wpassword")
	require.NoError(t, err)
}

func TestAdminService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.seed(t, "root", auth.RoleAdmin, auth.StatusActive)
	target := f.seed(t, "alice", auth.RoleUser, auth.StatusActive)
	svc, err := auth.NewAdminService(f.users)
	require.NoError(t, err)
	actor := auth.NewFullPrincipal(*admin)

	users, err := svc.ListUsers(ctx, auth.ListFilter{Role: auth.RoleUser})
	require.NoError(t, err)
	require.Len(t, users, 1)

	_, err = svc.ListUsers(ctx, auth.ListFilter{Role: "root"})
	requireCode(t, err, auth.CodeValidation)

	updated, err := svc.SetStatus(ctx, actor, target.ID, "suspended")
	require.NoError(t, err)
	require.Equal(t, auth.StatusSuspended, updated.Status)

	updated, err = svc.SetRole(ctx, actor, target.ID, "Manager")
	require.NoError(t, err)
	require.Equal(t, auth.RoleManager, updated.Role)

	_, err = svc.SetRole(ctx, actor, admin.ID, "user")
	requireCode(t, err, auth.CodeValidation)
	_, err = svc.SetStatus(ctx, actor, "missing", "active")
	requireCode(t, err, auth.CodeUserNotFound)
	_, err = svc.SetStatus(ctx, actor, target.ID, "deleted")
	requireCode(t, err, auth.CodeValidation)
}
