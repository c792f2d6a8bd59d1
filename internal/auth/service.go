package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"corpsite.org/internal/ids"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

// Service implements the authentication pipeline on top of the token service,
// the user store and the revocation list.
type Service struct {
	users   UserStore
	tokens  *TokenService
	revoked RevocationList
	log     *zap.Logger
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService constructs Service. All three collaborators are required.
func NewService(users UserStore, tokens *TokenService, revoked RevocationList, opts ...ServiceOption) (*Service, error) {
	if users == nil || tokens == nil || revoked == nil {
		return nil, errors.New("auth: users, tokens and revocation list are required")
	}
	s := &Service{
		users:   users,
		tokens:  tokens,
		revoked: revoked,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) Tokens() *TokenService { return s.tokens }

// Users exposes the backing store for readiness checks.
func (s *Service) Users() UserStore { return s.users }

// unavailable reports whether err means the store could not be reached.
func unavailable(err error) bool {
	return err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrConflict)
}

func verifyError(err error) *Error {
	if errors.Is(err, ErrTokenExpired) {
		return ErrExpiredToken.WithCause(err)
	}
	return ErrInvalidToken.WithCause(err)
}

// Authenticate runs verify, type check, revocation check and principal resolution for an
// access token. When the user store is unreachable the principal falls back to the claims.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, *Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, nil, verifyError(err)
	}
	if claims.TokenType != KindAccess {
		return nil, nil, ErrInvalidTokenType
	}
	if s.revoked.IsRevoked(ctx, claims.ID) {
		return nil, nil, ErrTokenRevoked
	}

	var p Principal
	user, err := s.users.FindByID(ctx, claims.Subject)
	switch {
	case err == nil:
		p = NewFullPrincipal(*user)
	case errors.Is(err, ErrNotFound):
		return nil, nil, ErrUserNotFound
	default:
		s.log.Warn("user store unavailable, using token claims",
			zap.String("user_id", claims.Subject),
			zap.Error(err),
		)
		p = NewClaimsPrincipal(*claims)
	}
	if p.Status() != StatusActive {
		return nil, nil, ErrUserDisabled
	}
	return p, claims, nil
}

// Refresh exchanges a refresh token for a new pair. Unlike Authenticate it needs the
// user store: the new access token must carry the current role and status.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, Principal, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return TokenPair{}, nil, verifyError(err)
	}
	if claims.TokenType != KindRefresh {
		return TokenPair{}, nil, ErrInvalidTokenType
	}
	if s.revoked.IsRevoked(ctx, claims.ID) {
		return TokenPair{}, nil, ErrTokenRevoked
	}
	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrUserNotFound
		}
		return TokenPair{}, nil, ErrServiceUnavailable.WithCause(err)
	}
	if user.Status != StatusActive {
		return TokenPair{}, nil, ErrUserDisabled
	}
	p := NewFullPrincipal(*user)
	pair, err := s.tokens.Issue(p)
	if err != nil {
		return TokenPair{}, nil, ErrInternal.WithCause(err)
	}
	// Rotate: the presented refresh token is single use.
	s.revoked.Revoke(ctx, claims.ID, claims.Remaining(s.tokens.Now()))
	return pair, p, nil
}

// Logout revokes the access token described by access and, when given, a refresh token
// belonging to the same subject. It never fails.
func (s *Service) Logout(ctx context.Context, access *Claims, refreshToken string) {
	now := s.tokens.Now()
	if access != nil {
		s.revoked.Revoke(ctx, access.ID, access.Remaining(now))
	}
	if strings.TrimSpace(refreshToken) == "" {
		return
	}
	rc, err := s.tokens.Verify(refreshToken)
	if err != nil || rc.TokenType != KindRefresh {
		return
	}
	if access != nil && rc.Subject != access.Subject {
		return
	}
	s.revoked.Revoke(ctx, rc.ID, rc.Remaining(now))
}

// Login authenticates by email or username and issues a token pair.
func (s *Service) Login(ctx context.Context, identifier, password string) (*User, TokenPair, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, TokenPair{}, ErrValidation.WithMessage("username/email and password are required")
	}
	var (
		user *User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.FindByEmail(ctx, strings.ToLower(identifier))
	} else {
		user, err = s.users.FindByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, ErrServiceUnavailable.WithCause(err)
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	if e := statusError(user.Status); e != nil {
		return nil, TokenPair{}, e
	}

	now := s.tokens.Now().UTC()
	if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("record last login failed", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}

	pair, err := s.tokens.Issue(NewFullPrincipal(*user))
	if err != nil {
		return nil, TokenPair{}, ErrInternal.WithCause(err)
	}
	return user, pair, nil
}

// Register creates an active user with role "user" and issues a token pair.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, TokenPair, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if !usernamePattern.MatchString(username) {
		return nil, TokenPair{}, ErrValidation.WithMessage("username must be 3-30 letters, digits or underscores")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, TokenPair{}, ErrValidation.WithMessage("a valid email is required")
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, TokenPair{}, ErrValidation.WithMessage(err.Error())
	}

	if err := s.ensureAvailable(ctx, username, email); err != nil {
		return nil, TokenPair{}, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, TokenPair{}, ErrInternal.WithCause(err)
	}
	now := s.tokens.Now().UTC()
	user := &User{
		ID:           ids.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleUser,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, TokenPair{}, ErrUserExists
		}
		return nil, TokenPair{}, ErrServiceUnavailable.WithCause(err)
	}
	pair, err := s.tokens.Issue(NewFullPrincipal(*user))
	if err != nil {
		return nil, TokenPair{}, ErrInternal.WithCause(err)
	}
	return user, pair, nil
}

func (s *Service) ensureAvailable(ctx context.Context, username, email string) error {
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return ErrUserExists.WithMessage("email is already registered")
	} else if unavailable(err) {
		return ErrServiceUnavailable.WithCause(err)
	}
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return ErrUserExists.WithMessage("username is already taken")
	} else if unavailable(err) {
		return ErrServiceUnavailable.WithCause(err)
	}
	return nil
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if current == "" {
		return ErrValidation.WithMessage("current password is required")
	}
	if err := ValidatePassword(next); err != nil {
		return ErrValidation.WithMessage(err.Error())
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		return ErrServiceUnavailable.WithCause(err)
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials.WithMessage("current password is incorrect")
	}
	hash, err := HashPassword(next)
	if err != nil {
		return ErrInternal.WithCause(err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		return ErrServiceUnavailable.WithCause(fmt.Errorf("update password: %w", err))
	}
	return nil
}
