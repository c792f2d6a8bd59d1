package auth

import (
	"context"
	"errors"
	"strings"
)

const maxListLimit = 200

// AdminService backs the back-office user management endpoints.
type AdminService struct {
	users UserStore
}

func NewAdminService(users UserStore) (*AdminService, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	return &AdminService{users: users}, nil
}

func (s *AdminService) ListUsers(ctx context.Context, filter ListFilter) ([]User, error) {
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, ErrValidation.WithMessage("unsupported role " + string(filter.Role))
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrValidation.WithMessage("unsupported status " + string(filter.Status))
	}
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, ErrServiceUnavailable.WithCause(err)
	}
	return users, nil
}

// SetStatus changes a user's account status. Admins cannot change their own status.
func (s *AdminService) SetStatus(ctx context.Context, actor Principal, userID, status string) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrValidation.WithMessage("user id is required")
	}
	st, ok := ParseStatus(status)
	if !ok {
		return nil, ErrValidation.WithMessage("unsupported status " + status)
	}
	if actor != nil && actor.ID() == userID {
		return nil, ErrValidation.WithMessage("cannot change your own status")
	}
	u, err := s.users.UpdateStatus(ctx, userID, st)
	return u, mapStoreError(err)
}

// SetRole changes a user's role. Admins cannot demote themselves.
func (s *AdminService) SetRole(ctx context.Context, actor Principal, userID, role string) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrValidation.WithMessage("user id is required")
	}
	r, ok := ParseRole(role)
	if !ok {
		return nil, ErrValidation.WithMessage("unsupported role " + role)
	}
	if actor != nil && actor.ID() == userID {
		return nil, ErrValidation.WithMessage("cannot change your own role")
	}
	u, err := s.users.UpdateRole(ctx, userID, r)
	return u, mapStoreError(err)
}

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return ErrUserNotFound.WithMessage("user not found")
	default:
		return ErrServiceUnavailable.WithCause(err)
	}
}
