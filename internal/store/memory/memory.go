// Package memory is an in-process auth.UserStore used in local mode and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"corpsite.org/internal/auth"
	"corpsite.org/internal/ids"
)

var errUnavailable = errors.New("memory store: unavailable")

type Store struct {
	mu        sync.RWMutex
	byID      map[string]auth.User
	available bool
	now       func() time.Time
}

var _ auth.UserStore = (*Store)(nil)

func New() *Store {
	return &Store{
		byID:      make(map[string]auth.User),
		available: true,
		now:       time.Now,
	}
}

// SetAvailable toggles a simulated outage. While unavailable every call fails with an
// error that is neither auth.ErrNotFound nor auth.ErrConflict.
func (s *Store) SetAvailable(ok bool) {
	s.mu.Lock()
	s.available = ok
	s.mu.Unlock()
}

func (s *Store) check() error {
	if !s.available {
		return errUnavailable
	}
	return nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check()
}

func (s *Store) Create(_ context.Context, u *auth.User) error {
	if u == nil {
		return errors.New("memory store: nil user")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	for _, existing := range s.byID {
		if strings.EqualFold(existing.Email, u.Email) || strings.EqualFold(existing.Username, u.Username) {
			return auth.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if _, ok := s.byID[u.ID]; ok {
		return auth.ErrConflict
	}
	now := s.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	s.byID[u.ID] = *u
	return nil
}

func (s *Store) FindByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	u, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	return s.find(func(u auth.User) bool { return strings.EqualFold(u.Email, email) })
}

func (s *Store) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	return s.find(func(u auth.User) bool { return strings.EqualFold(u.Username, username) })
}

func (s *Store) find(match func(auth.User) bool) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	for _, u := range s.byID {
		if match(u) {
			cp := u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

// List returns users ordered by creation time, newest first.
func (s *Store) List(_ context.Context, f auth.ListFilter) ([]auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	out := make([]auth.User, 0, len(s.byID))
	for _, u := range s.byID {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Status != "" && u.Status != f.Status {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []auth.User{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) UpdateStatus(_ context.Context, id string, status auth.Status) (*auth.User, error) {
	return s.update(id, func(u *auth.User) { u.Status = status })
}

func (s *Store) UpdateRole(_ context.Context, id string, role auth.Role) (*auth.User, error) {
	return s.update(id, func(u *auth.User) { u.Role = role })
}

func (s *Store) UpdatePassword(_ context.Context, id, hash string) error {
	_, err := s.update(id, func(u *auth.User) { u.PasswordHash = hash })
	return err
}

func (s *Store) TouchLogin(_ context.Context, id string, at time.Time) error {
	_, err := s.update(id, func(u *auth.User) {
		t := at.UTC()
		u.LastLoginAt = &t
	})
	return err
}

func (s *Store) update(id string, fn func(*auth.User)) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	u, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = s.now().UTC()
	s.byID[id] = u
	return &u, nil
}
