package auth

import (
	"strings"
	"time"
)

// Role is the coarse-grained authorization level of a user.
type Role string

const (
	RoleUser     Role = "user"
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleManager, RoleEmployee:
		return true
	}
	return false
}

// ParseRole normalizes and validates a role name.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	return r, r.Valid()
}

// Status is the account state of a user.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusPending   Status = "pending"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusPending:
		return true
	}
	return false
}

// ParseStatus normalizes and validates a status name.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.TrimSpace(strings.ToLower(s)))
	return st, st.Valid()
}

// User is the authoritative account record owned by the user store.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Status       Status     `json:"status"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// ListFilter narrows user listings; zero values match everything.
type ListFilter struct {
	Role   Role
	Status Status
	Limit  int
	Offset int
}

// RegisterInput carries self-service registration data.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}
