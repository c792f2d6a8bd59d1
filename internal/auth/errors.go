package auth

import (
	"errors"
	"net/http"
)

// Store-level sentinels. Any other store error means the store is unreachable.
var (
	ErrNotFound         = errors.New("auth: not found")
	ErrConflict         = errors.New("auth: already exists")
	ErrStoreUnavailable = errors.New("auth: user store unavailable")
)

// Code is the machine-readable error code returned to API clients.
type Code string

const (
	CodeMissingToken            Code = "MISSING_TOKEN"
	CodeInvalidToken            Code = "INVALID_TOKEN"
	CodeTokenExpired            Code = "TOKEN_EXPIRED"
	CodeInvalidTokenType        Code = "INVALID_TOKEN_TYPE"
	CodeTokenRevoked            Code = "TOKEN_REVOKED"
	CodeUserNotFound            Code = "USER_NOT_FOUND"
	CodeUserDisabled            Code = "USER_DISABLED"
	CodeAccountSuspended        Code = "ACCOUNT_SUSPENDED"
	CodeAccountPending          Code = "ACCOUNT_PENDING"
	CodeInsufficientPermissions Code = "INSUFFICIENT_PERMISSIONS"
	CodeNotAuthenticated        Code = "NOT_AUTHENTICATED"
	CodeServiceUnavailable      Code = "SERVICE_UNAVAILABLE"
	CodeInvalidCredentials      Code = "INVALID_CREDENTIALS"
	CodeUserExists              Code = "USER_EXISTS"
	CodeValidation              Code = "VALIDATION_ERROR"
	CodeRateLimited             Code = "RATE_LIMITED"
	CodeInternal                Code = "INTERNAL_ERROR"
)

// Error is a terminal auth/authz failure that maps directly onto an HTTP response.
type Error struct {
	Code    Code
	Status  int
	Message string

	// Set only for INSUFFICIENT_PERMISSIONS.
	Required []Role
	Current  Role

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on code so wrapped copies compare equal to the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithCause returns a copy of e carrying cause for logs. The cause never reaches clients.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

func newError(code Code, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

var (
	ErrMissingToken       = newError(CodeMissingToken, http.StatusUnauthorized, "access token is required")
	ErrInvalidToken       = newError(CodeInvalidToken, http.StatusUnauthorized, "invalid token")
	ErrExpiredToken       = newError(CodeTokenExpired, http.StatusUnauthorized, "token has expired")
	ErrInvalidTokenType   = newError(CodeInvalidTokenType, http.StatusUnauthorized, "invalid token type")
	ErrTokenRevoked       = newError(CodeTokenRevoked, http.StatusUnauthorized, "token has been revoked")
	ErrUserNotFound       = newError(CodeUserNotFound, http.StatusUnauthorized, "user not found")
	ErrUserDisabled       = newError(CodeUserDisabled, http.StatusUnauthorized, "user account is disabled")
	ErrAccountSuspended   = newError(CodeAccountSuspended, http.StatusForbidden, "account is suspended")
	ErrAccountPending     = newError(CodeAccountPending, http.StatusForbidden, "account is pending approval")
	ErrNotAuthenticated   = newError(CodeNotAuthenticated, http.StatusUnauthorized, "authentication required")
	ErrServiceUnavailable = newError(CodeServiceUnavailable, http.StatusServiceUnavailable, "service temporarily unavailable")
	ErrInvalidCredentials = newError(CodeInvalidCredentials, http.StatusUnauthorized, "invalid credentials")
	ErrUserExists         = newError(CodeUserExists, http.StatusConflict, "user already exists")
	ErrValidation         = newError(CodeValidation, http.StatusBadRequest, "invalid input")
	ErrRateLimited        = newError(CodeRateLimited, http.StatusTooManyRequests, "too many requests")
	ErrInternal           = newError(CodeInternal, http.StatusInternalServerError, "internal server error")

	ErrInsufficientPermissions = newError(CodeInsufficientPermissions, http.StatusForbidden, "insufficient permissions")
)

// InsufficientPermissions reports a role mismatch with both the required set and the actual role.
func InsufficientPermissions(required []Role, current Role) *Error {
	e := *ErrInsufficientPermissions
	e.Required = append([]Role(nil), required...)
	e.Current = current
	return &e
}

// AsError extracts an *Error from err, mapping unknown errors to INTERNAL_ERROR.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return ErrServiceUnavailable.WithCause(err)
	}
	return ErrInternal.WithCause(err)
}

// statusError maps a non-active account status to its taxonomy error on the login path.
func statusError(s Status) *Error {
	switch s {
	case StatusActive:
		return nil
	case StatusSuspended:
		return ErrAccountSuspended
	case StatusPending:
		return ErrAccountPending
	default:
		return ErrUserDisabled
	}
}
