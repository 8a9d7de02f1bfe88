package store

import "errors"

var (
	ErrLeaveNotFound      = errors.New("leave request not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidState       = errors.New("invalid leave request state")
	ErrValidation         = errors.New("invalid input")
	ErrPolicyLimit        = errors.New("request limit reached")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user account is deactivated")
	ErrSessionNotFound    = errors.New("session not found")
)
