package domain

import "errors"

var (
	ErrMissingFields      = errors.New("missing fields")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrDuplicateAccount   = errors.New("username or email already in use")
	ErrTokenMissing       = errors.New("token missing")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrAccountNotFound    = errors.New("account not found")
	ErrNotConfirmed       = errors.New("account not confirmed")
	ErrAlreadyConfirmed   = errors.New("account already confirmed")
	ErrInvalidCredential  = errors.New("invalid password")
	ErrStorageUnavailable = errors.New("account storage unavailable")
)
