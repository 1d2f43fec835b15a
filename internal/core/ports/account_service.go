package ports

import "context"

// RegisterInput is the DTO passed from the transport layer to AccountService.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// RegisterResult reports the outcome of a successful registration.
type RegisterResult struct {
	Created   bool
	Confirmed bool
}

type AccountService interface {
	Register(ctx context.Context, in RegisterInput) (RegisterResult, error)
	Confirm(ctx context.Context, token string) error
	Login(ctx context.Context, identifier, password string) error
	ResendVerification(ctx context.Context, identifier string) error
}
