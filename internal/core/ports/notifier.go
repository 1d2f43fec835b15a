package ports

import "context"

// VerificationMessage carries what a notifier needs to build a verification
// link for a freshly registered account.
type VerificationMessage struct {
	Email    string
	Username string
	Token    string
}

// Notifier delivers verification messages. Transport, formatting and retries
// belong to the implementation.
type Notifier interface {
	SendVerification(ctx context.Context, msg VerificationMessage) error
}
