package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/weewoocad/accounts/internal/api/metrics"
	"github.com/weewoocad/accounts/internal/core/domain"
	"github.com/weewoocad/accounts/internal/core/ports"
)

const defaultNotifyTimeout = 30 * time.Second

// Options tunes AccountService behaviour.
type Options struct {
	// AutoConfirm creates accounts directly as confirmed and skips the
	// verification message. Development deployments only.
	AutoConfirm bool
	// NotifyTimeout bounds a single background SendVerification call.
	NotifyTimeout time.Duration
	// Now overrides the clock used for token expiry checks.
	Now func() time.Time
}

// AccountService orchestrates registration, email confirmation and login.
//
// Every read-modify-write of the account snapshot runs under mu's write lock,
// from Load through Save. Login takes the read lock for its Load only.
type AccountService struct {
	store    ports.AccountStore
	creds    ports.CredentialService
	tokens   ports.TokenService
	notifier ports.Notifier
	opts     Options
	log      zerolog.Logger

	mu      sync.RWMutex
	pending sync.WaitGroup
}

// NewAccountService wires the lifecycle manager. notifier may be nil, in which
// case verification messages are logged as undeliverable.
func NewAccountService(
	store ports.AccountStore,
	creds ports.CredentialService,
	tokens ports.TokenService,
	notifier ports.Notifier,
	opts Options,
	log zerolog.Logger,
) *AccountService {
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AccountService{
		store:    store,
		creds:    creds,
		tokens:   tokens,
		notifier: notifier,
		opts:     opts,
		log:      log,
	}
}

// Register creates a new account. Username and email are stored trimmed; the
// password is hashed exactly as given.
func (s *AccountService) Register(ctx context.Context, in ports.RegisterInput) (res ports.RegisterResult, err error) {
	defer func() { metrics.RegistrationsTotal.WithLabelValues(reason(err)).Inc() }()

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" || email == "" || strings.TrimSpace(in.Password) == "" {
		return ports.RegisterResult{}, domain.ErrMissingFields
	}
	if !domain.ValidEmail(email) {
		return ports.RegisterResult{}, domain.ErrInvalidEmail
	}

	hash, err := s.creds.Hash(in.Password)
	if err != nil {
		return ports.RegisterResult{}, fmt.Errorf("register: %w", err)
	}

	account := domain.Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.opts.Now().UTC(),
	}
	if s.opts.AutoConfirm {
		account.Confirmed = true
	} else {
		token, expiresAt, err := s.tokens.Generate()
		if err != nil {
			return ports.RegisterResult{}, fmt.Errorf("register: %w", err)
		}
		account.IssueToken(token, expiresAt)
	}

	if err := s.mutate(ctx, func(accounts *domain.Snapshot) error {
		return accounts.InsertIfUnique(account)
	}); err != nil {
		return ports.RegisterResult{}, fmt.Errorf("register: %w", err)
	}

	s.log.Info().
		Str("account_id", account.ID).
		Str("username", account.Username).
		Str("state", string(account.State())).
		Msg("account registered")

	if !account.Confirmed {
		s.notify(ports.VerificationMessage{
			Email:    account.Email,
			Username: account.Username,
			Token:    account.VerificationToken,
		})
	}

	return ports.RegisterResult{Created: true, Confirmed: account.Confirmed}, nil
}

// Confirm consumes a verification token. An expired token is rejected and
// left on the account.
func (s *AccountService) Confirm(ctx context.Context, token string) (err error) {
	defer func() { metrics.ConfirmationsTotal.WithLabelValues(reason(err)).Inc() }()

	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrTokenMissing
	}

	var confirmed domain.Account
	if err := s.mutate(ctx, func(accounts *domain.Snapshot) error {
		idx, err := s.tokens.Validate(*accounts, token, s.opts.Now())
		if err != nil {
			return err
		}
		(*accounts)[idx].Confirm()
		confirmed = (*accounts)[idx]
		return nil
	}); err != nil {
		return fmt.Errorf("confirm: %w", err)
	}

	s.log.Info().
		Str("account_id", confirmed.ID).
		Str("username", confirmed.Username).
		Str("state", string(confirmed.State())).
		Msg("account confirmed")
	return nil
}

// Login checks a single credential. An identifier containing '@' is matched
// against emails, anything else against usernames; both exact and
// case-sensitive. No session is created.
func (s *AccountService) Login(ctx context.Context, identifier, password string) (err error) {
	defer func() { metrics.LoginsTotal.WithLabelValues(reason(err)).Inc() }()

	if strings.TrimSpace(identifier) == "" || password == "" {
		return domain.ErrMissingFields
	}

	s.mu.RLock()
	accounts, err := s.store.Load(ctx)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("login: load accounts: %w", err)
	}

	idx, ok := accounts.FindByIdentifier(identifier)
	if !ok {
		return domain.ErrAccountNotFound
	}
	account := accounts[idx]
	if !account.Confirmed {
		return domain.ErrNotConfirmed
	}
	if !s.creds.Verify(password, account.PasswordHash) {
		s.log.Debug().Str("account_id", account.ID).Msg("login rejected: password mismatch")
		return domain.ErrInvalidCredential
	}

	s.log.Info().Str("account_id", account.ID).Msg("login succeeded")
	return nil
}

// ResendVerification replaces the outstanding token of a pending account with
// a fresh one and sends a new verification message.
func (s *AccountService) ResendVerification(ctx context.Context, identifier string) (err error) {
	defer func() { metrics.ResendsTotal.WithLabelValues(reason(err)).Inc() }()

	if strings.TrimSpace(identifier) == "" {
		return domain.ErrMissingFields
	}

	var msg ports.VerificationMessage
	if err := s.mutate(ctx, func(accounts *domain.Snapshot) error {
		idx, ok := accounts.FindByIdentifier(identifier)
		if !ok {
			return domain.ErrAccountNotFound
		}
		account := &(*accounts)[idx]
		if account.Confirmed {
			return domain.ErrAlreadyConfirmed
		}
		token, expiresAt, err := s.tokens.Generate()
		if err != nil {
			return err
		}
		account.IssueToken(token, expiresAt)
		msg = ports.VerificationMessage{Email: account.Email, Username: account.Username, Token: token}
		return nil
	}); err != nil {
		return fmt.Errorf("resend verification: %w", err)
	}

	s.log.Info().
		Str("username", msg.Username).
		Str("state", string(domain.StatePending)).
		Msg("verification token reissued")
	s.notify(msg)
	return nil
}

// Wait blocks until all in-flight verification messages have been handed to
// the notifier.
func (s *AccountService) Wait() {
	s.pending.Wait()
}

// mutate runs fn against a freshly loaded snapshot and persists the result,
// all under the write lock. Nothing is saved when Load or fn fail.
func (s *AccountService) mutate(ctx context.Context, fn func(*domain.Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	if err := fn(&accounts); err != nil {
		return err
	}
	if err := s.store.Save(ctx, accounts); err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}
	return nil
}

// notify hands msg to the notifier on a separate goroutine so the caller's
// result never waits on delivery. Failures are logged only.
func (s *AccountService) notify(msg ports.VerificationMessage) {
	if s.notifier == nil {
		s.log.Warn().Str("username", msg.Username).Msg("no notifier configured, verification message not sent")
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.NotifyTimeout)
		defer cancel()

		if err := s.notifier.SendVerification(ctx, msg); err != nil {
			s.log.Error().Err(err).Str("username", msg.Username).Msg("verification notification failed")
		}
	}()
}
