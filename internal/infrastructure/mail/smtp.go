package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/weewoocad/accounts/internal/core/ports"
)

const defaultSMTPTimeout = 15 * time.Second

// SMTPConfig holds mail server settings. From defaults to Username.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPNotifier delivers verification messages through an SMTP server using
// opportunistic STARTTLS.
type SMTPNotifier struct {
	cfg      SMTPConfig
	composer *Composer
}

func NewSMTPNotifier(cfg SMTPConfig, composer *Composer) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, errors.New("smtp sender address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	return &SMTPNotifier{cfg: cfg, composer: composer}, nil
}

func (n *SMTPNotifier) SendVerification(ctx context.Context, msg ports.VerificationMessage) error {
	m, err := n.composer.Compose(msg)
	if err != nil {
		return err
	}

	out := gomail.NewMsg()
	if err := out.From(n.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := out.To(m.To); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	out.Subject(m.Subject)
	out.SetBodyString(gomail.TypeTextPlain, m.Body)

	client, err := gomail.NewClient(n.cfg.Host, n.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) clientOptions() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(n.cfg.Port),
		gomail.WithTimeout(n.cfg.Timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if n.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(n.cfg.Username),
			gomail.WithPassword(n.cfg.Password),
		)
	}
	return opts
}
