package mail

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/weewoocad/accounts/internal/core/ports"
)

// LogNotifier writes verification messages to the log instead of sending
// them. Used in development when no SMTP server is configured.
type LogNotifier struct {
	composer *Composer
	log      zerolog.Logger
}

func NewLogNotifier(composer *Composer, log zerolog.Logger) *LogNotifier {
	return &LogNotifier{composer: composer, log: log}
}

func (n *LogNotifier) SendVerification(_ context.Context, msg ports.VerificationMessage) error {
	m, err := n.composer.Compose(msg)
	if err != nil {
		return err
	}
	n.log.Info().
		Str("to", m.To).
		Str("subject", m.Subject).
		Str("confirm_url", m.ConfirmURL).
		Msg("mail (dev): " + m.Body)
	return nil
}
