// Package mail builds verification messages and delivers them over SMTP, or
// writes them to the log when no mail server is configured.
package mail

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/weewoocad/accounts/internal/core/ports"
)

// DefaultSubject is the subject line of verification messages.
const DefaultSubject = "WeewooCAD: Bitte E-Mail bestätigen"

// DefaultBodyTemplate is executed with a BodyParams value.
const DefaultBodyTemplate = `Hallo {{.Username}},

bitte bestätige deine E-Mail mit folgendem Link:
{{.ConfirmURL}}

Falls du dich nicht registriert hast, kannst du diese Nachricht ignorieren.`

// BodyParams is passed as data when executing the body template.
type BodyParams struct {
	Username   string
	Email      string
	ConfirmURL string
}

// Message is a rendered verification message.
type Message struct {
	To         string
	Subject    string
	Body       string
	ConfirmURL string
}

// Composer renders verification messages with links pointing at publicURL.
type Composer struct {
	confirmURL *url.URL
	subject    string
	body       *template.Template
}

// NewComposer parses publicURL (e.g. http://localhost:3000) and the default
// templates.
func NewComposer(publicURL string) (*Composer, error) {
	base, err := url.Parse(strings.TrimRight(publicURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse public url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("public url %q must be absolute", publicURL)
	}

	body, err := template.New("verification").Parse(DefaultBodyTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}

	return &Composer{
		confirmURL: base.JoinPath("confirm"),
		subject:    DefaultSubject,
		body:       body,
	}, nil
}

// Compose renders msg into a Message carrying the confirmation link.
func (c *Composer) Compose(msg ports.VerificationMessage) (Message, error) {
	link := *c.confirmURL
	link.RawQuery = url.Values{"token": {msg.Token}}.Encode()

	var buf bytes.Buffer
	if err := c.body.Execute(&buf, BodyParams{
		Username:   msg.Username,
		Email:      msg.Email,
		ConfirmURL: link.String(),
	}); err != nil {
		return Message{}, fmt.Errorf("render verification mail: %w", err)
	}

	return Message{
		To:         msg.Email,
		Subject:    c.subject,
		Body:       buf.String(),
		ConfirmURL: link.String(),
	}, nil
}
