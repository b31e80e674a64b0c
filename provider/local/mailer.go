package local

import (
	"context"
	"net/url"

	"github.com/goliatone/go-clinic-auth"
)

// Email is an outgoing account email.
type Email struct {
	To      string
	Kind    TokenKind
	Token   string
	Link    string
	Subject string
}

// Mailer delivers account emails.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, email Email) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, email Email) error {
	if f == nil {
		return nil
	}
	return f(ctx, email)
}

// LogMailer writes emails to a logger instead of sending them.
type LogMailer struct {
	Logger auth.Logger
}

// Send implements Mailer.
func (m LogMailer) Send(_ context.Context, email Email) error {
	if m.Logger == nil {
		return nil
	}
	m.Logger.Info("account email", "to", email.To, "kind", email.Kind, "subject", email.Subject, "link", email.Link)
	return nil
}

func subjectFor(kind TokenKind) string {
	switch kind {
	case TokenKindRecovery:
		return "Reset your password"
	default:
		return "Confirm your signup"
	}
}

// tokenLink appends the token and its type to base. An unparsable or empty
// base yields a relative link.
func tokenLink(base, token string, kind TokenKind) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		u = &url.URL{}
	}

	kindParam := "signup"
	if kind == TokenKindRecovery {
		kindParam = "recovery"
	}

	q := u.Query()
	q.Set("token", token)
	q.Set("type", kindParam)
	u.RawQuery = q.Encode()
	return u.String()
}
