package auth

import (
	stderrors "errors"

	"github.com/goliatone/go-clinic-auth/i18n"
)

// Message keys for operation outcomes.
const (
	KeySignUpSuccess  = "auth.signup.success"
	KeySignInSuccess  = "auth.signin.success"
	KeySignOutSuccess = "auth.signout.success"
	KeySignOutFailure = "auth.signout.failure"
	KeyResetSent      = "auth.reset.sent"
	KeyErrorUnknown   = "auth.error.unknown"
	KeyLoginRequired  = "auth.error.not_authenticated"
)

// Messages renders localized user facing text.
type Messages struct {
	bundle *i18n.Bundle
	locale string
}

// NewMessages returns messages for locale backed by the embedded catalogs.
func NewMessages(locale string) *Messages {
	return NewMessagesFromBundle(i18n.Default(), locale)
}

// NewMessagesFromBundle returns messages for locale backed by bundle.
func NewMessagesFromBundle(bundle *i18n.Bundle, locale string) *Messages {
	if bundle == nil {
		bundle = i18n.Default()
	}
	return &Messages{
		bundle: bundle,
		locale: bundle.Match(locale),
	}
}

// Locale is the resolved catalog locale.
func (m *Messages) Locale() string {
	return m.locale
}

// Text formats the message stored under key.
func (m *Messages) Text(key string, args ...any) string {
	return m.bundle.Sprintf(m.locale, key, args...)
}

// ErrorMessage maps err to a localized message through the static kind table.
// Errors outside the table produce the generic message embedding the raw text.
func (m *Messages) ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	if stderrors.Is(err, ErrNotAuthenticated) {
		return m.Text(KeyLoginRequired)
	}

	kind := ClassifyError(err)
	switch kind {
	case KindValidation:
		var verr *ValidationError
		if stderrors.As(err, &verr) && m.bundle.Has(m.locale, verr.Key) {
			return m.Text(verr.Key)
		}
	case KindUnknown, KindNone:
	default:
		key := "auth.error." + string(kind)
		if m.bundle.Has(m.locale, key) {
			return m.Text(key)
		}
	}

	return m.Text(KeyErrorUnknown, RawMessage(err))
}

// GetErrorMessage maps err using the base locale catalog.
func GetErrorMessage(err error) string {
	return NewMessages(i18n.BaseLocale).ErrorMessage(err)
}
