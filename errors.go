package auth

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-errors"
)

// ErrorKind classifies provider failures into user facing categories.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindAlreadyRegistered  ErrorKind = "already_registered"
	KindWeakPassword       ErrorKind = "weak_password"
	KindUnverifiedEmail    ErrorKind = "unverified_email"
	KindInvalidEmailFormat ErrorKind = "invalid_email_format"
	KindRateLimited        ErrorKind = "rate_limited"
	KindSignupDisabled     ErrorKind = "signup_disabled"
	KindExpiredSession     ErrorKind = "expired_session"
	KindValidation         ErrorKind = "validation"
	KindUnknown            ErrorKind = "unknown"
)

const (
	TextCodeGateClosed       = "SESSION_GATE_CLOSED"
	TextCodeNotAuthenticated = "SESSION_NOT_AUTHENTICATED"
	TextCodeValidation       = "CREDENTIALS_INVALID"
	TextCodeProviderFailure  = "PROVIDER_FAILURE"
)

// ErrGateClosed is returned by operations issued after Close.
var ErrGateClosed = errors.New("session gate is closed", errors.CategoryOperation).
	WithTextCode(TextCodeGateClosed).
	WithCode(errors.CodeConflict)

// ErrNotAuthenticated is returned when gated content is requested without a session.
var ErrNotAuthenticated = errors.New("not authenticated", errors.CategoryAuth).
	WithTextCode(TextCodeNotAuthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrValidation wraps local credential validation failures.
var ErrValidation = errors.New("invalid credentials payload", errors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(errors.CodeBadRequest)

// Provider messages as reported by the hosted backend. Local implementations
// reuse them so the mapping table applies to every provider.
const (
	MsgInvalidCredentials = "Invalid login credentials"
	MsgAlreadyRegistered  = "User already registered"
	MsgWeakPassword       = "Password should be at least 6 characters"
	MsgEmailNotConfirmed  = "Email not confirmed"
	MsgInvalidEmail       = "Invalid email"
	MsgRateLimited        = "Email rate limit exceeded"
	MsgSignupDisabled     = "Signup disabled"
	MsgSignupsNotAllowed  = "Signups not allowed for this instance"
	MsgInvalidRefresh     = "Invalid refresh token"
)

// Provider error codes as reported by the hosted backend.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeUserAlreadyExists  = "user_already_exists"
	CodeWeakPassword       = "weak_password"
	CodeEmailNotConfirmed  = "email_not_confirmed"
	CodeEmailInvalid       = "email_address_invalid"
	CodeEmailRateLimit     = "over_email_send_rate_limit"
	CodeSignupDisabled     = "signup_disabled"
	CodeRefreshNotFound    = "refresh_token_not_found"
	CodeSessionExpired     = "session_expired"
	CodeSessionNotFound    = "session_not_found"
)

var codeKinds = map[string]ErrorKind{
	CodeInvalidCredentials: KindInvalidCredentials,
	CodeUserAlreadyExists:  KindAlreadyRegistered,
	CodeWeakPassword:       KindWeakPassword,
	CodeEmailNotConfirmed:  KindUnverifiedEmail,
	CodeEmailInvalid:       KindInvalidEmailFormat,
	CodeEmailRateLimit:     KindRateLimited,
	CodeSignupDisabled:     KindSignupDisabled,
	CodeRefreshNotFound:    KindExpiredSession,
	CodeSessionExpired:     KindExpiredSession,
	CodeSessionNotFound:    KindExpiredSession,
}

var messageKinds = map[string]ErrorKind{
	MsgInvalidCredentials: KindInvalidCredentials,
	MsgAlreadyRegistered:  KindAlreadyRegistered,
	MsgWeakPassword:       KindWeakPassword,
	MsgEmailNotConfirmed:  KindUnverifiedEmail,
	MsgInvalidEmail:       KindInvalidEmailFormat,
	MsgRateLimited:        KindRateLimited,
	MsgSignupDisabled:     KindSignupDisabled,
	MsgSignupsNotAllowed:  KindSignupDisabled,
	MsgInvalidRefresh:     KindExpiredSession,
}

// ProviderError captures a normalized provider failure.
type ProviderError struct {
	Provider  string
	Operation string
	Status    int
	Code      string
	Message   string
	Err       error
}

// NewProviderError builds a ProviderError carrying the provider message.
func NewProviderError(provider, operation, code, message string) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Operation: operation,
		Code:      code,
		Message:   message,
	}
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "provider error"
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Metadata returns the non empty fields for structured logging.
func (e *ProviderError) Metadata() map[string]any {
	if e == nil {
		return nil
	}

	meta := map[string]any{}
	if e.Provider != "" {
		meta["provider"] = e.Provider
	}
	if e.Operation != "" {
		meta["operation"] = e.Operation
	}
	if e.Status != 0 {
		meta["status"] = e.Status
	}
	if e.Code != "" {
		meta["code"] = e.Code
	}
	if e.Message != "" {
		meta["message"] = e.Message
	}
	return meta
}

// ClassifyError maps an error onto the ErrorKind taxonomy. Provider codes are
// consulted first, then the exact provider message.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var verr *ValidationError
	if stderrors.As(err, &verr) {
		return KindValidation
	}

	var perr *ProviderError
	if stderrors.As(err, &perr) && perr != nil {
		if kind, ok := codeKinds[strings.ToLower(strings.TrimSpace(perr.Code))]; ok {
			return kind
		}
		if kind, ok := messageKinds[strings.TrimSpace(perr.Message)]; ok {
			return kind
		}
		return KindUnknown
	}

	if kind, ok := messageKinds[strings.TrimSpace(err.Error())]; ok {
		return kind
	}

	return KindUnknown
}

// RawMessage returns the provider supplied text for an error.
func RawMessage(err error) string {
	if err == nil {
		return ""
	}

	var perr *ProviderError
	if stderrors.As(err, &perr) && perr != nil && perr.Message != "" {
		return perr.Message
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}

	return err.Error()
}

// WrapProviderError turns a provider failure into a rich error that keeps the
// ProviderError reachable through errors.As.
func WrapProviderError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return err
	}

	meta := map[string]any{"operation": operation}
	var perr *ProviderError
	if stderrors.As(err, &perr) && perr != nil {
		for k, v := range perr.Metadata() {
			meta[k] = v
		}
	}

	return errors.Wrap(err, errors.CategoryOperation, fmt.Sprintf("provider %s failed", operation)).
		WithTextCode(TextCodeProviderFailure).
		WithMetadata(meta)
}

// IsExpiredSessionError reports whether err means the session can no longer be used.
func IsExpiredSessionError(err error) bool {
	return ClassifyError(err) == KindExpiredSession
}
