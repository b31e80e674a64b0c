package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger used across the gate and its providers.
// Arguments after the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LoggerProvider hands out named loggers.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// LoggerProviderFunc adapts a function to the LoggerProvider interface.
type LoggerProviderFunc func(name string) Logger

// GetLogger implements LoggerProvider.
func (f LoggerProviderFunc) GetLogger(name string) Logger {
	if f == nil {
		return nil
	}
	return f(name)
}

// ProviderFromGlog exposes a glog base logger as a LoggerProvider.
func ProviderFromGlog(base *glog.BaseLogger) LoggerProvider {
	if base == nil {
		return nil
	}
	return LoggerProviderFunc(func(name string) Logger {
		return base.GetLogger(name)
	})
}

// ResolveLogger returns the logger to use for a component. An explicit logger
// wins, then a logger obtained from the provider, then the package default.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider == nil {
		provider = defaultLoggerProvider()
	}

	if logger != nil {
		return provider, logger
	}

	if l := provider.GetLogger(name); l != nil {
		return provider, l
	}

	return provider, defaultLoggerProvider().GetLogger(name)
}

var defaultBaseLogger = glog.NewLogger(
	glog.WithLoggerTypePretty(),
	glog.WithName("auth"),
	glog.WithAddSource(false),
	glog.WithRichErrorHandler(errors.ToSlogAttributes),
)

func defaultLoggerProvider() LoggerProvider {
	return ProviderFromGlog(defaultBaseLogger)
}

// AuthEvent names a session change reported by the provider.
type AuthEvent string

const (
	AuthEventInitialSession   AuthEvent = "INITIAL_SESSION"
	AuthEventSignedIn         AuthEvent = "SIGNED_IN"
	AuthEventSignedOut        AuthEvent = "SIGNED_OUT"
	AuthEventTokenRefreshed   AuthEvent = "TOKEN_REFRESHED"
	AuthEventUserUpdated      AuthEvent = "USER_UPDATED"
	AuthEventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
)

// ProviderUser is the identity record returned by the provider.
type ProviderUser struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time     `json:"last_sign_in_at,omitempty"`
	CreatedAt        *time.Time     `json:"created_at,omitempty"`
	Metadata         map[string]any `json:"user_metadata,omitempty"`
}

// ProviderSession is an authenticated provider session.
type ProviderSession struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type,omitempty"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         ProviderUser `json:"user"`
}

// Expired reports whether the session access token is past its expiry.
func (s *ProviderSession) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// SessionChangeEvent is delivered to session change handlers. A nil Session
// means there is no active session.
type SessionChangeEvent struct {
	Event   AuthEvent
	Session *ProviderSession
}

// SessionChangeHandler receives provider session notifications.
type SessionChangeHandler func(ctx context.Context, event SessionChangeEvent)

// Subscription is returned by OnSessionChange.
type Subscription interface {
	Unsubscribe()
}

// SignUpOptions are forwarded to the provider on sign up.
type SignUpOptions struct {
	EmailRedirectTo string
	Data            map[string]any
}

// ResetOptions are forwarded to the provider on password reset requests.
type ResetOptions struct {
	RedirectTo string
}

// Record is a row returned by or sent to a provider table.
type Record map[string]any

// FilterOp is a comparison operator for table filters.
type FilterOp string

const (
	OpEq  FilterOp = "eq"
	OpNeq FilterOp = "neq"
	OpGt  FilterOp = "gt"
	OpGte FilterOp = "gte"
	OpLt  FilterOp = "lt"
	OpLte FilterOp = "lte"
)

// Filter restricts the rows of a table query.
type Filter struct {
	Column string
	Op     FilterOp
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// Order sorts the rows of a table query.
type Order struct {
	Column     string
	Descending bool
}

// Query describes a table read.
type Query struct {
	Columns []string
	Filters []Filter
	Order   []Order
	Limit   int
}

// Provider is the hosted Authentication-and-Data Provider the gate delegates
// to. Implementations must be safe for concurrent use.
type Provider interface {
	CurrentSession(ctx context.Context) (*ProviderSession, error)
	OnSessionChange(handler SessionChangeHandler) Subscription
	SignUp(ctx context.Context, email, password string, opts SignUpOptions) (*ProviderUser, error)
	SignInWithPassword(ctx context.Context, email, password string) (*ProviderSession, error)
	SignOut(ctx context.Context) error
	RequestPasswordReset(ctx context.Context, email string, opts ResetOptions) error
	QueryTable(ctx context.Context, table string, query Query) ([]Record, error)
	InsertRecord(ctx context.Context, table string, record Record) (Record, error)
	UpdateRecords(ctx context.Context, table string, filters []Filter, values Record) error
}
