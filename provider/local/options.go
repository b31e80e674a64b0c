package local

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-featuregate/gate"
)

const (
	DefaultSessionTTL    = time.Hour
	DefaultConfirmTTL    = 24 * time.Hour
	DefaultRecoveryTTL   = time.Hour
	DefaultResetCooldown = 60 * time.Second
	DefaultIssuer        = "clinic-auth-local"
)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(logger auth.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLoggerProvider derives the provider logger from a named logger source.
func WithLoggerProvider(provider auth.LoggerProvider) Option {
	return func(p *Provider) {
		if provider != nil {
			p.loggerProvider = provider
		}
	}
}

// WithSigningKey sets the HS256 key used for access tokens.
func WithSigningKey(key []byte) Option {
	return func(p *Provider) {
		if len(key) > 0 {
			p.signingKey = append([]byte(nil), key...)
		}
	}
}

// WithIssuer sets the access token issuer and audience.
func WithIssuer(issuer string, audience ...string) Option {
	return func(p *Provider) {
		if issuer != "" {
			p.issuer = issuer
		}
		if len(audience) > 0 {
			p.audience = jwt.ClaimStrings(audience)
		}
	}
}

// WithSessionTTL sets the access token lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.sessionTTL = ttl
		}
	}
}

// WithTokenTTL sets how long confirmation and recovery links stay valid.
func WithTokenTTL(confirm, recovery time.Duration) Option {
	return func(p *Provider) {
		if confirm > 0 {
			p.confirmTTL = confirm
		}
		if recovery > 0 {
			p.recoveryTTL = recovery
		}
	}
}

// WithResetCooldown sets the minimum interval between reset emails to the
// same account.
func WithResetCooldown(d time.Duration) Option {
	return func(p *Provider) {
		if d >= 0 {
			p.resetCooldown = d
		}
	}
}

// WithEmailConfirmation controls whether new accounts must confirm their
// email before signing in.
func WithEmailConfirmation(required bool) Option {
	return func(p *Provider) {
		p.requireConfirmation = required
	}
}

// WithDeterministicIDs derives user ids from the email address.
func WithDeterministicIDs(enabled bool) Option {
	return func(p *Provider) {
		p.deterministicIDs = enabled
	}
}

// WithPasswordCost sets the bcrypt cost.
func WithPasswordCost(cost int) Option {
	return func(p *Provider) {
		p.passwordCost = cost
	}
}

// WithFeatureGate sets the gate consulted for sign up and password reset.
func WithFeatureGate(fg gate.FeatureGate) Option {
	return func(p *Provider) {
		if fg != nil {
			p.features = fg
		}
	}
}

// WithMailer sets the account email transport.
func WithMailer(m Mailer) Option {
	return func(p *Provider) {
		if m != nil {
			p.mailer = m
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(p *Provider) {
		if clock != nil {
			p.now = clock
		}
	}
}
