package rest

import (
	"time"

	"github.com/goliatone/go-clinic-auth"
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

// WithLoggerProvider sets the logger provider used to derive a named logger.
func WithLoggerProvider(provider auth.LoggerProvider) Option {
	return func(p *Provider) {
		if provider != nil {
			p.loggerProvider = provider
		}
	}
}

// WithClock overrides the time source used for session expiry.
func WithClock(clock func() time.Time) Option {
	return func(p *Provider) {
		if clock != nil {
			p.now = clock
		}
	}
}
