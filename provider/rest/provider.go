package rest

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const providerName = "rest"

const (
	opSignUp  = "signup"
	opToken   = "token"
	opRefresh = "refresh"
	opLogout  = "logout"
	opRecover = "recover"
	opUser    = "user"
	opRest    = "rest"
	opJWKS    = "jwks"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultRetries       = 2
	DefaultRetryBase     = 200 * time.Millisecond
	DefaultRefreshMargin = 10 * time.Second
)

// ErrInvalidConfig is returned by New when the project URL or key is missing.
var ErrInvalidConfig = errors.New("invalid rest provider configuration", errors.CategoryBadInput).
	WithTextCode("REST_CONFIG_INVALID").
	WithCode(errors.CodeBadRequest)

// Config holds the hosted project settings.
type Config struct {
	// URL is the project base URL, e.g. "https://abc.example.co".
	URL string

	// AnonKey is the public API key sent with every request.
	AnonKey string

	// JWKSURL enables signature checks of access tokens. Leave empty to
	// trust the tokens returned by the auth endpoints.
	JWKSURL string

	// Retries bounds how often idempotent reads are retried on network
	// failures and 5xx responses. Zero uses DefaultRetries, negative
	// disables retries.
	Retries   int
	RetryBase time.Duration

	// RefreshMargin refreshes sessions that expire within the margin.
	RefreshMargin time.Duration

	// Timeout bounds each HTTP request of the default client. Ignored
	// when HTTPClient is set.
	Timeout time.Duration

	HTTPClient *http.Client
	Store      SessionStore
}

// Validate implements validation.Validatable.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.Required, is.URL),
		validation.Field(&c.AnonKey, validation.Required),
		validation.Field(&c.JWKSURL, is.URL),
	)
}

// Provider talks to a hosted auth and data backend: the token endpoints
// under /auth/v1 and table access under /rest/v1.
type Provider struct {
	config         Config
	base           *url.URL
	httpClient     *http.Client
	store          SessionStore
	jwks           *keyfunc.JWKS
	hub            *auth.SessionHub
	logger         auth.Logger
	loggerProvider auth.LoggerProvider
	now            func() time.Time

	mu       sync.RWMutex
	session  *auth.ProviderSession
	restored bool

	refreshMu sync.Mutex
}

var _ auth.Provider = (*Provider)(nil)

// New builds a Provider. When a JWKS URL is configured the key set is
// fetched before New returns.
func New(cfg Config, opts ...Option) (*Provider, error) {
	cfg.URL = strings.TrimSuffix(strings.TrimSpace(cfg.URL), "/")
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, ErrInvalidConfig.Message).
			WithTextCode(ErrInvalidConfig.TextCode).
			WithCode(errors.CodeBadRequest)
	}

	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, ErrInvalidConfig.Message)
	}

	switch {
	case cfg.Retries == 0:
		cfg.Retries = DefaultRetries
	case cfg.Retries < 0:
		cfg.Retries = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = DefaultRefreshMargin
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	p := &Provider{
		config: cfg,
		base:   base,
		store:  cfg.Store,
		hub:    auth.NewSessionHub(),
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	p.loggerProvider, p.logger = auth.ResolveLogger("auth.provider.rest", p.loggerProvider, p.logger)

	p.httpClient = cfg.HTTPClient
	if p.httpClient == nil {
		p.httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	if p.store == nil {
		p.store = NewMemoryStore()
	}

	if cfg.JWKSURL != "" {
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			Client: p.httpClient,
			RefreshErrorHandler: func(err error) {
				p.logger.Error("jwks refresh failed", "url", cfg.JWKSURL, "error", err)
			},
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  5 * time.Minute,
			RefreshTimeout:    cfg.Timeout,
			RefreshUnknownKID: true,
		})
		if err != nil {
			return nil, &auth.ProviderError{
				Provider:  providerName,
				Operation: opJWKS,
				Message:   "failed to load signing keys",
				Err:       err,
			}
		}
		p.jwks = jwks
	}

	return p, nil
}

// Close stops the background key refresh.
func (p *Provider) Close() error {
	if p.jwks != nil {
		p.jwks.EndBackground()
	}
	return nil
}

// OnSessionChange implements auth.Provider.
func (p *Provider) OnSessionChange(handler auth.SessionChangeHandler) auth.Subscription {
	return p.hub.Subscribe(handler)
}

func (p *Provider) endpoint(path string, query url.Values) string {
	u := *p.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}
