// Package config loads the clinicgate application settings.
//
// Values are layered, later sources winning:
//
//	defaults -> YAML file -> command line flags -> environment
//
// An optional .env file is read into the process environment first, so it
// behaves like any other environment variable.
package config

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-clinic-auth/i18n"
)

// Provider kinds.
const (
	ProviderREST  = "rest"
	ProviderLocal = "local"
)

// Config is the full application configuration.
type Config struct {
	Locale      string `koanf:"locale" env:"CLINIC_LOCALE"`
	Origin      string `koanf:"origin" env:"CLINIC_ORIGIN"`
	PhoneRegion string `koanf:"phone_region" env:"CLINIC_PHONE_REGION"`
	Debug       bool   `koanf:"debug" env:"CLINIC_DEBUG"`

	Server   ServerConfig   `koanf:"server"`
	Provider ProviderConfig `koanf:"provider"`
	REST     RESTConfig     `koanf:"rest"`
	Local    LocalConfig    `koanf:"local"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig configures the web front end.
type ServerConfig struct {
	Addr        string `koanf:"addr" env:"CLINIC_ADDR"`
	MetricsAddr string `koanf:"metrics_addr" env:"CLINIC_METRICS_ADDR"`
	Templates   string `koanf:"templates" env:"CLINIC_TEMPLATES"`
}

// ProviderConfig selects the backend.
type ProviderConfig struct {
	Kind        string        `koanf:"kind" env:"CLINIC_PROVIDER"`
	CallTimeout time.Duration `koanf:"call_timeout" env:"CLINIC_CALL_TIMEOUT"`
}

// RESTConfig configures the hosted backend client.
type RESTConfig struct {
	URL         string        `koanf:"url" env:"CLINIC_REST_URL"`
	AnonKey     string        `koanf:"anon_key" env:"CLINIC_REST_ANON_KEY"`
	JWKSURL     string        `koanf:"jwks_url" env:"CLINIC_REST_JWKS_URL"`
	Retries     int           `koanf:"retries" env:"CLINIC_REST_RETRIES"`
	Timeout     time.Duration `koanf:"timeout" env:"CLINIC_REST_TIMEOUT"`
	SessionFile string        `koanf:"session_file" env:"CLINIC_REST_SESSION_FILE"`
}

// LocalConfig configures the self hosted provider.
type LocalConfig struct {
	DSN                 string        `koanf:"dsn" env:"CLINIC_LOCAL_DSN"`
	SigningKey          string        `koanf:"signing_key" env:"CLINIC_LOCAL_SIGNING_KEY"`
	Issuer              string        `koanf:"issuer" env:"CLINIC_LOCAL_ISSUER"`
	SessionTTL          time.Duration `koanf:"session_ttl" env:"CLINIC_LOCAL_SESSION_TTL"`
	RequireConfirmation bool          `koanf:"require_confirmation" env:"CLINIC_LOCAL_REQUIRE_CONFIRMATION"`
	AllowSignup         bool          `koanf:"allow_signup" env:"CLINIC_LOCAL_ALLOW_SIGNUP"`
	AllowPasswordReset  bool          `koanf:"allow_password_reset" env:"CLINIC_LOCAL_ALLOW_PASSWORD_RESET"`
	DeterministicIDs    bool          `koanf:"deterministic_ids" env:"CLINIC_LOCAL_DETERMINISTIC_IDS"`
}

// LogConfig configures the glog base logger. Level debug enables trace
// output, any other level keeps the logger default.
type LogConfig struct {
	Level string `koanf:"level" env:"CLINIC_LOG_LEVEL"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Locale:      i18n.BaseLocale,
		Origin:      "http://localhost:8572",
		PhoneRegion: auth.DefaultPhoneRegion,
		Server: ServerConfig{
			Addr: ":8572",
		},
		Provider: ProviderConfig{
			Kind:        ProviderLocal,
			CallTimeout: auth.DefaultCallTimeout,
		},
		REST: RESTConfig{
			Retries: 2,
			Timeout: 10 * time.Second,
		},
		Local: LocalConfig{
			DSN:                 "file:clinic.sqlite?cache=shared",
			Issuer:              "clinic-auth-local",
			SessionTTL:          time.Hour,
			RequireConfirmation: true,
			AllowSignup:         true,
			AllowPasswordReset:  true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate implements validation.Validatable. Only the section of the
// selected provider is checked.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Locale, validation.Required, validation.In(localeValues()...)),
		validation.Field(&c.Origin, validation.Required, is.URL),
		validation.Field(&c.Server),
		validation.Field(&c.Provider),
		validation.Field(&c.Log),
	)

	errs := validation.Errors{}
	if err != nil {
		var ok bool
		if errs, ok = err.(validation.Errors); !ok {
			return err
		}
	}

	switch c.Provider.Kind {
	case ProviderREST:
		errs["rest"] = c.REST.Validate()
	case ProviderLocal:
		errs["local"] = c.Local.Validate()
	}

	return errs.Filter()
}

// Validate implements validation.Validatable.
func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
	)
}

// Validate implements validation.Validatable.
func (p ProviderConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Kind, validation.Required, validation.In(ProviderREST, ProviderLocal)),
		validation.Field(&p.CallTimeout, validation.Min(time.Duration(0))),
	)
}

// Validate implements validation.Validatable.
func (r RESTConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required, is.URL),
		validation.Field(&r.AnonKey, validation.Required),
		validation.Field(&r.JWKSURL, is.URL),
		validation.Field(&r.Retries, validation.Min(0)),
	)
}

// Validate implements validation.Validatable.
func (l LocalConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.DSN, validation.Required),
		validation.Field(&l.SessionTTL, validation.Required),
	)
}

// Validate implements validation.Validatable.
func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
	)
}

func localeValues() []any {
	locales := i18n.Default().Locales()
	out := make([]any, 0, len(locales))
	for _, l := range locales {
		out = append(out, l)
	}
	return out
}
