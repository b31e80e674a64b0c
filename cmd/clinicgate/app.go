package main

import (
	"context"
	"database/sql"

	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-clinic-auth/config"
	"github.com/goliatone/go-clinic-auth/provider/local"
	"github.com/goliatone/go-clinic-auth/provider/rest"
	"github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.opentelemetry.io/otel"
)

// app holds the wired backend for one command invocation.
type app struct {
	cfg     *config.Config
	logs    auth.LoggerProvider
	logger  auth.Logger
	db      *bun.DB
	local   *local.Provider
	rest    *rest.Provider
	gate    *auth.SessionGate
	closers []func() error
}

func newLoggerProvider(cfg *config.Config) auth.LoggerProvider {
	if cfg.Debug || cfg.Log.Level == "debug" {
		return auth.ProviderFromGlog(glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("clinicgate"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		))
	}
	return auth.ProviderFromGlog(glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithName("clinicgate"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	))
}

// newApp opens the configured provider. gateOpts are appended to the
// defaults derived from cfg.
func newApp(ctx context.Context, cfg *config.Config, gateOpts ...auth.Option) (*app, error) {
	a := &app{cfg: cfg, logs: newLoggerProvider(cfg)}
	a.logger = a.logs.GetLogger("cli")

	var provider auth.Provider
	switch cfg.Provider.Kind {
	case config.ProviderREST:
		p, err := a.openREST()
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		p, err := a.openLocal(ctx)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		provider = p
	}

	opts := []auth.Option{
		auth.WithLoggerProvider(a.logs),
		auth.WithNavigation(auth.StaticOrigin(cfg.Origin)),
		auth.WithMessages(auth.NewMessages(cfg.Locale)),
		auth.WithCallTimeout(cfg.Provider.CallTimeout),
		auth.WithPhoneRegion(cfg.PhoneRegion),
		auth.WithTracer(otel.Tracer("github.com/goliatone/go-clinic-auth")),
	}

	gate, err := auth.NewSessionGate(provider, append(opts, gateOpts...)...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.gate = gate
	a.closers = append([]func() error{gate.Close}, a.closers...)

	return a, nil
}

func (a *app) openREST() (*rest.Provider, error) {
	rc := rest.Config{
		URL:     a.cfg.REST.URL,
		AnonKey: a.cfg.REST.AnonKey,
		JWKSURL: a.cfg.REST.JWKSURL,
		Retries: a.cfg.REST.Retries,
		Timeout: a.cfg.REST.Timeout,
	}
	if a.cfg.REST.Retries == 0 {
		rc.Retries = -1
	}
	if a.cfg.REST.SessionFile != "" {
		rc.Store = rest.NewFileStore(a.cfg.REST.SessionFile)
	}

	p, err := rest.New(rc, rest.WithLoggerProvider(a.logs))
	if err != nil {
		return nil, err
	}
	a.rest = p
	a.closers = append(a.closers, p.Close)
	return p, nil
}

func (a *app) openLocal(ctx context.Context) (*local.Provider, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, a.cfg.Local.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "open local database").
			WithMetadata(map[string]any{"dsn": a.cfg.Local.DSN})
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	a.db = db
	a.closers = append(a.closers, db.Close)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "enable foreign keys")
	}
	if err := local.Migrate(ctx, db); err != nil {
		return nil, err
	}

	opts := []local.Option{
		local.WithLoggerProvider(a.logs),
		local.WithSessionTTL(a.cfg.Local.SessionTTL),
		local.WithEmailConfirmation(a.cfg.Local.RequireConfirmation),
		local.WithDeterministicIDs(a.cfg.Local.DeterministicIDs),
		local.WithFeatureGate(local.Features(a.cfg.Local.AllowSignup, a.cfg.Local.AllowPasswordReset)),
	}
	if a.cfg.Local.Issuer != "" {
		opts = append(opts, local.WithIssuer(a.cfg.Local.Issuer))
	}
	if a.cfg.Local.SigningKey != "" {
		opts = append(opts, local.WithSigningKey([]byte(a.cfg.Local.SigningKey)))
	}

	p, err := local.New(db, opts...)
	if err != nil {
		return nil, err
	}
	a.local = p
	return p, nil
}

// Close releases everything newApp opened, gate first.
func (a *app) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
