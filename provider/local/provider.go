package local

import (
	"context"
	"crypto/rand"
	"net/http"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Operation names reported in provider errors.
const (
	opSignUp   = "signup"
	opToken    = "token"
	opRecover  = "recover"
	opVerify   = "verify"
	opUser     = "user"
	opRest     = "rest"
	opAdmin    = "admin"
	codeOTP    = "otp_expired"
	msgOTP     = "Token has expired or is invalid"
	codeDenied = "42501"
)

// ErrDatabaseRequired is returned by New without a database.
var ErrDatabaseRequired = errors.New("local provider requires a database", errors.CategoryBadInput).
	WithTextCode("DATABASE_REQUIRED").
	WithCode(errors.CodeBadRequest)

// Provider is a self hosted Authentication-and-Data Provider backed by bun.
// It keeps a single active session, like a browser client does.
type Provider struct {
	db             *bun.DB
	repos          RepositoryManager
	tokens         *tokenService
	features       gate.FeatureGate
	mailer         Mailer
	hub            *auth.SessionHub
	logger         auth.Logger
	loggerProvider auth.LoggerProvider
	now            func() time.Time

	signingKey          []byte
	issuer              string
	audience            jwt.ClaimStrings
	sessionTTL          time.Duration
	confirmTTL          time.Duration
	recoveryTTL         time.Duration
	resetCooldown       time.Duration
	requireConfirmation bool
	deterministicIDs    bool
	passwordCost        int

	mu      sync.RWMutex
	session *auth.ProviderSession
}

var _ auth.Provider = (*Provider)(nil)

// New builds a provider over db. Call Migrate first on a fresh database.
func New(db *bun.DB, opts ...Option) (*Provider, error) {
	if db == nil {
		return nil, ErrDatabaseRequired
	}

	p := &Provider{
		db:                  db,
		hub:                 auth.NewSessionHub(),
		features:            StaticFeatures{},
		now:                 time.Now,
		issuer:              DefaultIssuer,
		sessionTTL:          DefaultSessionTTL,
		confirmTTL:          DefaultConfirmTTL,
		recoveryTTL:         DefaultRecoveryTTL,
		resetCooldown:       DefaultResetCooldown,
		requireConfirmation: true,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	p.loggerProvider, p.logger = auth.ResolveLogger("auth.provider.local", p.loggerProvider, p.logger)

	if p.mailer == nil {
		p.mailer = LogMailer{Logger: p.logger}
	}

	if len(p.signingKey) == 0 {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate signing key")
		}
		p.signingKey = key
		p.logger.Warn("no signing key configured, sessions will not survive a restart")
	}

	p.repos = NewRepositoryManager(db)
	if err := p.repos.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "invalid repository manager")
	}

	p.tokens = newTokenService(p.signingKey, p.sessionTTL, p.issuer, p.audience, p.now)

	return p, nil
}

// DB returns the underlying database.
func (p *Provider) DB() *bun.DB {
	return p.db
}

// Repositories returns the identity repositories.
func (p *Provider) Repositories() RepositoryManager {
	return p.repos
}

// OnSessionChange implements auth.Provider.
func (p *Provider) OnSessionChange(handler auth.SessionChangeHandler) auth.Subscription {
	return p.hub.Subscribe(handler)
}

// CurrentSession returns the active session. An expired session is dropped
// and reported as no session.
func (p *Provider) CurrentSession(ctx context.Context) (*auth.ProviderSession, error) {
	p.mu.RLock()
	session := p.session
	p.mu.RUnlock()

	if session == nil {
		return nil, nil
	}

	if _, err := p.tokens.Validate(session.AccessToken); err != nil {
		p.mu.Lock()
		if p.session == session {
			p.session = nil
		}
		p.mu.Unlock()

		if errors.Is(err, ErrTokenExpired) {
			p.logger.Info("stored session expired", "user_id", session.User.ID)
			return nil, nil
		}
		return nil, withCause(providerError(opUser, http.StatusUnauthorized, auth.CodeSessionNotFound, "invalid JWT"), err)
	}

	return cloneSession(session), nil
}

// SignUp creates an account. When email confirmation is required a
// confirmation link is mailed and the account cannot sign in until it is
// redeemed with ConfirmEmail.
func (p *Provider) SignUp(ctx context.Context, email, password string, opts auth.SignUpOptions) (*auth.ProviderUser, error) {
	if err := requireFeatureGate(ctx, p.features, gate.FeatureUsersSignup, errSignupDisabled); err != nil {
		return nil, err
	}

	email = normalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return nil, providerError(opSignUp, http.StatusBadRequest, auth.CodeEmailInvalid, auth.MsgInvalidEmail)
	}

	if len(password) < auth.MinPasswordLength {
		return nil, providerError(opSignUp, http.StatusUnprocessableEntity, auth.CodeWeakPassword, auth.MsgWeakPassword)
	}

	hash, err := HashPassword(password, p.passwordCost)
	if err != nil {
		return nil, p.wrap(opSignUp, err)
	}

	id := uuid.New()
	if p.deterministicIDs {
		id = deterministicID(email)
	}

	now := p.now().UTC()
	user := &User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Metadata:     copyMetadata(opts.Data),
		CreatedAt:    &now,
		UpdatedAt:    &now,
	}
	if !p.requireConfirmation {
		user.EmailConfirmedAt = &now
	}

	var token *AuthToken
	err = p.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := p.repos.Users().GetByEmailTx(ctx, tx, email); err == nil {
			return providerError(opSignUp, http.StatusUnprocessableEntity, auth.CodeUserAlreadyExists, auth.MsgAlreadyRegistered)
		} else if !repository.IsRecordNotFound(err) {
			return err
		}

		if _, err := p.repos.Users().RegisterTx(ctx, tx, user); err != nil {
			return err
		}

		profile := &auth.UserProfile{
			ID:        user.ID.String(),
			Email:     email,
			Phone:     metadataString(opts.Data, "phone"),
			Source:    metadataString(opts.Data, "source"),
			CreatedAt: &now,
			UpdatedAt: &now,
		}
		if _, err := tx.NewInsert().Model(profile).Exec(ctx); err != nil {
			return err
		}

		if p.requireConfirmation {
			var err error
			token, err = p.issueTokenTx(ctx, tx, user, TokenKindConfirm, p.confirmTTL, now)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, p.wrap(opSignUp, err)
	}

	if token != nil {
		p.sendToken(ctx, token, opts.EmailRedirectTo)
	}

	p.logger.Info("user registered", "user_id", user.ID, "confirmed", user.Confirmed())

	out := toProviderUser(user)
	return &out, nil
}

// ConfirmEmail redeems a confirmation token and signs the user in.
func (p *Provider) ConfirmEmail(ctx context.Context, token string) (*auth.ProviderSession, error) {
	id, err := uuid.Parse(token)
	if err != nil {
		return nil, providerError(opVerify, http.StatusForbidden, codeOTP, msgOTP)
	}

	now := p.now().UTC()
	var user *User
	err = p.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		rec, err := p.redeemTokenTx(ctx, tx, id, TokenKindConfirm, now)
		if err != nil {
			return err
		}
		if err := p.repos.Users().ConfirmEmailTx(ctx, tx, rec.UserID, now); err != nil {
			return err
		}
		user, err = p.repos.Users().GetByIdentifierTx(ctx, tx, rec.UserID.String())
		return err
	})
	if err != nil {
		return nil, p.wrap(opVerify, err)
	}

	return p.startSession(ctx, opVerify, user, auth.AuthEventSignedIn)
}

// SignInWithPassword implements auth.Provider.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*auth.ProviderSession, error) {
	user, err := p.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, invalidCredentials()
		}
		return nil, p.wrap(opToken, err)
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return nil, invalidCredentials()
	}

	if !user.Confirmed() {
		return nil, providerError(opToken, http.StatusBadRequest, auth.CodeEmailNotConfirmed, auth.MsgEmailNotConfirmed)
	}

	return p.startSession(ctx, opToken, user, auth.AuthEventSignedIn)
}

// SignOut drops the active session. Signing out without a session is a no-op.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	had := p.session != nil
	p.session = nil
	p.mu.Unlock()

	if had {
		p.hub.Publish(ctx, auth.SessionChangeEvent{Event: auth.AuthEventSignedOut})
	}
	return nil
}

// RequestPasswordReset mails a recovery link. Unknown addresses succeed
// silently. Repeated requests inside the cooldown are rate limited.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string, opts auth.ResetOptions) error {
	if err := requirePasswordResetGate(ctx, p.features, false); err != nil {
		return err
	}

	email = normalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return providerError(opRecover, http.StatusBadRequest, auth.CodeEmailInvalid, auth.MsgInvalidEmail)
	}

	user, err := p.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			p.logger.Debug("password reset for unknown email")
			return nil
		}
		return p.wrap(opRecover, err)
	}

	now := p.now().UTC()
	var token *AuthToken
	err = p.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		latest, err := p.repos.Tokens().LatestTx(ctx, tx, user.ID, TokenKindRecovery)
		if err != nil && !repository.IsRecordNotFound(err) {
			return err
		}
		if err == nil && p.resetCooldown > 0 && latest.CreatedAt != nil && now.Sub(*latest.CreatedAt) < p.resetCooldown {
			return providerError(opRecover, http.StatusTooManyRequests, auth.CodeEmailRateLimit, auth.MsgRateLimited)
		}

		token, err = p.issueTokenTx(ctx, tx, user, TokenKindRecovery, p.recoveryTTL, now)
		return err
	})
	if err != nil {
		return p.wrap(opRecover, err)
	}

	p.sendToken(ctx, token, opts.RedirectTo)
	return nil
}

// CompletePasswordReset redeems a recovery token, stores the new password
// and signs the user in with a PASSWORD_RECOVERY notification.
func (p *Provider) CompletePasswordReset(ctx context.Context, token, newPassword string) (*auth.ProviderSession, error) {
	if err := requirePasswordResetGate(ctx, p.features, true); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(token)
	if err != nil {
		return nil, providerError(opVerify, http.StatusForbidden, codeOTP, msgOTP)
	}

	if len(newPassword) < auth.MinPasswordLength {
		return nil, providerError(opVerify, http.StatusUnprocessableEntity, auth.CodeWeakPassword, auth.MsgWeakPassword)
	}

	hash, err := HashPassword(newPassword, p.passwordCost)
	if err != nil {
		return nil, p.wrap(opVerify, err)
	}

	now := p.now().UTC()
	var user *User
	err = p.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		rec, err := p.redeemTokenTx(ctx, tx, id, TokenKindRecovery, now)
		if err != nil {
			return err
		}
		if err := p.repos.Users().ResetPasswordTx(ctx, tx, rec.UserID, hash, now); err != nil {
			return err
		}
		user, err = p.repos.Users().GetByIdentifierTx(ctx, tx, rec.UserID.String())
		return err
	})
	if err != nil {
		return nil, p.wrap(opVerify, err)
	}

	return p.startSession(ctx, opVerify, user, auth.AuthEventPasswordRecovery)
}

func (p *Provider) startSession(ctx context.Context, op string, user *User, event auth.AuthEvent) (*auth.ProviderSession, error) {
	now := p.now().UTC()
	if err := p.repos.Users().TrackSignInTx(ctx, p.db, user.ID, now); err != nil {
		return nil, p.wrap(op, err)
	}
	user.LastSignInAt = &now

	access, expires, err := p.tokens.Generate(user)
	if err != nil {
		return nil, p.wrap(op, err)
	}

	session := &auth.ProviderSession{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresAt:   expires,
		User:        toProviderUser(user),
	}

	p.mu.Lock()
	p.session = session
	p.mu.Unlock()

	p.hub.Publish(ctx, auth.SessionChangeEvent{Event: event, Session: cloneSession(session)})

	return cloneSession(session), nil
}

func (p *Provider) issueTokenTx(ctx context.Context, tx bun.IDB, user *User, kind TokenKind, ttl time.Duration, now time.Time) (*AuthToken, error) {
	token := &AuthToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Kind:      kind,
		Email:     user.Email,
		ExpiresAt: now.Add(ttl),
		CreatedAt: &now,
	}
	return p.repos.Tokens().CreateTx(ctx, tx, token)
}

func (p *Provider) redeemTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, kind TokenKind, now time.Time) (*AuthToken, error) {
	rec := &AuthToken{}
	err := tx.NewSelect().
		Model(rec).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.kind = ?", kind).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, providerError(opVerify, http.StatusForbidden, codeOTP, msgOTP)
		}
		return nil, err
	}

	if !rec.Usable(now) {
		return nil, providerError(opVerify, http.StatusForbidden, codeOTP, msgOTP)
	}

	if err := p.repos.Tokens().ConsumeTx(ctx, tx, rec.ID, now); err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, providerError(opVerify, http.StatusForbidden, codeOTP, msgOTP)
		}
		return nil, err
	}

	return rec, nil
}

func (p *Provider) sendToken(ctx context.Context, token *AuthToken, redirect string) {
	email := Email{
		To:      token.Email,
		Kind:    token.Kind,
		Token:   token.ID.String(),
		Link:    tokenLink(redirect, token.ID.String(), token.Kind),
		Subject: subjectFor(token.Kind),
	}
	if err := p.mailer.Send(ctx, email); err != nil {
		p.logger.Warn("account email not sent", "kind", token.Kind, "error", err)
	}
}

func (p *Provider) wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var perr *auth.ProviderError
	if errors.As(err, &perr) {
		return err
	}

	p.logger.Error("local provider failure", "operation", op, "error", err)
	return withCause(providerError(op, http.StatusInternalServerError, "unexpected_failure", err.Error()), err)
}

func providerError(op string, status int, code, message string) *auth.ProviderError {
	return &auth.ProviderError{
		Provider:  providerName,
		Operation: op,
		Status:    status,
		Code:      code,
		Message:   message,
	}
}

func withCause(perr *auth.ProviderError, err error) *auth.ProviderError {
	perr.Err = err
	return perr
}

func invalidCredentials() error {
	return providerError(opToken, http.StatusBadRequest, auth.CodeInvalidCredentials, auth.MsgInvalidCredentials)
}

func toProviderUser(u *User) auth.ProviderUser {
	if u == nil {
		return auth.ProviderUser{}
	}
	return auth.ProviderUser{
		ID:               u.ID.String(),
		Email:            u.Email,
		EmailConfirmedAt: u.EmailConfirmedAt,
		LastSignInAt:     u.LastSignInAt,
		CreatedAt:        u.CreatedAt,
		Metadata:         copyMetadata(u.Metadata),
	}
}

func cloneSession(s *auth.ProviderSession) *auth.ProviderSession {
	if s == nil {
		return nil
	}
	out := *s
	out.User.Metadata = copyMetadata(s.User.Metadata)
	return &out
}

// deterministicID derives a stable user id from the email address, falling
// back to a random id.
func deterministicID(email string) uuid.UUID {
	id, err := hashid.NewUUID(email)
	if err != nil {
		return uuid.New()
	}
	return id
}

func copyMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func metadataString(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
