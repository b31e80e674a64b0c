package rest

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-clinic-auth"
)

// sessionResponse is returned by the token endpoint and, when email
// confirmation is off, by sign up.
type sessionResponse struct {
	AccessToken  string             `json:"access_token"`
	TokenType    string             `json:"token_type"`
	ExpiresIn    int64              `json:"expires_in"`
	ExpiresAt    int64              `json:"expires_at"`
	RefreshToken string             `json:"refresh_token"`
	User         *auth.ProviderUser `json:"user"`
}

// signUpResponse accepts either a session or a bare user.
type signUpResponse struct {
	sessionResponse
	auth.ProviderUser
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpBody struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

// CurrentSession implements auth.Provider. A session close to expiry is
// refreshed. A refresh the backend rejects ends the session and reports
// no session; a refresh that cannot reach the backend returns the error.
func (p *Provider) CurrentSession(ctx context.Context) (*auth.ProviderSession, error) {
	session, _, err := p.freshSession(ctx)
	return session, err
}

// freshSession returns the current session, refreshed when it expires within
// the refresh margin. A refused refresh ends the session and reports ended.
// A failed refresh keeps a token that has not expired yet.
func (p *Provider) freshSession(ctx context.Context) (session *auth.ProviderSession, ended bool, err error) {
	p.restore(ctx)

	current := p.snapshot()
	if current == nil {
		return nil, false, nil
	}
	if !current.Expired(p.now().Add(p.config.RefreshMargin)) {
		return current, false, nil
	}

	refreshed, err := p.refresh(ctx, current)
	if err == nil {
		return refreshed, false, nil
	}

	if sessionRejected(err) {
		p.logger.Info("session refresh rejected", "user_id", current.User.ID, "error", err)
		p.endSession(ctx, current)
		return nil, true, nil
	}

	if !current.Expired(p.now()) {
		p.logger.Warn("session refresh failed, keeping current token", "error", err)
		return current, false, nil
	}

	return nil, false, err
}

// SignUp implements auth.Provider. When the backend confirms accounts
// immediately the returned session becomes current.
func (p *Provider) SignUp(ctx context.Context, email, password string, opts auth.SignUpOptions) (*auth.ProviderUser, error) {
	query := url.Values{}
	if opts.EmailRedirectTo != "" {
		query.Set("redirect_to", opts.EmailRedirectTo)
	}

	var resp signUpResponse
	err := p.do(ctx, opSignUp, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		query:  query,
		body:   signUpBody{Email: email, Password: password, Data: opts.Data},
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken != "" {
		session := p.sessionFrom(resp.sessionResponse)
		if err := p.verify(session.AccessToken); err != nil {
			return nil, err
		}
		p.setSession(ctx, session, auth.AuthEventSignedIn)
		user := session.User
		return &user, nil
	}

	if resp.ProviderUser.ID == "" {
		return nil, responseError(opSignUp, http.StatusOK, nil)
	}

	user := resp.ProviderUser
	return &user, nil
}

// SignInWithPassword implements auth.Provider.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*auth.ProviderSession, error) {
	session, err := p.grant(ctx, opToken, "password", credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	p.setSession(ctx, session, auth.AuthEventSignedIn)
	return cloneSession(session), nil
}

// SignOut implements auth.Provider. The local session is always dropped; a
// token the backend no longer knows is not an error.
func (p *Provider) SignOut(ctx context.Context) error {
	p.restore(ctx)

	current := p.snapshot()
	if current == nil {
		return nil
	}

	p.endSession(ctx, current)

	err := p.do(ctx, opLogout, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		token:  current.AccessToken,
	}, nil)
	if err == nil {
		return nil
	}

	if perr, ok := asProviderError(err); ok {
		switch perr.Status {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return nil
		}
	}
	return err
}

// RequestPasswordReset implements auth.Provider.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string, opts auth.ResetOptions) error {
	query := url.Values{}
	if opts.RedirectTo != "" {
		query.Set("redirect_to", opts.RedirectTo)
	}

	return p.do(ctx, opRecover, request{
		method: http.MethodPost,
		path:   "/auth/v1/recover",
		query:  query,
		body:   map[string]string{"email": email},
	}, nil)
}

// GetUser fetches the account behind the current session from the backend.
func (p *Provider) GetUser(ctx context.Context) (*auth.ProviderUser, error) {
	session, err := p.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &auth.ProviderError{
			Provider:  providerName,
			Operation: opUser,
			Status:    http.StatusUnauthorized,
			Code:      auth.CodeSessionNotFound,
			Message:   "Auth session missing!",
		}
	}

	var user auth.ProviderUser
	err = p.do(ctx, opUser, request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		token:  session.AccessToken,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (p *Provider) refresh(ctx context.Context, current *auth.ProviderSession) (*auth.ProviderSession, error) {
	session, renewed, err := p.renew(ctx, current)
	if err != nil {
		return nil, err
	}
	if renewed {
		p.publish(ctx, auth.AuthEventTokenRefreshed, session)
	}
	return cloneSession(session), nil
}

// renew exchanges the refresh token of current. Concurrent callers share a
// single exchange; renewed is false when another caller already did it.
func (p *Provider) renew(ctx context.Context, current *auth.ProviderSession) (*auth.ProviderSession, bool, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if latest := p.snapshot(); latest == nil || latest.RefreshToken != current.RefreshToken {
		if latest == nil {
			return nil, false, &auth.ProviderError{
				Provider:  providerName,
				Operation: opRefresh,
				Status:    http.StatusUnauthorized,
				Code:      auth.CodeSessionNotFound,
				Message:   auth.MsgInvalidRefresh,
			}
		}
		return latest, false, nil
	}

	if current.RefreshToken == "" {
		return nil, false, &auth.ProviderError{
			Provider:  providerName,
			Operation: opRefresh,
			Status:    http.StatusBadRequest,
			Code:      auth.CodeRefreshNotFound,
			Message:   auth.MsgInvalidRefresh,
		}
	}

	session, err := p.grant(ctx, opRefresh, "refresh_token", map[string]string{"refresh_token": current.RefreshToken})
	if err != nil {
		return nil, false, err
	}

	p.storeSession(ctx, session)
	return session, true, nil
}

func (p *Provider) grant(ctx context.Context, op, grantType string, body any) (*auth.ProviderSession, error) {
	var resp sessionResponse
	err := p.do(ctx, op, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {grantType}},
		body:   body,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken == "" || resp.User == nil {
		return nil, responseError(op, http.StatusOK, nil)
	}

	session := p.sessionFrom(resp)
	if err := p.verify(session.AccessToken); err != nil {
		return nil, err
	}
	return session, nil
}

func (p *Provider) sessionFrom(resp sessionResponse) *auth.ProviderSession {
	session := &auth.ProviderSession{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    strings.ToLower(resp.TokenType),
	}
	if resp.User != nil {
		session.User = *resp.User
	}

	switch {
	case resp.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(resp.ExpiresAt, 0).UTC()
	case resp.ExpiresIn > 0:
		session.ExpiresAt = p.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC().Truncate(time.Second)
	default:
		session.ExpiresAt = tokenExpiry(resp.AccessToken)
	}

	return session
}

// restore loads a persisted session once. Sessions that fail verification
// are discarded.
func (p *Provider) restore(ctx context.Context) {
	p.mu.Lock()
	if p.restored {
		p.mu.Unlock()
		return
	}
	p.restored = true
	p.mu.Unlock()

	session, err := p.store.Load(ctx)
	if err != nil {
		p.logger.Warn("failed to load persisted session", "error", err)
		return
	}
	if session == nil {
		return
	}

	if err := p.verify(session.AccessToken); err != nil {
		p.logger.Warn("discarding persisted session", "error", err)
		if err := p.store.Clear(ctx); err != nil {
			p.logger.Warn("failed to clear persisted session", "error", err)
		}
		return
	}

	p.mu.Lock()
	if p.session == nil {
		p.session = session
	}
	p.mu.Unlock()
}

func (p *Provider) snapshot() *auth.ProviderSession {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneSession(p.session)
}

func (p *Provider) setSession(ctx context.Context, session *auth.ProviderSession, event auth.AuthEvent) {
	p.storeSession(ctx, session)
	p.publish(ctx, event, session)
}

func (p *Provider) storeSession(ctx context.Context, session *auth.ProviderSession) {
	p.mu.Lock()
	p.session = cloneSession(session)
	p.restored = true
	p.mu.Unlock()

	if err := p.store.Save(ctx, session); err != nil {
		p.logger.Warn("failed to persist session", "error", err)
	}
}

// endSession clears the session if it is still the given one.
func (p *Provider) endSession(ctx context.Context, ended *auth.ProviderSession) {
	p.mu.Lock()
	if p.session == nil || p.session.AccessToken != ended.AccessToken {
		p.mu.Unlock()
		return
	}
	p.session = nil
	p.mu.Unlock()

	if err := p.store.Clear(ctx); err != nil {
		p.logger.Warn("failed to clear persisted session", "error", err)
	}

	p.publish(ctx, auth.AuthEventSignedOut, nil)
}

// publish notifies subscribers unless ctx already belongs to a session
// change handler. Those callers learn the outcome from the call itself.
func (p *Provider) publish(ctx context.Context, event auth.AuthEvent, session *auth.ProviderSession) {
	if auth.InSessionChange(ctx) {
		p.logger.Debug("session change not published from handler", "event", event)
		return
	}
	p.hub.Publish(ctx, auth.SessionChangeEvent{Event: event, Session: cloneSession(session)})
}

func cloneSession(s *auth.ProviderSession) *auth.ProviderSession {
	if s == nil {
		return nil
	}
	out := *s
	if s.User.Metadata != nil {
		out.User.Metadata = make(map[string]any, len(s.User.Metadata))
		for k, v := range s.User.Metadata {
			out.User.Metadata[k] = v
		}
	}
	return &out
}
