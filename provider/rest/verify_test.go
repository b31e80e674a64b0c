package rest_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-clinic-auth/provider/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKID = "clinic-key-1"

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func jwksBody(key *rsa.PublicKey) map[string]any {
	return map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": testKID,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
}

func setupJWKS(t *testing.T) (*fixture, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	b := newBackend(t)
	b.Handle("GET /auth/v1/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, jwksBody(&key.PublicKey))
	})

	clock := &testClock{now: baseTime}
	store := rest.NewMemoryStore()
	p, err := rest.New(rest.Config{
		URL:        b.server.URL,
		AnonKey:    anonKey,
		JWKSURL:    b.server.URL + "/auth/v1/.well-known/jwks.json",
		HTTPClient: b.server.Client(),
		Store:      store,
	}, rest.WithLogger(nopLogger{}), rest.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	events := &eventLog{}
	p.OnSessionChange(events.handle)

	return &fixture{backend: b, provider: p, clock: clock, events: events, store: store}, key
}

func TestSignInVerifiesTokenSignature(t *testing.T) {
	f, key := setupJWKS(t)
	exp := baseTime.Add(time.Hour)
	token := signToken(t, key, testKID, exp)

	f.backend.Handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		body := sessionBody(token, "refresh-1", exp)
		delete(body, "expires_at")
		delete(body, "expires_in")
		writeJSON(w, http.StatusOK, body)
	})

	session, err := f.provider.SignInWithPassword(context.Background(), "member@clinic.example", "secret1")
	require.NoError(t, err)
	assert.True(t, session.ExpiresAt.Equal(exp.Truncate(time.Second)), "expiry read from the token")
}

func TestSignInRejectsForeignSignature(t *testing.T) {
	f, _ := setupJWKS(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	token := signToken(t, other, testKID, baseTime.Add(time.Hour))

	f.backend.Handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionBody(token, "refresh-1", baseTime.Add(time.Hour)))
	})

	_, err = f.provider.SignInWithPassword(context.Background(), "member@clinic.example", "secret1")
	require.Error(t, err)

	var perr *auth.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bad_jwt", perr.Code)
	assert.Empty(t, f.events.Names())

	current, err := f.provider.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestTamperedPersistedSessionIsDiscarded(t *testing.T) {
	f, _ := setupJWKS(t)
	require.NoError(t, f.store.Save(context.Background(), &auth.ProviderSession{
		AccessToken: "not-a-jwt",
		ExpiresAt:   baseTime.Add(time.Hour),
		User:        auth.ProviderUser{ID: "user-1"},
	}))

	current, err := f.provider.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)

	stored, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stored)
}
