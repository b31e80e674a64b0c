package rest_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-clinic-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionGateOverRestProvider(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.backend.Handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionBody("access-1", "refresh-1", baseTime.Add(time.Hour)))
	})
	f.backend.Handle("GET /rest/v1/admin_users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"user_id": "user-1"}})
	})
	f.backend.Handle("PATCH /rest/v1/user_profiles", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	f.backend.Handle("GET /rest/v1/treatment_cases", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{})
	})

	gate, err := auth.NewSessionGate(f.provider,
		auth.WithLogger(nopLogger{}),
		auth.WithClock(f.clock.Now),
		auth.WithNavigation(auth.StaticOrigin("https://clinic.example")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gate.Close() })

	require.NoError(t, gate.Start(ctx))
	assert.Equal(t, auth.StateUnauthenticated, gate.State())

	res := gate.SignIn(ctx, "member@clinic.example", "secret1")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, auth.StateAuthenticatedAdmin, gate.State())

	cases, err := gate.LoadGatedContent(ctx)
	require.NoError(t, err)
	assert.Empty(t, cases)
	assert.True(t, gate.Gallery().ComingSoon())

	for _, c := range f.backend.CallsTo("/rest/v1/admin_users") {
		assert.Equal(t, "Bearer access-1", c.Auth)
	}

	f.backend.Handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error_code": "refresh_token_not_found", "msg": "Invalid Refresh Token: Refresh Token Not Found"})
	})
	f.clock.Advance(2 * time.Hour)

	_, err = f.provider.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.StateUnauthenticated, gate.State())
}

func newRestGate(t *testing.T, f *fixture) *auth.SessionGate {
	t.Helper()
	f.backend.Handle("GET /rest/v1/admin_users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{})
	})
	f.backend.Handle("PATCH /rest/v1/user_profiles", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	f.backend.Handle("GET /rest/v1/treatment_cases", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": "c1", "title": "implant", "before_image": "/b1.jpg", "after_image": "/a1.jpg"},
		})
	})

	gate, err := auth.NewSessionGate(f.provider,
		auth.WithLogger(nopLogger{}),
		auth.WithClock(f.clock.Now),
		auth.WithNavigation(auth.StaticOrigin("https://clinic.example")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gate.Close() })
	require.NoError(t, gate.Start(context.Background()))
	return gate
}

func TestLoadGatedContentRefreshesExpiredToken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	gate := newRestGate(t, f)

	f.signIn(t)
	require.Equal(t, auth.StateAuthenticated, gate.State())

	f.backend.Handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionBody("access-2", "refresh-2", baseTime.Add(3*time.Hour)))
	})
	f.clock.Advance(2 * time.Hour)

	cases, err := gate.LoadGatedContent(ctx)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, auth.StateAuthenticated, gate.State())

	calls := f.backend.CallsTo("/rest/v1/treatment_cases")
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer access-2", calls[0].Auth)
}

func TestLoadGatedContentWithRejectedRefreshSignsOut(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	gate := newRestGate(t, f)

	f.signIn(t)
	require.Equal(t, auth.StateAuthenticated, gate.State())

	f.backend.Handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error_code": "refresh_token_not_found", "msg": "Invalid Refresh Token: Refresh Token Not Found"})
	})
	f.clock.Advance(2 * time.Hour)

	_, err := gate.LoadGatedContent(ctx)
	require.Error(t, err)
	assert.True(t, auth.IsExpiredSessionError(err))
	assert.Equal(t, auth.StateUnauthenticated, gate.State())
	assert.Empty(t, f.backend.CallsTo("/rest/v1/treatment_cases"))
}

func TestLoadGatedContentWithRevokedTokenSignsOut(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	gate := newRestGate(t, f)

	f.signIn(t)
	f.backend.Handle("GET /rest/v1/treatment_cases", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "PGRST301", "message": "JWT expired"})
	})

	_, err := gate.LoadGatedContent(ctx)
	require.Error(t, err)
	assert.Equal(t, auth.KindExpiredSession, auth.ClassifyError(err))
	assert.Equal(t, auth.StateUnauthenticated, gate.State())
	assert.False(t, gate.Gallery().Loaded)
}
