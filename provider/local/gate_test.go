package local_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-clinic-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionGateOverLocalProvider(t *testing.T) {
	f := setupProvider(t)
	ctx := context.Background()
	seedCases(t, f)
	f.confirmedUser(t, "staff@clinic.example", "secret1")
	require.NoError(t, f.provider.GrantAdmin(ctx, "staff@clinic.example"))

	gate, err := auth.NewSessionGate(f.provider,
		auth.WithLogger(nopLogger{}),
		auth.WithClock(f.clock.Now),
		auth.WithNavigation(auth.StaticOrigin("https://clinic.example")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gate.Close() })

	require.NoError(t, gate.Start(ctx))
	assert.Equal(t, auth.StateUnauthenticated, gate.State())

	_, err = gate.LoadGatedContent(ctx)
	require.ErrorIs(t, err, auth.ErrNotAuthenticated)

	res := gate.SignIn(ctx, "staff@clinic.example", "wrong-password")
	assert.False(t, res.Success)
	assert.Equal(t, auth.KindInvalidCredentials, res.Kind)
	assert.Equal(t, "이메일 또는 비밀번호가 올바르지 않습니다.", res.Message)

	res = gate.SignIn(ctx, "staff@clinic.example", "secret1")
	require.True(t, res.Success, res.Message)
	assert.True(t, res.Session.IsAdmin)
	assert.Equal(t, auth.StateAuthenticatedAdmin, gate.State())

	cases, err := gate.LoadGatedContent(ctx)
	require.NoError(t, err)
	require.Len(t, cases, 3)
	assert.Equal(t, "newest", cases[0].Title)

	view := gate.View(nil)
	assert.True(t, view.ShowAdminBadge)
	assert.Equal(t, "https://clinic.example/admin.html", view.AdminPanelURL)

	res = gate.SignOut(ctx)
	require.True(t, res.Success)
	assert.Equal(t, auth.StateUnauthenticated, gate.State())
	assert.False(t, gate.Gallery().Loaded)
}

func TestSessionGateSignUpOverLocalProvider(t *testing.T) {
	f := setupProvider(t)
	ctx := context.Background()

	gate, err := auth.NewSessionGate(f.provider,
		auth.WithLogger(nopLogger{}),
		auth.WithClock(f.clock.Now),
		auth.WithNavigation(auth.StaticOrigin("https://clinic.example")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gate.Close() })
	require.NoError(t, gate.Start(ctx))

	res := gate.SignUpWithPhone(ctx, "new@clinic.example", "secret1", "010-1234-5678")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, auth.StateUnauthenticated, gate.State())

	mail := f.mail.Last(t)
	assert.Contains(t, mail.Link, "https://clinic.example/auth/callback")

	res = gate.SignUp(ctx, "new@clinic.example", "secret1")
	assert.False(t, res.Success)
	assert.Equal(t, auth.KindAlreadyRegistered, res.Kind)

	res = gate.SignIn(ctx, "new@clinic.example", "secret1")
	assert.False(t, res.Success)
	assert.Equal(t, auth.KindUnverifiedEmail, res.Kind)

	_, err = f.provider.ConfirmEmail(ctx, mail.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.StateAuthenticated, gate.State())
}

func TestSaveTreatmentCaseOverLocalProvider(t *testing.T) {
	f := setupProvider(t)
	ctx := context.Background()
	seedCases(t, f)
	f.confirmedUser(t, "staff@clinic.example", "secret1")
	member := f.confirmedUser(t, "member@clinic.example", "secret1")
	require.NoError(t, f.provider.GrantAdmin(ctx, "staff@clinic.example"))

	gate, err := auth.NewSessionGate(f.provider,
		auth.WithLogger(nopLogger{}),
		auth.WithClock(f.clock.Now),
		auth.WithNavigation(auth.StaticOrigin("https://clinic.example")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gate.Close() })
	require.NoError(t, gate.Start(ctx))

	input := auth.TreatmentCaseInput{
		BeforeImage: "/img/veneer-before.jpg",
		AfterImage:  "/img/veneer-after.jpg",
		Title:       "veneer",
	}

	res := gate.SaveTreatmentCase(ctx, input)
	assert.False(t, res.Success)
	assert.Equal(t, "로그인이 필요합니다.", res.Message)

	res = gate.SignIn(ctx, "member@clinic.example", "secret1")
	require.True(t, res.Success, res.Message)

	res = gate.SaveTreatmentCase(ctx, input)
	assert.False(t, res.Success)
	assert.Equal(t, "저장 중 오류가 발생했습니다.", res.Message)
	assert.Equal(t, auth.StateAuthenticated, gate.State())

	cases, err := gate.LoadGatedContent(ctx)
	require.NoError(t, err)
	assert.Len(t, cases, 3)

	require.True(t, gate.SignOut(ctx).Success)
	res = gate.SignIn(ctx, "staff@clinic.example", "secret1")
	require.True(t, res.Success, res.Message)
	require.Equal(t, auth.StateAuthenticatedAdmin, gate.State())

	res = gate.SaveTreatmentCase(ctx, input)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "치료 사례가 저장되었습니다.", res.Message)
	require.NotNil(t, res.Case)
	assert.NotEmpty(t, res.Case.ID)
	assert.Equal(t, res.Session.UserID, res.Case.CreatedBy)
	assert.NotEqual(t, member.ID.String(), res.Case.CreatedBy)

	cases, err = gate.LoadGatedContent(ctx)
	require.NoError(t, err)
	require.Len(t, cases, 4)
	assert.Equal(t, "veneer", cases[0].Title)
	assert.Equal(t, res.Session.UserID, cases[0].CreatedBy)
}
