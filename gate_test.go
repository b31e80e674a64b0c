package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-clinic-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestGate(t *testing.T, p *MockProvider, opts ...auth.Option) *auth.SessionGate {
	t.Helper()

	base := []auth.Option{
		auth.WithLogger(testLogger{}),
		auth.WithClock(func() time.Time { return fixedNow }),
		auth.WithNavigation(auth.StaticOrigin("https://clinic.example")),
	}

	gate, err := auth.NewSessionGate(p, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gate.Close() })
	return gate
}

func startUnauthenticated(t *testing.T, p *MockProvider, opts ...auth.Option) *auth.SessionGate {
	t.Helper()
	p.On("CurrentSession", mock.Anything).Return(nil, nil).Once()
	gate := newTestGate(t, p, opts...)
	require.NoError(t, gate.Start(context.Background()))
	return gate
}

func TestNewSessionGateRequiresProvider(t *testing.T) {
	gate, err := auth.NewSessionGate(nil)
	require.Error(t, err)
	assert.Nil(t, gate)
	assert.ErrorIs(t, err, auth.ErrProviderRequired)
}

func TestSessionGateIsPendingUntilStart(t *testing.T) {
	p := NewMockProvider()
	gate := newTestGate(t, p)

	snap := gate.Snapshot()
	assert.True(t, snap.Pending())
	assert.False(t, snap.Session.IsAuthenticated)
	p.AssertNotCalled(t, "CurrentSession", mock.Anything)
}

func TestSessionGateStartWithoutSession(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)

	assert.Equal(t, auth.StateUnauthenticated, gate.State())
	assert.Equal(t, 1, p.Subscribers())
	p.AssertNotCalled(t, "QueryTable", mock.Anything, mock.Anything, mock.Anything)
}

func TestSessionGateStartRestoresAdminSession(t *testing.T) {
	p := NewMockProvider()
	p.On("CurrentSession", mock.Anything).Return(providerSession("u1", "staff@clinic.example"), nil).Once()
	p.On("QueryTable", mock.Anything, auth.TableAdminUsers, adminQuery("u1")).
		Return([]auth.Record{{"user_id": "u1"}}, nil).Once()

	gate := newTestGate(t, p)
	require.NoError(t, gate.Start(context.Background()))

	session := gate.Session()
	assert.True(t, session.IsAuthenticated)
	assert.True(t, session.IsAdmin)
	assert.Equal(t, "staff@clinic.example", session.Email)
	assert.Equal(t, auth.StateAuthenticatedAdmin, gate.State())
	p.AssertExpectations(t)
}

func TestSessionGateStartLookupFailureResolvesUnauthenticated(t *testing.T) {
	p := NewMockProvider()
	p.On("CurrentSession", mock.Anything).Return(nil, errors.New("network down")).Once()

	gate := newTestGate(t, p)
	err := gate.Start(context.Background())

	require.Error(t, err)
	assert.Equal(t, auth.StateUnauthenticated, gate.State())
	assert.False(t, gate.Snapshot().Pending())
}

func TestSessionGateStartIsIdempotent(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)

	require.NoError(t, gate.Start(context.Background()))
	assert.Equal(t, 1, p.Subscribers())
	p.AssertNumberOfCalls(t, "CurrentSession", 1)
}

func TestSignUpRejectsShortPasswordBeforeProviderCall(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)

	res := gate.SignUp(context.Background(), "new@clinic.example", "1234")

	assert.False(t, res.Success)
	assert.Equal(t, auth.KindValidation, res.Kind)
	require.Error(t, res.Err)
	assert.Equal(t, "password must be at least 6 characters", res.Err.Error())
	assert.ErrorIs(t, res.Err, auth.ErrValidation)
	assert.Equal(t, "비밀번호는 최소 6자 이상이어야 합니다.", res.Message)
	p.AssertNotCalled(t, "SignUp", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSignUpRejectsMissingFields(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)

	res := gate.SignUp(context.Background(), "", "")

	assert.False(t, res.Success)
	assert.Equal(t, "이메일과 비밀번호를 입력해주세요.", res.Message)
	p.AssertNotCalled(t, "SignUp", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSignUpForwardsRedirectAndSource(t *testing.T) {
	p := NewMockProvider()
	notifier := &recordingNotifier{}
	gate := startUnauthenticated(t, p, auth.WithNotifier(notifier))

	expected := auth.SignUpOptions{
		EmailRedirectTo: "https://clinic.example/auth/callback",
		Data:            map[string]any{"source": auth.DefaultSignUpSource},
	}
	p.On("SignUp", mock.Anything, "new@clinic.example", "secret1", expected).
		Return(&auth.ProviderUser{ID: "u9", Email: "new@clinic.example"}, nil).Once()

	res := gate.SignUp(context.Background(), "new@clinic.example", "secret1")

	require.True(t, res.Success)
	assert.Equal(t, "회원가입이 완료되었습니다. 이메일을 확인하여 계정을 활성화해주세요.", res.Message)
	require.NotNil(t, res.User)
	assert.Equal(t, "u9", res.User.ID)
	assert.Equal(t, auth.StateUnauthenticated, gate.State())

	notice, ok := notifier.Last()
	require.True(t, ok)
	assert.Equal(t, auth.NoticeSuccess, notice.Kind)
	assert.Equal(t, fixedNow.Add(auth.NoticeTTL), notice.ExpiresAt)
	p.AssertExpectations(t)
}

func TestSignUpWithPhoneStoresE164(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)

	expected := auth.SignUpOptions{
		EmailRedirectTo: "https://clinic.example/auth/callback",
		Data: map[string]any{
			"source": auth.DefaultSignUpSource,
			"phone":  "+821012345678",
		},
	}
	p.On("SignUp", mock.Anything, "new@clinic.example", "secret1", expected).
		Return(&auth.ProviderUser{ID: "u9", Email: "new@clinic.example"}, nil).Once()

	res := gate.SignUpWithPhone(context.Background(), "new@clinic.example", "secret1", "010-1234-5678")

	require.True(t, res.Success)
	p.AssertExpectations(t)
}

func TestSignUpWithPhoneRejectsInvalidNumber(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)

	res := gate.SignUpWithPhone(context.Background(), "new@clinic.example", "secret1", "12")

	assert.False(t, res.Success)
	assert.Equal(t, auth.KindValidation, res.Kind)
	assert.ErrorIs(t, res.Err, auth.ErrValidation)
	p.AssertNotCalled(t, "SignUp", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSignUpMapsProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    auth.ErrorKind
		message string
	}{
		{
			name:    "already registered by message",
			err:     auth.NewProviderError("rest", "sign_up", "", "User already registered"),
			kind:    auth.KindAlreadyRegistered,
			message: "이미 등록된 이메일입니다.",
		},
		{
			name:    "rate limited by code",
			err:     auth.NewProviderError("rest", "sign_up", "over_email_send_rate_limit", "too many emails"),
			kind:    auth.KindRateLimited,
			message: "이메일 전송 한도를 초과했습니다. 잠시 후 다시 시도해주세요.",
		},
		{
			name:    "signup disabled",
			err:     auth.NewProviderError("rest", "sign_up", "", "Signups not allowed for this instance"),
			kind:    auth.KindSignupDisabled,
			message: "현재 회원가입이 비활성화되어 있습니다.",
		},
		{
			name:    "unknown falls back to raw text",
			err:     errors.New("Database exploded"),
			kind:    auth.KindUnknown,
			message: "오류가 발생했습니다: Database exploded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewMockProvider()
			notifier := &recordingNotifier{}
			gate := startUnauthenticated(t, p, auth.WithNotifier(notifier))

			p.On("SignUp", mock.Anything, "new@clinic.example", "secret1", mock.Anything).
				Return(nil, tt.err).Once()

			res := gate.SignUp(context.Background(), "new@clinic.example", "secret1")

			assert.False(t, res.Success)
			assert.Equal(t, tt.kind, res.Kind)
			assert.Equal(t, tt.message, res.Message)
			assert.Equal(t, tt.err, res.Err)

			notice, ok := notifier.Last()
			require.True(t, ok)
			assert.Equal(t, auth.NoticeError, notice.Kind)
			assert.Equal(t, tt.message, notice.Message)
		})
	}
}

func TestSignInWithAdminRow(t *testing.T) {
	p := NewMockProvider()
	sink := &recordingSink{}
	gate := startUnauthenticated(t, p, auth.WithActivitySink(sink))

	p.On("SignInWithPassword", mock.Anything, "staff@clinic.example", "secret1").
		Return(providerSession("u1", "staff@clinic.example"), nil).Once()
	p.On("QueryTable", mock.Anything, auth.TableAdminUsers, adminQuery("u1")).
		Return([]auth.Record{{"user_id": "u1"}}, nil).Once()
	p.On("UpdateRecords", mock.Anything, auth.TableUserProfiles, []auth.Filter{auth.Eq("id", "u1")}, mock.Anything).
		Return(nil).Once()

	res := gate.SignIn(context.Background(), "staff@clinic.example", "secret1")

	require.True(t, res.Success)
	assert.Equal(t, "로그인에 성공했습니다.", res.Message)
	assert.True(t, res.Session.IsAuthenticated)
	assert.True(t, res.Session.IsAdmin)
	assert.Equal(t, auth.StateAuthenticatedAdmin, gate.State())
	assert.Contains(t, sink.Types(), auth.ActivityEventSignInSuccess)
	assert.Contains(t, sink.Types(), auth.ActivityEventSessionChanged)
	p.AssertExpectations(t)
}

func TestSignInWithoutAdminRow(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)

	p.On("SignInWithPassword", mock.Anything, "patient@clinic.example", "secret1").
		Return(providerSession("u2", "patient@clinic.example"), nil).Once()
	p.On("QueryTable", mock.Anything, auth.TableAdminUsers, adminQuery("u2")).
		Return([]auth.Record{}, nil).Once()
	p.On("UpdateRecords", mock.Anything, auth.TableUserProfiles, mock.Anything, mock.Anything).
		Return(nil).Once()

	res := gate.SignIn(context.Background(), "patient@clinic.example", "secret1")

	require.True(t, res.Success)
	assert.False(t, res.Session.IsAdmin)
	assert.Equal(t, auth.StateAuthenticated, gate.State())
}

func TestSignInAdminLookupFailureFailsClosed(t *testing.T) {
	p := NewMockProvider()
	sink := &recordingSink{}
	gate := startUnauthenticated(t, p, auth.WithActivitySink(sink))

	p.On("SignInWithPassword", mock.Anything, mock.Anything, mock.Anything).
		Return(providerSession("u1", "staff@clinic.example"), nil).Once()
	p.On("QueryTable", mock.Anything, auth.TableAdminUsers, mock.Anything).
		Return(nil, errors.New("permission denied")).Once()
	p.On("UpdateRecords", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil).Once()

	res := gate.SignIn(context.Background(), "staff@clinic.example", "secret1")

	require.True(t, res.Success)
	assert.False(t, res.Session.IsAdmin)
	assert.Equal(t, auth.StateAuthenticated, gate.State())
	assert.Contains(t, sink.Types(), auth.ActivityEventAdminLookupFailure)
}

func TestSignInProfileTouchFailureDoesNotFailSignIn(t *testing.T) {
	p := NewMockProvider()
	sink := &recordingSink{}
	gate := startUnauthenticated(t, p, auth.WithActivitySink(sink))

	p.On("SignInWithPassword", mock.Anything, mock.Anything, mock.Anything).
		Return(providerSession("u2", "patient@clinic.example"), nil).Once()
	p.On("QueryTable", mock.Anything, auth.TableAdminUsers, mock.Anything).
		Return([]auth.Record{}, nil).Once()
	p.On("UpdateRecords", mock.Anything, auth.TableUserProfiles, mock.Anything, mock.Anything).
		Return(errors.New("row level security")).Once()

	res := gate.SignIn(context.Background(), "patient@clinic.example", "secret1")

	require.True(t, res.Success)
	assert.True(t, gate.Session().IsAuthenticated)
	assert.Contains(t, sink.Types(), auth.ActivityEventProfileTouchFailure)
}

func TestSignInInvalidCredentials(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)

	p.On("SignInWithPassword", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, auth.NewProviderError("rest", "sign_in", "invalid_credentials", "Invalid login credentials")).Once()

	res := gate.SignIn(context.Background(), "patient@clinic.example", "wrong-password")

	assert.False(t, res.Success)
	assert.Equal(t, auth.KindInvalidCredentials, res.Kind)
	assert.Equal(t, "이메일 또는 비밀번호가 올바르지 않습니다.", res.Message)
	assert.Equal(t, auth.StateUnauthenticated, gate.State())
	p.AssertNotCalled(t, "QueryTable", mock.Anything, mock.Anything, mock.Anything)
}

func TestSignInHonorsCallTimeout(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p, auth.WithCallTimeout(20*time.Millisecond))

	p.On("SignInWithPassword", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return(nil, context.DeadlineExceeded).Once()

	res := gate.SignIn(context.Background(), "patient@clinic.example", "secret1")

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Equal(t, auth.KindUnknown, res.Kind)
	assert.Equal(t, auth.StateUnauthenticated, gate.State())
}

func signedInGate(t *testing.T, p *MockProvider, admin bool, opts ...auth.Option) *auth.SessionGate {
	t.Helper()

	rows := []auth.Record{}
	if admin {
		rows = []auth.Record{{"user_id": "u1"}}
	}

	p.On("CurrentSession", mock.Anything).Return(providerSession("u1", "staff@clinic.example"), nil).Once()
	p.On("QueryTable", mock.Anything, auth.TableAdminUsers, adminQuery("u1")).Return(rows, nil).Once()

	gate := newTestGate(t, p, opts...)
	require.NoError(t, gate.Start(context.Background()))
	require.True(t, gate.Session().IsAuthenticated)
	return gate
}

func TestSignOutClearsSession(t *testing.T) {
	p := NewMockProvider()
	gate := signedInGate(t, p, true)

	p.On("SignOut", mock.Anything).Return(nil).Once()

	res := gate.SignOut(context.Background())

	require.True(t, res.Success)
	assert.Equal(t, "로그아웃되었습니다.", res.Message)
	assert.False(t, gate.Session().IsAuthenticated)
	assert.False(t, gate.Session().IsAdmin)
	assert.Equal(t, auth.StateUnauthenticated, gate.State())
}

func TestSignOutClearsSessionEvenWhenProviderFails(t *testing.T) {
	p := NewMockProvider()
	gate := signedInGate(t, p, true)

	providerErr := errors.New("connection reset")
	p.On("SignOut", mock.Anything).Return(providerErr).Once()

	res := gate.SignOut(context.Background())

	assert.False(t, res.Success)
	assert.Equal(t, providerErr, res.Err)
	assert.Equal(t, "로그아웃 중 오류가 발생했습니다.", res.Message)
	assert.False(t, res.Session.IsAuthenticated)
	assert.False(t, res.Session.IsAdmin)
	assert.Equal(t, auth.Session{}, gate.Session())
}

func TestSignOutWithProviderNotification(t *testing.T) {
	p := NewMockProvider()
	gate := signedInGate(t, p, false)

	var versions []uint64
	gate.OnChange(func(s auth.Snapshot) { versions = append(versions, s.Version) })

	p.On("SignOut", mock.Anything).Run(func(args mock.Arguments) {
		p.Emit(args.Get(0).(context.Context), auth.AuthEventSignedOut, nil)
	}).Return(nil).Once()

	res := gate.SignOut(context.Background())

	require.True(t, res.Success)
	assert.Len(t, versions, 1, "notification and result apply the same transition once")
	assert.Equal(t, auth.StateUnauthenticated, gate.State())
}

func TestCheckAdminStatusWithoutUserIssuesNoQuery(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)

	assert.False(t, gate.CheckAdminStatus(context.Background()))
	p.AssertNotCalled(t, "QueryTable", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckAdminStatusPromotesSession(t *testing.T) {
	p := NewMockProvider()
	gate := signedInGate(t, p, false)
	require.Equal(t, auth.StateAuthenticated, gate.State())

	p.On("QueryTable", mock.Anything, auth.TableAdminUsers, adminQuery("u1")).
		Return([]auth.Record{{"user_id": "u1"}}, nil).Once()

	assert.True(t, gate.CheckAdminStatus(context.Background()))
	assert.Equal(t, auth.StateAuthenticatedAdmin, gate.State())
}

func TestLoadGatedContentUnauthenticatedIssuesNoQuery(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)
	before := gate.Gallery()

	cases, err := gate.LoadGatedContent(context.Background())

	assert.Nil(t, cases)
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
	assert.Equal(t, before, gate.Gallery())
	p.AssertNotCalled(t, "QueryTable", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoadGatedContentOrdersNewestFirst(t *testing.T) {
	p := NewMockProvider()
	gate := signedInGate(t, p, false)

	created := fixedNow.Add(-time.Hour)
	p.On("QueryTable", mock.Anything, auth.TableTreatmentCases, auth.Query{
		Order: []auth.Order{{Column: "created_at", Descending: true}},
	}).Return([]auth.Record{
		{"id": "c2", "before_image": "b2.jpg", "after_image": "a2.jpg", "title": "Implant", "created_at": created},
		{"id": "c1", "before_image": "b1.jpg", "after_image": "a1.jpg"},
		{"id": "broken", "before_image": "b3.jpg"},
	}, nil).Once()

	cases, err := gate.LoadGatedContent(context.Background())

	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "c2", cases[0].ID)
	assert.Equal(t, "Implant", cases[0].Title)
	require.NotNil(t, cases[0].CreatedAt)
	assert.Equal(t, created, *cases[0].CreatedAt)

	gallery := gate.Gallery()
	assert.True(t, gallery.Loaded)
	assert.Len(t, gallery.Cases, 2)
	assert.False(t, gallery.ComingSoon())
}

func TestLoadGatedContentErrorKeepsPriorGallery(t *testing.T) {
	p := NewMockProvider()
	gate := signedInGate(t, p, false)

	p.On("QueryTable", mock.Anything, auth.TableTreatmentCases, mock.Anything).
		Return([]auth.Record{{"id": "c1", "before_image": "b.jpg", "after_image": "a.jpg"}}, nil).Once()
	_, err := gate.LoadGatedContent(context.Background())
	require.NoError(t, err)

	p.On("QueryTable", mock.Anything, auth.TableTreatmentCases, mock.Anything).
		Return(nil, errors.New("timeout")).Once()
	cases, err := gate.LoadGatedContent(context.Background())

	require.Error(t, err)
	assert.Nil(t, cases)
	gallery := gate.Gallery()
	require.Len(t, gallery.Cases, 1)
	assert.Equal(t, "c1", gallery.Cases[0].ID)
	assert.True(t, gallery.LoadFailed)
	assert.Equal(t, auth.GalleryCards, gate.View(nil).GalleryMode)
}

func TestGalleryModeBeforeAndAfterFailedLoad(t *testing.T) {
	p := NewMockProvider()
	gate := signedInGate(t, p, false)

	assert.Equal(t, auth.GalleryLoading, gate.View(nil).GalleryMode)

	p.On("QueryTable", mock.Anything, auth.TableTreatmentCases, mock.Anything).
		Return(nil, errors.New("connection refused")).Once()
	_, err := gate.LoadGatedContent(context.Background())
	require.Error(t, err)

	assert.False(t, gate.Gallery().ComingSoon())
	vm := gate.View(nil)
	assert.Equal(t, auth.GalleryUnavailable, vm.GalleryMode)
	assert.Equal(t, "치료 사례를 불러올 수 없습니다", vm.GalleryTitle)

	p.On("QueryTable", mock.Anything, auth.TableTreatmentCases, mock.Anything).
		Return([]auth.Record{}, nil).Once()
	_, err = gate.LoadGatedContent(context.Background())
	require.NoError(t, err)

	assert.False(t, gate.Gallery().LoadFailed)
	assert.Equal(t, auth.GalleryComingSoon, gate.View(nil).GalleryMode)
}

func expiredSessionError() error {
	return &auth.ProviderError{Provider: "rest", Operation: "rest", Status: 401, Code: auth.CodeSessionExpired, Message: "JWT expired"}
}

func TestLoadGatedContentExpiredSessionSignsOut(t *testing.T) {
	p := NewMockProvider()
	sink := &recordingSink{}
	gate := signedInGate(t, p, true, auth.WithActivitySink(sink))

	p.On("QueryTable", mock.Anything, auth.TableTreatmentCases, mock.Anything).
		Return(nil, expiredSessionError()).Once()

	cases, err := gate.LoadGatedContent(context.Background())

	require.Error(t, err)
	assert.Nil(t, cases)
	assert.True(t, auth.IsExpiredSessionError(err))
	assert.Equal(t, auth.StateUnauthenticated, gate.State())
	assert.False(t, gate.Session().IsAdmin)
	assert.Contains(t, sink.Types(), auth.ActivityEventGalleryLoadFailure)
}

func TestCheckAdminStatusExpiredSessionSignsOut(t *testing.T) {
	p := NewMockProvider()
	gate := signedInGate(t, p, false)

	p.On("QueryTable", mock.Anything, auth.TableAdminUsers, adminQuery("u1")).
		Return(nil, expiredSessionError()).Once()

	assert.False(t, gate.CheckAdminStatus(context.Background()))
	assert.Equal(t, auth.StateUnauthenticated, gate.State())
}

func TestSessionChangeWithExpiredAdminLookupIsUnauthenticated(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)

	p.On("QueryTable", mock.Anything, auth.TableAdminUsers, adminQuery("u1")).
		Return(nil, expiredSessionError()).Once()
	p.Emit(context.Background(), auth.AuthEventSignedIn, providerSession("u1", "staff@clinic.example"))

	assert.Equal(t, auth.StateUnauthenticated, gate.State())
	assert.False(t, gate.Session().IsAuthenticated)
}

func TestLoadGatedContentEmptyIsComingSoon(t *testing.T) {
	p := NewMockProvider()
	gate := signedInGate(t, p, false)

	p.On("QueryTable", mock.Anything, auth.TableTreatmentCases, mock.Anything).
		Return([]auth.Record{}, nil).Once()

	cases, err := gate.LoadGatedContent(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cases)
	assert.True(t, gate.Gallery().ComingSoon())
	assert.Equal(t, auth.GalleryComingSoon, gate.View(nil).GalleryMode)
}

func TestSessionChangeNonNullThenNullIsUnauthenticated(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)

	p.On("QueryTable", mock.Anything, auth.TableAdminUsers, adminQuery("u1")).
		Return([]auth.Record{{"user_id": "u1"}}, nil).Once()

	ctx := context.Background()
	p.Emit(ctx, auth.AuthEventSignedIn, providerSession("u1", "staff@clinic.example"))
	require.Equal(t, auth.StateAuthenticatedAdmin, gate.State())

	p.Emit(ctx, auth.AuthEventSignedOut, nil)

	assert.Equal(t, auth.StateUnauthenticated, gate.State())
	assert.Equal(t, auth.Session{}, gate.Session())
}

func TestSessionChangeClearsGalleryOnSessionLoss(t *testing.T) {
	p := NewMockProvider()
	gate := signedInGate(t, p, false)

	p.On("QueryTable", mock.Anything, auth.TableTreatmentCases, mock.Anything).
		Return([]auth.Record{{"id": "c1", "before_image": "b.jpg", "after_image": "a.jpg"}}, nil).Once()
	_, err := gate.LoadGatedContent(context.Background())
	require.NoError(t, err)

	p.Emit(context.Background(), auth.AuthEventSignedOut, nil)

	assert.False(t, gate.Gallery().Loaded)
	assert.Empty(t, gate.Gallery().Cases)
}

func TestDuplicateNotificationsAreDebounced(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)

	p.On("QueryTable", mock.Anything, auth.TableAdminUsers, adminQuery("u1")).
		Return([]auth.Record{}, nil).Once()

	var notified int
	gate.OnChange(func(auth.Snapshot) { notified++ })

	ctx := context.Background()
	session := providerSession("u1", "patient@clinic.example")
	p.Emit(ctx, auth.AuthEventSignedIn, session)
	p.Emit(ctx, auth.AuthEventTokenRefreshed, session)
	p.Emit(ctx, auth.AuthEventUserUpdated, session)

	assert.Equal(t, 1, notified)
	p.AssertNumberOfCalls(t, "QueryTable", 1)
}

func TestOnChangeUnsubscribe(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)

	p.On("QueryTable", mock.Anything, auth.TableAdminUsers, mock.Anything).
		Return([]auth.Record{}, nil)

	var notified int
	stop := gate.OnChange(func(auth.Snapshot) { notified++ })
	stop()
	stop()

	p.Emit(context.Background(), auth.AuthEventSignedIn, providerSession("u1", "patient@clinic.example"))
	assert.Zero(t, notified)
}

func TestStaleUpdateIsDiscarded(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)

	entered := make(chan struct{})
	release := make(chan struct{})

	p.On("QueryTable", mock.Anything, auth.TableAdminUsers, adminQuery("u1")).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return([]auth.Record{{"user_id": "u1"}}, nil).Once()
	p.On("SignOut", mock.Anything).Return(nil).Once()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Emit(context.Background(), auth.AuthEventSignedIn, providerSession("u1", "staff@clinic.example"))
	}()

	<-entered
	res := gate.SignOut(context.Background())
	require.True(t, res.Success)

	close(release)
	<-done

	assert.Equal(t, auth.StateUnauthenticated, gate.State())
}

func TestRequestPasswordResetIsAlwaysGeneric(t *testing.T) {
	p := NewMockProvider()
	sink := &recordingSink{}
	gate := startUnauthenticated(t, p, auth.WithActivitySink(sink))

	expected := auth.ResetOptions{RedirectTo: "https://clinic.example/auth/reset-password"}
	p.On("RequestPasswordReset", mock.Anything, "known@clinic.example", expected).Return(nil).Once()
	p.On("RequestPasswordReset", mock.Anything, "unknown@clinic.example", expected).
		Return(auth.NewProviderError("rest", "recover", "user_not_found", "User not found")).Once()

	known := gate.RequestPasswordReset(context.Background(), "known@clinic.example")
	unknown := gate.RequestPasswordReset(context.Background(), "unknown@clinic.example")

	assert.True(t, known.Success)
	assert.True(t, unknown.Success)
	assert.Equal(t, known.Message, unknown.Message)
	assert.Equal(t, "입력하신 이메일로 가입된 계정이 있다면 비밀번호 재설정 이메일이 전송됩니다.", unknown.Message)
	assert.NoError(t, unknown.Err)
	assert.Contains(t, sink.Types(), auth.ActivityEventPasswordResetFailure)
	p.AssertExpectations(t)
}

func TestRequestPasswordResetRequiresEmail(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p)

	res := gate.RequestPasswordReset(context.Background(), " ")

	assert.False(t, res.Success)
	assert.Equal(t, "이메일을 입력해주세요.", res.Message)
	p.AssertNotCalled(t, "RequestPasswordReset", mock.Anything, mock.Anything, mock.Anything)
}

func TestCloseUnsubscribesAndRejectsOperations(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewMockProvider()
	gate := startUnauthenticated(t, p)
	require.Equal(t, 1, p.Subscribers())

	require.NoError(t, gate.Close())
	require.NoError(t, gate.Close())

	assert.Zero(t, p.Subscribers())

	res := gate.SignIn(context.Background(), "patient@clinic.example", "secret1")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, auth.ErrGateClosed)
	assert.ErrorIs(t, gate.Start(context.Background()), auth.ErrGateClosed)

	_, err := gate.LoadGatedContent(context.Background())
	assert.ErrorIs(t, err, auth.ErrGateClosed)
	p.AssertNotCalled(t, "SignInWithPassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnglishMessages(t *testing.T) {
	p := NewMockProvider()
	gate := startUnauthenticated(t, p, auth.WithMessages(auth.NewMessages("en-US")))

	p.On("SignInWithPassword", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("Email not confirmed")).Once()

	res := gate.SignIn(context.Background(), "patient@clinic.example", "secret1")

	assert.Equal(t, auth.KindUnverifiedEmail, res.Kind)
	assert.Equal(t, "Your email is not verified yet. Please check your inbox.", res.Message)
}
