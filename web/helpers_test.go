package web_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-clinic-auth/provider/local"
	"github.com/goliatone/go-clinic-auth/web"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

var baseTime = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mailbox struct {
	mu   sync.Mutex
	sent []local.Email
}

func (m *mailbox) Send(_ context.Context, email local.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return nil
}

func (m *mailbox) Last(t *testing.T) local.Email {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

type fixture struct {
	provider   *local.Provider
	gate       *auth.SessionGate
	notices    *web.NoticeBoard
	controller *web.Controller
	mail       *mailbox
	clock      *testClock
}

func setup(t *testing.T, opts ...web.ControllerOption) *fixture {
	t.Helper()
	ctx := context.Background()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, local.Migrate(ctx, db))

	f := &fixture{
		mail:  &mailbox{},
		clock: &testClock{now: baseTime},
	}

	f.provider, err = local.New(db,
		local.WithLogger(nopLogger{}),
		local.WithSigningKey([]byte("test-signing-key")),
		local.WithPasswordCost(bcrypt.MinCost),
		local.WithMailer(f.mail),
		local.WithClock(f.clock.Now),
	)
	require.NoError(t, err)

	f.notices = web.NewNoticeBoard(f.clock.Now)

	f.gate, err = auth.NewSessionGate(f.provider,
		auth.WithLogger(nopLogger{}),
		auth.WithClock(f.clock.Now),
		auth.WithNavigation(auth.StaticOrigin("https://clinic.example")),
		auth.WithNotifier(f.notices),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.gate.Close() })
	require.NoError(t, f.gate.Start(ctx))

	base := []web.ControllerOption{
		web.WithLogger(nopLogger{}),
		web.WithNotices(f.notices),
		web.WithConfirmer(f.provider),
		web.WithResetter(f.provider),
	}
	f.controller = web.NewController(f.gate, append(base, opts...)...)

	return f
}

func (f *fixture) member(t *testing.T, email, password string) {
	t.Helper()
	_, err := f.provider.CreateUser(context.Background(), email, password, true)
	require.NoError(t, err)
}

func (f *fixture) addCase(t *testing.T, title string) {
	t.Helper()
	created := baseTime.Add(-time.Hour)
	_, err := f.provider.AddTreatmentCase(context.Background(), auth.TreatmentCase{
		Title:       title,
		BeforeImage: "/img/" + title + "-before.jpg",
		AfterImage:  "/img/" + title + "-after.jpg",
		CreatedAt:   &created,
	})
	require.NoError(t, err)
}
