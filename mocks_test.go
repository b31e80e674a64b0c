package auth_test

import (
	"context"
	"sync"

	"github.com/goliatone/go-clinic-auth"
	"github.com/stretchr/testify/mock"
)

// MockProvider implements auth.Provider. Session changes are delivered
// through a real SessionHub so tests can emit notifications.
type MockProvider struct {
	mock.Mock
	hub *auth.SessionHub
}

func NewMockProvider() *MockProvider {
	return &MockProvider{hub: auth.NewSessionHub()}
}

func (m *MockProvider) Emit(ctx context.Context, event auth.AuthEvent, session *auth.ProviderSession) {
	m.hub.Publish(ctx, auth.SessionChangeEvent{Event: event, Session: session})
}

func (m *MockProvider) Subscribers() int {
	return m.hub.Len()
}

func (m *MockProvider) CurrentSession(ctx context.Context) (*auth.ProviderSession, error) {
	args := m.Called(ctx)
	session, _ := args.Get(0).(*auth.ProviderSession)
	return session, args.Error(1)
}

func (m *MockProvider) OnSessionChange(handler auth.SessionChangeHandler) auth.Subscription {
	return m.hub.Subscribe(handler)
}

func (m *MockProvider) SignUp(ctx context.Context, email, password string, opts auth.SignUpOptions) (*auth.ProviderUser, error) {
	args := m.Called(ctx, email, password, opts)
	user, _ := args.Get(0).(*auth.ProviderUser)
	return user, args.Error(1)
}

func (m *MockProvider) SignInWithPassword(ctx context.Context, email, password string) (*auth.ProviderSession, error) {
	args := m.Called(ctx, email, password)
	session, _ := args.Get(0).(*auth.ProviderSession)
	return session, args.Error(1)
}

func (m *MockProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockProvider) RequestPasswordReset(ctx context.Context, email string, opts auth.ResetOptions) error {
	args := m.Called(ctx, email, opts)
	return args.Error(0)
}

func (m *MockProvider) QueryTable(ctx context.Context, table string, query auth.Query) ([]auth.Record, error) {
	args := m.Called(ctx, table, query)
	records, _ := args.Get(0).([]auth.Record)
	return records, args.Error(1)
}

func (m *MockProvider) InsertRecord(ctx context.Context, table string, record auth.Record) (auth.Record, error) {
	args := m.Called(ctx, table, record)
	out, _ := args.Get(0).(auth.Record)
	return out, args.Error(1)
}

func (m *MockProvider) UpdateRecords(ctx context.Context, table string, filters []auth.Filter, values auth.Record) error {
	args := m.Called(ctx, table, filters, values)
	return args.Error(0)
}

// testLogger discards output.
type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// recordingSink keeps every activity event.
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// recordingNotifier keeps every notice.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []auth.Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice auth.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) Last() (auth.Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) == 0 {
		return auth.Notice{}, false
	}
	return n.notices[len(n.notices)-1], true
}

func adminQuery(userID string) interface{} {
	return mock.MatchedBy(func(q auth.Query) bool {
		return len(q.Filters) == 1 &&
			q.Filters[0].Column == "user_id" &&
			q.Filters[0].Value == userID
	})
}

func providerSession(id, email string) *auth.ProviderSession {
	return &auth.ProviderSession{
		AccessToken: "token-" + id,
		User: auth.ProviderUser{
			ID:    id,
			Email: email,
		},
	}
}
