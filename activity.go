package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSessionChanged         ActivityEventType = "auth.session.changed"
	ActivityEventSignUpSuccess          ActivityEventType = "auth.signup.success"
	ActivityEventSignUpFailure          ActivityEventType = "auth.signup.failure"
	ActivityEventSignInSuccess          ActivityEventType = "auth.signin.success"
	ActivityEventSignInFailure          ActivityEventType = "auth.signin.failure"
	ActivityEventSignOutSuccess         ActivityEventType = "auth.signout.success"
	ActivityEventSignOutFailure         ActivityEventType = "auth.signout.failure"
	ActivityEventPasswordResetRequested ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordResetFailure   ActivityEventType = "auth.password.reset_failure"
	ActivityEventAdminLookupFailure     ActivityEventType = "auth.admin.lookup_failure"
	ActivityEventProfileTouchFailure    ActivityEventType = "auth.profile.touch_failure"
	ActivityEventGalleryLoadFailure     ActivityEventType = "auth.gallery.load_failure"
	ActivityEventCaseSaved              ActivityEventType = "auth.case.saved"
	ActivityEventCaseSaveFailure        ActivityEventType = "auth.case.save_failure"
)

// ActivityEvent captures audit-friendly information about a gate action.
type ActivityEvent struct {
	ID         string
	EventType  ActivityEventType
	UserID     string
	Email      string
	FromState  GateState
	ToState    GateState
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Sinks run best effort: errors are logged and never fail the operation.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// NewLoggerActivitySink writes every event to logger at info level.
func NewLoggerActivitySink(logger Logger) ActivitySink {
	if logger == nil {
		return noopActivitySink{}
	}
	return ActivitySinkFunc(func(_ context.Context, event ActivityEvent) error {
		args := []any{
			"id", event.ID,
			"user_id", event.UserID,
		}
		if event.FromState != "" || event.ToState != "" {
			args = append(args, "from", event.FromState, "to", event.ToState)
		}
		for k, v := range event.Metadata {
			args = append(args, k, v)
		}
		logger.Info(string(event.EventType), args...)
		return nil
	})
}

func newActivityEvent(eventType ActivityEventType, session Session, metadata map[string]any, now time.Time) ActivityEvent {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return ActivityEvent{
		ID:         ulid.Make().String(),
		EventType:  eventType,
		UserID:     session.UserID,
		Email:      session.Email,
		Metadata:   metadata,
		OccurredAt: now,
	}
}
