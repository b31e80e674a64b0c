package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const textCodeInvalidTransition = "INVALID_GATE_STATE_TRANSITION"

// ErrInvalidTransition is returned when a requested gate state change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid gate state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// TransitionContext is passed into hooks after a state change commits.
type TransitionContext struct {
	From    Snapshot
	To      Snapshot
	Reason  string
	Session Session
}

// TransitionHook is executed after a transition commits.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, err error, tc TransitionContext)

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*gateStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *gateStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish transitions.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *gateStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink and hook failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *gateStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithStateMachineHook appends a hook executed after every committed transition.
func WithStateMachineHook(h TransitionHook) StateMachineOption {
	return func(sm *gateStateMachine) {
		if h != nil {
			sm.hooks = append(sm.hooks, h)
		}
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are reported.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *gateStateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

type gateStateMachine struct {
	transitions      map[GateState]map[GateState]struct{}
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	hooks            []TransitionHook
	hookErrorHandler HookErrorHandler
}

func newGateStateMachine(logger Logger, opts ...StateMachineOption) *gateStateMachine {
	sm := &gateStateMachine{
		transitions: map[GateState]map[GateState]struct{}{
			StatePending: {
				StateUnauthenticated:    {},
				StateAuthenticated:      {},
				StateAuthenticatedAdmin: {},
			},
			StateUnauthenticated: {
				StateAuthenticated:      {},
				StateAuthenticatedAdmin: {},
			},
			StateAuthenticated: {
				StateAuthenticated:      {},
				StateAuthenticatedAdmin: {},
				StateUnauthenticated:    {},
			},
			StateAuthenticatedAdmin: {
				StateAuthenticatedAdmin: {},
				StateAuthenticated:      {},
				StateUnauthenticated:    {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       logger,
	}

	sm.hookErrorHandler = func(_ context.Context, err error, tc TransitionContext) {
		sm.logger.Warn("gate transition hook failed",
			"from", tc.From.State,
			"to", tc.To.State,
			"error", err,
		)
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// Validate reports whether the move between states is allowed. Nothing may
// return to pending.
func (sm *gateStateMachine) Validate(from, to GateState) error {
	allowed, ok := sm.transitions[from]
	if !ok {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"from":   from,
			"to":     to,
			"reason": "unknown source state",
		})
	}

	if _, ok := allowed[to]; !ok {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   to,
		})
	}

	return nil
}

// Committed records the activity for a transition and runs the hooks.
func (sm *gateStateMachine) Committed(ctx context.Context, tc TransitionContext) {
	metadata := map[string]any{
		"version": tc.To.Version,
	}
	if tc.Reason != "" {
		metadata["reason"] = tc.Reason
	}

	event := newActivityEvent(ActivityEventSessionChanged, tc.Session, metadata, sm.now())
	event.FromState = tc.From.State
	event.ToState = tc.To.State

	if err := sm.activitySink.Record(ctx, event); err != nil {
		sm.logger.Warn("gate activity sink failed", "event", event.EventType, "error", err)
	}

	gateTransitions.WithLabelValues(string(tc.From.State), string(tc.To.State)).Inc()

	for _, hook := range sm.hooks {
		if err := hook(ctx, tc); err != nil {
			sm.hookErrorHandler(ctx, err, tc)
		}
	}
}
