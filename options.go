package auth

import (
	"time"

	"go.opentelemetry.io/otel/trace"
)

// DefaultCallTimeout bounds every provider call issued by the gate.
const DefaultCallTimeout = 10 * time.Second

// DefaultSignUpSource tags accounts created through the gate.
const DefaultSignUpSource = "website"

// Tables names the provider tables the gate reads and writes.
type Tables struct {
	Cases    string
	Admins   string
	Profiles string
}

// DefaultTables returns the standard table names.
func DefaultTables() Tables {
	return Tables{
		Cases:    TableTreatmentCases,
		Admins:   TableAdminUsers,
		Profiles: TableUserProfiles,
	}
}

// Option configures a SessionGate.
type Option func(*SessionGate)

// WithLogger sets the logger used by the gate.
func WithLogger(logger Logger) Option {
	return func(g *SessionGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithLoggerProvider sets the provider used to derive named loggers.
func WithLoggerProvider(provider LoggerProvider) Option {
	return func(g *SessionGate) {
		if provider != nil {
			g.loggerProvider = provider
		}
	}
}

// WithActivitySink wires an activity sink for gate events.
func WithActivitySink(sink ActivitySink) Option {
	return func(g *SessionGate) {
		g.activity = normalizeActivitySink(sink)
	}
}

// WithNavigation sets where redirect URLs are rooted.
func WithNavigation(nav NavigationContext) Option {
	return func(g *SessionGate) {
		if nav != nil {
			g.navigation = nav
		}
	}
}

// WithNotifier receives a notice for every operation result.
func WithNotifier(n Notifier) Option {
	return func(g *SessionGate) {
		if n != nil {
			g.notifier = n
		}
	}
}

// WithMessages overrides the localized message source.
func WithMessages(m *Messages) Option {
	return func(g *SessionGate) {
		if m != nil {
			g.messages = m
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(g *SessionGate) {
		if clock != nil {
			g.now = clock
		}
	}
}

// WithCallTimeout overrides DefaultCallTimeout.
func WithCallTimeout(d time.Duration) Option {
	return func(g *SessionGate) {
		if d > 0 {
			g.callTimeout = d
		}
	}
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(g *SessionGate) {
		if tracer != nil {
			g.tracer = tracer
		}
	}
}

// WithTables overrides the provider table names. Empty fields keep defaults.
func WithTables(t Tables) Option {
	return func(g *SessionGate) {
		if t.Cases != "" {
			g.tables.Cases = t.Cases
		}
		if t.Admins != "" {
			g.tables.Admins = t.Admins
		}
		if t.Profiles != "" {
			g.tables.Profiles = t.Profiles
		}
	}
}

// WithSignUpSource sets the source tag stored with new accounts.
func WithSignUpSource(source string) Option {
	return func(g *SessionGate) {
		if source != "" {
			g.signUpSource = source
		}
	}
}

// WithStateMachineOptions forwards options to the gate state machine.
func WithStateMachineOptions(opts ...StateMachineOption) Option {
	return func(g *SessionGate) {
		g.machineOpts = append(g.machineOpts, opts...)
	}
}

// WithPhoneRegion sets the region assumed for phone numbers without a country prefix.
func WithPhoneRegion(region string) Option {
	return func(g *SessionGate) {
		if region != "" {
			g.phoneRegion = region
		}
	}
}
