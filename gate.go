package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/goliatone/go-clinic-auth"

const reasonSessionExpired = "session_expired"

// Operation names used for spans, metrics and activity metadata.
const (
	OpCurrentSession = "current_session"
	OpSignUp         = "sign_up"
	OpSignIn         = "sign_in"
	OpSignOut        = "sign_out"
	OpPasswordReset  = "password_reset"
	OpAdminLookup    = "admin_lookup"
	OpTouchProfile   = "touch_profile"
	OpLoadGallery    = "load_gallery"
	OpSaveCase       = "save_case"
)

// ErrProviderRequired is returned by NewSessionGate without a provider.
var ErrProviderRequired = errors.New("session gate requires a provider", errors.CategoryBadInput).
	WithTextCode("PROVIDER_REQUIRED").
	WithCode(errors.CodeBadRequest)

// Gallery is the last successfully fetched gated content.
type Gallery struct {
	Cases    []TreatmentCase
	Loaded   bool
	LoadedAt time.Time

	// LoadFailed is set when the latest fetch failed. Cases from an earlier
	// successful fetch are kept.
	LoadFailed bool
}

// ComingSoon reports a loaded but empty gallery.
func (g Gallery) ComingSoon() bool {
	return g.Loaded && len(g.Cases) == 0
}

// SnapshotListener is notified after every committed state change.
type SnapshotListener func(Snapshot)

type listenerEntry struct {
	id uint64
	fn SnapshotListener
}

// SessionGate owns the visitor session and derives what gated content can be
// shown. It is safe for concurrent use. Session updates arrive from operation
// results and from provider notifications; the most recently started update
// wins.
type SessionGate struct {
	provider       Provider
	messages       *Messages
	navigation     NavigationContext
	notifier       Notifier
	activity       ActivitySink
	logger         Logger
	loggerProvider LoggerProvider
	tracer         trace.Tracer
	machine        *gateStateMachine
	machineOpts    []StateMachineOption
	now            func() time.Time
	callTimeout    time.Duration
	tables         Tables
	signUpSource   string
	phoneRegion    string

	mu               sync.RWMutex
	snapshot         Snapshot
	generation       uint64
	adminResolvedFor string
	gallery          Gallery
	listeners        []listenerEntry
	nextListener     uint64
	subscription     Subscription
	started          bool
	closed           bool
}

// NewSessionGate builds a gate in the pending state. Call Start to resolve
// the current session and subscribe to provider notifications.
func NewSessionGate(provider Provider, opts ...Option) (*SessionGate, error) {
	if provider == nil {
		return nil, ErrProviderRequired
	}

	g := &SessionGate{
		provider:     provider,
		navigation:   StaticOrigin(""),
		notifier:     noopNotifier{},
		activity:     noopActivitySink{},
		now:          time.Now,
		callTimeout:  DefaultCallTimeout,
		tables:       DefaultTables(),
		signUpSource: DefaultSignUpSource,
		phoneRegion:  DefaultPhoneRegion,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	g.loggerProvider, g.logger = ResolveLogger("auth.gate", g.loggerProvider, g.logger)

	if g.messages == nil {
		g.messages = NewMessages("")
	}

	if g.tracer == nil {
		g.tracer = otel.Tracer(tracerName)
	}

	machineOpts := append([]StateMachineOption{
		WithStateMachineClock(g.now),
		WithStateMachineActivitySink(g.activity),
	}, g.machineOpts...)
	g.machine = newGateStateMachine(g.logger, machineOpts...)

	g.snapshot = Snapshot{State: StatePending, UpdatedAt: g.now()}

	return g, nil
}

// Start subscribes to provider session changes and resolves the startup
// session. The gate always leaves the pending state, even when the lookup
// fails; the failure is returned for the caller to log.
func (g *SessionGate) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrGateClosed
	}
	if g.started {
		g.mu.Unlock()
		return nil
	}
	g.started = true
	g.mu.Unlock()

	sub := g.provider.OnSessionChange(g.handleSessionChange)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		sub.Unsubscribe()
		return ErrGateClosed
	}
	g.subscription = sub
	gen := g.beginLocked()
	g.mu.Unlock()

	var ps *ProviderSession
	err := g.call(ctx, OpCurrentSession, func(ctx context.Context) error {
		var err error
		ps, err = g.provider.CurrentSession(ctx)
		return err
	})
	if err != nil {
		g.logger.Warn("startup session lookup failed", "error", err)
		ps = nil
	}

	g.apply(ctx, gen, ps, "startup")

	if err != nil {
		return WrapProviderError(err, OpCurrentSession)
	}
	return nil
}

// Close releases the provider subscription and drops listeners. Later
// operations fail with ErrGateClosed. Close is idempotent.
func (g *SessionGate) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	sub := g.subscription
	g.subscription = nil
	g.listeners = nil
	g.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	return nil
}

// Snapshot returns the current state.
func (g *SessionGate) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshot
}

// Session returns the current session.
func (g *SessionGate) Session() Session {
	return g.Snapshot().Session
}

// State returns the current gate state.
func (g *SessionGate) State() GateState {
	return g.Snapshot().State
}

// Gallery returns the last successfully loaded gated content.
func (g *SessionGate) Gallery() Gallery {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := g.gallery
	out.Cases = append([]TreatmentCase(nil), g.gallery.Cases...)
	return out
}

// Messages returns the localized message source.
func (g *SessionGate) Messages() *Messages {
	return g.messages
}

// OnChange registers a listener for committed state changes. The returned
// function removes it.
func (g *SessionGate) OnChange(listener SnapshotListener) func() {
	if listener == nil {
		return func() {}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return func() {}
	}

	g.nextListener++
	id := g.nextListener
	g.listeners = append(g.listeners, listenerEntry{id: id, fn: listener})

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			for i, l := range g.listeners {
				if l.id == id {
					g.listeners = append(g.listeners[:i], g.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// SignUp registers a new account. The password rules are checked locally
// before the provider is contacted. Success means a confirmation email was
// requested; the session is not changed.
func (g *SessionGate) SignUp(ctx context.Context, email, password string) Result {
	return g.SignUpWithPhone(ctx, email, password, "")
}

// SignUpWithPhone is SignUp with an optional contact number stored in the
// account metadata in E.164 form.
func (g *SessionGate) SignUpWithPhone(ctx context.Context, email, password, phone string) Result {
	ctx, span := g.startSpan(ctx, OpSignUp)
	defer span.End()

	if err := g.ensureOpen(); err != nil {
		return g.fail(ctx, OpSignUp, ActivityEventSignUpFailure, err, Session{Email: email})
	}

	if err := ValidateCredentials(PurposeSignUp, email, password); err != nil {
		return g.fail(ctx, OpSignUp, ActivityEventSignUpFailure, err, Session{Email: email})
	}

	normalized, err := NormalizePhone(phone, g.phoneRegion)
	if err != nil {
		return g.fail(ctx, OpSignUp, ActivityEventSignUpFailure, err, Session{Email: email})
	}

	opts := SignUpOptions{
		EmailRedirectTo: redirectURL(g.navigation, CallbackPath),
		Data:            map[string]any{"source": g.signUpSource},
	}
	if normalized != "" {
		opts.Data["phone"] = normalized
	}

	var user *ProviderUser
	err = g.call(ctx, OpSignUp, func(ctx context.Context) error {
		var err error
		user, err = g.provider.SignUp(ctx, email, password, opts)
		return err
	})
	if err != nil {
		return g.fail(ctx, OpSignUp, ActivityEventSignUpFailure, err, Session{Email: email})
	}

	res := Result{
		Success: true,
		Message: g.messages.Text(KeySignUpSuccess),
		Session: g.Session(),
		User:    user,
	}

	actor := Session{Email: email}
	if user != nil {
		actor.UserID = user.ID
	}
	g.record(ctx, ActivityEventSignUpSuccess, actor, nil)
	g.notify(ctx, res)

	return res
}

// SignIn authenticates with email and password, resolves the admin flag and
// touches the profile last sign in timestamp.
func (g *SessionGate) SignIn(ctx context.Context, email, password string) Result {
	ctx, span := g.startSpan(ctx, OpSignIn)
	defer span.End()

	if err := g.ensureOpen(); err != nil {
		return g.fail(ctx, OpSignIn, ActivityEventSignInFailure, err, Session{Email: email})
	}

	if err := ValidateCredentials(PurposeSignIn, email, password); err != nil {
		return g.fail(ctx, OpSignIn, ActivityEventSignInFailure, err, Session{Email: email})
	}

	var ps *ProviderSession
	err := g.call(ctx, OpSignIn, func(ctx context.Context) error {
		var err error
		ps, err = g.provider.SignInWithPassword(ctx, email, password)
		return err
	})
	if err == nil && (ps == nil || ps.User.ID == "") {
		err = NewProviderError("", OpSignIn, "", "provider returned no session")
	}
	if err != nil {
		return g.fail(ctx, OpSignIn, ActivityEventSignInFailure, err, Session{Email: email})
	}

	gen := g.begin()
	snap := g.apply(ctx, gen, ps, OpSignIn)

	g.touchLastSignIn(ctx, ps.User.ID)

	session := SessionFromProvider(ps)
	if snap.Session.UserID == session.UserID {
		session = snap.Session
	}

	user := ps.User
	res := Result{
		Success: true,
		Message: g.messages.Text(KeySignInSuccess),
		Session: session,
		User:    &user,
	}

	g.record(ctx, ActivityEventSignInSuccess, session, map[string]any{"admin": session.IsAdmin})
	g.notify(ctx, res)

	return res
}

// SignOut ends the session. Local state is always cleared; a provider
// failure is reported in the result.
func (g *SessionGate) SignOut(ctx context.Context) Result {
	ctx, span := g.startSpan(ctx, OpSignOut)
	defer span.End()

	if err := g.ensureOpen(); err != nil {
		return g.fail(ctx, OpSignOut, ActivityEventSignOutFailure, err, g.Session())
	}

	previous := g.Session()

	err := g.call(ctx, OpSignOut, func(ctx context.Context) error {
		return g.provider.SignOut(ctx)
	})

	gen := g.begin()
	snap := g.apply(ctx, gen, nil, OpSignOut)

	if err != nil {
		res := Result{
			Success: false,
			Kind:    ClassifyError(err),
			Message: g.messages.Text(KeySignOutFailure),
			Err:     err,
			Session: snap.Session,
		}
		g.logger.Warn("sign out failed, local session cleared", "error", err)
		g.record(ctx, ActivityEventSignOutFailure, previous, map[string]any{
			"kind":  string(res.Kind),
			"error": RawMessage(err),
		})
		g.notify(ctx, res)
		return res
	}

	res := Result{
		Success: true,
		Message: g.messages.Text(KeySignOutSuccess),
		Session: snap.Session,
	}
	g.record(ctx, ActivityEventSignOutSuccess, previous, nil)
	g.notify(ctx, res)

	return res
}

// RequestPasswordReset asks the provider to email a reset link. Provider
// failures are logged; the visitor always gets the same confirmation so the
// result does not reveal whether the address is registered.
func (g *SessionGate) RequestPasswordReset(ctx context.Context, email string) Result {
	ctx, span := g.startSpan(ctx, OpPasswordReset)
	defer span.End()

	if err := g.ensureOpen(); err != nil {
		return g.fail(ctx, OpPasswordReset, ActivityEventPasswordResetFailure, err, Session{Email: email})
	}

	if err := ValidateCredentials(PurposePasswordReset, email, ""); err != nil {
		return g.fail(ctx, OpPasswordReset, ActivityEventPasswordResetFailure, err, Session{Email: email})
	}

	opts := ResetOptions{RedirectTo: redirectURL(g.navigation, ResetPasswordPath)}

	err := g.call(ctx, OpPasswordReset, func(ctx context.Context) error {
		return g.provider.RequestPasswordReset(ctx, email, opts)
	})

	actor := Session{Email: email}
	if err != nil {
		g.logger.Warn("password reset request failed", "kind", ClassifyError(err), "error", err)
		g.record(ctx, ActivityEventPasswordResetFailure, actor, map[string]any{
			"kind":  string(ClassifyError(err)),
			"error": RawMessage(err),
		})
	} else {
		g.record(ctx, ActivityEventPasswordResetRequested, actor, nil)
	}

	res := Result{
		Success: true,
		Message: g.messages.Text(KeyResetSent),
		Session: g.Session(),
	}
	g.notify(ctx, res)

	return res
}

// CheckAdminStatus queries the admin table for the current user and records
// the outcome. Without a current user it returns false and issues no query.
// Any lookup failure counts as not admin.
func (g *SessionGate) CheckAdminStatus(ctx context.Context) bool {
	ctx, span := g.startSpan(ctx, OpAdminLookup)
	defer span.End()

	g.mu.Lock()
	if g.closed || !g.snapshot.Session.IsAuthenticated || g.snapshot.Session.UserID == "" {
		g.mu.Unlock()
		return false
	}
	current := g.snapshot.Session
	gen := g.beginLocked()
	g.mu.Unlock()

	next := current
	admin, expired := g.lookupAdmin(ctx, current)
	if expired {
		g.commit(ctx, gen, Session{}, reasonSessionExpired)
		return false
	}
	next.IsAdmin = admin
	g.commit(ctx, gen, next, OpAdminLookup)

	return next.IsAdmin
}

// LoadGatedContent fetches the treatment cases, newest first. Without an
// authenticated session it returns ErrNotAuthenticated without querying and
// leaves the stored gallery as is. A failed fetch keeps the cached cases and
// sets LoadFailed. An expired session signs the visitor out.
func (g *SessionGate) LoadGatedContent(ctx context.Context) ([]TreatmentCase, error) {
	ctx, span := g.startSpan(ctx, OpLoadGallery)
	defer span.End()

	if err := g.ensureOpen(); err != nil {
		return nil, err
	}

	session := g.Session()
	if !session.IsAuthenticated {
		return nil, ErrNotAuthenticated
	}

	var records []Record
	err := g.call(ctx, OpLoadGallery, func(ctx context.Context) error {
		var err error
		records, err = g.provider.QueryTable(ctx, g.tables.Cases, Query{
			Order: []Order{{Column: "created_at", Descending: true}},
		})
		return err
	})
	if err != nil {
		g.logger.Error("gallery load failed", "error", err)
		g.record(ctx, ActivityEventGalleryLoadFailure, session, map[string]any{
			"kind":  string(ClassifyError(err)),
			"error": RawMessage(err),
		})
		if IsExpiredSessionError(err) {
			g.expire(ctx, session, OpLoadGallery)
		} else {
			g.mu.Lock()
			if g.snapshot.Session.IsAuthenticated && g.snapshot.Session.UserID == session.UserID {
				g.gallery.LoadFailed = true
			}
			g.mu.Unlock()
		}
		return nil, WrapProviderError(err, OpLoadGallery)
	}

	cases, skipped := TreatmentCasesFromRecords(records)
	for _, serr := range skipped {
		g.logger.Warn("skipping malformed treatment case", "error", serr)
	}

	g.mu.Lock()
	if g.snapshot.Session.IsAuthenticated && g.snapshot.Session.UserID == session.UserID {
		g.gallery = Gallery{
			Cases:    append([]TreatmentCase(nil), cases...),
			Loaded:   true,
			LoadedAt: g.now(),
		}
	}
	g.mu.Unlock()

	return cases, nil
}

func (g *SessionGate) handleSessionChange(ctx context.Context, event SessionChangeEvent) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	gen := g.beginLocked()
	g.mu.Unlock()

	g.logger.Debug("provider session change", "event", event.Event, "has_session", event.Session != nil)
	g.apply(ctx, gen, event.Session, string(event.Event))
}

func (g *SessionGate) begin() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.beginLocked()
}

func (g *SessionGate) beginLocked() uint64 {
	g.generation++
	return g.generation
}

// apply replaces the session wholesale with the one derived from ps.
// An admin lookup that finds the session expired yields no session.
func (g *SessionGate) apply(ctx context.Context, gen uint64, ps *ProviderSession, reason string) Snapshot {
	next := SessionFromProvider(ps)
	if next.IsAuthenticated {
		admin, expired := g.resolveAdmin(ctx, next)
		if expired {
			next, reason = Session{}, reasonSessionExpired
		} else {
			next.IsAdmin = admin
		}
	}
	return g.commit(ctx, gen, next, reason)
}

func (g *SessionGate) resolveAdmin(ctx context.Context, s Session) (admin, expired bool) {
	g.mu.RLock()
	resolved := g.adminResolvedFor != "" && g.adminResolvedFor == s.UserID
	isAdmin := g.snapshot.Session.IsAdmin
	g.mu.RUnlock()

	if resolved {
		return isAdmin, false
	}
	return g.lookupAdmin(ctx, s)
}

// lookupAdmin fails closed. expired reports that the provider no longer
// accepts the session.
func (g *SessionGate) lookupAdmin(ctx context.Context, s Session) (admin, expired bool) {
	var rows []Record
	err := g.call(ctx, OpAdminLookup, func(ctx context.Context) error {
		var err error
		rows, err = g.provider.QueryTable(ctx, g.tables.Admins, Query{
			Columns: []string{"user_id"},
			Filters: []Filter{Eq("user_id", s.UserID)},
			Limit:   1,
		})
		return err
	})
	if err != nil {
		g.logger.Warn("admin lookup failed", "user_id", s.UserID, "error", err)
		g.record(ctx, ActivityEventAdminLookupFailure, s, map[string]any{
			"error": RawMessage(err),
		})
		return false, IsExpiredSessionError(err)
	}
	return len(rows) > 0, false
}

// expire drops s after the provider reported it expired, unless another
// update already replaced it.
func (g *SessionGate) expire(ctx context.Context, s Session, op string) {
	g.mu.Lock()
	current := g.snapshot.Session
	if g.closed || !current.IsAuthenticated || current.UserID != s.UserID {
		g.mu.Unlock()
		return
	}
	gen := g.beginLocked()
	g.mu.Unlock()

	g.logger.Info("session expired", "operation", op, "user_id", s.UserID)
	g.commit(ctx, gen, Session{}, reasonSessionExpired)
}

func (g *SessionGate) commit(ctx context.Context, gen uint64, next Session, reason string) Snapshot {
	if !next.IsAuthenticated {
		next = Session{}
	}

	g.mu.Lock()
	current := g.snapshot

	if g.closed || gen != g.generation {
		g.mu.Unlock()
		g.logger.Debug("discarding stale session update", "reason", reason, "generation", gen)
		return current
	}

	if !next.IsAuthenticated || next.UserID != current.Session.UserID {
		g.gallery = Gallery{}
	}
	if next.IsAuthenticated {
		g.adminResolvedFor = next.UserID
	} else {
		g.adminResolvedFor = ""
	}

	if !current.Pending() && current.Session.Equal(next) {
		g.snapshot.Session.ExpiresAt = next.ExpiresAt
		snap := g.snapshot
		g.mu.Unlock()
		return snap
	}

	if err := g.machine.Validate(current.State, next.State()); err != nil {
		g.mu.Unlock()
		g.logger.Error("rejected gate transition", "reason", reason, "error", err)
		return current
	}

	snap := Snapshot{
		Session:   next,
		State:     next.State(),
		Version:   current.Version + 1,
		UpdatedAt: g.now(),
	}
	g.snapshot = snap

	listeners := make([]listenerEntry, len(g.listeners))
	copy(listeners, g.listeners)
	g.mu.Unlock()

	sort.Slice(listeners, func(i, j int) bool { return listeners[i].id < listeners[j].id })

	g.machine.Committed(ctx, TransitionContext{
		From:    current,
		To:      snap,
		Reason:  reason,
		Session: next,
	})

	for _, l := range listeners {
		l.fn(snap)
	}

	return snap
}

// touchLastSignIn is best effort; failures are logged only.
func (g *SessionGate) touchLastSignIn(ctx context.Context, userID string) {
	err := g.call(ctx, OpTouchProfile, func(ctx context.Context) error {
		return g.provider.UpdateRecords(ctx, g.tables.Profiles,
			[]Filter{Eq("id", userID)},
			Record{"last_sign_in_at": g.now().UTC()},
		)
	})
	if err != nil {
		g.logger.Warn("last sign in update failed", "user_id", userID, "error", err)
		g.record(ctx, ActivityEventProfileTouchFailure, Session{UserID: userID}, map[string]any{
			"error": RawMessage(err),
		})
	}
}

func (g *SessionGate) fail(ctx context.Context, op string, event ActivityEventType, err error, actor Session) Result {
	return g.failWith(ctx, op, event, err, actor, g.messages.ErrorMessage(err))
}

func (g *SessionGate) failWith(ctx context.Context, op string, event ActivityEventType, err error, actor Session, message string) Result {
	res := Result{
		Success: false,
		Kind:    ClassifyError(err),
		Message: message,
		Err:     err,
		Session: g.Session(),
	}

	g.logger.Warn("gate operation failed", "operation", op, "kind", res.Kind, "error", err)
	g.record(ctx, event, actor, map[string]any{
		"kind":  string(res.Kind),
		"error": RawMessage(err),
	})
	g.notify(ctx, res)

	return res
}

func (g *SessionGate) ensureOpen() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return ErrGateClosed
	}
	return nil
}

func (g *SessionGate) notify(ctx context.Context, res Result) {
	g.notifier.Notify(ctx, res.Notice(g.now()))
}

func (g *SessionGate) record(ctx context.Context, eventType ActivityEventType, s Session, metadata map[string]any) {
	event := newActivityEvent(eventType, s, metadata, g.now())
	if err := g.activity.Record(ctx, event); err != nil {
		g.logger.Warn("activity sink failed", "event", eventType, "error", err)
	}
}

func (g *SessionGate) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return g.tracer.Start(ctx, "auth.gate."+op, trace.WithAttributes(attribute.String("auth.operation", op)))
}

// call runs fn against the provider with the call timeout applied.
func (g *SessionGate) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "auth.provider."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	started := time.Now()
	err := fn(ctx)
	observeProviderCall(op, err, time.Since(started))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(ClassifyError(err)))
	}
	return err
}
