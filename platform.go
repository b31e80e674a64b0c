package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Redirect paths appended to the site origin.
const (
	CallbackPath      = "/auth/callback"
	ResetPasswordPath = "/auth/reset-password"
	AdminPanelPath    = "/admin.html"
)

// NoticeTTL is how long a notice stays visible.
const NoticeTTL = 5 * time.Second

// NavigationContext exposes the location the site is served from.
type NavigationContext interface {
	Origin() string
}

// StaticOrigin is a NavigationContext with a fixed origin.
type StaticOrigin string

// Origin implements NavigationContext.
func (o StaticOrigin) Origin() string {
	return strings.TrimRight(string(o), "/")
}

// NoticeKind selects how a notice is styled.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient message shown to the visitor.
type Notice struct {
	ID        string     `json:"id"`
	Kind      NoticeKind `json:"kind"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// NewNotice builds a notice that expires after NoticeTTL.
func NewNotice(kind NoticeKind, message string, now time.Time) Notice {
	return Notice{
		ID:        ulid.Make().String(),
		Kind:      kind,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(NoticeTTL),
	}
}

// Expired reports whether the notice should no longer be shown.
func (n Notice) Expired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

// Notifier receives a notice for every completed gate operation.
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, notice Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, notice Notice) {
	if f != nil {
		f(ctx, notice)
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notice) {}

func redirectURL(nav NavigationContext, path string) string {
	if nav == nil {
		return ""
	}
	origin := nav.Origin()
	if origin == "" {
		return ""
	}
	return origin + path
}
