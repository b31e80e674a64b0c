package auth

import (
	"github.com/goliatone/go-router"
)

// TemplateViewKey is the locals key and template variable holding the ViewModel.
var TemplateViewKey = "view"

// TemplateHelpers returns helper functions and constants for the django views.
//
// In templates:
//
//	{% if is_authenticated(view) %}
//	{% if is_admin(view) %}
//	{% if view.GalleryMode == gallery_modes.cards %}
func TemplateHelpers() map[string]any {
	return map[string]any{
		"is_authenticated": isAuthenticated,
		"is_admin":         isAdmin,
		"is_pending":       isPending,
		"notice_class":     noticeClass,

		"gallery_modes": map[string]string{
			"pending":     string(GalleryPending),
			"locked":      string(GalleryLocked),
			"coming_soon": string(GalleryComingSoon),
			"cards":       string(GalleryCards),
			"loading":     string(GalleryLoading),
			"unavailable": string(GalleryUnavailable),
		},
	}
}

// TemplateHelpersWithView returns template helpers with vm set under TemplateViewKey.
func TemplateHelpersWithView(vm ViewModel) map[string]any {
	helpers := TemplateHelpers()
	helpers[TemplateViewKey] = vm
	return helpers
}

// TemplateHelpersWithRouter returns template helpers with the view model
// found in the router context locals, when present.
func TemplateHelpersWithRouter(ctx router.Context, viewKey string) map[string]any {
	if viewKey == "" {
		viewKey = TemplateViewKey
	}

	helpers := TemplateHelpers()
	if vm, ok := GetTemplateView(ctx, viewKey); ok {
		helpers[TemplateViewKey] = vm
	}
	return helpers
}

// GetTemplateView extracts the view model stored in the router context.
func GetTemplateView(ctx router.Context, viewKey string) (ViewModel, bool) {
	if viewKey == "" {
		viewKey = TemplateViewKey
	}

	switch v := ctx.Locals(viewKey).(type) {
	case ViewModel:
		return v, true
	case *ViewModel:
		if v != nil {
			return *v, true
		}
	}
	return ViewModel{}, false
}

func stateOf(v any) GateState {
	switch u := v.(type) {
	case ViewModel:
		return u.State
	case *ViewModel:
		if u != nil {
			return u.State
		}
	case Snapshot:
		return u.State
	case Session:
		return u.State()
	case GateState:
		return u
	case map[string]any:
		if s, ok := u["state"].(string); ok {
			return GateState(s)
		}
	}
	return ""
}

func isAuthenticated(v any) bool {
	return stateOf(v).IsAuthenticated()
}

func isAdmin(v any) bool {
	return stateOf(v) == StateAuthenticatedAdmin
}

func isPending(v any) bool {
	return stateOf(v) == StatePending
}

func noticeClass(n any) string {
	switch u := n.(type) {
	case *Notice:
		if u != nil {
			return "message " + string(u.Kind)
		}
	case Notice:
		return "message " + string(u.Kind)
	}
	return "message"
}
