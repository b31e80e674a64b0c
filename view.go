package auth

import (
	"strings"
	"time"
)

// Gallery view message keys.
const (
	KeyGalleryLockedTitle     = "gallery.locked.title"
	KeyGalleryLockedBody      = "gallery.locked.body"
	KeyGalleryComingSoonTitle = "gallery.coming_soon.title"
	KeyGalleryComingSoonBody  = "gallery.coming_soon.body"
	KeyGalleryLoadingTitle    = "gallery.loading.title"
	KeyGalleryLoadingBody     = "gallery.loading.body"
	KeyGalleryFailedTitle     = "gallery.unavailable.title"
	KeyGalleryFailedBody      = "gallery.unavailable.body"
	KeyGalleryLoginTitle      = "gallery.login.title"
	KeyGalleryLoginBody       = "gallery.login.body"
	KeyGalleryWelcome         = "gallery.welcome"
	KeyGalleryWelcomeBody     = "gallery.welcome.body"
	KeyGalleryAdminBadge      = "gallery.admin.badge"
	KeyGalleryAdminPanel      = "gallery.admin.panel"
	KeyGalleryCardBefore      = "gallery.card.before"
	KeyGalleryCardAfter       = "gallery.card.after"
	KeyGalleryCardRegistered  = "gallery.card.registered"
	KeyGalleryPending         = "gallery.pending"
)

// GalleryMode selects which gallery region is visible.
type GalleryMode string

const (
	GalleryPending    GalleryMode = "pending"
	GalleryLocked     GalleryMode = "locked"
	GalleryComingSoon GalleryMode = "coming_soon"
	GalleryCards      GalleryMode = "cards"

	// GalleryLoading means the cases were not fetched yet.
	GalleryLoading GalleryMode = "loading"

	// GalleryUnavailable means the last fetch failed and nothing is cached.
	GalleryUnavailable GalleryMode = "unavailable"
)

// ViewInput is everything BuildView needs.
type ViewInput struct {
	Snapshot Snapshot
	Gallery  Gallery
	Notice   *Notice
	Messages *Messages
	Origin   string
	Now      time.Time
}

// CaseCard is a rendered treatment case.
type CaseCard struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	BeforeImage string `json:"before_image"`
	AfterImage  string `json:"after_image"`
	BeforeLabel string `json:"before_label"`
	AfterLabel  string `json:"after_label"`
	Registered  string `json:"registered,omitempty"`
}

// ViewModel is the template facing projection of the gate state.
type ViewModel struct {
	Locale          string      `json:"locale"`
	State           GateState   `json:"state"`
	Pending         bool        `json:"pending"`
	PendingText     string      `json:"pending_text,omitempty"`
	ShowLoginForm   bool        `json:"show_login_form"`
	LoginTitle      string      `json:"login_title,omitempty"`
	LoginBody       string      `json:"login_body,omitempty"`
	ShowUserInfo    bool        `json:"show_user_info"`
	Email           string      `json:"email,omitempty"`
	Welcome         string      `json:"welcome,omitempty"`
	WelcomeBody     string      `json:"welcome_body,omitempty"`
	ShowAdminBadge  bool        `json:"show_admin_badge"`
	AdminBadge      string      `json:"admin_badge,omitempty"`
	AdminPanelURL   string      `json:"admin_panel_url,omitempty"`
	AdminPanelLabel string      `json:"admin_panel_label,omitempty"`
	GalleryMode     GalleryMode `json:"gallery_mode"`
	GalleryTitle    string      `json:"gallery_title,omitempty"`
	GalleryBody     string      `json:"gallery_body,omitempty"`
	Cases           []CaseCard  `json:"cases,omitempty"`
	Notice          *Notice     `json:"notice,omitempty"`
}

// BuildView derives the view model from state and data. It performs no I/O.
func BuildView(in ViewInput) ViewModel {
	msgs := in.Messages
	if msgs == nil {
		msgs = NewMessages("")
	}

	vm := ViewModel{
		Locale:      msgs.Locale(),
		State:       in.Snapshot.State,
		GalleryMode: GalleryLocked,
	}

	if in.Notice != nil && !in.Notice.Expired(in.Now) {
		n := *in.Notice
		vm.Notice = &n
	}

	switch {
	case in.Snapshot.Pending():
		vm.Pending = true
		vm.PendingText = msgs.Text(KeyGalleryPending)
		vm.GalleryMode = GalleryPending
		return vm

	case !in.Snapshot.State.IsAuthenticated():
		vm.ShowLoginForm = true
		vm.LoginTitle = msgs.Text(KeyGalleryLoginTitle)
		vm.LoginBody = msgs.Text(KeyGalleryLoginBody)
		vm.GalleryMode = GalleryLocked
		vm.GalleryTitle = msgs.Text(KeyGalleryLockedTitle)
		vm.GalleryBody = msgs.Text(KeyGalleryLockedBody)
		return vm
	}

	session := in.Snapshot.Session
	vm.ShowUserInfo = true
	vm.Email = session.Email
	vm.Welcome = msgs.Text(KeyGalleryWelcome, session.Email)
	vm.WelcomeBody = msgs.Text(KeyGalleryWelcomeBody)

	if in.Snapshot.State == StateAuthenticatedAdmin {
		vm.ShowAdminBadge = true
		vm.AdminBadge = msgs.Text(KeyGalleryAdminBadge)
		vm.AdminPanelURL = strings.TrimRight(in.Origin, "/") + AdminPanelPath
		vm.AdminPanelLabel = msgs.Text(KeyGalleryAdminPanel)
	}

	switch {
	case !in.Gallery.Loaded && in.Gallery.LoadFailed:
		vm.GalleryMode = GalleryUnavailable
		vm.GalleryTitle = msgs.Text(KeyGalleryFailedTitle)
		vm.GalleryBody = msgs.Text(KeyGalleryFailedBody)
		return vm
	case !in.Gallery.Loaded:
		vm.GalleryMode = GalleryLoading
		vm.GalleryTitle = msgs.Text(KeyGalleryLoadingTitle)
		vm.GalleryBody = msgs.Text(KeyGalleryLoadingBody)
		return vm
	}

	if len(in.Gallery.Cases) == 0 {
		vm.GalleryMode = GalleryComingSoon
		vm.GalleryTitle = msgs.Text(KeyGalleryComingSoonTitle)
		vm.GalleryBody = msgs.Text(KeyGalleryComingSoonBody)
		return vm
	}

	vm.GalleryMode = GalleryCards
	before := msgs.Text(KeyGalleryCardBefore)
	after := msgs.Text(KeyGalleryCardAfter)

	vm.Cases = make([]CaseCard, 0, len(in.Gallery.Cases))
	for _, tc := range in.Gallery.Cases {
		card := CaseCard{
			ID:          tc.ID,
			Title:       tc.Title,
			Description: tc.Description,
			BeforeImage: tc.BeforeImage,
			AfterImage:  tc.AfterImage,
			BeforeLabel: before,
			AfterLabel:  after,
		}
		if tc.CreatedAt != nil {
			card.Registered = msgs.Text(KeyGalleryCardRegistered, FormatDate(vm.Locale, *tc.CreatedAt))
		}
		vm.Cases = append(vm.Cases, card)
	}

	return vm
}

// FormatDate renders a calendar date the way the locale writes it.
func FormatDate(locale string, t time.Time) string {
	switch {
	case strings.HasPrefix(locale, "ko"):
		return t.Format("2006. 1. 2.")
	case strings.HasPrefix(locale, "en"):
		return t.Format("1/2/2006")
	default:
		return t.Format("2006-01-02")
	}
}

// View builds the view model for the current gate state.
func (g *SessionGate) View(notice *Notice) ViewModel {
	origin := ""
	if g.navigation != nil {
		origin = g.navigation.Origin()
	}
	return BuildView(ViewInput{
		Snapshot: g.Snapshot(),
		Gallery:  g.Gallery(),
		Notice:   notice,
		Messages: g.messages,
		Origin:   origin,
		Now:      g.now(),
	})
}
