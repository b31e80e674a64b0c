package auth

import (
	"fmt"
	"time"
)

// GateState is the authentication state derived from a Session.
type GateState string

const (
	// StatePending is held until the startup session lookup resolves.
	StatePending            GateState = "pending"
	StateUnauthenticated    GateState = "unauthenticated"
	StateAuthenticated      GateState = "authenticated"
	StateAuthenticatedAdmin GateState = "authenticated_admin"
)

// IsAuthenticated reports whether the state carries a signed in user.
func (s GateState) IsAuthenticated() bool {
	return s == StateAuthenticated || s == StateAuthenticatedAdmin
}

// Session is the local view of the signed in identity. IsAdmin is only
// meaningful while IsAuthenticated is true.
type Session struct {
	UserID          string     `json:"user_id,omitempty"`
	Email           string     `json:"email,omitempty"`
	IsAuthenticated bool       `json:"is_authenticated"`
	IsAdmin         bool       `json:"is_admin"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// State derives the gate state for the session.
func (s Session) State() GateState {
	switch {
	case !s.IsAuthenticated:
		return StateUnauthenticated
	case s.IsAdmin:
		return StateAuthenticatedAdmin
	default:
		return StateAuthenticated
	}
}

// Equal compares the identity and authorization fields.
func (s Session) Equal(o Session) bool {
	return s.UserID == o.UserID &&
		s.Email == o.Email &&
		s.IsAuthenticated == o.IsAuthenticated &&
		s.IsAdmin == o.IsAdmin
}

func (s Session) String() string {
	return fmt.Sprintf(
		"user=%s email=%s authenticated=%t admin=%t",
		s.UserID,
		s.Email,
		s.IsAuthenticated,
		s.IsAdmin,
	)
}

// SessionFromProvider builds an authenticated Session without admin rights.
// A nil provider session yields the zero, unauthenticated Session.
func SessionFromProvider(ps *ProviderSession) Session {
	if ps == nil || ps.User.ID == "" {
		return Session{}
	}

	out := Session{
		UserID:          ps.User.ID,
		Email:           ps.User.Email,
		IsAuthenticated: true,
	}

	if !ps.ExpiresAt.IsZero() {
		exp := ps.ExpiresAt
		out.ExpiresAt = &exp
	}

	return out
}

// Snapshot is a point in time copy of the gate state handed to listeners.
type Snapshot struct {
	Session   Session   `json:"session"`
	State     GateState `json:"state"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pending reports whether the startup lookup has not resolved yet.
func (s Snapshot) Pending() bool {
	return s.State == StatePending
}
