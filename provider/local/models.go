package local

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenKind distinguishes single use email tokens.
type TokenKind string

const (
	TokenKindConfirm  TokenKind = "confirm"
	TokenKindRecovery TokenKind = "recovery"
)

// User is a local identity. The password hash never leaves the package.
type User struct {
	bun.BaseModel    `bun:"table:auth_users,alias:au"`
	ID               uuid.UUID      `bun:"id,pk,notnull,type:uuid" json:"id"`
	Email            string         `bun:"email,notnull" json:"email"`
	PasswordHash     string         `bun:"password_hash,notnull" json:"-"`
	EmailConfirmedAt *time.Time     `bun:"email_confirmed_at,nullzero" json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time     `bun:"last_sign_in_at,nullzero" json:"last_sign_in_at,omitempty"`
	Metadata         map[string]any `bun:"metadata,type:jsonb" json:"user_metadata,omitempty"`
	CreatedAt        *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Confirmed reports whether the email address was verified.
func (u *User) Confirmed() bool {
	return u != nil && u.EmailConfirmedAt != nil
}

// AuthToken is an emailed confirmation or recovery token. The token id is
// the secret sent to the user.
type AuthToken struct {
	bun.BaseModel `bun:"table:auth_tokens,alias:atk"`
	ID            uuid.UUID  `bun:"id,pk,notnull,type:uuid" json:"id"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Kind          TokenKind  `bun:"kind,notnull" json:"kind"`
	Email         string     `bun:"email,notnull" json:"email"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Usable reports whether the token can still be redeemed at now.
func (t *AuthToken) Usable(now time.Time) bool {
	if t == nil || t.UsedAt != nil {
		return false
	}
	return now.Before(t.ExpiresAt)
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Metadata == nil {
		record.Metadata = map[string]any{}
	}
}
