package local

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-clinic-auth"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SeedSource tags profiles created by CreateUser.
const SeedSource = "seed"

// IsAdmin reports whether userID has a row in the admin table.
func (p *Provider) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	return p.db.NewSelect().
		Model((*auth.AdminUser)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Exists(ctx)
}

// CreateUser registers an account without the feature gate or confirmation
// email. It is meant for seeding and operator tooling.
func (p *Provider) CreateUser(ctx context.Context, email, password string, confirmed bool) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, providerError(opAdmin, http.StatusBadRequest, auth.CodeEmailInvalid, auth.MsgInvalidEmail)
	}
	if len(password) < auth.MinPasswordLength {
		return nil, providerError(opAdmin, http.StatusUnprocessableEntity, auth.CodeWeakPassword, auth.MsgWeakPassword)
	}

	hash, err := HashPassword(password, p.passwordCost)
	if err != nil {
		return nil, p.wrap(opAdmin, err)
	}

	now := p.now().UTC()
	user := &User{
		Email:        email,
		PasswordHash: hash,
		Metadata:     map[string]any{"source": SeedSource},
		CreatedAt:    &now,
		UpdatedAt:    &now,
	}
	if p.deterministicIDs {
		user.ID = deterministicID(email)
	}
	if confirmed {
		user.EmailConfirmedAt = &now
	}

	err = p.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := p.repos.Users().RegisterTx(ctx, tx, user); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&auth.UserProfile{
			ID:        user.ID.String(),
			Email:     email,
			Source:    SeedSource,
			CreatedAt: &now,
			UpdatedAt: &now,
		}).Exec(ctx)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, providerError(opAdmin, http.StatusUnprocessableEntity, auth.CodeUserAlreadyExists, auth.MsgAlreadyRegistered)
		}
		return nil, p.wrap(opAdmin, err)
	}

	return user, nil
}

// GrantAdmin adds the account with the given email to the admin table.
// Granting twice is a no-op.
func (p *Provider) GrantAdmin(ctx context.Context, email string) error {
	user, err := p.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		return p.wrap(opAdmin, err)
	}

	now := p.now().UTC()
	_, err = p.db.NewInsert().
		Model(&auth.AdminUser{UserID: user.ID.String(), Email: user.Email, CreatedAt: &now}).
		On("CONFLICT (user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return p.wrap(opAdmin, err)
	}

	p.logger.Info("admin granted", "user_id", user.ID)
	return nil
}

// RevokeAdmin removes the account with the given email from the admin table.
func (p *Provider) RevokeAdmin(ctx context.Context, email string) error {
	user, err := p.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		return p.wrap(opAdmin, err)
	}

	_, err = p.db.NewDelete().
		Model((*auth.AdminUser)(nil)).
		Where("user_id = ?", user.ID.String()).
		Exec(ctx)
	if err != nil {
		return p.wrap(opAdmin, err)
	}
	return nil
}

// AddTreatmentCase stores a gallery entry. Both images are required.
func (p *Provider) AddTreatmentCase(ctx context.Context, tc auth.TreatmentCase) (auth.TreatmentCase, error) {
	if strings.TrimSpace(tc.BeforeImage) == "" || strings.TrimSpace(tc.AfterImage) == "" {
		return tc, providerError(opAdmin, http.StatusBadRequest, "23502", "before_image and after_image are required")
	}
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	if tc.CreatedAt == nil {
		now := p.now().UTC()
		tc.CreatedAt = &now
	}

	if _, err := p.db.NewInsert().Model(&tc).Exec(ctx); err != nil {
		return tc, p.wrap(opAdmin, err)
	}
	return tc, nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
