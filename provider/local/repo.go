package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var resetUserPasswordSQL = `UPDATE "auth_users"
SET
	"password_hash" = ?,
	"email_confirmed_at" = COALESCE("email_confirmed_at", ?),
	"updated_at" = ?
WHERE
	"id" = ?
RETURNING *;`

// Users is the identity repository.
type Users interface {
	repository.Repository[*User]

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	ConfirmEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
	TrackSignInTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string, at time.Time) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// NewUsersRepository builds the identity repository.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	user.Email = normalizeEmail(user.Email)
	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

// GetByIdentifierTx accepts an email address or a user id.
func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	column, value := resolveUserIdentifier(identifier)

	record := &User{}
	q := tx.NewSelect().Model(record)
	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"identifier": identifier,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.GetByIdentifierTx(ctx, tx, normalizeEmail(email))
}

func (a *users) ConfirmEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("email_confirmed_at = COALESCE(email_confirmed_at, ?)", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (a *users) TrackSignInTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("last_sign_in_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string, at time.Time) error {
	res, err := a.Repository.RawTx(ctx, tx, resetUserPasswordSQL, passwordHash, at, at, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

// Tokens stores emailed confirmation and recovery tokens.
type Tokens interface {
	repository.Repository[*AuthToken]

	LatestTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, kind TokenKind) (*AuthToken, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
}

type tokens struct {
	repository.Repository[*AuthToken]
}

// NewTokensRepository builds the token repository.
func NewTokensRepository(db *bun.DB) Tokens {
	handlers := repository.ModelHandlers[*AuthToken]{
		NewRecord: func() *AuthToken {
			return &AuthToken{}
		},
		GetID: func(record *AuthToken) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *AuthToken, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	}
	return &tokens{Repository: repository.NewRepository(db, handlers)}
}

func (t *tokens) LatestTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, kind TokenKind) (*AuthToken, error) {
	record := &AuthToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.kind = ?", kind).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id": userID.String(),
					"kind":    string(kind),
				})
		}
		return nil, err
	}
	return record, nil
}

// ConsumeTx marks a token used. Consuming an already used token fails with a
// record not found error.
func (t *tokens) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	res, err := tx.NewUpdate().
		Model((*AuthToken)(nil)).
		Set("used_at = ?", at).
		Where("id = ?", id).
		Where("used_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}
	return nil
}

// RepositoryManager exposes all repositories.
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Tokens() Tokens
}

type mngr struct {
	db     *bun.DB
	users  Users
	tokens Tokens
}

// NewRepositoryManager wires the local repositories around db.
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:     db,
		users:  NewUsersRepository(db),
		tokens: NewTokensRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.tokens == nil {
		return errors.New("repository tokens should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Tokens() Tokens {
	return m.tokens
}

func resolveUserIdentifier(identifier string) (string, string) {
	identifier = strings.TrimSpace(identifier)
	if _, err := uuid.Parse(identifier); err == nil {
		return "id", identifier
	}
	return "email", normalizeEmail(identifier)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
