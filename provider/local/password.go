package local

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = goerrors.New("password must not be empty", goerrors.CategoryValidation).
		WithTextCode("EMPTY_PASSWORD").
		WithCode(goerrors.CodeBadRequest)

	// ErrMismatchedHashAndPassword is returned when a password does not match its hash.
	ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
		WithTextCode("PASSWORD_MISMATCH").
		WithCode(goerrors.CodeUnauthorized)
)

// HashPassword generates a bcrypt hash. A cost outside the bcrypt range falls
// back to the build default.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// ComparePasswordAndHash validates the cleartext password against hash.
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}
