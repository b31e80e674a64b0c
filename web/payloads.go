package web

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-clinic-auth"
)

// CredentialsPayload is posted by the sign in and sign up forms. Field
// checks are left to the gate so the visitor sees the localized message.
type CredentialsPayload struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
	Phone    string `form:"phone" json:"phone"`
}

// ResetRequestPayload is posted by the password reset form.
type ResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// NewPasswordPayload is posted from the recovery link landing page.
type NewPasswordPayload struct {
	Token           string `form:"token" json:"token"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// ErrPasswordMismatch is reported when the confirmation differs.
var ErrPasswordMismatch = errors.New("values must match")

// Validate implements validation.Validatable.
func (r NewPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(auth.MinPasswordLength, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// ValidateStringEquals checks that the value matches str.
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return ErrPasswordMismatch
		}
		return nil
	}
}
