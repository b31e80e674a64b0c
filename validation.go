package auth

import (
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// MinPasswordLength is the shortest password accepted on sign up.
const MinPasswordLength = 6

// DefaultPhoneRegion applies to numbers written without a country prefix.
const DefaultPhoneRegion = "KR"

// Purpose selects the rule set applied by ValidateCredentials.
type Purpose string

const (
	PurposeSignUp        Purpose = "sign_up"
	PurposeSignIn        Purpose = "sign_in"
	PurposePasswordReset Purpose = "password_reset"
)

// Validation message keys, resolved through the message catalog.
const (
	KeyCredentialsRequired = "auth.validation.credentials_required"
	KeyEmailRequired       = "auth.validation.email_required"
	KeyEmailFormat         = "auth.validation.email_format"
	KeyPasswordMin         = "auth.validation.password_min"
	KeyPhoneFormat         = "auth.validation.phone_format"
)

var (
	msgEmailRequired    = "email is required"
	msgPasswordRequired = "password is required"
	msgEmailFormat      = "must be a valid email address"
	msgPhoneFormat      = "must be a valid phone number"
	msgPasswordMin      = fmt.Sprintf("password must be at least %d characters", MinPasswordLength)
)

// ValidationError is returned when credentials fail local validation. Key
// names the catalog message for the most relevant failure.
type ValidationError struct {
	Key    string
	Fields map[string]string
	msg    string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.msg
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ValidateCredentials is the single rule set shared by every entry point that
// accepts an email and password. Sign up enforces MinPasswordLength, sign in
// only requires presence, and password reset ignores the password.
func ValidateCredentials(purpose Purpose, email, password string) error {
	email = strings.TrimSpace(email)

	fields := validation.Errors{
		"email": validation.Validate(email,
			validation.Required.Error(msgEmailRequired),
			is.Email.Error(msgEmailFormat),
		),
	}

	switch purpose {
	case PurposeSignUp:
		fields["password"] = validation.Validate(password,
			validation.Required.Error(msgPasswordRequired),
			validation.Length(MinPasswordLength, 0).Error(msgPasswordMin),
		)
	case PurposeSignIn:
		fields["password"] = validation.Validate(password,
			validation.Required.Error(msgPasswordRequired),
		)
	}

	err := fields.Filter()
	if err == nil {
		return nil
	}

	errs, ok := err.(validation.Errors)
	if !ok {
		return &ValidationError{Key: KeyCredentialsRequired, msg: err.Error()}
	}

	return newValidationError(purpose, email, password, errs)
}

func newValidationError(purpose Purpose, email, password string, errs validation.Errors) *ValidationError {
	out := &ValidationError{Fields: FormatValidationErrorToMap(errs)}

	switch {
	case purpose == PurposePasswordReset && email == "":
		out.Key, out.msg = KeyEmailRequired, msgEmailRequired
	case email == "" || (purpose != PurposePasswordReset && password == ""):
		out.Key, out.msg = KeyCredentialsRequired, "email and password are required"
	case errs["email"] != nil:
		out.Key, out.msg = KeyEmailFormat, msgEmailFormat
	default:
		out.Key, out.msg = KeyPasswordMin, msgPasswordMin
	}

	return out
}

// NormalizePhone formats an optional phone number as E.164. An empty input
// returns an empty string and no error.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if region == "" {
		region = DefaultPhoneRegion
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", &ValidationError{
			Key:    KeyPhoneFormat,
			Fields: map[string]string{"phone": msgPhoneFormat},
			msg:    msgPhoneFormat,
		}
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// FormatValidationErrorToMap flattens ozzo validation errors into field → message.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	errs, ok := err.(validation.Errors)
	if !ok {
		out["form"] = err.Error()
		return out
	}

	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if errs[k] != nil {
			out[k] = errs[k].Error()
		}
	}
	return out
}
