package local

import (
	"context"
	stderrors "errors"

	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-featuregate/gate/guard"
)

const providerName = "local"

var (
	errSignupDisabled = &auth.ProviderError{
		Provider: providerName,
		Status:   422,
		Code:     auth.CodeSignupDisabled,
		Message:  auth.MsgSignupsNotAllowed,
	}

	errPasswordResetDisabled = &auth.ProviderError{
		Provider: providerName,
		Status:   422,
		Code:     "recovery_disabled",
		Message:  "Password recovery is disabled",
	}
)

// StaticFeatures is a fixed feature gate. Keys that are not present are
// enabled.
type StaticFeatures map[string]bool

var _ gate.FeatureGate = StaticFeatures(nil)

// Enabled implements gate.FeatureGate.
func (s StaticFeatures) Enabled(_ context.Context, key string, _ ...gate.ResolveOption) (bool, error) {
	enabled, ok := s[key]
	if !ok {
		return true, nil
	}
	return enabled, nil
}

// Features builds a gate for the two switches the local provider honors.
func Features(signup, passwordReset bool) StaticFeatures {
	return StaticFeatures{
		gate.FeatureUsersSignup:        signup,
		gate.FeatureUsersPasswordReset: passwordReset,
	}
}

func normalizeFeatureGateError(err error) error {
	if err == nil {
		return nil
	}

	var perr *auth.ProviderError
	if stderrors.As(err, &perr) {
		return err
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return err
	}

	return errors.Wrap(err, errors.CategoryAuthz, "Feature gate check failed").
		WithCode(errors.CodeForbidden)
}

func requireFeatureGate(ctx context.Context, featureGate gate.FeatureGate, key string, disabledErr error) error {
	return guard.Require(ctx, featureGate, key,
		guard.WithDisabledError(disabledErr),
		guard.WithErrorMapper(normalizeFeatureGateError),
	)
}

func requirePasswordResetGate(ctx context.Context, featureGate gate.FeatureGate, allowFinalize bool) error {
	opts := []guard.Option{
		guard.WithDisabledError(errPasswordResetDisabled),
		guard.WithErrorMapper(normalizeFeatureGateError),
	}
	if allowFinalize {
		opts = append(opts, guard.WithOverrides(gate.FeatureUsersPasswordResetFinalize))
	}
	return guard.Require(ctx, featureGate, gate.FeatureUsersPasswordReset, opts...)
}
