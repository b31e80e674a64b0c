package rest

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-clinic-auth"
)

var signingMethods = []string{"RS256", "ES256", "EdDSA"}

// verify checks the access token signature against the configured key set.
// Expiry is handled by the session refresh logic, so claims are not
// validated here.
func (p *Provider) verify(accessToken string) error {
	if p.jwks == nil {
		return nil
	}

	_, err := jwt.Parse(accessToken, p.jwks.Keyfunc,
		jwt.WithValidMethods(signingMethods),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return &auth.ProviderError{
			Provider:  providerName,
			Operation: opJWKS,
			Status:    http.StatusUnauthorized,
			Code:      "bad_jwt",
			Message:   "invalid JWT: unable to verify signature",
			Err:       err,
		}
	}
	return nil
}

// tokenExpiry reads the exp claim without verifying the token. It returns
// the zero time when the claim is missing.
func tokenExpiry(accessToken string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time.UTC()
}
