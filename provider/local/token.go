package local

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired is returned when a session token is past its expiry.
	ErrTokenExpired = errors.New("session token expired", errors.CategoryAuth).
		WithTextCode("TOKEN_EXPIRED").
		WithCode(errors.CodeUnauthorized)

	// ErrTokenMalformed is returned when a session token cannot be verified.
	ErrTokenMalformed = errors.New("session token malformed", errors.CategoryAuth).
		WithTextCode("TOKEN_MALFORMED").
		WithCode(errors.CodeUnauthorized)
)

// SessionClaims are the claims carried by local access tokens.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

type tokenService struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
}

func newTokenService(signingKey []byte, ttl time.Duration, issuer string, audience jwt.ClaimStrings, now func() time.Time) *tokenService {
	if now == nil {
		now = time.Now
	}
	return &tokenService{
		signingKey: signingKey,
		ttl:        ttl,
		issuer:     issuer,
		audience:   audience,
		now:        now,
	}
}

// Generate signs an access token for user and returns it with its expiry.
func (ts *tokenService) Generate(user *User) (string, time.Time, error) {
	if user == nil {
		return "", time.Time{}, errors.New("user must not be nil", errors.CategoryInternal)
	}

	now := ts.now()
	expires := now.Add(ts.ttl)
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   user.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email: user.Email,
		Role:  "authenticated",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signed, expires.Truncate(time.Second), nil
}

// Validate parses and verifies a token string.
func (ts *tokenService) Validate(tokenString string) (*SessionClaims, error) {
	parserOptions := []jwt.ParserOption{jwt.WithTimeFunc(ts.now)}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrTokenMalformed
}
