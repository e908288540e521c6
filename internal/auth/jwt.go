// Package auth issues and verifies the bearer tokens used by the API.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tickwise/tickwise/internal/domain"
)

// Claims is the JWT payload attached to every issued token.
type Claims struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 tokens.
type TokenIssuer struct {
	secret     []byte
	expiration time.Duration
}

// NewTokenIssuer creates a TokenIssuer. A zero expiration defaults to
// 24 hours.
func NewTokenIssuer(secret string, expiration time.Duration) *TokenIssuer {
	if expiration == 0 {
		expiration = 24 * time.Hour
	}
	return &TokenIssuer{
		secret:     []byte(secret),
		expiration: expiration,
	}
}

// Issue signs a token for the given user.
func (t *TokenIssuer) Issue(userID uuid.UUID, username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", domain.Internal(err, "auth.issue", "failed to sign token")
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims.
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	const op = "auth.verify"

	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(*jwt.Token) (interface{}, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, domain.Unauthorized(op, "Invalid or expired token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil {
		return nil, domain.Unauthorized(op, "Invalid token payload")
	}
	return claims, nil
}
