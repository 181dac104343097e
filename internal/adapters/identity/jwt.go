package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gighop/internal/domain"
)

// JWT verifies HS256 tokens locally; the subject claim is the user id.
type JWT struct {
	secret []byte
	issuer string
}

func NewJWT(secret, issuer string) (*JWT, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	return &JWT{secret: []byte(secret), issuer: issuer}, nil
}

func (v *JWT) Authenticate(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrNotAuthenticated
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return v.secret, nil }, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", domain.ErrNotAuthenticated)
	}
	return claims.Subject, nil
}

// Issue signs a token for userID; used by the CLI and tests.
func (v *JWT) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
