// Package auth verifies the opaque credentials presented at connection time.
// The service never issues end-user credentials itself; tokens come from the
// external identity provider and are only checked here.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any credential that fails verification.
var ErrInvalidToken = errors.New("auth: invalid token")

// Identity is the verified identity behind a credential. It is resolved once
// per connection and immutable for the connection's lifetime.
type Identity struct {
	Subject     string
	DisplayName string
	Email       string
}

// TokenVerifier validates an opaque credential and resolves the identity
// behind it.
type TokenVerifier interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}

// Claims is the token payload: registered claims plus the profile fields
// the identity provider embeds.
type Claims struct {
	DisplayName string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256-signed tokens from the identity provider.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier creates a verifier for tokens signed with the given secret.
// If issuer is non-empty, the token's iss claim must match.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates the token and returns the identity it asserts.
func (v *JWTVerifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{
		Subject:     claims.Subject,
		DisplayName: claims.DisplayName,
		Email:       claims.Email,
	}, nil
}

// IssueToken signs a token for the given subject. Used by tests and by
// development tooling; production tokens come from the identity provider.
func IssueToken(secret, issuer, subject, displayName, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		DisplayName: displayName,
		Email:       email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
