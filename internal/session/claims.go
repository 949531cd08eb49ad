package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/renkonet/supabase/client"
)

// Claims are the Supabase access-token claims the client cares about.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ParseClaims decodes an access token. With a secret the HS256 signature is
// verified; without one the claims are read unverified. Expiry is not
// enforced here so callers can inspect expired tokens.
func ParseClaims(token, secret string) (*Claims, error) {
	claims := &Claims{}
	if secret == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("parse token: %w", err)
		}
		return claims, nil
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return claims, nil
}

// TokenExpiry returns when the session's access token expires. The session's
// own expires_at wins; otherwise the token's exp claim is used.
func TokenExpiry(s *client.Session, secret string) (time.Time, error) {
	if s == nil || s.AccessToken == "" {
		return time.Time{}, fmt.Errorf("no access token")
	}
	if exp := s.Expiry(); !exp.IsZero() {
		return exp, nil
	}
	claims, err := ParseClaims(s.AccessToken, secret)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// NeedsRefresh reports whether the token expires within leeway of now.
// Sessions without a known expiry never need refreshing.
func NeedsRefresh(s *client.Session, secret string, now time.Time, leeway time.Duration) bool {
	if s == nil || s.RefreshToken == "" {
		return false
	}
	exp, err := TokenExpiry(s, secret)
	if err != nil || exp.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(exp)
}
