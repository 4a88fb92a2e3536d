package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vaultpay/vaultpay-server/internal/apperr"
)

// TokenManager issues and verifies scoped bearer credentials
type TokenManager struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewTokenManager creates a TokenManager
func NewTokenManager(secret, issuer, audience string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
	}
}

// TTL returns the configured token lifetime
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue creates a signed token binding the subject and its scope set
func (m *TokenManager) Issue(subject string, scopes []string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"iss":    m.issuer,
		"aud":    m.audience,
		"sub":    subject,
		"scopes": scopes,
		"iat":    now.Unix(),
		"exp":    now.Add(m.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}

	return signed, nil
}

// Verify validates the token signature, issuer, audience and expiry, and
// returns the subject and scope set. Every failure mode collapses into the
// same authentication error so callers cannot probe which check rejected
// the token.
func (m *TokenManager) Verify(tokenString string) (string, []string, error) {
	token, err := jwt.Parse(
		tokenString,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return m.secret, nil
		},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return "", nil, apperr.Authentication()
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", nil, apperr.Authentication()
	}

	subject, ok := claims["sub"].(string)
	if !ok || subject == "" {
		return "", nil, apperr.Authentication()
	}

	rawScopes, _ := claims["scopes"].([]interface{})
	scopes := make([]string, 0, len(rawScopes))
	for _, s := range rawScopes {
		if scope, ok := s.(string); ok {
			scopes = append(scopes, scope)
		}
	}

	return subject, scopes, nil
}

// RequireScopes checks that every required scope is present in the granted
// set; missing scopes are named in the authorization error
func RequireScopes(granted, required []string) error {
	have := make(map[string]bool, len(granted))
	for _, s := range granted {
		have[s] = true
	}

	var missing []string
	for _, s := range required {
		if !have[s] {
			missing = append(missing, s)
		}
	}

	if len(missing) > 0 {
		return apperr.Authorization(fmt.Sprintf("missing scopes: %v", missing))
	}

	return nil
}
