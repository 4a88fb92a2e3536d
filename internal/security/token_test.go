package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(ttl time.Duration) *TokenManager {
	return NewTokenManager("test-secret", "vaultpay", "vaultpay-api", ttl)
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	m := newTestManager(time.Hour)

	token, err := m.Issue("user-1", []string{"accounts:read", "transfers:write"})
	require.NoError(t, err)

	subject, scopes, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", subject)
	assert.Equal(t, []string{"accounts:read", "transfers:write"}, scopes)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := newTestManager(-time.Minute)

	token, err := m.Issue("user-1", []string{"accounts:read"})
	require.NoError(t, err)

	_, _, err = m.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m := newTestManager(time.Hour)
	other := NewTokenManager("other-secret", "vaultpay", "vaultpay-api", time.Hour)

	token, err := m.Issue("user-1", nil)
	require.NoError(t, err)

	_, _, err = other.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongIssuerOrAudience(t *testing.T) {
	m := newTestManager(time.Hour)

	token, err := m.Issue("user-1", nil)
	require.NoError(t, err)

	wrongIssuer := NewTokenManager("test-secret", "someone-else", "vaultpay-api", time.Hour)
	_, _, err = wrongIssuer.Verify(token)
	assert.Error(t, err)

	wrongAudience := NewTokenManager("test-secret", "vaultpay", "other-api", time.Hour)
	_, _, err = wrongAudience.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := newTestManager(time.Hour)

	_, _, err := m.Verify("")
	assert.Error(t, err)

	_, _, err = m.Verify("not.a.token")
	assert.Error(t, err)
}

func TestRequireScopes(t *testing.T) {
	granted := []string{"accounts:read", "transfers:write"}

	assert.NoError(t, RequireScopes(granted, nil))
	assert.NoError(t, RequireScopes(granted, []string{"accounts:read"}))
	assert.NoError(t, RequireScopes(granted, []string{"accounts:read", "transfers:write"}))

	err := RequireScopes(granted, []string{"payments:write"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payments:write")

	err = RequireScopes(nil, []string{"accounts:read"})
	assert.Error(t, err)
}
