package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultpay/vaultpay-server/internal/api/testutils"
	"github.com/vaultpay/vaultpay-server/internal/models"
)

func TestRegister(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// Test case 1: Successful registration
	registerReq := models.RegisterRequest{
		Email:    "newuser@example.com",
		Password: "Password123",
	}

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/register",
		registerReq,
		nil,
	)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp models.RegisterResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "newuser@example.com", resp.Email)
	assert.NotEmpty(t, resp.UserID)

	// Test case 2: Duplicate email
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/register",
		registerReq,
		nil,
	)

	assert.Equal(t, http.StatusConflict, w.Code)

	// Test case 3: Invalid request (password too short)
	invalidReq := models.RegisterRequest{
		Email:    "invalid@example.com",
		Password: "short",
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/register",
		invalidReq,
		nil,
	)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// Test case 1: Successful login returns a usable token and the scope set
	loginReq := models.LoginRequest{
		Email:    "testuser@example.com",
		Password: "testpassword",
	}

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/login",
		loginReq,
		nil,
	)

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "bearer", resp.TokenType)
	assert.ElementsMatch(t, []string{"accounts:read", "transfers:write"}, resp.Scopes)

	subject, _, err := testCtx.Tokens.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testCtx.TestUserID, subject)

	// Test case 2: Wrong password fails the same way as an unknown user
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/login",
		models.LoginRequest{Email: "testuser@example.com", Password: "wrongpassword"},
		nil,
	)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	wrongPasswordBody := w.Body.String()

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/login",
		models.LoginRequest{Email: "nonexistent@example.com", Password: "testpassword"},
		nil,
	)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, wrongPasswordBody, w.Body.String(), "failure responses must not reveal which check failed")
}

func TestLoginRateLimited(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// Exhaust the fixed window for this email directly in redis, then the
	// next attempt over HTTP must be rejected before credentials are checked
	limit := testCtx.Config.Security.RateLimitPerMinute
	require.NoError(t, testCtx.Redis.Set(
		context.Background(),
		"rl:login:testuser@example.com",
		limit,
		0,
	).Err())

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/login",
		models.LoginRequest{Email: "testuser@example.com", Password: "testpassword"},
		nil,
	)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "RATE_LIMITED", resp.Code)
}

func TestLoginNormalizesEmailForRateLimiting(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	limit := testCtx.Config.Security.RateLimitPerMinute
	require.NoError(t, testCtx.Redis.Set(
		context.Background(),
		"rl:login:testuser@example.com",
		limit,
		0,
	).Err())

	// Changing the case of the email must not dodge the bucket
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/login",
		models.LoginRequest{Email: "TestUser@Example.com", Password: "testpassword"},
		nil,
	)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
