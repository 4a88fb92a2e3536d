package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultpay/vaultpay-server/internal/api/testutils"
	"github.com/vaultpay/vaultpay-server/internal/models"
)

const paymentsPath = "/api/merchant/payments"

func TestMerchantSignedRequestAccepted(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	merchantID := testutils.CreateTestMerchant(t, testCtx.Repository, "key-1", "topsecret")

	body := []byte(`{"reference":"inv-42"}`)
	headers := testutils.SignedHeaders("key-1", "topsecret", http.MethodPost, paymentsPath, "n1", time.Now().Unix(), body)

	w := testutils.PerformRawRequest(testCtx.Router, http.MethodPost, paymentsPath, body, headers)

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.MerchantPaymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, merchantID, resp.MerchantID)
	assert.Equal(t, "inv-42", resp.Reference)
}

func TestMerchantReplayRejected(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testutils.CreateTestMerchant(t, testCtx.Repository, "key-1", "topsecret")

	body := []byte(`{"reference":"inv-42"}`)
	headers := testutils.SignedHeaders("key-1", "topsecret", http.MethodPost, paymentsPath, "n1", time.Now().Unix(), body)

	w := testutils.PerformRawRequest(testCtx.Router, http.MethodPost, paymentsPath, body, headers)
	require.Equal(t, http.StatusOK, w.Code)

	// Byte-identical replay: same nonce, same signature
	w = testutils.PerformRawRequest(testCtx.Router, http.MethodPost, paymentsPath, body, headers)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A fresh nonce from the same merchant is fine again
	headers = testutils.SignedHeaders("key-1", "topsecret", http.MethodPost, paymentsPath, "n2", time.Now().Unix(), body)
	w = testutils.PerformRawRequest(testCtx.Router, http.MethodPost, paymentsPath, body, headers)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMerchantNonceScopedPerMerchant(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testutils.CreateTestMerchant(t, testCtx.Repository, "key-1", "secret-one")
	testutils.CreateTestMerchant(t, testCtx.Repository, "key-2", "secret-two")

	body := []byte(`{}`)

	headers := testutils.SignedHeaders("key-1", "secret-one", http.MethodPost, paymentsPath, "shared-nonce", time.Now().Unix(), body)
	w := testutils.PerformRawRequest(testCtx.Router, http.MethodPost, paymentsPath, body, headers)
	require.Equal(t, http.StatusOK, w.Code)

	// The same nonce used by a different merchant is not a collision
	headers = testutils.SignedHeaders("key-2", "secret-two", http.MethodPost, paymentsPath, "shared-nonce", time.Now().Unix(), body)
	w = testutils.PerformRawRequest(testCtx.Router, http.MethodPost, paymentsPath, body, headers)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMerchantStaleTimestampRejected(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testutils.CreateTestMerchant(t, testCtx.Repository, "key-1", "topsecret")

	body := []byte(`{}`)
	window := testCtx.Config.Security.ReplayWindow

	// Outside the window in the past, correctly signed, unused nonce
	stale := time.Now().Add(-window - time.Minute).Unix()
	headers := testutils.SignedHeaders("key-1", "topsecret", http.MethodPost, paymentsPath, "n-stale", stale, body)
	w := testutils.PerformRawRequest(testCtx.Router, http.MethodPost, paymentsPath, body, headers)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Too far in the future is equally stale
	future := time.Now().Add(window + time.Minute).Unix()
	headers = testutils.SignedHeaders("key-1", "topsecret", http.MethodPost, paymentsPath, "n-future", future, body)
	w = testutils.PerformRawRequest(testCtx.Router, http.MethodPost, paymentsPath, body, headers)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMerchantTamperedRequestRejected(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testutils.CreateTestMerchant(t, testCtx.Repository, "key-1", "topsecret")

	body := []byte(`{"reference":"inv-42"}`)
	now := time.Now().Unix()

	// Body altered after signing
	headers := testutils.SignedHeaders("key-1", "topsecret", http.MethodPost, paymentsPath, "n-tamper-1", now, body)
	w := testutils.PerformRawRequest(testCtx.Router, http.MethodPost, paymentsPath, []byte(`{"reference":"inv-43"}`), headers)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Signed with the wrong secret
	headers = testutils.SignedHeaders("key-1", "wrongsecret", http.MethodPost, paymentsPath, "n-tamper-2", now, body)
	w = testutils.PerformRawRequest(testCtx.Router, http.MethodPost, paymentsPath, body, headers)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Signed for a different path
	headers = testutils.SignedHeaders("key-1", "topsecret", http.MethodPost, "/api/merchant/refunds", "n-tamper-3", now, body)
	w = testutils.PerformRawRequest(testCtx.Router, http.MethodPost, paymentsPath, body, headers)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMerchantAuthFailuresAreUniform(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testutils.CreateTestMerchant(t, testCtx.Repository, "key-1", "topsecret")
	inactiveMerchant := testutils.CreateTestMerchant(t, testCtx.Repository, "key-gone", "topsecret")
	_, err := testCtx.DB.Exec("UPDATE merchant_keys SET status = 'inactive' WHERE merchant_id = $1", inactiveMerchant)
	require.NoError(t, err)

	body := []byte(`{}`)
	now := time.Now().Unix()

	var bodies []string
	for name, headers := range map[string]map[string]string{
		"unknown key":  testutils.SignedHeaders("key-unknown", "topsecret", http.MethodPost, paymentsPath, "n-u1", now, body),
		"inactive key": testutils.SignedHeaders("key-gone", "topsecret", http.MethodPost, paymentsPath, "n-u2", now, body),
		"bad sig":      testutils.SignedHeaders("key-1", "wrongsecret", http.MethodPost, paymentsPath, "n-u3", now, body),
	} {
		w := testutils.PerformRawRequest(testCtx.Router, http.MethodPost, paymentsPath, body, headers)
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
		bodies = append(bodies, w.Body.String())
	}

	// Missing headers entirely
	w := testutils.PerformRawRequest(testCtx.Router, http.MethodPost, paymentsPath, body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	bodies = append(bodies, w.Body.String())

	// No failure mode reveals which check rejected the request
	for _, b := range bodies[1:] {
		assert.JSONEq(t, bodies[0], b)
	}
}

func TestMerchantMissingScopeForbidden(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	merchantID := testutils.CreateTestMerchant(t, testCtx.Repository, "key-1", "topsecret")
	_, err := testCtx.DB.Exec("UPDATE merchant_keys SET scopes = 'reports:read' WHERE merchant_id = $1", merchantID)
	require.NoError(t, err)

	body := []byte(`{}`)
	headers := testutils.SignedHeaders("key-1", "topsecret", http.MethodPost, paymentsPath, "n-scope", time.Now().Unix(), body)

	// Valid identity, valid signature, insufficient scope
	w := testutils.PerformRawRequest(testCtx.Router, http.MethodPost, paymentsPath, body, headers)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "payments:write")
}

func TestMerchantNonceExpiresWithWindow(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	merchantID := testutils.CreateTestMerchant(t, testCtx.Repository, "key-1", "topsecret")

	body := []byte(`{}`)
	headers := testutils.SignedHeaders("key-1", "topsecret", http.MethodPost, paymentsPath, "n-ttl", time.Now().Unix(), body)
	w := testutils.PerformRawRequest(testCtx.Router, http.MethodPost, paymentsPath, body, headers)
	require.Equal(t, http.StatusOK, w.Code)

	// The nonce marker carries an expiry equal to the replay window
	ttl := testCtx.Redis.TTL(context.Background(), "nonce:"+merchantID+":n-ttl").Val()
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, testCtx.Config.Security.ReplayWindow)
}
