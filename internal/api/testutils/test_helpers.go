package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vaultpay/vaultpay-server/internal/api"
	"github.com/vaultpay/vaultpay-server/internal/config"
	"github.com/vaultpay/vaultpay-server/internal/models"
	"github.com/vaultpay/vaultpay-server/internal/repository"
	"github.com/vaultpay/vaultpay-server/internal/security"
	"github.com/vaultpay/vaultpay-server/internal/service"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TestContext holds all dependencies for tests
type TestContext struct {
	Router      *gin.Engine
	Repository  repository.Repository
	Service     service.Service
	Tokens      *security.TokenManager
	Limiter     *security.RateLimiter
	DB          *sqlx.DB
	Redis       *redis.Client
	Config      *config.Config
	TestUserID  string
	TestUserJWT string
}

// SetupTestContext creates a new test context with initialized dependencies.
// It needs a reachable Postgres test database and redis instance, configured
// through the usual environment variables.
func SetupTestContext(t *testing.T) *TestContext {
	cfg := config.LoadConfig()

	// Point at the test database and test redis DB
	if cfg.Database.TestDBName != "" {
		cfg.Database.DBName = cfg.Database.TestDBName
	}
	cfg.Redis.DB = cfg.Redis.TestDB
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "test-secret-key"
	}

	db, err := config.SetupDatabase(cfg)
	require.NoError(t, err, "Failed to set up test database")

	redisClient, err := config.SetupRedis(cfg)
	require.NoError(t, err, "Failed to set up test redis")

	repo := repository.NewPostgresRepository(db)

	tokens := security.NewTokenManager(
		cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience, cfg.Auth.TokenTTL)
	limiter := security.NewRateLimiter(redisClient, cfg.Security.RateLimitPerMinute)
	replay := security.NewReplayGuard(redisClient, cfg.Security.ReplayWindow)

	svc := service.NewDefaultService(repo, tokens, limiter, replay, zap.NewNop())

	handler := api.NewHandler(svc, repo, tokens, zap.NewNop())

	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler.SetupRoutes(router)

	// Start from a clean slate
	cleanDatabase(t, db)
	require.NoError(t, redisClient.FlushDB(context.Background()).Err())

	testUserID, token := createTestUser(t, repo, tokens)

	return &TestContext{
		Router:      router,
		Repository:  repo,
		Service:     svc,
		Tokens:      tokens,
		Limiter:     limiter,
		DB:          db,
		Redis:       redisClient,
		Config:      cfg,
		TestUserID:  testUserID,
		TestUserJWT: token,
	}
}

// CleanupTestContext cleans up test resources
func CleanupTestContext(tc *TestContext) {
	if tc.DB != nil {
		cleanDatabase(nil, tc.DB)
		tc.DB.Close()
	}
	if tc.Redis != nil {
		tc.Redis.FlushDB(context.Background())
		tc.Redis.Close()
	}
}

// cleanDatabase removes all rows, children before parents
func cleanDatabase(t *testing.T, db *sqlx.DB) {
	tables := []string{
		"ledger_entries",
		"transfers",
		"accounts",
		"merchant_keys",
		"merchants",
		"users",
	}

	for _, table := range tables {
		_, err := db.Exec("DELETE FROM " + table)
		if t != nil && err != nil {
			t.Logf("Warning: Failed to clean %s: %v", table, err)
		}
	}
}

func createTestUser(t *testing.T, repo repository.Repository, tokens *security.TokenManager) (string, string) {
	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("testpassword"), bcrypt.DefaultCost)

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        "testuser@example.com",
		PasswordHash: string(hashedPassword),
		Scopes:       models.DefaultUserScopes,
		Status:       models.StatusActive,
	}

	err := repo.CreateUser(context.Background(), user)
	require.NoError(t, err, "Failed to create test user")

	token, err := tokens.Issue(user.ID, user.ScopeList())
	require.NoError(t, err, "Failed to issue test token")

	return user.ID, token
}

// CreateTestAccount creates an open account for the given user
func CreateTestAccount(t *testing.T, repo repository.Repository, userID, currency string) *models.Account {
	account := &models.Account{
		UserID:   userID,
		Currency: currency,
	}
	err := repo.CreateAccount(context.Background(), account)
	require.NoError(t, err, "Failed to create test account")
	return account
}

// FundAccount seeds an account with an opening credit entry so transfers have
// something to move
func FundAccount(t *testing.T, db *sqlx.DB, accountID string, amount decimal.Decimal) {
	_, err := db.Exec(`
		INSERT INTO ledger_entries (id, account_id, entry_type, amount, ref, created_at)
		VALUES ($1, $2, 'credit', $3, $4, $5)
	`, uuid.New().String(), accountID, amount, "seed_"+uuid.New().String(), time.Now().UTC())
	require.NoError(t, err, "Failed to fund test account")
}

// CreateTestMerchant creates an active merchant with one API key and returns
// the merchant ID
func CreateTestMerchant(t *testing.T, repo repository.Repository, keyID, secret string) string {
	merchant := &models.Merchant{
		Name: "merchant-" + uuid.New().String(),
	}
	err := repo.CreateMerchant(context.Background(), merchant)
	require.NoError(t, err, "Failed to create test merchant")

	key := &models.MerchantKey{
		MerchantID: merchant.ID,
		KeyID:      keyID,
		KeySecret:  secret,
		Scopes:     models.ScopePaymentsWrite,
	}
	err = repo.CreateMerchantKey(context.Background(), key)
	require.NoError(t, err, "Failed to create test merchant key")

	return merchant.ID
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// PerformRawRequest executes an HTTP request with pre-serialized body bytes,
// used by signed-request tests where the exact bytes matter
func PerformRawRequest(r http.Handler, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}

// SignedHeaders returns the merchant auth headers for a request signed at the
// given timestamp
func SignedHeaders(keyID, secret, method, path, nonce string, ts int64, body []byte) map[string]string {
	timestamp := strconv.FormatInt(ts, 10)
	return map[string]string{
		"X-Key-Id":    keyID,
		"X-Timestamp": timestamp,
		"X-Nonce":     nonce,
		"X-Signature": security.Sign(secret, method, path, timestamp, nonce, body),
	}
}
