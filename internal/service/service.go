package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vaultpay/vaultpay-server/internal/apperr"
	"github.com/vaultpay/vaultpay-server/internal/metrics"
	"github.com/vaultpay/vaultpay-server/internal/models"
	"github.com/vaultpay/vaultpay-server/internal/repository"
	"github.com/vaultpay/vaultpay-server/internal/security"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Service defines all the business logic operations
type Service interface {
	// Authentication
	Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)

	// Accounts
	CreateAccount(ctx context.Context, userID string, req models.CreateAccountRequest) (*models.AccountResponse, error)
	GetBalance(ctx context.Context, userID, accountID string) (*models.BalanceResponse, error)

	// Transfers
	CreateTransfer(ctx context.Context, userID, idempotencyKey string, req models.CreateTransferRequest) (*models.TransferResponse, error)

	// Merchant request authentication: rate limit, freshness, key lookup,
	// nonce, signature, scopes — in that order. Returns the merchant identity.
	AuthenticateMerchant(ctx context.Context, keyID, timestamp, nonce, signature, method, path string, rawBody []byte, requiredScopes []string) (string, error)
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo    repository.Repository
	tokens  *security.TokenManager
	limiter *security.RateLimiter
	replay  *security.ReplayGuard
	logger  *zap.Logger
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(
	repo repository.Repository,
	tokens *security.TokenManager,
	limiter *security.RateLimiter,
	replay *security.ReplayGuard,
	logger *zap.Logger,
) Service {
	return &DefaultService{
		repo:    repo,
		tokens:  tokens,
		limiter: limiter,
		replay:  replay,
		logger:  logger,
	}
}

// Authentication methods
func (s *DefaultService) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	email := strings.ToLower(req.Email)

	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("error checking user existence: %w", err))
	}
	if existing != nil {
		return nil, apperr.Conflict("email already registered")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("error hashing password: %w", err))
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hashedPassword),
		Scopes:       models.DefaultUserScopes,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		// A concurrent registration can slip past the existence check; the
		// unique constraint is authoritative
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, apperr.Internal(fmt.Errorf("error creating user: %w", err))
	}

	return &models.RegisterResponse{
		Status: "success",
		UserID: user.ID,
		Email:  user.Email,
	}, nil
}

func (s *DefaultService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	email := strings.ToLower(req.Email)

	// Brute-force protection keyed by normalized email
	allowed, err := s.limiter.Allow(ctx, "login:"+email)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !allowed {
		metrics.RateLimitedTotal.Inc()
		return nil, apperr.RateLimited()
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("error getting user: %w", err))
	}

	// Unknown user, wrong password and inactive user all fail the same way
	if user == nil || user.Status != models.StatusActive {
		metrics.AuthFailuresTotal.WithLabelValues("login").Inc()
		return nil, apperr.Authentication()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		metrics.AuthFailuresTotal.WithLabelValues("login").Inc()
		return nil, apperr.Authentication()
	}

	scopes := user.ScopeList()
	token, err := s.tokens.Issue(user.ID, scopes)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("error generating token: %w", err))
	}

	return &models.LoginResponse{
		Status:      "success",
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
		Scopes:      scopes,
	}, nil
}

// Account methods
func (s *DefaultService) CreateAccount(ctx context.Context, userID string, req models.CreateAccountRequest) (*models.AccountResponse, error) {
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "GBP"
	}

	account := &models.Account{
		UserID:   userID,
		Currency: currency,
	}

	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, apperr.Internal(fmt.Errorf("error creating account: %w", err))
	}

	return &models.AccountResponse{
		Status:   "success",
		ID:       account.ID,
		Currency: account.Currency,
		State:    account.Status,
	}, nil
}

func (s *DefaultService) GetBalance(ctx context.Context, userID, accountID string) (*models.BalanceResponse, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("error getting account: %w", err))
	}

	// A foreign account is indistinguishable from a missing one
	if account == nil || account.UserID != userID {
		return nil, apperr.NotFound("account not found")
	}

	balance, err := s.repo.GetBalance(ctx, accountID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("error computing balance: %w", err))
	}

	return &models.BalanceResponse{
		Status:    "success",
		AccountID: account.ID,
		Currency:  account.Currency,
		Balance:   balance.StringFixed(2),
	}, nil
}

// Transfer methods
func (s *DefaultService) CreateTransfer(ctx context.Context, userID, idempotencyKey string, req models.CreateTransferRequest) (*models.TransferResponse, error) {
	allowed, err := s.limiter.Allow(ctx, fmt.Sprintf("user:%s:transfers", userID))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !allowed {
		metrics.RateLimitedTotal.Inc()
		return nil, apperr.RateLimited()
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	// Idempotency: a retransmitted key returns the stored result unchanged
	existing, err := s.repo.GetTransferByIdempotencyKey(ctx, userID, idempotencyKey)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("error checking idempotency key: %w", err))
	}
	if existing != nil {
		metrics.TransfersTotal.WithLabelValues("replayed").Inc()
		return transferResponse(existing, true), nil
	}

	fromAccount, err := s.repo.GetAccount(ctx, req.FromAccountID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("error getting source account: %w", err))
	}
	toAccount, err := s.repo.GetAccount(ctx, req.ToAccountID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("error getting destination account: %w", err))
	}
	if fromAccount == nil || toAccount == nil {
		return nil, apperr.NotFound("account not found")
	}
	if fromAccount.UserID != userID {
		return nil, apperr.Authorization("not your source account")
	}
	if fromAccount.Status != models.StatusOpen || toAccount.Status != models.StatusOpen {
		return nil, apperr.Validation("account is closed")
	}

	transfer := &models.Transfer{
		UserID:         userID,
		FromAccountID:  fromAccount.ID,
		ToAccountID:    toAccount.ID,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
	}

	err = s.repo.ExecuteTransfer(ctx, transfer)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInsufficientFunds):
			metrics.TransfersTotal.WithLabelValues("rejected").Inc()
			return nil, apperr.Validation("insufficient funds")
		case errors.Is(err, repository.ErrDuplicateTransfer):
			// A concurrent duplicate won the unique constraint; return its result
			stored, readErr := s.repo.GetTransferByIdempotencyKey(ctx, userID, idempotencyKey)
			if readErr != nil || stored == nil {
				return nil, apperr.Internal(fmt.Errorf("error reading duplicate transfer: %w", readErr))
			}
			metrics.TransfersTotal.WithLabelValues("replayed").Inc()
			return transferResponse(stored, true), nil
		case errors.Is(err, repository.ErrAccountNotFound):
			return nil, apperr.NotFound("account not found")
		default:
			return nil, apperr.Internal(fmt.Errorf("transfer failed: %w", err))
		}
	}

	s.logger.Info("transfer executed",
		zap.String("transfer_id", transfer.ID),
		zap.String("user_id", userID),
		zap.String("amount", amount.StringFixed(2)))
	metrics.TransfersTotal.WithLabelValues("executed").Inc()

	return transferResponse(transfer, false), nil
}

// Merchant authentication
func (s *DefaultService) AuthenticateMerchant(ctx context.Context, keyID, timestamp, nonce, signature, method, path string, rawBody []byte, requiredScopes []string) (string, error) {
	allowed, err := s.limiter.Allow(ctx, "merchant:"+keyID)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if !allowed {
		metrics.RateLimitedTotal.Inc()
		return "", apperr.RateLimited()
	}

	if keyID == "" || timestamp == "" || nonce == "" || signature == "" {
		metrics.AuthFailuresTotal.WithLabelValues("merchant").Inc()
		return "", apperr.Authentication()
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		metrics.AuthFailuresTotal.WithLabelValues("merchant").Inc()
		return "", apperr.Authentication()
	}

	if !s.replay.FreshTimestamp(ts) {
		metrics.AuthFailuresTotal.WithLabelValues("merchant").Inc()
		return "", apperr.Authentication()
	}

	key, err := s.repo.GetMerchantKeyByKeyID(ctx, keyID)
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("error getting merchant key: %w", err))
	}
	if key == nil || key.Status != models.StatusActive {
		metrics.AuthFailuresTotal.WithLabelValues("merchant").Inc()
		return "", apperr.Authentication()
	}

	fresh, err := s.replay.ConsumeNonce(ctx, key.MerchantID, nonce)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if !fresh {
		metrics.AuthFailuresTotal.WithLabelValues("merchant").Inc()
		return "", apperr.Authentication()
	}

	if !security.VerifySignature(signature, key.KeySecret, method, path, timestamp, nonce, rawBody) {
		metrics.AuthFailuresTotal.WithLabelValues("merchant").Inc()
		return "", apperr.Authentication()
	}

	if err := security.RequireScopes(key.ScopeList(), requiredScopes); err != nil {
		return "", err
	}

	return key.MerchantID, nil
}

// parseAmount parses a positive fixed-point amount with at most two decimal
// places
func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperr.Validation("malformed amount")
	}
	if !amount.IsPositive() {
		return decimal.Zero, apperr.Validation("amount must be positive")
	}
	if amount.Exponent() < -2 {
		return decimal.Zero, apperr.Validation("amount must have at most two decimal places")
	}
	return amount, nil
}

func transferResponse(t *models.Transfer, replayed bool) *models.TransferResponse {
	return &models.TransferResponse{
		Status:         "success",
		ID:             t.ID,
		TransferStatus: t.Status,
		Amount:         t.Amount.StringFixed(2),
		FromAccountID:  t.FromAccountID,
		ToAccountID:    t.ToAccountID,
		IdempotencyKey: t.IdempotencyKey,
		Replayed:       replayed,
	}
}
