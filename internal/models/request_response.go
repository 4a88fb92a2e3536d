package models

// Request models
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type CreateAccountRequest struct {
	Currency string `json:"currency" binding:"omitempty,len=3"`
}

// CreateTransferRequest carries the amount as a string so the two-decimal
// fixed-point value is parsed exactly, never through a float.
type CreateTransferRequest struct {
	FromAccountID string `json:"fromAccountId" binding:"required,uuid"`
	ToAccountID   string `json:"toAccountId" binding:"required,uuid"`
	Amount        string `json:"amount" binding:"required"`
}

type MerchantPaymentRequest struct {
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
}

// Response models
type RegisterResponse struct {
	Status string `json:"status"`
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type LoginResponse struct {
	Status      string   `json:"status"`
	AccessToken string   `json:"accessToken"`
	TokenType   string   `json:"tokenType"`
	ExpiresIn   int      `json:"expiresIn"`
	Scopes      []string `json:"scopes"`
}

type AccountResponse struct {
	Status   string `json:"status"`
	ID       string `json:"id"`
	Currency string `json:"currency"`
	State    string `json:"state"`
}

type BalanceResponse struct {
	Status    string `json:"status"`
	AccountID string `json:"accountId"`
	Currency  string `json:"currency"`
	Balance   string `json:"balance"`
}

type TransferResponse struct {
	Status         string `json:"status"`
	ID             string `json:"id"`
	TransferStatus string `json:"transferStatus"`
	Amount         string `json:"amount"`
	FromAccountID  string `json:"fromAccountId"`
	ToAccountID    string `json:"toAccountId"`
	IdempotencyKey string `json:"idempotencyKey"`
	Replayed       bool   `json:"replayed"`
}

type MerchantPaymentResponse struct {
	Status     string `json:"status"`
	MerchantID string `json:"merchantId"`
	Reference  string `json:"reference,omitempty"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
