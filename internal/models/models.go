package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered end user
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"` // bcrypt hash, not returned in JSON
	Scopes       string    `db:"scopes" json:"scopes"`   // space-separated capability strings
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// ScopeList splits the stored scope string into individual scopes
func (u *User) ScopeList() []string {
	return strings.Fields(u.Scopes)
}

// Account represents a money account owned by a user.
// Currency is fixed at creation; accounts are closed, never deleted.
type Account struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Currency  string    `db:"currency" json:"currency"`
	Status    string    `db:"status" json:"status"` // "open" or "closed"
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Ledger entry directions
const (
	EntryTypeCredit = "credit"
	EntryTypeDebit  = "debit"
)

// LedgerEntry is one leg of a double-entry movement. Entries are append-only:
// never updated or deleted once written.
type LedgerEntry struct {
	ID        string          `db:"id" json:"id"`
	AccountID string          `db:"account_id" json:"accountId"`
	EntryType string          `db:"entry_type" json:"entryType"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Ref       string          `db:"ref" json:"ref"` // originating transfer id
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// TransferStatusSucceeded is the only terminal transfer status: failed
// transfers never produce a persisted row.
const TransferStatusSucceeded = "succeeded"

// Transfer records one executed money movement between two accounts.
// (user_id, idempotency_key) is unique so client retries are detectable.
type Transfer struct {
	ID             string          `db:"id" json:"id"`
	UserID         string          `db:"user_id" json:"userId"`
	FromAccountID  string          `db:"from_account_id" json:"fromAccountId"`
	ToAccountID    string          `db:"to_account_id" json:"toAccountId"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Status         string          `db:"status" json:"status"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotencyKey"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

// Merchant represents an external merchant integrating over signed requests
type Merchant struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// MerchantKey holds one API key for a merchant. KeySecret is the shared HMAC
// signing secret itself, not a one-way hash of it: a hash could never
// reproduce the signature the merchant computes on its side.
type MerchantKey struct {
	ID         string    `db:"id" json:"id"`
	MerchantID string    `db:"merchant_id" json:"merchantId"`
	KeyID      string    `db:"key_id" json:"keyId"`
	KeySecret  string    `db:"key_secret" json:"-"`
	Scopes     string    `db:"scopes" json:"scopes"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// ScopeList splits the stored scope string into individual scopes
func (k *MerchantKey) ScopeList() []string {
	return strings.Fields(k.Scopes)
}

// Entity statuses shared across tables
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusOpen     = "open"
	StatusClosed   = "closed"
)

// DefaultUserScopes are granted to every newly registered user
const DefaultUserScopes = "accounts:read transfers:write"

// Scopes checked by the API layer
const (
	ScopeAccountsRead   = "accounts:read"
	ScopeTransfersWrite = "transfers:write"
	ScopePaymentsWrite  = "payments:write"
)
