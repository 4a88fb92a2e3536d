package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/vaultpay/vaultpay-server/internal/models"
)

var (
	// ErrInsufficientFunds is returned when the source account balance cannot
	// cover the transfer amount at execution time
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransfer is returned when the (user_id, idempotency_key)
	// unique constraint rejects an insert, meaning a concurrent duplicate
	// committed first
	ErrDuplicateTransfer = errors.New("duplicate transfer for idempotency key")

	// ErrAccountNotFound is returned when a referenced account row is missing
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateEmail is returned when the users email unique constraint
	// rejects an insert
	ErrDuplicateEmail = errors.New("email already registered")
)

// Repository interface defines the methods that any repository implementation must satisfy
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// Account operations
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)

	// Ledger operations
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	GetLedgerEntriesByRef(ctx context.Context, ref string) ([]models.LedgerEntry, error)

	// Transfer operations
	GetTransferByIdempotencyKey(ctx context.Context, userID, key string) (*models.Transfer, error)
	ExecuteTransfer(ctx context.Context, transfer *models.Transfer) error

	// Merchant operations
	CreateMerchant(ctx context.Context, merchant *models.Merchant) error
	CreateMerchantKey(ctx context.Context, key *models.MerchantKey) error
	GetMerchantKeyByKeyID(ctx context.Context, keyID string) (*models.MerchantKey, error)
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

// User repository methods
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, scopes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	// Generate a new UUID if not provided
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Scopes == "" {
		user.Scopes = models.DefaultUserScopes
	}
	if user.Status == "" {
		user.Status = models.StatusActive
	}
	user.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Scopes, user.Status, user.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}

	return err
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT * FROM users WHERE email = $1`

	var user models.User
	err := r.db.GetContext(ctx, &user, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT * FROM users WHERE id = $1`

	var user models.User
	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

// Account repository methods
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (id, user_id, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.Status == "" {
		account.Status = models.StatusOpen
	}
	account.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.UserID, account.Currency, account.Status, account.CreatedAt)

	return err
}

func (r *PostgresRepository) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	query := `SELECT * FROM accounts WHERE id = $1`

	var account models.Account
	err := r.db.GetContext(ctx, &account, query, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Account not found
		}
		return nil, err
	}

	return &account, nil
}

// GetBalance derives the current balance as sum(credits) - sum(debits) over
// the account's ledger entries. No cached balance exists; every call is a
// fresh aggregate over committed history.
func (r *PostgresRepository) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(
			CASE entry_type
				WHEN 'credit' THEN amount
				WHEN 'debit' THEN -amount
				ELSE 0
			END
		), 0)
		FROM ledger_entries
		WHERE account_id = $1
	`

	var balance decimal.Decimal
	err := r.db.GetContext(ctx, &balance, query, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	return balance, nil
}

func (r *PostgresRepository) GetLedgerEntriesByRef(ctx context.Context, ref string) ([]models.LedgerEntry, error) {
	query := `SELECT * FROM ledger_entries WHERE ref = $1 ORDER BY created_at ASC`

	var entries []models.LedgerEntry
	err := r.db.SelectContext(ctx, &entries, query, ref)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Transfer repository methods
func (r *PostgresRepository) GetTransferByIdempotencyKey(ctx context.Context, userID, key string) (*models.Transfer, error) {
	query := `SELECT * FROM transfers WHERE user_id = $1 AND idempotency_key = $2`

	var transfer models.Transfer
	err := r.db.GetContext(ctx, &transfer, query, userID, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Transfer not found
		}
		return nil, err
	}

	return &transfer, nil
}

// ExecuteTransfer runs the balance check and the double-entry write as one
// atomic unit of work. Both account rows are locked FOR UPDATE in UUID order
// (deterministic ordering prevents deadlocks between opposing transfers), so
// concurrent debits of the same source account serialize and the no-overdraft
// check holds under concurrency.
func (r *PostgresRepository) ExecuteTransfer(ctx context.Context, transfer *models.Transfer) error {
	if transfer.ID == "" {
		transfer.ID = uuid.New().String()
	}
	if transfer.Status == "" {
		transfer.Status = models.TransferStatusSucceeded
	}
	transfer.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	// Lock both accounts in deterministic order
	first, second := transfer.FromAccountID, transfer.ToAccountID
	if first > second {
		first, second = second, first
	}

	for _, id := range []string{first, second} {
		var locked string
		err = tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = ErrAccountNotFound
			}
			return err
		}
	}

	// Balance check inside the transaction, after the source row is locked
	var balance decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(
			CASE entry_type
				WHEN 'credit' THEN amount
				WHEN 'debit' THEN -amount
				ELSE 0
			END
		), 0)
		FROM ledger_entries
		WHERE account_id = $1
	`, transfer.FromAccountID).Scan(&balance)
	if err != nil {
		return err
	}

	if balance.LessThan(transfer.Amount) {
		err = ErrInsufficientFunds
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transfers (id, user_id, from_account_id, to_account_id, amount, status, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, transfer.ID, transfer.UserID, transfer.FromAccountID, transfer.ToAccountID,
		transfer.Amount, transfer.Status, transfer.IdempotencyKey, transfer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			err = ErrDuplicateTransfer
		}
		return err
	}

	// One debit on the source and one credit on the destination, both tagged
	// with the transfer id
	entryQuery := `
		INSERT INTO ledger_entries (id, account_id, entry_type, amount, ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.ExecContext(ctx, entryQuery,
		uuid.New().String(), transfer.FromAccountID, models.EntryTypeDebit,
		transfer.Amount, transfer.ID, transfer.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, entryQuery,
		uuid.New().String(), transfer.ToAccountID, models.EntryTypeCredit,
		transfer.Amount, transfer.ID, transfer.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Merchant repository methods
func (r *PostgresRepository) CreateMerchant(ctx context.Context, merchant *models.Merchant) error {
	query := `
		INSERT INTO merchants (id, name, status, created_at)
		VALUES ($1, $2, $3, $4)
	`

	if merchant.ID == "" {
		merchant.ID = uuid.New().String()
	}
	if merchant.Status == "" {
		merchant.Status = models.StatusActive
	}
	merchant.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		merchant.ID, merchant.Name, merchant.Status, merchant.CreatedAt)

	return err
}

func (r *PostgresRepository) CreateMerchantKey(ctx context.Context, key *models.MerchantKey) error {
	query := `
		INSERT INTO merchant_keys (id, merchant_id, key_id, key_secret, scopes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if key.ID == "" {
		key.ID = uuid.New().String()
	}
	if key.Scopes == "" {
		key.Scopes = models.ScopePaymentsWrite
	}
	if key.Status == "" {
		key.Status = models.StatusActive
	}
	key.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		key.ID, key.MerchantID, key.KeyID, key.KeySecret, key.Scopes, key.Status, key.CreatedAt)

	return err
}

func (r *PostgresRepository) GetMerchantKeyByKeyID(ctx context.Context, keyID string) (*models.MerchantKey, error) {
	query := `SELECT * FROM merchant_keys WHERE key_id = $1`

	var key models.MerchantKey
	err := r.db.GetContext(ctx, &key, query, keyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Key not found
		}
		return nil, err
	}

	return &key, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
