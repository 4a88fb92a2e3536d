package config

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// createTables creates the necessary tables in the database
func createTables(db *sqlx.DB) error {
	// Create users table
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(36) PRIMARY KEY,
			email VARCHAR(320) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			scopes TEXT NOT NULL DEFAULT 'accounts:read transfers:write',
			status VARCHAR(32) NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create accounts table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL REFERENCES users(id),
			currency VARCHAR(3) NOT NULL DEFAULT 'GBP',
			status VARCHAR(32) NOT NULL DEFAULT 'open',
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create ledger_entries table (append-only; no UPDATE or DELETE ever runs
	// against it)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id VARCHAR(36) PRIMARY KEY,
			account_id VARCHAR(36) NOT NULL REFERENCES accounts(id),
			entry_type VARCHAR(16) NOT NULL,
			amount NUMERIC(18, 2) NOT NULL CHECK (amount > 0),
			ref VARCHAR(64) NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create transfers table. The unique constraint on
	// (user_id, idempotency_key) is what closes the check-then-insert race
	// under concurrent duplicate submissions.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS transfers (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL REFERENCES users(id),
			from_account_id VARCHAR(36) NOT NULL REFERENCES accounts(id),
			to_account_id VARCHAR(36) NOT NULL REFERENCES accounts(id),
			amount NUMERIC(18, 2) NOT NULL CHECK (amount > 0),
			status VARCHAR(32) NOT NULL DEFAULT 'succeeded',
			idempotency_key VARCHAR(128) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, idempotency_key)
		)
	`)
	if err != nil {
		return err
	}

	// Create merchants table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS merchants (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(128) UNIQUE NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create merchant_keys table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS merchant_keys (
			id VARCHAR(36) PRIMARY KEY,
			merchant_id VARCHAR(36) NOT NULL REFERENCES merchants(id),
			key_id VARCHAR(64) UNIQUE NOT NULL,
			key_secret VARCHAR(255) NOT NULL,
			scopes TEXT NOT NULL DEFAULT 'payments:write',
			status VARCHAR(32) NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create indexes for better performance
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_id ON ledger_entries(account_id)",
		"CREATE INDEX IF NOT EXISTS idx_ledger_entries_ref ON ledger_entries(ref)",
		"CREATE INDEX IF NOT EXISTS idx_transfers_user_id ON transfers(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_merchant_keys_merchant_id ON merchant_keys(merchant_id)",
	}

	for _, idx := range indexes {
		_, err = db.Exec(idx)
		if err != nil {
			log.Printf("Warning: Failed to create index: %v", err)
			// Don't return error here, indexes are not critical
		}
	}

	return nil
}
