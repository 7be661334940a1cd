// ABOUTME: Account CRUD on SQLite: create at signup, lookup at login
// ABOUTME: Email matching is case-insensitive via COLLATE NOCASE

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Ensure SQLiteStore implements AccountStore.
var _ AccountStore = (*SQLiteStore)(nil)

// CreateAccount inserts a new account with the given email and credential
// hash, returning the stored record with its assigned id.
func (s *SQLiteStore) CreateAccount(ctx context.Context, email, passwordHash string) (*Account, error) {
	query := `
		INSERT INTO accounts (email, password_hash, created_at)
		VALUES (?, ?, ?)
	`

	createdAt := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query, email, passwordHash, createdAt.Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("inserting account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting account id: %w", err)
	}

	s.logger.Info("created account", "id", id)
	return &Account{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    createdAt,
	}, nil
}

// GetAccountByEmail retrieves an account by email, case-insensitively.
func (s *SQLiteStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	query := `
		SELECT id, email, password_hash, created_at
		FROM accounts
		WHERE email = ?
	`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, email))
}

// GetAccount retrieves an account by id.
func (s *SQLiteStore) GetAccount(ctx context.Context, id int64) (*Account, error) {
	query := `
		SELECT id, email, password_hash, created_at
		FROM accounts
		WHERE id = ?
	`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLiteStore) scanAccount(row *sql.Row) (*Account, error) {
	var account Account
	var createdAtStr string

	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&createdAtStr,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}

	account.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &account, nil
}
