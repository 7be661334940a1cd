// ABOUTME: Store types and sentinel errors for gatehouse persistence
// ABOUTME: Defines the Account record and the AccountStore interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrAccountNotFound is returned when no account matches the lookup.
var ErrAccountNotFound = errors.New("account not found")

// ErrEmailExists is returned when creating an account with a taken email.
var ErrEmailExists = errors.New("email already registered")

// Account is a credential record. It is created at signup and read-only to
// the authentication core afterwards.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// AccountStore is the credential-store port consumed by the login endpoints.
type AccountStore interface {
	CreateAccount(ctx context.Context, email, passwordHash string) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccount(ctx context.Context, id int64) (*Account, error)
}
