// ABOUTME: In-memory account store used when no database path is configured
// ABOUTME: Suitable for development and tests; accounts vanish on restart

package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/loomworks/gatehouse/internal/store"
)

type memoryAccountStore struct {
	mu      sync.Mutex
	nextID  int64
	byEmail map[string]*store.Account
	byID    map[int64]*store.Account
}

func newMemoryAccountStore() *memoryAccountStore {
	return &memoryAccountStore{
		nextID:  1,
		byEmail: make(map[string]*store.Account),
		byID:    make(map[int64]*store.Account),
	}
}

func (m *memoryAccountStore) CreateAccount(ctx context.Context, email, passwordHash string) (*store.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(email)
	if _, exists := m.byEmail[key]; exists {
		return nil, store.ErrEmailExists
	}

	account := &store.Account{
		ID:           m.nextID,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	m.nextID++
	m.byEmail[key] = account
	m.byID[account.ID] = account

	copied := *account
	return &copied, nil
}

func (m *memoryAccountStore) GetAccountByEmail(ctx context.Context, email string) (*store.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *memoryAccountStore) GetAccount(ctx context.Context, id int64) (*store.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.byID[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}
