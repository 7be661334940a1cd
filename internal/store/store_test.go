// ABOUTME: Tests for the SQLite store: accounts and throttle counters
// ABOUTME: Uses a temporary database per test via t.TempDir

package store

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/gatehouse/internal/throttle"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestStore_CreateAccount(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	account, err := store.CreateAccount(ctx, "a@x.com", "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", account.Email)
	assert.NotZero(t, account.ID)

	retrieved, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", retrieved.Email)
	assert.Equal(t, "hash-1", retrieved.PasswordHash)
}

func TestStore_CreateAccount_DuplicateEmail(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateAccount(ctx, "a@x.com", "hash-1")
	require.NoError(t, err)

	// Same email, different case: still a duplicate.
	_, err = store.CreateAccount(ctx, "A@X.COM", "hash-2")
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestStore_GetAccountByEmail_CaseInsensitive(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created, err := store.CreateAccount(ctx, "Mixed@Case.com", "hash-1")
	require.NoError(t, err)

	retrieved, err := store.GetAccountByEmail(ctx, "mixed@case.COM")
	require.NoError(t, err)
	assert.Equal(t, created.ID, retrieved.ID)
}

func TestStore_GetAccount_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetAccountByEmail(ctx, "missing@x.com")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = store.GetAccount(ctx, 12345)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func testLimits() throttle.Limits {
	return throttle.Limits{
		Points:        5,
		Window:        20 * time.Minute,
		BlockDuration: 20 * time.Minute,
	}
}

func TestStore_ConsumePoint_CapacityThenBlock(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	limits := testLimits()

	for i := 0; i < 5; i++ {
		c, err := store.ConsumePoint(ctx, throttle.ScopeAddress, "1.2.3.4", limits)
		require.NoError(t, err)
		assert.True(t, c.OK, "consumption %d should succeed", i+1)
	}

	c, err := store.ConsumePoint(ctx, throttle.ScopeAddress, "1.2.3.4", limits)
	require.NoError(t, err)
	assert.False(t, c.OK, "sixth consumption should be rejected")
	assert.Equal(t, limits.BlockDuration, c.RetryAfter)

	// Still blocked on the next attempt, with remaining time reported.
	c, err = store.ConsumePoint(ctx, throttle.ScopeAddress, "1.2.3.4", limits)
	require.NoError(t, err)
	assert.False(t, c.OK)
	assert.Greater(t, c.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, c.RetryAfter, limits.BlockDuration)
}

func TestStore_ConsumePoint_ScopesAreIndependent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	limits := throttle.Limits{Points: 1, Window: time.Minute, BlockDuration: time.Hour}

	c, err := store.ConsumePoint(ctx, throttle.ScopeAddress, "same-key", limits)
	require.NoError(t, err)
	assert.True(t, c.OK)

	// Same key under the other scope has its own counter.
	c, err = store.ConsumePoint(ctx, throttle.ScopeAccount, "same-key", limits)
	require.NoError(t, err)
	assert.True(t, c.OK)
}

func TestStore_ResetCounter(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	limits := throttle.Limits{Points: 1, Window: time.Minute, BlockDuration: time.Hour}

	store.ConsumePoint(ctx, throttle.ScopeAccount, "a@x.com", limits)
	c, err := store.ConsumePoint(ctx, throttle.ScopeAccount, "a@x.com", limits)
	require.NoError(t, err)
	require.False(t, c.OK, "key should be blocked")

	require.NoError(t, store.ResetCounter(ctx, throttle.ScopeAccount, "a@x.com"))

	c, err = store.ConsumePoint(ctx, throttle.ScopeAccount, "a@x.com", limits)
	require.NoError(t, err)
	assert.True(t, c.OK, "consumption after reset should succeed")
}

func TestStore_ConsumePoint_NoDoubleCountRace(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	limits := throttle.Limits{Points: 5, Window: time.Minute, BlockDuration: time.Hour}

	var ok int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := store.ConsumePoint(ctx, throttle.ScopeAddress, "race-key", limits)
			if err == nil && c.OK {
				atomic.AddInt64(&ok, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, ok, "exactly the capacity should succeed under concurrency")
}
