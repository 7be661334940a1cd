// ABOUTME: Throttle counter persistence with atomic increment-and-check
// ABOUTME: Implements throttle.CounterStore; expiry is lazy, no background sweep

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loomworks/gatehouse/internal/throttle"
)

// Ensure SQLiteStore implements the counter port.
var _ throttle.CounterStore = (*SQLiteStore)(nil)

// ConsumePoint increments the counter for (scope, key) inside a single
// serialized transaction, entering a blocked state once the increment would
// exceed capacity. Stale windows and elapsed blocks are cleared on access.
func (s *SQLiteStore) ConsumePoint(ctx context.Context, scope, key string, limits throttle.Limits) (throttle.Consumption, error) {
	// The mutex makes read-modify-write atomic across goroutines; the
	// transaction keeps it atomic on disk.
	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return throttle.Consumption{}, fmt.Errorf("beginning counter transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var points int
	var windowStartedStr string
	var blockedUntilStr sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT points, window_started_at, blocked_until
		FROM throttle_counters
		WHERE scope = ? AND key = ?
	`, scope, key).Scan(&points, &windowStartedStr, &blockedUntilStr)

	exists := true
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return throttle.Consumption{}, fmt.Errorf("querying counter: %w", err)
	}

	if exists {
		if blockedUntilStr.Valid {
			blockedUntil, perr := time.Parse(time.RFC3339, blockedUntilStr.String)
			if perr != nil {
				return throttle.Consumption{}, fmt.Errorf("parsing blocked_until: %w", perr)
			}
			if now.Before(blockedUntil) {
				// Still blocked; the attempt fails closed for this key.
				return throttle.Consumption{OK: false, RetryAfter: blockedUntil.Sub(now)}, tx.Commit()
			}
			exists = false
		} else {
			windowStarted, perr := time.Parse(time.RFC3339, windowStartedStr)
			if perr != nil {
				return throttle.Consumption{}, fmt.Errorf("parsing window_started_at: %w", perr)
			}
			if now.Sub(windowStarted) >= limits.Window {
				exists = false
			}
		}
	}

	if !exists {
		// Fresh window with this attempt as its first point.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO throttle_counters (scope, key, points, window_started_at, blocked_until)
			VALUES (?, ?, 1, ?, NULL)
			ON CONFLICT(scope, key) DO UPDATE SET
				points = 1,
				window_started_at = excluded.window_started_at,
				blocked_until = NULL
		`, scope, key, now.Format(time.RFC3339))
		if err != nil {
			return throttle.Consumption{}, fmt.Errorf("resetting counter window: %w", err)
		}
		return throttle.Consumption{OK: true}, tx.Commit()
	}

	points++
	if points > limits.Points {
		blockedUntil := now.Add(limits.BlockDuration)
		_, err = tx.ExecContext(ctx, `
			UPDATE throttle_counters
			SET points = ?, blocked_until = ?
			WHERE scope = ? AND key = ?
		`, points, blockedUntil.Format(time.RFC3339), scope, key)
		if err != nil {
			return throttle.Consumption{}, fmt.Errorf("blocking counter: %w", err)
		}
		s.logger.Warn("throttle key blocked", "scope", scope, "block_duration", limits.BlockDuration)
		return throttle.Consumption{OK: false, RetryAfter: limits.BlockDuration}, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE throttle_counters
		SET points = ?
		WHERE scope = ? AND key = ?
	`, points, scope, key)
	if err != nil {
		return throttle.Consumption{}, fmt.Errorf("incrementing counter: %w", err)
	}
	return throttle.Consumption{OK: true}, tx.Commit()
}

// ResetCounter deletes the counter row for (scope, key).
func (s *SQLiteStore) ResetCounter(ctx context.Context, scope, key string) error {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM throttle_counters
		WHERE scope = ? AND key = ?
	`, scope, key)
	if err != nil {
		return fmt.Errorf("deleting counter: %w", err)
	}
	return nil
}
