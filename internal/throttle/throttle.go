// ABOUTME: Dual-scope login throttle with explicit OK/Throttled/StoreUnavailable outcomes
// ABOUTME: Consumes one point per scope per attempt; reset clears both scopes on success

package throttle

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Throttle scopes. Address-scoped counting stops one origin hammering many
// accounts; account-scoped counting stops many origins hammering one account.
const (
	ScopeAddress = "addr"
	ScopeAccount = "account"
)

// Default limits: 5 points per 20-minute rolling window, then a 20-minute block.
const (
	DefaultPoints        = 5
	DefaultWindow        = 20 * time.Minute
	DefaultBlockDuration = 20 * time.Minute
)

// Outcome classifies the result of a throttle check.
type Outcome int

const (
	// OutcomeOK means both scopes had capacity; the attempt may proceed.
	OutcomeOK Outcome = iota
	// OutcomeThrottled means at least one scope is exhausted or blocked.
	OutcomeThrottled
	// OutcomeStoreUnavailable means the counter store could not be reached.
	OutcomeStoreUnavailable
)

// Decision is the result of Check. RetryAfter is set for OutcomeThrottled.
type Decision struct {
	Outcome    Outcome
	RetryAfter time.Duration
}

// Limits configures a counter: capacity within a rolling window, and the
// block duration applied once the capacity would be exceeded.
type Limits struct {
	Points        int
	Window        time.Duration
	BlockDuration time.Duration
}

// Consumption is the per-scope result from a counter store.
type Consumption struct {
	OK         bool
	RetryAfter time.Duration
}

// CounterStore is the shared counter port. ConsumePoint must perform its
// increment-and-check atomically; two concurrent calls for the same key must
// never both observe a below-threshold count at the cap.
type CounterStore interface {
	ConsumePoint(ctx context.Context, scope, key string, limits Limits) (Consumption, error)
	ResetCounter(ctx context.Context, scope, key string) error
}

// Limiter enforces the dual-scope login throttle.
//
// On counter-store failure the limiter fails open: the attempt proceeds and a
// warning is logged. The deliberately slow credential hash still bounds the
// attack rate, and locking every user out because a counter store is down is
// the worse failure for a login path. Callers see the condition explicitly as
// OutcomeStoreUnavailable when FailClosed is set.
type Limiter struct {
	store      CounterStore
	limits     Limits
	failClosed bool
	logger     *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimits overrides the default limits.
func WithLimits(l Limits) Option {
	return func(lim *Limiter) { lim.limits = l }
}

// WithFailClosed makes store outages reject login attempts instead of
// letting them through.
func WithFailClosed() Option {
	return func(lim *Limiter) { lim.failClosed = true }
}

// NewLimiter creates a limiter over the given counter store.
func NewLimiter(store CounterStore, logger *slog.Logger, opts ...Option) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	lim := &Limiter{
		store: store,
		limits: Limits{
			Points:        DefaultPoints,
			Window:        DefaultWindow,
			BlockDuration: DefaultBlockDuration,
		},
		logger: logger.With("component", "throttle"),
	}
	for _, opt := range opts {
		opt(lim)
	}
	return lim
}

// Check consumes one point in each scope for the attempt. Consuming is the
// check: both counters are mutated even when the eventual outcome is a
// rejection. The two scopes share no state, so they are consulted
// concurrently.
func (l *Limiter) Check(ctx context.Context, addr, accountKey string) Decision {
	type result struct {
		c   Consumption
		err error
	}

	addrCh := make(chan result, 1)
	go func() {
		c, err := l.store.ConsumePoint(ctx, ScopeAddress, addr, l.limits)
		addrCh <- result{c, err}
	}()

	acctC, acctErr := l.store.ConsumePoint(ctx, ScopeAccount, NormalizeKey(accountKey), l.limits)
	addrRes := <-addrCh

	if addrRes.err != nil || acctErr != nil {
		err := acctErr
		if err == nil {
			err = addrRes.err
		}
		l.logger.Warn("counter store unavailable during login throttle check",
			"error", err,
			"fail_closed", l.failClosed,
		)
		if l.failClosed {
			return Decision{Outcome: OutcomeStoreUnavailable}
		}
		return Decision{Outcome: OutcomeOK}
	}

	if !addrRes.c.OK || !acctC.OK {
		retry := addrRes.c.RetryAfter
		if acctC.RetryAfter > retry {
			retry = acctC.RetryAfter
		}
		return Decision{Outcome: OutcomeThrottled, RetryAfter: retry}
	}

	return Decision{Outcome: OutcomeOK}
}

// Reset clears the counters and any block state for both scopes. Called once
// per successful authentication.
func (l *Limiter) Reset(ctx context.Context, addr, accountKey string) {
	if err := l.store.ResetCounter(ctx, ScopeAddress, addr); err != nil {
		l.logger.Warn("failed to reset address throttle counter", "error", err)
	}
	if err := l.store.ResetCounter(ctx, ScopeAccount, NormalizeKey(accountKey)); err != nil {
		l.logger.Warn("failed to reset account throttle counter", "error", err)
	}
}

// NormalizeKey lowercases and trims an account identifier so throttle keys
// match account lookup semantics (emails are case-insensitive).
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
