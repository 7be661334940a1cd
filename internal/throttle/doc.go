// ABOUTME: Package throttle rate-limits failed login attempts per address and account
// ABOUTME: Counter state machine: Clear -> Consuming(n) -> Blocked(until T), lazy expiry

// Package throttle implements the brute-force login throttle.
//
// Attempts consume one point per scope (source address, account identifier)
// in a shared counter store. Exceeding capacity within the rolling window
// puts the key into a blocked state for a fixed duration; while blocked,
// every consumption fails regardless of remaining window time. Counters are
// cleared on successful authentication.
package throttle
