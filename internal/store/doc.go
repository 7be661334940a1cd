// ABOUTME: Package store persists accounts and throttle counters in SQLite
// ABOUTME: Uses the pure-Go modernc.org/sqlite driver with WAL mode

// Package store provides SQLite-backed persistence for gatehouse.
//
// Two tables are owned here: accounts (the credential records consulted at
// login) and throttle_counters (the failed-attempt counters behind the login
// throttle). The schema is created automatically on open.
package store
