// ABOUTME: Package token issues and verifies self-contained session tokens
// ABOUTME: Validity is signature plus expiry only; there is no revocation list

// Package token implements the session token service.
//
// Tokens are HS256 signed JWTs carrying the account id (decimal, in sub),
// the account email, issuance time, and expiry. They are bearer artifacts:
// nothing is persisted server side, so logout is client-side deletion of
// the token and a token remains valid until it expires.
package token
