// ABOUTME: Package doc for the gatehouse HTTP server assembly
// ABOUTME: Wires stores, throttle, issuer, and gate into one handler

// Package server assembles the gatehouse process: the auth endpoints
// (signup, login, logout, session), the health probes, and the gated
// reverse proxy to the application upstream.
//
// Request flow:
//
//	client -> gate middleware -> auth/health mux
//	                          -> reverse proxy (identity headers injected)
//
// The gate classifies public paths before any token work, so the auth
// endpoints themselves are reachable without a session.
package server
