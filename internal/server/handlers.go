// ABOUTME: Auth endpoint handlers: login, signup, logout, session, health
// ABOUTME: Login consults the throttle before the credential verifier

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/loomworks/gatehouse/internal/credential"
	"github.com/loomworks/gatehouse/internal/gate"
	"github.com/loomworks/gatehouse/internal/store"
	"github.com/loomworks/gatehouse/internal/throttle"
	"github.com/loomworks/gatehouse/internal/token"
)

const maxPasswordLength = 72 // bcrypt input limit

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	addr := s.clientAddr(r)
	email := throttle.NormalizeKey(req.Email)

	// Consuming is the check: both scope counters are incremented by this
	// call even if the attempt goes on to fail.
	switch d := s.limiter.Check(r.Context(), addr, email); d.Outcome {
	case throttle.OutcomeThrottled:
		w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds()+1)))
		writeJSONError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	case throttle.OutcomeStoreUnavailable:
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	account, err := s.accounts.GetAccountByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			// Same response and comparable timing as a wrong password, so
			// responses do not enumerate registered emails.
			credential.VerifyDummy(req.Password)
			s.logger.Warn("login attempt for unknown account", "addr", addr)
			writeJSONError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		// Infrastructure fault, not an authentication decision.
		s.logger.Error("credential store lookup failed", "error", err)
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	if !credential.Verify(req.Password, account.PasswordHash) {
		s.logger.Warn("login attempt with wrong password", "addr", addr, "account_id", account.ID)
		writeJSONError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	tok, err := s.issuer.Issue(account.ID, account.Email)
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.limiter.Reset(r.Context(), addr, email)
	s.setSessionCookie(w, r, tok)

	s.logger.Info("login successful", "account_id", account.ID)
	writeJSON(w, http.StatusOK, sessionResponse{
		Token: tok,
		User:  userResponse{ID: account.ID, Email: account.Email},
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	email := throttle.NormalizeKey(req.Email)
	if err := validateSignup(email, req.Password); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := credential.Hash(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	account, err := s.accounts.CreateAccount(r.Context(), email, hash)
	if err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			writeJSONError(w, http.StatusConflict, "email already registered")
			return
		}
		s.logger.Error("failed to create account", "error", err)
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	tok, err := s.issuer.Issue(account.ID, account.Email)
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.setSessionCookie(w, r, tok)
	s.logger.Info("account created", "account_id", account.ID)
	writeJSON(w, http.StatusCreated, sessionResponse{
		Token: tok,
		User:  userResponse{ID: account.ID, Email: account.Email},
	})
}

// handleLogout clears the session cookie. Tokens are self-contained and not
// revocable server side; logout is client-side deletion.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

// handleSession reports the identity bound to the presented token.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	tok := presentedToken(r, s.cookieName())
	if tok == "" {
		writeJSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	identity, err := s.issuer.Verify(tok)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	writeJSON(w, http.StatusOK, map[string]userResponse{
		"user": {ID: identity.AccountID, Email: identity.Email},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) cookieName() string {
	if s.config.Auth.CookieName != "" {
		return s.config.Auth.CookieName
	}
	return gate.DefaultCookieName
}

// setSessionCookie attaches the session token as an http-only cookie scoped
// to the whole site, secure when served over TLS.
func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, tok string) {
	ttl := s.config.Auth.TokenTTL
	if ttl <= 0 {
		ttl = token.DefaultTTL
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName(),
		Value:    tok,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// presentedToken extracts a token with the same precedence as the gate:
// bearer header first, session cookie second, never both. Non-Bearer
// Authorization schemes are not token sources.
func presentedToken(r *http.Request, cookieName string) string {
	const bearerPrefix = "Bearer "
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, bearerPrefix) {
		return strings.TrimPrefix(authHeader, bearerPrefix)
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// clientAddr returns the source address used for throttle scoping. The
// connection peer is authoritative; X-Forwarded-For is client-forgeable and
// is consulted only when the operator declares a trusted proxy in front of
// the gate, otherwise an attacker could rotate a fresh forged value per
// attempt and never accumulate address-scoped points.
func (s *Server) clientAddr(r *http.Request) string {
	if s.config.Server.TrustProxyHeader {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if first, _, ok := strings.Cut(fwd, ","); ok {
				return strings.TrimSpace(first)
			}
			return strings.TrimSpace(fwd)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func validateSignup(email, password string) error {
	if email == "" || password == "" {
		return errors.New("email and password are required")
	}
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return errors.New("invalid email address")
	}
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("password must be at most %d characters", maxPasswordLength)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
