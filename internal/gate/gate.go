// ABOUTME: Edge request gate: classifies paths, authenticates protected requests
// ABOUTME: Forwards with trusted identity headers or rejects per caller class

package gate

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/loomworks/gatehouse/internal/token"
)

// Trusted identity headers. The gate is the only writer: client-supplied
// values are stripped from every request before classification.
const (
	HeaderUserID    = "x-user-id"
	HeaderUserEmail = "x-user-email"
)

// HeaderRequestID carries a per-request id for downstream log correlation.
const HeaderRequestID = "x-request-id"

// DefaultCSP is the content-security-policy value attached to every gate
// response when none is configured.
const DefaultCSP = "default-src 'self'; frame-ancestors 'none'"

// DefaultCookieName is the session cookie the gate falls back to when no
// bearer header is present.
const DefaultCookieName = "gatehouse_session"

// wildcardSuffix marks a public-path entry as a prefix pattern.
const wildcardSuffix = ":path*"

// bearerPrefix is the only Authorization scheme the gate reads tokens from.
const bearerPrefix = "Bearer "

// Options configures a Gate. One parameterized gate replaces per-deployment
// middleware variants.
type Options struct {
	// Verifier validates presented session tokens. Required.
	Verifier token.Verifier

	// PublicPaths lists exact paths and "/base/:path*" prefix patterns that
	// are exempt from authentication.
	PublicPaths []string

	// CookieName is the session cookie name. Defaults to DefaultCookieName.
	CookieName string

	// LoginPath is where browser-style callers are redirected when not
	// authenticated. Defaults to "/login".
	LoginPath string

	// APIPrefixes mark path prefixes whose callers get structured 401
	// rejections instead of redirects. The Accept header is consulted for
	// everything else.
	APIPrefixes []string

	// EmitCSP attaches the content-security-policy header to every response.
	EmitCSP bool

	// CSP overrides DefaultCSP when EmitCSP is set.
	CSP string

	// InjectIdentity controls whether x-user-id / x-user-email are added to
	// forwarded authenticated requests.
	InjectIdentity bool

	// MultipartBypass forwards multipart upload streams without header
	// rewriting. Such requests are NOT authenticated by the gate; their
	// handlers must check identity themselves.
	MultipartBypass bool

	Logger *slog.Logger
}

// Gate classifies every inbound request as public or protected and
// authenticates protected ones before they reach application logic.
type Gate struct {
	verifier        token.Verifier
	exact           map[string]struct{}
	prefixes        []string
	cookieName      string
	loginPath       string
	apiPrefixes     []string
	emitCSP         bool
	csp             string
	injectIdentity  bool
	multipartBypass bool
	logger          *slog.Logger
}

// New creates a Gate from the given options.
func New(opts Options) (*Gate, error) {
	if opts.Verifier == nil {
		return nil, errors.New("gate: token verifier is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gate{
		verifier:        opts.Verifier,
		exact:           make(map[string]struct{}),
		cookieName:      opts.CookieName,
		loginPath:       opts.LoginPath,
		apiPrefixes:     opts.APIPrefixes,
		emitCSP:         opts.EmitCSP,
		csp:             opts.CSP,
		injectIdentity:  opts.InjectIdentity,
		multipartBypass: opts.MultipartBypass,
		logger:          logger.With("component", "gate"),
	}
	if g.cookieName == "" {
		g.cookieName = DefaultCookieName
	}
	if g.loginPath == "" {
		g.loginPath = "/login"
	}
	if g.csp == "" {
		g.csp = DefaultCSP
	}

	for _, p := range opts.PublicPaths {
		if strings.HasSuffix(p, wildcardSuffix) {
			g.prefixes = append(g.prefixes, strings.TrimSuffix(p, wildcardSuffix))
		} else {
			g.exact[p] = struct{}{}
		}
	}

	return g, nil
}

// Middleware wraps next with the gate. It runs once per inbound request and
// shares no mutable state across requests.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.emitCSP {
			w.Header().Set("Content-Security-Policy", g.csp)
		}

		// Only the gate may write these.
		r.Header.Del(HeaderUserID)
		r.Header.Del(HeaderUserEmail)

		// CORS preflight always forwards.
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if g.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		// Large binary upload streams skip header rewriting so an already
		// buffered body is not disturbed; their handlers authenticate
		// explicitly.
		if g.multipartBypass && strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			next.ServeHTTP(w, r)
			return
		}

		tok, fromCookie := g.extractToken(r)
		if tok == "" {
			g.reject(w, r, false)
			return
		}

		identity, err := g.verifier.Verify(tok)
		if err != nil {
			g.logger.Debug("rejected token", "path", r.URL.Path, "error", err)
			g.reject(w, r, fromCookie)
			return
		}

		if g.injectIdentity {
			r.Header.Set(HeaderUserID, strconv.FormatInt(identity.AccountID, 10))
			r.Header.Set(HeaderUserEmail, identity.Email)
		}
		if r.Header.Get(HeaderRequestID) == "" {
			r.Header.Set(HeaderRequestID, uuid.NewString())
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// isPublic reports whether path matches the public set by exact string or
// prefix wildcard.
func (g *Gate) isPublic(path string) bool {
	if _, ok := g.exact[path]; ok {
		return true
	}
	for _, prefix := range g.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// extractToken returns the presented token and whether it came from the
// session cookie. A bearer header takes precedence and is used exclusively:
// an invalid bearer token is never papered over by a valid cookie. Other
// Authorization schemes are not token sources and fall through to the cookie.
func (g *Gate) extractToken(r *http.Request) (tok string, fromCookie bool) {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, bearerPrefix) {
		return strings.TrimPrefix(authHeader, bearerPrefix), false
	}

	cookie, err := r.Cookie(g.cookieName)
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}

// reject finishes an unauthenticated protected request. API-style callers
// get a structured 401; browser-style callers are redirected to the login
// entry point carrying the originally requested path. A stale cookie is
// cleared so it cannot cause a redirect loop.
func (g *Gate) reject(w http.ResponseWriter, r *http.Request, clearCookie bool) {
	if clearCookie {
		http.SetCookie(w, &http.Cookie{
			Name:     g.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
	}

	if g.isAPICaller(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"authentication required"}`)
		return
	}

	target := g.loginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// isAPICaller distinguishes API-style callers, for whom a browser redirect
// is meaningless, from browser-style ones.
func (g *Gate) isAPICaller(r *http.Request) bool {
	for _, prefix := range g.apiPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
