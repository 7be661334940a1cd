// ABOUTME: HTTP server assembly: auth endpoints, request gate, upstream proxy
// ABOUTME: Owns startup wiring and graceful shutdown

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/loomworks/gatehouse/internal/config"
	"github.com/loomworks/gatehouse/internal/gate"
	"github.com/loomworks/gatehouse/internal/store"
	"github.com/loomworks/gatehouse/internal/throttle"
	"github.com/loomworks/gatehouse/internal/token"
)

// Server is the assembled gatehouse edge: auth endpoints plus the gated
// proxy to the application upstream.
type Server struct {
	config     *config.Config
	logger     *slog.Logger
	accounts   store.AccountStore
	limiter    *throttle.Limiter
	issuer     *token.Issuer
	gate       *gate.Gate
	httpServer *http.Server
	closers    []func() error
}

// New builds a Server from configuration. Signer misconfiguration (missing
// or short secret) fails here, at startup, never per request.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	issuer, err := token.NewIssuer([]byte(cfg.Auth.TokenSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("configuring token issuer: %w", err)
	}

	s := &Server{
		config: cfg,
		logger: logger,
		issuer: issuer,
	}

	var counters throttle.CounterStore
	if cfg.Database.Path != "" {
		sqliteStore, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		s.accounts = sqliteStore
		counters = sqliteStore
		s.closers = append(s.closers, sqliteStore.Close)
	} else {
		logger.Warn("no database.path configured, keeping accounts and counters in memory")
		mem := newMemoryAccountStore()
		s.accounts = mem
		counters = throttle.NewMemoryCounterStore()
	}

	var throttleOpts []throttle.Option
	if cfg.Throttle.Points > 0 {
		throttleOpts = append(throttleOpts, throttle.WithLimits(throttle.Limits{
			Points:        cfg.Throttle.Points,
			Window:        cfg.Throttle.Window,
			BlockDuration: cfg.Throttle.BlockDuration,
		}))
	}
	if cfg.Throttle.FailClosed {
		throttleOpts = append(throttleOpts, throttle.WithFailClosed())
	}
	s.limiter = throttle.NewLimiter(counters, logger, throttleOpts...)

	s.gate, err = gate.New(gate.Options{
		Verifier:        issuer,
		PublicPaths:     cfg.Gate.PublicPaths,
		CookieName:      cfg.Auth.CookieName,
		LoginPath:       cfg.Auth.LoginPath,
		APIPrefixes:     cfg.Gate.APIPrefixes,
		EmitCSP:         !cfg.Gate.DisableCSP,
		CSP:             cfg.Gate.CSP,
		InjectIdentity:  !cfg.Gate.DisableIdentityHeaders,
		MultipartBypass: !cfg.Gate.DisableMultipartBypass,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring gate: %w", err)
	}

	handler, err := s.buildHandler()
	if err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// buildHandler assembles the mux: auth and health endpoints in front of the
// gated upstream proxy.
func (s *Server) buildHandler() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/session", s.handleSession)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleHealth)

	upstream, err := s.upstreamHandler()
	if err != nil {
		return nil, err
	}
	mux.Handle("/", upstream)

	return s.gate.Middleware(mux), nil
}

// upstreamHandler proxies everything that is not an auth or health endpoint
// to the application backend. Verified identity reaches it via the trusted
// headers the gate injected.
func (s *Server) upstreamHandler() (http.Handler, error) {
	if s.config.Upstream.URL == "" {
		s.logger.Warn("no upstream.url configured, non-auth paths will return 502")
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSONError(w, http.StatusBadGateway, "no upstream configured")
		}), nil
	}

	target, err := url.Parse(s.config.Upstream.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream.url: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.Error("upstream request failed", "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusBadGateway, "upstream unavailable")
	}
	return proxy, nil
}

// Handler exposes the assembled handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gatehouse listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case serverErr = <-errCh:
		s.logger.Error("http server failed", "error", serverErr)
	}

	shutdownErr := s.shutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// shutdown performs shutdown with a fresh context and timeout. Uses
// context.Background() since the original context is already canceled.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	for _, closeFn := range s.closers {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
