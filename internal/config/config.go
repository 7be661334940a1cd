// ABOUTME: Configuration loading and parsing for gatehouse
// ABOUTME: YAML with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gatehouse configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Gate     GateConfig     `yaml:"gate"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	// TrustProxyHeader makes the throttle key client addresses on
	// X-Forwarded-For. Only set this when a trusted load balancer sits in
	// front of gatehouse; the header is client-forgeable on direct
	// connections.
	TrustProxyHeader bool `yaml:"trust_proxy_header"`
}

// UpstreamConfig holds the application backend the gate proxies to
type UpstreamConfig struct {
	URL string `yaml:"url"`
}

// DatabaseConfig holds database configuration. An empty path keeps all state
// (accounts, throttle counters) in memory — useful for tests and demos only.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds token signing and session cookie configuration
type AuthConfig struct {
	// TokenSecret is the shared signing secret. Required; its absence is a
	// fatal startup error.
	TokenSecret string `yaml:"token_secret"`

	TokenTTL    time.Duration `yaml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl"`

	CookieName string `yaml:"cookie_name"`
	LoginPath  string `yaml:"login_path"`
}

// ThrottleConfig holds login throttle limits and the store-outage policy
type ThrottleConfig struct {
	Points int `yaml:"points"`

	Window    time.Duration `yaml:"-"`
	WindowRaw string        `yaml:"window"`

	BlockDuration    time.Duration `yaml:"-"`
	BlockDurationRaw string        `yaml:"block_duration"`

	// FailClosed rejects login attempts when the counter store is down.
	// Default is fail open with a logged warning.
	FailClosed bool `yaml:"fail_closed"`
}

// GateConfig holds request gate options
type GateConfig struct {
	// CSP is attached to every response unless disabled. An empty csp
	// value uses the built-in restrictive policy.
	DisableCSP bool   `yaml:"disable_csp"`
	CSP        string `yaml:"csp"`

	DisableIdentityHeaders bool     `yaml:"disable_identity_headers"`
	DisableMultipartBypass bool     `yaml:"disable_multipart_bypass"`
	PublicPaths            []string `yaml:"public_paths"`
	APIPrefixes            []string `yaml:"api_prefixes"`

	// RoutesFile optionally points to a TOML file whose route table is
	// appended to public_paths.
	RoutesFile string `yaml:"routes_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultPublicPaths are the paths exempt from authentication when the
// config lists none: the auth endpoints themselves plus health checks.
var DefaultPublicPaths = []string{
	"/login",
	"/signup",
	"/api/auth/:path*",
	"/health",
	"/health/:path*",
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if cfg.Gate.RoutesFile != "" {
		extra, err := LoadRoutes(cfg.Gate.RoutesFile)
		if err != nil {
			return nil, err
		}
		cfg.Gate.PublicPaths = append(cfg.Gate.PublicPaths, extra...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment
// variable values. If the environment variable is not set, it is replaced with
// an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Throttle.Points == 0 {
		c.Throttle.Points = 5
	}
	if c.Throttle.Window == 0 {
		c.Throttle.Window = 20 * time.Minute
	}
	if c.Throttle.BlockDuration == 0 {
		c.Throttle.BlockDuration = 20 * time.Minute
	}
	if len(c.Gate.PublicPaths) == 0 {
		c.Gate.PublicPaths = append([]string(nil), DefaultPublicPaths...)
	}
	if len(c.Gate.APIPrefixes) == 0 {
		c.Gate.APIPrefixes = []string{"/api/"}
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	// The signing secret is the one setting the process must refuse to
	// start without.
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token_secret is required")
	}

	if c.Throttle.Points < 1 {
		return fmt.Errorf("throttle.points must be at least 1")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	if cfg.Throttle.WindowRaw != "" {
		cfg.Throttle.Window, err = time.ParseDuration(cfg.Throttle.WindowRaw)
		if err != nil {
			return fmt.Errorf("parsing window %q: %w", cfg.Throttle.WindowRaw, err)
		}
	}

	if cfg.Throttle.BlockDurationRaw != "" {
		cfg.Throttle.BlockDuration, err = time.ParseDuration(cfg.Throttle.BlockDurationRaw)
		if err != nil {
			return fmt.Errorf("parsing block_duration %q: %w", cfg.Throttle.BlockDurationRaw, err)
		}
	}

	return nil
}
