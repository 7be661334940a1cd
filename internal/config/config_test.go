// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, durations, and the routes file

package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeFile(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:8080"

upstream:
  url: "http://127.0.0.1:3000"

database:
  path: "./test.db"

auth:
  token_secret: "a-signing-secret-of-32-plus-bytes!"
  token_ttl: "168h"
  cookie_name: "gatehouse_session"

throttle:
  points: 5
  window: "20m"
  block_duration: "20m"

gate:
  disable_multipart_bypass: true
  public_paths:
    - "/login"
    - "/api/auth/:path*"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("http_addr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Auth.TokenTTL != 168*time.Hour {
		t.Errorf("token_ttl = %v, want 168h", cfg.Auth.TokenTTL)
	}
	if cfg.Throttle.Window != 20*time.Minute {
		t.Errorf("window = %v, want 20m", cfg.Throttle.Window)
	}
	if !cfg.Gate.DisableMultipartBypass {
		t.Error("disable_multipart_bypass not parsed")
	}
	if cfg.Gate.DisableCSP {
		t.Error("disable_csp should default to false")
	}
	if len(cfg.Gate.PublicPaths) != 2 {
		t.Errorf("public_paths = %v", cfg.Gate.PublicPaths)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("GATEHOUSE_TEST_SECRET", "env-provided-secret-of-32+-bytes!!")

	configPath := writeFile(t, "config.yaml", `
server:
  http_addr: "127.0.0.1:8080"
auth:
  token_secret: "${GATEHOUSE_TEST_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.TokenSecret != "env-provided-secret-of-32+-bytes!!" {
		t.Errorf("token_secret = %q, env var not expanded", cfg.Auth.TokenSecret)
	}
}

func TestLoad_MissingSecretIsFatal(t *testing.T) {
	configPath := writeFile(t, "config.yaml", `
server:
  http_addr: "127.0.0.1:8080"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() should fail without auth.token_secret")
	}
	if !strings.Contains(err.Error(), "token_secret") {
		t.Errorf("error %q does not name the missing secret", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeFile(t, "config.yaml", `
server:
  http_addr: "127.0.0.1:8080"
auth:
  token_secret: "a-signing-secret-of-32-plus-bytes!"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Throttle.Points != 5 {
		t.Errorf("default points = %d, want 5", cfg.Throttle.Points)
	}
	if cfg.Throttle.Window != 20*time.Minute || cfg.Throttle.BlockDuration != 20*time.Minute {
		t.Errorf("default window/block = %v/%v, want 20m/20m", cfg.Throttle.Window, cfg.Throttle.BlockDuration)
	}
	if !slices.Contains(cfg.Gate.PublicPaths, "/api/auth/:path*") {
		t.Errorf("default public_paths = %v, missing auth endpoints", cfg.Gate.PublicPaths)
	}
	if cfg.Throttle.FailClosed {
		t.Error("store-outage policy should default to fail open")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeFile(t, "config.yaml", `
server:
  http_addr: "127.0.0.1:8080"
auth:
  token_secret: "a-signing-secret-of-32-plus-bytes!"
throttle:
  window: "twenty minutes"
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Load() should reject an unparseable duration")
	}
}

func TestLoad_RoutesFile(t *testing.T) {
	routesPath := writeFile(t, "routes.toml", `
public_paths = ["/docs", "/static/:path*"]
`)

	configPath := writeFile(t, "config.yaml", `
server:
  http_addr: "127.0.0.1:8080"
auth:
  token_secret: "a-signing-secret-of-32-plus-bytes!"
gate:
  routes_file: "`+routesPath+`"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !slices.Contains(cfg.Gate.PublicPaths, "/docs") || !slices.Contains(cfg.Gate.PublicPaths, "/static/:path*") {
		t.Errorf("public_paths = %v, routes file not merged", cfg.Gate.PublicPaths)
	}
}
