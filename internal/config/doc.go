// Package config handles configuration loading for gatehouse.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token_secret: "${GATEHOUSE_TOKEN_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Server and upstream:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  trust_proxy_header: false  # set true only behind a trusted load balancer
//	upstream:
//	  url: "http://127.0.0.1:3000"   # the application the gate proxies to
//
// Database:
//
//	database:
//	  path: "/var/lib/gatehouse/gatehouse.db"
//
// Authentication:
//
//	auth:
//	  token_secret: "${GATEHOUSE_TOKEN_SECRET}"  # required, min 32 bytes
//	  token_ttl: "168h"                          # session token lifetime
//	  cookie_name: "gatehouse_session"
//	  login_path: "/login"
//
// Login throttle:
//
//	throttle:
//	  points: 5
//	  window: "20m"
//	  block_duration: "20m"
//	  fail_closed: false   # default policy is fail open with a warning
//
// Request gate:
//
//	gate:
//	  disable_csp: false                # CSP is emitted unless disabled
//	  disable_identity_headers: false
//	  disable_multipart_bypass: false
//	  public_paths:
//	    - "/login"
//	    - "/api/auth/:path*"
//	  api_prefixes:
//	    - "/api/"
//	  routes_file: "/etc/gatehouse/routes.toml"   # optional extra public paths
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
