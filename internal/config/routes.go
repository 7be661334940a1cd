// ABOUTME: Optional TOML route table listing additional public paths
// ABOUTME: Appended to gate.public_paths when gate.routes_file is configured

package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// routesFile is the on-disk shape of a gate route table.
type routesFile struct {
	PublicPaths []string `toml:"public_paths"`
}

// LoadRoutes reads a TOML route table and returns the public paths it lists.
// Entries use the same syntax as gate.public_paths: exact paths or
// "/base/:path*" prefix patterns.
func LoadRoutes(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading routes file: %w", err)
	}

	var rf routesFile
	if _, err := toml.Decode(expandEnvVars(string(data)), &rf); err != nil {
		return nil, fmt.Errorf("parsing routes file: %w", err)
	}

	return rf.PublicPaths, nil
}
