// Package config provides TOML configuration file loading for the host.
// The configuration file lives at ~/.scanlink/config.toml by default, but can
// be overridden with the --config flag. CLI flags always take precedence over
// file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultAddr is the address the server binds when nothing else is set.
// Loopback by default; LAN access is an explicit choice.
const DefaultAddr = "127.0.0.1:7080"

// Config represents the host configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML
// files via struct tags.
type Config struct {
	// Addr is the host:port for the WebSocket server.
	// Default: 127.0.0.1:7080
	Addr string `toml:"addr"`

	// DB is the path to the SQLite database backing the device registry.
	// If empty, an in-memory store is used and device records do not
	// survive a restart.
	DB string `toml:"db"`

	// Name is a human-readable name for this host, used in mDNS
	// advertisements. Defaults to the system hostname if empty.
	Name string `toml:"name"`

	// MdnsEnabled enables mDNS/Bonjour service advertisement.
	// When true, the host advertises itself on the local network so devices
	// can discover it without manual IP entry.
	// Default: false (disabled - must be explicitly enabled)
	MdnsEnabled bool `toml:"mdns_enabled"`
}

// DefaultConfigPath returns the default config file location:
// ~/.scanlink/config.toml. Returns an error only if the user's home
// directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".scanlink", "config.toml"), nil
}

// DefaultDBPath returns the default database location:
// ~/.scanlink/scanlink.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".scanlink", "scanlink.db"), nil
}

// WriteDefault creates a config file with LAN-ready defaults at the given
// path.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string) error {
	// Never overwrite an existing config
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := `# Scanlink host configuration
# Created by 'scanlink start' for LAN-ready defaults

# Listen on all interfaces so devices on the LAN can reach the host
addr = "0.0.0.0:7080"

# Advertise the host on the local network
mdns_enabled = true
`

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location
//     (~/.scanlink/config.toml). Returns an empty Config without error if
//     the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		// No explicit path: try default location, but don't error if missing.
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if file doesn't exist.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}
