package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// appConfig holds the knobs a user can set in ~/.mdtend/config.toml.
// Command-line flags override file values, file values override defaults.
type appConfig struct {
	// Addr is the listen address. The tool is meant to stay on loopback.
	Addr string `toml:"addr"`
	// OpenBrowser launches the default browser after startup.
	OpenBrowser bool `toml:"open_browser"`
	// Watch enables the filesystem watcher and live reload.
	Watch bool `toml:"watch"`
	// AuditLog enables the persistent activity log under ~/.mdtend.
	AuditLog bool `toml:"audit_log"`
}

func defaultConfig() appConfig {
	return appConfig{
		Addr:        "127.0.0.1:5420",
		OpenBrowser: true,
		Watch:       true,
		AuditLog:    true,
	}
}

// defaultConfigPath returns ~/.mdtend/config.toml, or "" when the home
// directory cannot be determined.
func defaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".mdtend", "config.toml")
}

// loadConfig reads a TOML config file over the defaults. A missing file is
// only an error when the caller named the path explicitly; the default
// location is allowed to be absent.
func loadConfig(path string, explicit bool) (appConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config file %s: %w", path, err)
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c appConfig) validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("addr %q: %w", c.Addr, err)
	}
	return nil
}
