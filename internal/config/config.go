// Package config loads agent configuration from defaults, an optional YAML
// file, and environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

type Browser struct {
	// DebuggerURL attaches to a running Chrome; empty launches one.
	DebuggerURL         string `yaml:"debugger_url"`
	Headless            bool   `yaml:"headless"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
}

type Config struct {
	// CollectorEndpoint receives detection payloads.
	CollectorEndpoint string `yaml:"collector_endpoint"`
	// ListenAddress is where the bundled collector service binds.
	ListenAddress string  `yaml:"listen_address"`
	DatabasePath  string  `yaml:"database_path"`
	ClientID      string  `yaml:"client_id"` // payload userAgent string
	Browser       Browser `yaml:"browser"`
}

// Default returns the platform-appropriate baseline configuration.
func Default() Config {
	return Config{
		CollectorEndpoint: "http://127.0.0.1:8123/api/checkout-trigger",
		ListenAddress:     "127.0.0.1:8123",
		DatabasePath:      filepath.Join(applicationDirectory(), "detections.db"),
		ClientID:          fmt.Sprintf("checkout-agent/0.1 (%s)", runtime.GOOS),
		Browser: Browser{
			Headless:            false,
			NavigationTimeoutMs: 30000,
		},
	}
}

// applicationDirectory mirrors the per-OS app data convention.
func applicationDirectory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "CheckoutAgent")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "CheckoutAgent")
	default:
		return filepath.Join(home, ".local", "share", "CheckoutAgent")
	}
}

// Load builds the effective configuration. path may be empty; a missing
// explicit file is an error, env vars win over the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("CHECKOUT_AGENT_ENDPOINT"); v != "" {
		cfg.CollectorEndpoint = v
	}
	if v := os.Getenv("CHECKOUT_AGENT_ADDRESS"); v != "" {
		cfg.ListenAddress = v
	}
	if v := os.Getenv("CHECKOUT_AGENT_DB"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("CHECKOUT_AGENT_DEBUGGER_URL"); v != "" {
		cfg.Browser.DebuggerURL = v
	}
	return cfg, nil
}
