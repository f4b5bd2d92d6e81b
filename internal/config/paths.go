package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "esprit"

// Dir returns the esprit state directory (~/.esprit by default).
// ESPRIT_CONFIG_DIR overrides it, which tests rely on.
func Dir() string {
	if v := os.Getenv("ESPRIT_CONFIG_DIR"); v != "" {
		return v
	}
	return filepath.Join(homeDir(), "."+appName)
}

// CacheDir returns the cache directory used for refreshable data such as
// the remote pricing JSON.
func CacheDir() string {
	if v := os.Getenv("ESPRIT_CACHE_DIR"); v != "" {
		return v
	}
	return filepath.Join(xdg.CacheHome, appName)
}

func SettingsFile() string     { return filepath.Join(Dir(), "settings.toml") }
func ConfigFile() string       { return filepath.Join(Dir(), "config.json") }
func CredentialsFile() string  { return filepath.Join(Dir(), "credentials.json") }
func AccountsFile() string     { return filepath.Join(Dir(), "accounts.json") }
func UsageFile() string        { return filepath.Join(Dir(), "usage.json") }
func PricingCacheFile() string { return filepath.Join(CacheDir(), "pricing.json") }

func homeDir() string {
	if d, err := os.UserHomeDir(); err == nil {
		return d
	}
	return "."
}
