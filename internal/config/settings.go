package config

import (
	"os"
	"sync"

	"github.com/BurntSushi/toml"
)

// FetchSettings controls HTTP behavior for provider calls.
type FetchSettings struct {
	// Timeout is the per-call timeout in seconds for non-streaming requests.
	Timeout float64 `toml:"timeout"`
	// StreamTimeout bounds a single streaming call in seconds.
	StreamTimeout float64 `toml:"stream_timeout"`
}

// LLMSettings controls dispatch behavior.
type LLMSettings struct {
	MaxRetries   int  `toml:"max_retries"`
	MaxTokens    int  `toml:"max_tokens"`
	AutoFallback bool `toml:"auto_fallback"`
}

// DashboardSettings controls the live dashboard server.
type DashboardSettings struct {
	Port int `toml:"port"`
}

// AccountSettings controls the multi-account pool.
type AccountSettings struct {
	// Strategy is "sticky" or "round-robin".
	Strategy string `toml:"strategy"`
}

// Settings are the app-level settings persisted in settings.toml.
type Settings struct {
	Fetch     FetchSettings     `toml:"fetch"`
	LLM       LLMSettings       `toml:"llm"`
	Dashboard DashboardSettings `toml:"dashboard"`
	Accounts  AccountSettings   `toml:"accounts"`
}

// DefaultSettings returns the settings used when settings.toml is absent.
func DefaultSettings() Settings {
	return Settings{
		Fetch:     FetchSettings{Timeout: 30.0, StreamTimeout: 120.0},
		LLM:       LLMSettings{MaxRetries: 5, MaxTokens: 16384, AutoFallback: true},
		Dashboard: DashboardSettings{Port: 7860},
		Accounts:  AccountSettings{Strategy: "sticky"},
	}
}

var (
	settingsMu     sync.RWMutex
	settingsCache  *Settings
	settingsLoaded bool
)

// Get returns the cached settings, loading settings.toml on first use.
// A missing or unreadable file yields the defaults.
func Get() Settings {
	settingsMu.RLock()
	if settingsLoaded {
		s := *settingsCache
		settingsMu.RUnlock()
		return s
	}
	settingsMu.RUnlock()
	return Reload()
}

// Reload re-reads settings.toml, replacing the cache.
func Reload() Settings {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	s := DefaultSettings()
	if data, err := os.ReadFile(SettingsFile()); err == nil {
		// Partial decode on top of defaults; bad TOML keeps defaults.
		_ = toml.Unmarshal(data, &s)
	}
	settingsCache = &s
	settingsLoaded = true
	return s
}

// ResetForTesting clears the settings cache so the next Get re-reads disk.
func ResetForTesting() {
	settingsMu.Lock()
	settingsCache = nil
	settingsLoaded = false
	settingsMu.Unlock()
}
