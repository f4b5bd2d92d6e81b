package config

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"
)

// Store is the small key/value store behind config.json. It holds user
// preferences like the default model; ESPRIT_* environment variables take
// precedence on read.
type Store struct {
	mu sync.Mutex
}

var defaultStore Store

func (s *Store) load() map[string]any {
	data, err := ReadFileIfExists(ConfigFile())
	if err != nil || data == nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func (s *Store) save(data map[string]any) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(ConfigFile(), content)
}

// GetValue returns the stored string for key, or "" when unset.
func (s *Store) GetValue(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.load()[key].(string); ok {
		return v
	}
	return ""
}

// SetValue writes a key into config.json.
func (s *Store) SetValue(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.load()
	data[key] = value
	return s.save(data)
}

// Model returns the configured default model. ESPRIT_MODEL wins over the
// value stored in config.json.
func Model() string {
	if v := os.Getenv("ESPRIT_MODEL"); v != "" {
		return v
	}
	return defaultStore.GetValue("model")
}

// SetModel stores the default model in config.json.
func SetModel(model string) error {
	return defaultStore.SetValue("model", model)
}

// ReasoningEffort returns the explicit reasoning effort override, if any.
func ReasoningEffort() string {
	return os.Getenv("ESPRIT_REASONING_EFFORT")
}

// MaxRetries returns the dispatch retry cap. ESPRIT_LLM_MAX_RETRIES wins
// over settings.toml.
func MaxRetries() int {
	if v := os.Getenv("ESPRIT_LLM_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return Get().LLM.MaxRetries
}

// MaxTokens returns the output-token cap for Cloud-Code requests.
func MaxTokens() int {
	if v := os.Getenv("ESPRIT_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return Get().LLM.MaxTokens
}

// AutoFallback reports whether model fallback is enabled.
// ESPRIT_AUTO_FALLBACK=false/0/no disables it.
func AutoFallback() bool {
	switch os.Getenv("ESPRIT_AUTO_FALLBACK") {
	case "false", "0", "no":
		return false
	}
	return Get().LLM.AutoFallback
}
