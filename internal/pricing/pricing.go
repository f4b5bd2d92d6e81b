// Package pricing resolves per-token model costs from LiteLLM's pricing
// database. A bundled snapshot is the baseline; the latest JSON is
// fetched from GitHub in the background and cached on disk.
package pricing

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/esprit-sec/esprit/internal/config"
)

// RemoteURL is LiteLLM's canonical pricing JSON.
const RemoteURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/" +
	"model_prices_and_context_window.json"

// tieredThreshold is where per-token rates switch to the above-200k tier.
const tieredThreshold = 200_000

// defaultContextLimit is used for models with no known input limit.
const defaultContextLimit = 128_000

//go:embed baseline.json
var baselineJSON []byte

// providerPrefixes are tried in order when a bare model name has no
// direct pricing entry.
var providerPrefixes = []string{
	"anthropic/",
	"openai/",
	"gemini/",
	"azure/",
	"claude-",
}

// modelAliases maps model names absent from the pricing DB to their
// pricing-equivalent entry. Codex variants bill as their base GPT model.
var modelAliases = map[string]string{
	"claude-opus-4-6-thinking":   "claude-opus-4-6",
	"claude-opus-4-5-thinking":   "claude-opus-4-5",
	"claude-sonnet-4-5-thinking": "claude-sonnet-4-5",
	"gemini-2.5-flash-thinking":  "gemini-2.5-flash",
	"gemini-2.5-flash-lite":      "gemini-2.5-flash",
	"gemini-3-flash":             "gemini-3-flash-preview",
	"gemini-3-pro-high":          "gemini-3-pro-preview",
	"gemini-3-pro-low":           "gemini-3-pro-preview",
	"gemini-3-pro-image":         "gemini-3-pro-image-preview",
	"gpt-5.3-codex":              "gpt-5",
	"gpt-5.2-codex":              "gpt-5",
	"gpt-5.1-codex":              "gpt-5",
	"gpt-5.1-codex-max":          "gpt-5",
	"gpt-5.1-codex-mini":         "gpt-5-mini",
	"gpt-5-codex":                "gpt-5",
	"gpt-5-codex-mini":           "gpt-5-mini",
}

// Model is the per-token pricing for one model.
type Model struct {
	InputCost           float64 `json:"input_cost_per_token"`
	OutputCost          float64 `json:"output_cost_per_token"`
	CacheWriteCost      float64 `json:"cache_creation_input_token_cost"`
	CacheReadCost       float64 `json:"cache_read_input_token_cost"`
	InputCostAbove      float64 `json:"input_cost_per_token_above_200k_tokens"`
	OutputCostAbove     float64 `json:"output_cost_per_token_above_200k_tokens"`
	CacheWriteCostAbove float64 `json:"cache_creation_input_token_cost_above_200k_tokens"`
	CacheReadCostAbove  float64 `json:"cache_read_input_token_cost_above_200k_tokens"`
	MaxInputTokens      float64 `json:"max_input_tokens"`

	SupportsVision        bool `json:"supports_vision"`
	SupportsReasoning     bool `json:"supports_reasoning"`
	SupportsPromptCaching bool `json:"supports_prompt_caching"`
}

// tieredCost charges base rate up to the threshold and the above rate
// past it. Models without an above rate bill flat.
func tieredCost(tokens int, baseRate, aboveRate float64) float64 {
	if tokens <= 0 {
		return 0
	}
	if tokens > tieredThreshold && aboveRate > 0 {
		below := float64(tieredThreshold)
		above := float64(tokens - tieredThreshold)
		return below*baseRate + above*aboveRate
	}
	return float64(tokens) * baseRate
}

// CalculateCost returns the USD cost for one call. cachedTokens are
// cache-read hits, already counted inside inputTokens, so they bill at
// the cache-read rate instead of the input rate.
func CalculateCost(m Model, inputTokens, outputTokens, cachedTokens int) float64 {
	regularInput := inputTokens - cachedTokens
	if regularInput < 0 {
		regularInput = 0
	}
	return tieredCost(regularInput, m.InputCost, m.InputCostAbove) +
		tieredCost(outputTokens, m.OutputCost, m.OutputCostAbove) +
		tieredCost(cachedTokens, m.CacheReadCost, m.CacheReadCostAbove)
}

// DB is a thread-safe pricing database.
type DB struct {
	mu           sync.RWMutex
	models       map[string]Model
	loaded       bool
	fetchStarted bool

	logger    *log.Logger
	client    *http.Client
	remoteURL string
	cachePath string
	offline   bool
	fetchDone chan struct{}
}

// New returns a DB that lazily loads the bundled snapshot plus the disk
// cache, then refreshes from the remote URL in the background.
func New(logger *log.Logger) *DB {
	return &DB{
		models:    map[string]Model{},
		logger:    logger,
		client:    &http.Client{Timeout: 10 * time.Second},
		remoteURL: RemoteURL,
		cachePath: config.PricingCacheFile(),
		fetchDone: make(chan struct{}),
	}
}

// NewOffline returns a DB that never touches the network, for tests and
// air-gapped runs.
func NewOffline(logger *log.Logger) *DB {
	db := New(logger)
	db.offline = true
	return db
}

func parsePricing(raw []byte) map[string]Model {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	out := make(map[string]Model, len(entries))
	for name, data := range entries {
		var m Model
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		if m.InputCost > 0 {
			out[name] = m
		}
	}
	return out
}

func (db *DB) ensureLoaded() {
	db.mu.Lock()
	if !db.loaded {
		for name, m := range parsePricing(baselineJSON) {
			db.models[name] = m
		}
		if data, err := config.ReadFileIfExists(db.cachePath); err == nil && data != nil {
			for name, m := range parsePricing(data) {
				db.models[name] = m
			}
		}
		db.loaded = true
	}
	start := !db.fetchStarted && !db.offline
	if start {
		db.fetchStarted = true
	}
	db.mu.Unlock()

	if start {
		go db.fetchRemote(context.Background())
	}
}

func (db *DB) fetchRemote(ctx context.Context) {
	defer close(db.fetchDone)

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, db.remoteURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", "esprit")
	resp, err := db.client.Do(req)
	if err != nil {
		db.logger.Debug("remote pricing fetch failed, using bundled data", "err", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		db.logger.Debug("remote pricing fetch failed", "status", resp.StatusCode)
		return
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	updates := parsePricing(raw)
	if len(updates) == 0 {
		return
	}

	db.mu.Lock()
	for name, m := range updates {
		db.models[name] = m
	}
	db.mu.Unlock()

	if err := config.WriteFileAtomic(db.cachePath, raw); err != nil {
		db.logger.Debug("could not cache pricing data", "err", err)
	}
	db.logger.Debug("refreshed model pricing", "models", len(updates))
}

// resolve maps a model identifier to its pricing entry: exact name,
// bare name, provider-prefixed names, aliases, then a longest-prefix
// fuzzy match on a name boundary (so a dated snapshot name still finds
// its base model).
func (db *DB) resolve(model string, seen map[string]bool) (Model, bool) {
	bare := model
	if i := strings.IndexByte(model, '/'); i >= 0 {
		bare = model[i+1:]
	}

	for _, candidate := range []string{model, bare} {
		if m, ok := db.models[candidate]; ok {
			return m, true
		}
	}

	for _, prefix := range providerPrefixes {
		if m, ok := db.models[prefix+bare]; ok {
			return m, true
		}
	}

	if alias, ok := modelAliases[bare]; ok && !seen[alias] {
		seen[alias] = true
		if m, ok := db.resolve(alias, seen); ok {
			return m, true
		}
	}

	bareLower := strings.ToLower(bare)
	var best Model
	bestLen := 0
	found := false
	for key, m := range db.models {
		keyBare := strings.ToLower(key)
		if i := strings.IndexByte(keyBare, '/'); i >= 0 {
			keyBare = keyBare[i+1:]
		}
		switch {
		case strings.HasPrefix(bareLower, keyBare) && len(keyBare) > bestLen:
			if boundary(bareLower[len(keyBare):]) {
				best, bestLen, found = m, len(keyBare), true
			}
		case strings.HasPrefix(keyBare, bareLower) && len(bareLower) > bestLen:
			if boundary(keyBare[len(bareLower):]) {
				best, bestLen, found = m, len(bareLower), true
			}
		}
	}
	return best, found
}

func boundary(rest string) bool {
	if rest == "" {
		return true
	}
	switch rest[0] {
	case '-', '.', ':':
		return true
	}
	return rest[0] >= '0' && rest[0] <= '9'
}

// Pricing returns the pricing entry for a model, if one resolves.
func (db *DB) Pricing(model string) (Model, bool) {
	db.ensureLoaded()
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.resolve(model, map[string]bool{})
}

// Cost returns the USD cost of a call, or 0 for unknown models.
func (db *DB) Cost(model string, inputTokens, outputTokens, cachedTokens int) float64 {
	m, ok := db.Pricing(model)
	if !ok {
		return 0
	}
	return CalculateCost(m, inputTokens, outputTokens, cachedTokens)
}

// SupportsVision reports whether the model accepts image parts.
// Unknown models report false and get their images stripped.
func (db *DB) SupportsVision(model string) bool {
	m, ok := db.Pricing(model)
	return ok && m.SupportsVision
}

// SupportsReasoning reports whether the model accepts reasoning_effort.
func (db *DB) SupportsReasoning(model string) bool {
	m, ok := db.Pricing(model)
	return ok && m.SupportsReasoning
}

// SupportsPromptCaching reports whether the model honors cache_control.
func (db *DB) SupportsPromptCaching(model string) bool {
	m, ok := db.Pricing(model)
	return ok && m.SupportsPromptCaching
}

// ContextLimit returns the model's max input tokens, defaulting to
// 128000 for unknown models.
func (db *DB) ContextLimit(model string) int {
	if m, ok := db.Pricing(model); ok && m.MaxInputTokens > 0 {
		return int(m.MaxInputTokens)
	}
	return defaultContextLimit
}

// WaitForRefresh blocks until the background fetch finishes or the
// context is done. Offline DBs return immediately.
func (db *DB) WaitForRefresh(ctx context.Context) error {
	db.mu.RLock()
	started := db.fetchStarted
	db.mu.RUnlock()
	if db.offline || !started {
		return nil
	}
	select {
	case <-db.fetchDone:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for pricing refresh: %w", ctx.Err())
	}
}
