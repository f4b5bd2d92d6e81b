package pricing

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db := NewOffline(log.New(io.Discard))
	db.cachePath = filepath.Join(t.TempDir(), "pricing.json")
	return db
}

func approx(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("cost = %.10f, want %.10f", got, want)
	}
}

func TestCalculateCost(t *testing.T) {
	m := Model{
		InputCost:     3e-6,
		OutputCost:    15e-6,
		CacheReadCost: 3e-7,
	}

	// cached tokens bill at the cache-read rate, not the input rate
	got := CalculateCost(m, 1000, 400, 200)
	approx(t, got, 800*3e-6+400*15e-6+200*3e-7)
}

func TestCalculateCostCachedExceedsInput(t *testing.T) {
	m := Model{InputCost: 3e-6, CacheReadCost: 3e-7}
	got := CalculateCost(m, 100, 0, 500)
	approx(t, got, 500*3e-7)
}

func TestTieredCost(t *testing.T) {
	m := Model{
		InputCost:      3e-6,
		InputCostAbove: 6e-6,
	}

	got := CalculateCost(m, 250_000, 0, 0)
	approx(t, got, 200_000*3e-6+50_000*6e-6)

	// without an above rate the full count bills flat
	flat := Model{InputCost: 5e-6}
	approx(t, CalculateCost(flat, 250_000, 0, 0), 250_000*5e-6)
}

func TestResolution(t *testing.T) {
	db := testDB(t)

	tests := []struct {
		name  string
		model string
	}{
		{"exact", "claude-sonnet-4-5"},
		{"provider prefix stripped", "antigravity/claude-sonnet-4-5"},
		{"codex alias", "gpt-5.1-codex"},
		{"chained alias", "gemini-3-pro-high"},
		{"dated snapshot fuzzy", "claude-sonnet-4-5-20250929"},
		{"thinking alias", "claude-sonnet-4-5-thinking"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := db.Pricing(tt.model); !ok {
				t.Errorf("Pricing(%q) not found", tt.model)
			}
		})
	}

	if _, ok := db.Pricing("totally-unknown-model"); ok {
		t.Error("Pricing() resolved a nonexistent model")
	}
}

func TestFuzzyRequiresBoundary(t *testing.T) {
	db := testDB(t)
	db.models["gpt-5"] = Model{InputCost: 1e-6}

	// "gpt-5x" is not "gpt-5" followed by a boundary
	if _, ok := db.Pricing("gpt-5xl"); ok {
		t.Error("Pricing() matched across a name boundary")
	}
}

func TestCostUnknownModelIsZero(t *testing.T) {
	db := testDB(t)
	if got := db.Cost("no-such-model", 1000, 1000, 0); got != 0 {
		t.Errorf("Cost() = %v, want 0", got)
	}
}

func TestContextLimit(t *testing.T) {
	db := testDB(t)

	if got := db.ContextLimit("gemini-2.5-flash"); got != 1048576 {
		t.Errorf("ContextLimit(gemini-2.5-flash) = %d, want 1048576", got)
	}
	if got := db.ContextLimit("no-such-model"); got != 128000 {
		t.Errorf("ContextLimit(unknown) = %d, want 128000", got)
	}
}

func TestRemoteRefresh(t *testing.T) {
	payload := `{
		"brand-new-model": {"input_cost_per_token": 1e-06, "output_cost_per_token": 2e-06},
		"sample_spec": {"comment": "not a model"}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	db := New(log.New(io.Discard))
	db.remoteURL = srv.URL
	db.cachePath = filepath.Join(t.TempDir(), "pricing.json")

	db.ensureLoaded()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.WaitForRefresh(ctx); err != nil {
		t.Fatalf("WaitForRefresh() error = %v", err)
	}

	if _, ok := db.Pricing("brand-new-model"); !ok {
		t.Error("remote model not merged")
	}
	if _, ok := db.Pricing("claude-sonnet-4-5"); !ok {
		t.Error("bundled model lost after refresh")
	}
	if _, err := os.Stat(db.cachePath); err != nil {
		t.Errorf("pricing cache not written: %v", err)
	}
}

func TestCacheFileOverlay(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "pricing.json")
	content := `{"cached-model": {"input_cost_per_token": 1e-06}}`
	if err := os.WriteFile(cache, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	db := NewOffline(log.New(io.Discard))
	db.cachePath = cache
	if _, ok := db.Pricing("cached-model"); !ok {
		t.Error("disk cache not loaded")
	}
}

func TestLifetimeCost(t *testing.T) {
	t.Setenv("ESPRIT_CONFIG_DIR", t.TempDir())

	if got := LifetimeCost(); got != 0 {
		t.Fatalf("LifetimeCost() on fresh config = %v, want 0", got)
	}

	if got := AddSessionCost(1.25); got != 1.25 {
		t.Errorf("AddSessionCost() = %v, want 1.25", got)
	}
	if got := AddSessionCost(0.5); got != 1.75 {
		t.Errorf("AddSessionCost() = %v, want 1.75", got)
	}
	if got := LifetimeCost(); got != 1.75 {
		t.Errorf("LifetimeCost() = %v, want 1.75", got)
	}
}

func TestEstimateScanCost(t *testing.T) {
	db := testDB(t)

	quick := db.EstimateScanCost("claude-sonnet-4-5", "quick", 1, false)
	if quick.Mid <= 0 {
		t.Fatalf("Mid = %v, want > 0", quick.Mid)
	}
	if quick.Low >= quick.Mid || quick.High <= quick.Mid {
		t.Errorf("range not ordered: %+v", quick)
	}

	deep := db.EstimateScanCost("claude-sonnet-4-5", "deep", 1, false)
	if deep.Mid <= quick.Mid {
		t.Errorf("deep (%v) should cost more than quick (%v)", deep.Mid, quick.Mid)
	}

	multi := db.EstimateScanCost("claude-sonnet-4-5", "quick", 3, false)
	if multi.Mid <= quick.Mid {
		t.Errorf("3 targets (%v) should cost more than 1 (%v)", multi.Mid, quick.Mid)
	}

	whitebox := db.EstimateScanCost("claude-sonnet-4-5", "quick", 1, true)
	if whitebox.Mid <= quick.Mid {
		t.Errorf("whitebox (%v) should cost more than blackbox (%v)", whitebox.Mid, quick.Mid)
	}

	// unknown modes fall back to the deep budget
	unknown := db.EstimateScanCost("claude-sonnet-4-5", "turbo", 1, false)
	if unknown.Mid != deep.Mid {
		t.Errorf("unknown mode = %v, want deep budget %v", unknown.Mid, deep.Mid)
	}
}

func TestCapabilityFlags(t *testing.T) {
	db := testDB(t)

	if !db.SupportsVision("claude-sonnet-4-5") {
		t.Error("SupportsVision(claude-sonnet-4-5) = false")
	}
	if db.SupportsReasoning("gpt-4o") {
		t.Error("SupportsReasoning(gpt-4o) = true")
	}
	if !db.SupportsPromptCaching("anthropic/claude-sonnet-4-5") {
		t.Error("SupportsPromptCaching with provider prefix = false")
	}
	if !db.SupportsReasoning("antigravity/gemini-3-pro-high") {
		t.Error("SupportsReasoning through alias = false")
	}

	// unknown models report no capabilities, so images get stripped
	if db.SupportsVision("made-up-model-9000") {
		t.Error("SupportsVision(unknown) = true")
	}
	if db.SupportsPromptCaching("made-up-model-9000") {
		t.Error("SupportsPromptCaching(unknown) = true")
	}
}
