package accounts

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/esprit-sec/esprit/internal/provider"
)

func newTestPool(t *testing.T) (*Pool, *int64) {
	t.Helper()
	clock := int64(1_000_000_000)
	p := NewPoolAt(filepath.Join(t.TempDir(), "accounts.json"))
	p.now = func() int64 { return clock }
	return p, &clock
}

func oauthCreds(email string) *provider.Credentials {
	return &provider.Credentials{
		Type:         provider.TypeOAuth,
		AccessToken:  "at-" + email,
		RefreshToken: "rt-" + email,
		Extra:        map[string]string{"email": email},
	}
}

func TestAddDedupesByEmail(t *testing.T) {
	pool, _ := newTestPool(t)

	if err := pool.Add("openai", oauthCreds("a@example.com")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := pool.Add("openai", oauthCreds("b@example.com")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := pool.Add("openai", oauthCreds("a@example.com")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if got := pool.Count("openai"); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
	// re-adding an existing email makes it active again
	if got := pool.ActiveIndex("openai"); got != 0 {
		t.Errorf("ActiveIndex() = %d, want 0", got)
	}
}

func TestGetBestSticksToActive(t *testing.T) {
	pool, clock := newTestPool(t)
	pool.Add("openai", oauthCreds("a@example.com"))
	pool.Add("openai", oauthCreds("b@example.com"))

	acct, idx, err := pool.GetBest("openai", "gpt-5")
	if err != nil {
		t.Fatalf("GetBest() error = %v", err)
	}
	if idx != 1 || acct.Email != "b@example.com" {
		t.Errorf("GetBest() = (%q, %d), want (b@example.com, 1)", acct.Email, idx)
	}
	if acct.LastUsed != *clock {
		t.Errorf("LastUsed = %d, want %d", acct.LastUsed, *clock)
	}

	// sticky: same account on repeat calls
	acct2, idx2, _ := pool.GetBest("openai", "gpt-5")
	if idx2 != idx || acct2.Email != acct.Email {
		t.Errorf("second GetBest() = (%q, %d), want same account", acct2.Email, idx2)
	}
}

func TestPeekBestDoesNotPersist(t *testing.T) {
	pool, _ := newTestPool(t)
	pool.Add("openai", oauthCreds("a@example.com"))

	acct, _, err := pool.PeekBest("openai", "")
	if err != nil {
		t.Fatalf("PeekBest() error = %v", err)
	}
	if acct == nil || acct.Email != "a@example.com" {
		t.Fatalf("PeekBest() = %+v", acct)
	}
	if acct.LastUsed != 0 {
		t.Errorf("PeekBest stamped LastUsed = %d", acct.LastUsed)
	}

	accts, _ := pool.List("openai")
	if accts[0].LastUsed != 0 {
		t.Errorf("PeekBest wrote last_used to disk")
	}
}

func TestMarkRateLimitedSetsModelAndCooldown(t *testing.T) {
	pool, clock := newTestPool(t)
	pool.Add("openai", oauthCreds("a@example.com"))
	pool.Add("openai", oauthCreds("b@example.com"))

	err := pool.MarkRateLimited("openai", "a@example.com", "gpt-5", 30*time.Second)
	if err != nil {
		t.Fatalf("MarkRateLimited() error = %v", err)
	}

	accts, _ := pool.List("openai")
	a := accts[0]
	if got := a.RateLimits["gpt-5"]; got != *clock+30_000 {
		t.Errorf("rate_limits[gpt-5] = %d, want %d", got, *clock+30_000)
	}
	if a.CoolingUntil != *clock+60_000 {
		t.Errorf("cooling_until = %d, want %d", a.CoolingUntil, *clock+60_000)
	}
	if a.Consecutive429s != 1 {
		t.Errorf("consecutive_429s = %d, want 1", a.Consecutive429s)
	}
}

func TestRotateSkipsRateLimitedAccount(t *testing.T) {
	pool, _ := newTestPool(t)
	pool.Add("openai", oauthCreds("a@example.com"))
	pool.Add("openai", oauthCreds("b@example.com"))
	pool.GetBest("openai", "gpt-5") // active = b

	pool.MarkRateLimited("openai", "b@example.com", "gpt-5", 30*time.Second)

	rotated, err := pool.Rotate("openai", "gpt-5")
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if rotated == nil || rotated.Email != "a@example.com" {
		t.Fatalf("Rotate() = %+v, want a@example.com", rotated)
	}
	if got := pool.ActiveIndex("openai"); got != 0 {
		t.Errorf("ActiveIndex() = %d, want 0", got)
	}
}

func TestRotateSingleAccountReturnsNil(t *testing.T) {
	pool, _ := newTestPool(t)
	pool.Add("openai", oauthCreds("a@example.com"))

	rotated, err := pool.Rotate("openai", "gpt-5")
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if rotated != nil {
		t.Errorf("Rotate() = %+v, want nil with one account", rotated)
	}
}

func TestRotateSkipsDisabledAccount(t *testing.T) {
	pool, _ := newTestPool(t)
	pool.Add("openai", oauthCreds("a@example.com"))
	pool.Add("openai", oauthCreds("b@example.com"))
	pool.Add("openai", oauthCreds("c@example.com"))
	pool.SetEnabled("openai", 0, false)
	pool.GetBest("openai", "") // active = c (index 2)

	rotated, err := pool.Rotate("openai", "")
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if rotated == nil || rotated.Email != "b@example.com" {
		t.Fatalf("Rotate() = %+v, want b@example.com", rotated)
	}
}

func TestBackoffEscalation(t *testing.T) {
	pool, clock := newTestPool(t)
	pool.Add("openai", oauthCreds("a@example.com"))

	wantCooldowns := []int64{60_000, 300_000, 1_800_000, 7_200_000, 7_200_000}
	for i, want := range wantCooldowns {
		pool.MarkRateLimited("openai", "a@example.com", "gpt-5", time.Minute)
		accts, _ := pool.List("openai")
		a := accts[0]
		if a.Consecutive429s != i+1 {
			t.Errorf("hit %d: consecutive_429s = %d", i+1, a.Consecutive429s)
		}
		if got := a.CoolingUntil - *clock; got != want {
			t.Errorf("hit %d: cooldown = %dms, want %dms", i+1, got, want)
		}
		*clock += 10_000 // within the reset window
	}
}

func TestBackoffResetsAfterQuietPeriod(t *testing.T) {
	pool, clock := newTestPool(t)
	pool.Add("openai", oauthCreds("a@example.com"))

	pool.MarkRateLimited("openai", "a@example.com", "gpt-5", time.Minute)
	pool.MarkRateLimited("openai", "a@example.com", "gpt-5", time.Minute)

	*clock += 10 * 60 * 1000 // well past the reset window

	pool.MarkRateLimited("openai", "a@example.com", "gpt-5", time.Minute)
	accts, _ := pool.List("openai")
	if got := accts[0].Consecutive429s; got != 1 {
		t.Errorf("consecutive_429s = %d, want 1 after quiet period", got)
	}
	if got := accts[0].CoolingUntil - *clock; got != 60_000 {
		t.Errorf("cooldown = %dms, want first tier", got)
	}
}

func TestExpiredLimitsClear(t *testing.T) {
	pool, clock := newTestPool(t)
	pool.Add("openai", oauthCreds("a@example.com"))
	pool.MarkRateLimited("openai", "a@example.com", "gpt-5", 30*time.Second)

	if acct, _, _ := pool.PeekBest("openai", "gpt-5"); acct == nil {
		t.Fatal("PeekBest() = nil, want sole account even while cooling")
	}

	*clock += 2 * 60 * 60 * 1000 // past the longest cooldown

	acct, _, err := pool.GetBest("openai", "gpt-5")
	if err != nil {
		t.Fatalf("GetBest() error = %v", err)
	}
	if acct == nil {
		t.Fatal("GetBest() = nil after cooldown expiry")
	}
	if acct.LimitedFor("gpt-5") {
		t.Error("rate limit survived its reset time")
	}
	if acct.CoolingUntil != 0 {
		t.Errorf("cooling_until = %d, want cleared", acct.CoolingUntil)
	}
}

func TestPickBestPrefersModelWithoutLimit(t *testing.T) {
	pool, _ := newTestPool(t)
	pool.Add("antigravity", oauthCreds("a@example.com"))
	pool.Add("antigravity", oauthCreds("b@example.com"))
	pool.GetBest("antigravity", "") // active = b

	// Limit the active account for one model only; cooldown applies
	// too, so the other account must win for that model.
	pool.MarkRateLimited("antigravity", "b@example.com", "gemini-3-pro-high", time.Hour)

	acct, _, err := pool.GetBest("antigravity", "gemini-3-pro-high")
	if err != nil {
		t.Fatalf("GetBest() error = %v", err)
	}
	if acct.Email != "a@example.com" {
		t.Errorf("GetBest() = %q, want the unlimited account", acct.Email)
	}
}

func TestNextAvailableIn(t *testing.T) {
	pool, _ := newTestPool(t)
	pool.Add("openai", oauthCreds("a@example.com"))

	if got := pool.NextAvailableIn("openai"); got != 0 {
		t.Errorf("NextAvailableIn() = %v, want 0 with usable account", got)
	}

	pool.MarkRateLimited("openai", "a@example.com", "gpt-5", 30*time.Second)
	got := pool.NextAvailableIn("openai")
	if got != time.Minute {
		t.Errorf("NextAvailableIn() = %v, want 1m cooldown", got)
	}
}

func TestUpdateCredentialsKeepsRateLimitState(t *testing.T) {
	pool, _ := newTestPool(t)
	pool.Add("openai", oauthCreds("a@example.com"))
	pool.MarkRateLimited("openai", "a@example.com", "gpt-5", 30*time.Second)

	fresh := oauthCreds("a@example.com")
	fresh.AccessToken = "new-token"
	if err := pool.UpdateCredentials("openai", "a@example.com", fresh); err != nil {
		t.Fatalf("UpdateCredentials() error = %v", err)
	}

	accts, _ := pool.List("openai")
	if accts[0].Credentials.AccessToken != "new-token" {
		t.Errorf("AccessToken = %q", accts[0].Credentials.AccessToken)
	}
	if !accts[0].LimitedFor("gpt-5") {
		t.Error("rate limit state lost on credential update")
	}
}

func TestIsMultiAccount(t *testing.T) {
	tests := []struct {
		providerID string
		want       bool
	}{
		{"openai", true},
		{"antigravity", true},
		{"anthropic", false},
		{"copilot", false},
	}
	for _, tt := range tests {
		if got := IsMultiAccount(tt.providerID); got != tt.want {
			t.Errorf("IsMultiAccount(%q) = %v, want %v", tt.providerID, got, tt.want)
		}
	}
}
