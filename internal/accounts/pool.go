// Package accounts manages per-provider pools of OAuth accounts with
// rate-limit-aware rotation. Pools persist to accounts.json; providers
// outside the multi-account set keep using the single-credential store.
package accounts

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/esprit-sec/esprit/internal/config"
	"github.com/esprit-sec/esprit/internal/provider"
)

// multiAccountProviders lists the providers whose credentials live in
// the pool file rather than the single-credential store.
var multiAccountProviders = map[string]bool{
	"openai":      true,
	"antigravity": true,
}

// IsMultiAccount reports whether a provider uses the account pool.
func IsMultiAccount(providerID string) bool {
	return multiAccountProviders[providerID]
}

// backoffTiers is the escalating cooldown applied on consecutive 429s
// against the same account: 1m, 5m, 30m, 2h.
var backoffTiers = []time.Duration{
	time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
}

// backoffResetWindow is how long after the last 429 the escalation
// counter resets.
const backoffResetWindow = 2 * time.Minute

// StrategySticky keeps the active account until it rate-limits;
// StrategyRoundRobin advances on every selection.
const (
	StrategySticky     = "sticky"
	StrategyRoundRobin = "round-robin"
)

// Account is one pooled credential set with its rate-limit bookkeeping.
// Timestamps are unix milliseconds.
type Account struct {
	Email           string                `json:"email"`
	Credentials     *provider.Credentials `json:"credentials"`
	AccountID       string                `json:"account_id,omitempty"`
	Enabled         bool                  `json:"enabled"`
	AddedAt         int64                 `json:"added_at"`
	LastUsed        int64                 `json:"last_used,omitempty"`
	RateLimits      map[string]int64      `json:"rate_limits,omitempty"`
	CoolingUntil    int64                 `json:"cooling_until,omitempty"`
	Consecutive429s int                   `json:"consecutive_429s,omitempty"`
	Last429At       int64                 `json:"last_429_at,omitempty"`
}

// Usable reports whether the account is enabled and not cooling down.
func (a *Account) Usable(nowMS int64) bool {
	return a.Enabled && (a.CoolingUntil == 0 || a.CoolingUntil <= nowMS)
}

// LimitedFor reports whether the account has an active rate limit for
// the given model.
func (a *Account) LimitedFor(model string) bool {
	_, ok := a.RateLimits[model]
	return ok
}

type poolState struct {
	Accounts    []*Account `json:"accounts"`
	ActiveIndex int        `json:"active_index"`
	Strategy    string     `json:"strategy"`
}

type poolFile struct {
	Version int                   `json:"version"`
	Pools   map[string]*poolState `json:"pools"`
}

// Pool is the on-disk account pool. Every operation reloads the file
// so concurrent processes observe each other's writes; cross-process
// races on active_index are last-writer-wins.
type Pool struct {
	mu   sync.Mutex
	path string
	now  func() int64
}

// NewPool returns a pool backed by the default accounts file.
func NewPool() *Pool {
	return NewPoolAt(config.AccountsFile())
}

// NewPoolAt returns a pool backed by an explicit path, for tests.
func NewPoolAt(path string) *Pool {
	return &Pool{path: path, now: func() int64 { return time.Now().UnixMilli() }}
}

func (p *Pool) load() (*poolFile, error) {
	data, err := config.ReadFileIfExists(p.path)
	if err != nil {
		return nil, fmt.Errorf("reading account pool: %w", err)
	}
	pf := &poolFile{Version: 1, Pools: map[string]*poolState{}}
	if data == nil {
		return pf, nil
	}
	if err := json.Unmarshal(data, pf); err != nil {
		return nil, fmt.Errorf("parsing account pool: %w", err)
	}
	if pf.Pools == nil {
		pf.Pools = map[string]*poolState{}
	}
	return pf, nil
}

func (p *Pool) save(pf *poolFile) error {
	pf.Version = 1
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding account pool: %w", err)
	}
	return config.WriteFileAtomic(p.path, data)
}

func (p *Pool) state(pf *poolFile, providerID string) *poolState {
	ps := pf.Pools[providerID]
	if ps == nil {
		ps = &poolState{Strategy: config.Get().Accounts.Strategy}
		pf.Pools[providerID] = ps
	}
	return ps
}

// clearExpiredLimits drops rate-limit marks and cooldowns that have
// passed, and resets the escalation counter once the account has been
// quiet for the reset window.
func clearExpiredLimits(ps *poolState, nowMS int64) {
	for _, a := range ps.Accounts {
		for model, resetAt := range a.RateLimits {
			if resetAt <= nowMS {
				delete(a.RateLimits, model)
			}
		}
		if a.CoolingUntil != 0 && a.CoolingUntil <= nowMS {
			a.CoolingUntil = 0
		}
		if a.Last429At != 0 && nowMS-a.Last429At > backoffResetWindow.Milliseconds() {
			a.Consecutive429s = 0
		}
	}
}

// Add inserts an account, replacing any existing entry with the same
// email. The new account becomes active.
func (p *Pool) Add(providerID string, creds *provider.Credentials) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pf, err := p.load()
	if err != nil {
		return err
	}
	ps := p.state(pf, providerID)
	acct := &Account{
		Email:       creds.Email(),
		Credentials: creds,
		AccountID:   creds.AccountID,
		Enabled:     true,
		AddedAt:     p.now(),
	}
	for i, existing := range ps.Accounts {
		if acct.Email != "" && existing.Email == acct.Email {
			ps.Accounts[i] = acct
			ps.ActiveIndex = i
			return p.save(pf)
		}
	}
	ps.Accounts = append(ps.Accounts, acct)
	ps.ActiveIndex = len(ps.Accounts) - 1
	return p.save(pf)
}

// Remove deletes the account at index. The active index is clamped to
// the remaining accounts.
func (p *Pool) Remove(providerID string, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pf, err := p.load()
	if err != nil {
		return err
	}
	ps := p.state(pf, providerID)
	if index < 0 || index >= len(ps.Accounts) {
		return fmt.Errorf("account index %d out of range (have %d)", index, len(ps.Accounts))
	}
	ps.Accounts = append(ps.Accounts[:index], ps.Accounts[index+1:]...)
	if ps.ActiveIndex >= len(ps.Accounts) {
		ps.ActiveIndex = 0
	}
	return p.save(pf)
}

// SetEnabled toggles an account in or out of the rotation.
func (p *Pool) SetEnabled(providerID string, index int, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pf, err := p.load()
	if err != nil {
		return err
	}
	ps := pf.Pools[providerID]
	if ps == nil || index < 0 || index >= len(ps.Accounts) {
		return fmt.Errorf("account index %d out of range", index)
	}
	ps.Accounts[index].Enabled = enabled
	return p.save(pf)
}

// List returns copies of the accounts for a provider.
func (p *Pool) List(providerID string) ([]Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pf, err := p.load()
	if err != nil {
		return nil, err
	}
	ps := pf.Pools[providerID]
	if ps == nil {
		return nil, nil
	}
	out := make([]Account, len(ps.Accounts))
	for i, a := range ps.Accounts {
		out[i] = *a
	}
	return out, nil
}

// Count returns the number of pooled accounts for a provider.
func (p *Pool) Count(providerID string) int {
	accts, err := p.List(providerID)
	if err != nil {
		return 0
	}
	return len(accts)
}

// ActiveIndex returns the current active index for a provider.
func (p *Pool) ActiveIndex(providerID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	pf, err := p.load()
	if err != nil {
		return 0
	}
	if ps := pf.Pools[providerID]; ps != nil {
		return ps.ActiveIndex
	}
	return 0
}

// pickBest selects an account index per the pool strategy: enabled,
// non-cooling accounts first, preferring ones without a rate limit on
// the requested model. When every account is cooling the first enabled
// one is returned anyway so callers can surface a useful error.
func pickBest(ps *poolState, model string, nowMS int64) (int, *Account) {
	type cand struct {
		idx  int
		acct *Account
	}
	var avail []cand
	for i, a := range ps.Accounts {
		if a.Usable(nowMS) {
			avail = append(avail, cand{i, a})
		}
	}
	if len(avail) == 0 {
		for i, a := range ps.Accounts {
			if a.Enabled {
				avail = append(avail, cand{i, a})
			}
		}
		if len(avail) == 0 {
			return -1, nil
		}
	}

	if model != "" {
		var notLimited []cand
		for _, c := range avail {
			if !c.acct.LimitedFor(model) {
				notLimited = append(notLimited, c)
			}
		}
		if len(notLimited) > 0 {
			avail = notLimited
		}
	}

	if ps.Strategy == StrategyRoundRobin {
		// Next candidate after the active index, wrapping around.
		for _, c := range avail {
			if c.idx > ps.ActiveIndex {
				return c.idx, c.acct
			}
		}
		return avail[0].idx, avail[0].acct
	}

	// Sticky: stay on the active account while it qualifies.
	for _, c := range avail {
		if c.idx == ps.ActiveIndex {
			return c.idx, c.acct
		}
	}
	return avail[0].idx, avail[0].acct
}

// PeekBest returns the account GetBest would select without recording
// the selection or writing to disk.
func (p *Pool) PeekBest(providerID, model string) (*Account, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pf, err := p.load()
	if err != nil {
		return nil, -1, err
	}
	ps := pf.Pools[providerID]
	if ps == nil {
		return nil, -1, nil
	}
	now := p.now()
	clearExpiredLimits(ps, now)
	idx, acct := pickBest(ps, model, now)
	if acct == nil {
		return nil, -1, nil
	}
	cp := *acct
	return &cp, idx, nil
}

// GetBest selects the account to use and persists the selection,
// stamping last_used and advancing active_index.
func (p *Pool) GetBest(providerID, model string) (*Account, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pf, err := p.load()
	if err != nil {
		return nil, -1, err
	}
	ps := pf.Pools[providerID]
	if ps == nil {
		return nil, -1, nil
	}
	now := p.now()
	clearExpiredLimits(ps, now)
	idx, acct := pickBest(ps, model, now)
	if acct == nil {
		// persist expired-limit clearing even when nothing is usable
		if err := p.save(pf); err != nil {
			return nil, -1, err
		}
		return nil, -1, nil
	}
	ps.ActiveIndex = idx
	acct.LastUsed = now
	if err := p.save(pf); err != nil {
		return nil, -1, err
	}
	cp := *acct
	return &cp, idx, nil
}

// MarkRateLimited records a 429 against the account with the given
// email: the model gets a reset-at stamp, and the account enters an
// escalating cooldown. Hits within backoffResetWindow of the previous
// one escalate the tier; older hits restart at the first tier.
func (p *Pool) MarkRateLimited(providerID, email, model string, resetAfter time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pf, err := p.load()
	if err != nil {
		return err
	}
	ps := pf.Pools[providerID]
	if ps == nil {
		return nil
	}
	now := p.now()
	for _, acct := range ps.Accounts {
		if acct.Email != email {
			continue
		}
		if acct.RateLimits == nil {
			acct.RateLimits = map[string]int64{}
		}
		acct.RateLimits[model] = now + resetAfter.Milliseconds()

		if acct.Last429At != 0 && now-acct.Last429At < backoffResetWindow.Milliseconds() {
			acct.Consecutive429s++
		} else {
			acct.Consecutive429s = 1
		}
		acct.Last429At = now

		tier := acct.Consecutive429s - 1
		if tier >= len(backoffTiers) {
			tier = len(backoffTiers) - 1
		}
		acct.CoolingUntil = now + backoffTiers[tier].Milliseconds()
		break
	}
	return p.save(pf)
}

// Rotate moves the active index to a different usable account without
// a rate limit on the given model and returns it. Returns nil when no
// other account qualifies.
func (p *Pool) Rotate(providerID, model string) (*Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pf, err := p.load()
	if err != nil {
		return nil, err
	}
	ps := pf.Pools[providerID]
	if ps == nil || len(ps.Accounts) < 2 {
		return nil, nil
	}
	now := p.now()
	clearExpiredLimits(ps, now)
	current := ps.ActiveIndex
	n := len(ps.Accounts)
	for step := 1; step < n; step++ {
		idx := (current + step) % n
		acct := ps.Accounts[idx]
		if !acct.Usable(now) {
			continue
		}
		if model != "" && acct.LimitedFor(model) {
			continue
		}
		ps.ActiveIndex = idx
		acct.LastUsed = now
		if err := p.save(pf); err != nil {
			return nil, err
		}
		cp := *acct
		return &cp, nil
	}
	return nil, nil
}

// UpdateCredentials stores refreshed credentials for the account with
// the given email, keeping its rate-limit state.
func (p *Pool) UpdateCredentials(providerID, email string, creds *provider.Credentials) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pf, err := p.load()
	if err != nil {
		return err
	}
	ps := pf.Pools[providerID]
	if ps == nil {
		return nil
	}
	for _, acct := range ps.Accounts {
		if acct.Email == email {
			acct.Credentials = creds
			break
		}
	}
	return p.save(pf)
}

// NextAvailableIn returns how long until the soonest account leaves
// cooldown, or zero when one is already usable (or the pool is empty).
func (p *Pool) NextAvailableIn(providerID string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	pf, err := p.load()
	if err != nil {
		return 0
	}
	ps := pf.Pools[providerID]
	if ps == nil {
		return 0
	}
	now := p.now()
	soonest := int64(-1)
	for _, a := range ps.Accounts {
		if !a.Enabled {
			continue
		}
		if a.Usable(now) {
			return 0
		}
		wait := a.CoolingUntil - now
		if soonest < 0 || wait < soonest {
			soonest = wait
		}
	}
	if soonest <= 0 {
		return 0
	}
	return time.Duration(soonest) * time.Millisecond
}
