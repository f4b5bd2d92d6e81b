package llm

import (
	"math"
	"sync"

	"github.com/esprit-sec/esprit/internal/chat"
)

// RequestStats accumulates token and cost totals across a client's
// lifetime. LastInputTokens is the most recent request's input count,
// which doubles as the current context-window usage.
type RequestStats struct {
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	CachedTokens    int     `json:"cached_tokens"`
	Cost            float64 `json:"cost"`
	Requests        int     `json:"requests"`
	LastInputTokens int     `json:"-"`
}

// statsBox guards a RequestStats for concurrent reads from telemetry.
type statsBox struct {
	mu    sync.Mutex
	stats RequestStats
}

func (b *statsBox) beginRequest() {
	b.mu.Lock()
	b.stats.Requests++
	b.mu.Unlock()
}

func (b *statsBox) addUsage(u chat.Usage, cost float64) {
	b.mu.Lock()
	b.stats.InputTokens += u.InputTokens
	b.stats.OutputTokens += u.OutputTokens
	b.stats.CachedTokens += u.CachedTokens
	b.stats.Cost += cost
	b.stats.LastInputTokens = u.InputTokens
	b.mu.Unlock()
}

func (b *statsBox) snapshot() RequestStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Cost = math.Round(s.Cost*10000) / 10000
	return s
}
