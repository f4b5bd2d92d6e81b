package tracer

import (
	"math"
	"time"
)

// TokenStats is one aggregation bucket of dispatch counters.
type TokenStats struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CachedTokens        int     `json:"cached_tokens"`
	UncachedInputTokens int     `json:"uncached_input_tokens"`
	CacheHitRatio       float64 `json:"cache_hit_ratio"`
	Cost                float64 `json:"cost"`
	Requests            int     `json:"requests"`
}

// AgentStats is one agent's bucket plus the model it ran.
type AgentStats struct {
	TokenStats
	Model string `json:"model"`
}

// LLMStats aggregates every registered dispatch client.
type LLMStats struct {
	Total               TokenStats            `json:"total"`
	ByModel             map[string]TokenStats `json:"by_model"`
	ByAgent             map[string]AgentStats `json:"by_agent"`
	MaxContextTokens    int                   `json:"max_context_tokens"`
	TotalTokens         int                   `json:"total_tokens"`
	UncachedInputTokens int                   `json:"uncached_input_tokens"`
	CacheHitRatio       float64               `json:"cache_hit_ratio"`
}

// RunStats is the dashboard's stats frame.
type RunStats struct {
	LLM              LLMStats `json:"llm"`
	AgentCount       int      `json:"agent_count"`
	ToolCount        int      `json:"tool_count"`
	VulnCount        int      `json:"vuln_count"`
	StartTime        string   `json:"start_time"`
	EndTime          string   `json:"end_time,omitempty"`
	Status           string   `json:"status"`
	MaxContextTokens int      `json:"max_context_tokens"`
	ContextLimit     int      `json:"context_limit"`
	TokensPerSecond  float64  `json:"tokens_per_second"`
	RunName          string   `json:"run_name"`
	RunID            string   `json:"run_id"`
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *TokenStats) finalize() {
	s.UncachedInputTokens = s.InputTokens - s.CachedTokens
	if s.UncachedInputTokens < 0 {
		s.UncachedInputTokens = 0
	}
	if s.InputTokens > 0 {
		s.CacheHitRatio = round2(float64(s.CachedTokens) / float64(s.InputTokens) * 100)
	}
}

// TotalLLMStats aggregates token counters across every registered
// agent, overall and per model and per agent.
func (t *Tracer) TotalLLMStats() LLMStats {
	t.mu.Lock()
	sources := make(map[string]llmSource, len(t.llms))
	order := make([]string, len(t.llmOrder))
	copy(order, t.llmOrder)
	for id, src := range t.llms {
		sources[id] = src
	}
	t.mu.Unlock()

	out := LLMStats{
		ByModel: map[string]TokenStats{},
		ByAgent: map[string]AgentStats{},
	}
	for _, agentID := range order {
		src := sources[agentID]
		stats := src.Stats()
		model := src.Model()

		agent := AgentStats{Model: model}
		agent.InputTokens = stats.InputTokens
		agent.OutputTokens = stats.OutputTokens
		agent.CachedTokens = stats.CachedTokens
		agent.Cost = stats.Cost
		agent.Requests = stats.Requests
		agent.finalize()
		out.ByAgent[agentID] = agent

		m := out.ByModel[model]
		m.InputTokens += stats.InputTokens
		m.OutputTokens += stats.OutputTokens
		m.CachedTokens += stats.CachedTokens
		m.Cost += stats.Cost
		m.Requests += stats.Requests
		m.finalize()
		out.ByModel[model] = m

		out.Total.InputTokens += stats.InputTokens
		out.Total.OutputTokens += stats.OutputTokens
		out.Total.CachedTokens += stats.CachedTokens
		out.Total.Cost += stats.Cost
		out.Total.Requests += stats.Requests

		if stats.LastInputTokens > out.MaxContextTokens {
			out.MaxContextTokens = stats.LastInputTokens
		}
	}
	out.Total.finalize()
	out.TotalTokens = out.Total.InputTokens + out.Total.OutputTokens
	out.UncachedInputTokens = out.Total.UncachedInputTokens
	out.CacheHitRatio = out.Total.CacheHitRatio
	return out
}

// RunStats builds the dashboard stats frame. contextLimit maps the run
// model to its context window; pass the pricing DB's lookup.
func (t *Tracer) RunStats(contextLimit func(model string) int) RunStats {
	llmStats := t.TotalLLMStats()

	t.mu.Lock()
	start := t.startTime
	end := t.endTime
	status := t.status
	agentCount := len(t.agents)
	toolCount := len(t.toolExecs)
	vulnCount := len(t.vulns)
	runName := t.runName
	runID := t.runID
	model, _ := t.scanConfig["model"].(string)
	nowFn := t.now
	t.mu.Unlock()

	out := RunStats{
		LLM:              llmStats,
		AgentCount:       agentCount,
		ToolCount:        toolCount,
		VulnCount:        vulnCount,
		StartTime:        start.Format(time.RFC3339),
		Status:           status,
		MaxContextTokens: llmStats.MaxContextTokens,
		ContextLimit:     128_000,
		TokensPerSecond:  0,
		RunName:          runName,
		RunID:            runID,
	}
	if !end.IsZero() {
		out.EndTime = end.Format(time.RFC3339)
	}

	if model != "" && contextLimit != nil {
		if limit := contextLimit(model); limit > 0 {
			out.ContextLimit = limit
		}
	}

	if output := llmStats.Total.OutputTokens; output > 0 {
		ref := end
		if ref.IsZero() {
			ref = nowFn().UTC()
		}
		if elapsed := ref.Sub(start).Seconds(); elapsed > 0 {
			out.TokensPerSecond = math.Round(float64(output)/elapsed*10) / 10
		}
	}
	return out
}
