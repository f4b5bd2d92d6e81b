// Package dashboard serves the live scan dashboard: a websocket
// fan-out that polls the tracer for changes, plus a small HTTP surface
// for the page itself and screenshot retrieval.
package dashboard

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/esprit-sec/esprit/internal/pricing"
	"github.com/esprit-sec/esprit/internal/tracer"
)

// pollInterval is the delta-detection cadence.
const pollInterval = 500 * time.Millisecond

// resultClipLen bounds string tool results in serialized frames.
const resultClipLen = 500

// subscriber receives serialized frames. Send returning an error drops
// the subscriber from the fan-out.
type subscriber interface {
	Send(payload []byte) error
}

// Bridge polls the tracer and pushes delta batches to subscribers.
type Bridge struct {
	tracer  *tracer.Tracer
	pricing *pricing.DB
	logger  *log.Logger

	mu      sync.Mutex
	clients []subscriber

	lastAgentCount  int
	lastStatuses    map[string]string
	lastToolCount   int
	lastChatCount   int
	lastVulnCount   int
	lastStreaming   map[string]string
	lastScreenshots map[string]int
	lastStatsJSON   string
	lastScanConfig  string
	sentFinalReport bool
}

// NewBridge builds a bridge over one tracer. The pricing DB supplies
// the context limit shown in the stats panel; nil is allowed.
func NewBridge(tr *tracer.Tracer, db *pricing.DB, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.Default()
	}
	return &Bridge{
		tracer:          tr,
		pricing:         db,
		logger:          logger,
		lastStatuses:    map[string]string{},
		lastStreaming:   map[string]string{},
		lastScreenshots: map[string]int{},
	}
}

// AddClient subscribes a client. Subscribing twice is a no-op.
func (b *Bridge) AddClient(c subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.clients {
		if existing == c {
			return
		}
	}
	b.clients = append(b.clients, c)
}

// RemoveClient unsubscribes a client.
func (b *Bridge) RemoveClient(c subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.clients {
		if existing == c {
			b.clients = append(b.clients[:i], b.clients[i+1:]...)
			return
		}
	}
}

// ClientCount returns the number of subscribers.
func (b *Bridge) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Run polls until the context is canceled. Ticks with no subscribers
// skip delta detection entirely.
func (b *Bridge) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if b.ClientCount() == 0 {
			continue
		}
		if deltas := b.detectDeltas(); len(deltas) > 0 {
			b.broadcast(deltas)
		}
	}
}

type delta map[string]any

// detectDeltas diffs the tracer against the previous poll. Deltas keep
// a fixed order: agents, tools, chat, vulnerabilities, streaming,
// screenshots, stats, scan config, final report.
func (b *Bridge) detectDeltas() []delta {
	t := b.tracer
	var deltas []delta

	statuses := t.AgentStatuses()
	if len(statuses) != b.lastAgentCount || !sameStringMap(statuses, b.lastStatuses) {
		deltas = append(deltas, delta{"type": "agents_update", "agents": b.serializeAgents()})
		b.lastAgentCount = len(statuses)
		b.lastStatuses = statuses
	}

	if n := t.ToolCount(); n != b.lastToolCount {
		if tools := b.serializeTools(b.lastToolCount); len(tools) > 0 {
			deltas = append(deltas, delta{"type": "tools_update", "tools": tools})
		}
		b.lastToolCount = n
	}

	if n := t.ChatCount(); n != b.lastChatCount {
		deltas = append(deltas, delta{
			"type":     "chat_update",
			"messages": t.ChatMessagesFrom(b.lastChatCount),
		})
		b.lastChatCount = n
	}

	if n := t.VulnCount(); n != b.lastVulnCount {
		deltas = append(deltas, delta{
			"type":            "vulnerability_update",
			"vulnerabilities": t.VulnerabilitiesFrom(b.lastVulnCount),
		})
		b.lastVulnCount = n
	}

	if streaming := t.StreamingContent(); !sameStringMap(streaming, b.lastStreaming) {
		deltas = append(deltas, delta{"type": "streaming_update", "streaming": streaming})
		b.lastStreaming = streaming
	}

	if screenshots := t.Screenshots(); !sameIntMap(screenshots, b.lastScreenshots) {
		for agentID, execID := range screenshots {
			if b.lastScreenshots[agentID] != execID {
				deltas = append(deltas, delta{"type": "screenshot_update", "agent_id": agentID})
			}
		}
		b.lastScreenshots = screenshots
	}

	stats := b.stats()
	if raw, err := json.Marshal(stats); err == nil && string(raw) != b.lastStatsJSON {
		deltas = append(deltas, delta{"type": "stats_update", "stats": stats})
		b.lastStatsJSON = string(raw)
	}

	if cfg := t.ScanConfig(); cfg != nil {
		if raw, err := json.Marshal(cfg); err == nil && string(raw) != b.lastScanConfig {
			deltas = append(deltas, delta{"type": "scan_config_update", "scan_config": cfg})
			b.lastScanConfig = string(raw)
		}
	}

	if report := t.FinalReport(); report != nil && !b.sentFinalReport {
		deltas = append(deltas, delta{"type": "scan_complete", "final_report": report})
		b.sentFinalReport = true
	}

	return deltas
}

// broadcast sends one delta batch to every subscriber, dropping any
// whose send fails.
func (b *Bridge) broadcast(deltas []delta) {
	payload, err := json.Marshal(delta{"type": "delta_batch", "deltas": deltas})
	if err != nil {
		b.logger.Debug("could not marshal delta batch", "err", err)
		return
	}
	b.mu.Lock()
	clients := make([]subscriber, len(b.clients))
	copy(clients, b.clients)
	b.mu.Unlock()

	var dead []subscriber
	for _, c := range clients {
		if serr := c.Send(payload); serr != nil {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		b.RemoveClient(c)
	}
}

// FullState builds the frame sent to a client on subscribe.
func (b *Bridge) FullState() map[string]any {
	t := b.tracer

	screenshotAgents := []string{}
	for agentID := range t.Screenshots() {
		screenshotAgents = append(screenshotAgents, agentID)
	}

	chat := t.ChatMessagesFrom(0)
	if chat == nil {
		chat = []tracer.ChatMessage{}
	}
	vulns := t.VulnerabilitiesFrom(0)
	if vulns == nil {
		vulns = []tracer.Vulnerability{}
	}
	tools := b.serializeTools(0)
	if tools == nil {
		tools = []toolView{}
	}

	return map[string]any{
		"type":              "full_state",
		"agents":            b.serializeAgents(),
		"tools":             tools,
		"chat":              chat,
		"vulnerabilities":   vulns,
		"streaming":         t.StreamingContent(),
		"screenshot_agents": screenshotAgents,
		"stats":             b.stats(),
		"scan_config":       t.ScanConfig(),
		"final_report":      t.FinalReport(),
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	}
}

func (b *Bridge) stats() tracer.RunStats {
	if b.pricing != nil {
		return b.tracer.RunStats(b.pricing.ContextLimit)
	}
	return b.tracer.RunStats(nil)
}

func sameStringMap(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func sameIntMap(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
