package dashboard

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/esprit-sec/esprit/internal/tracer"
)

type fakeSub struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     bool
}

func (f *fakeSub) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection closed")
	}
	f.payloads = append(f.payloads, p)
	return nil
}

func newTestBridge(tr *tracer.Tracer) *Bridge {
	return NewBridge(tr, nil, log.New(io.Discard))
}

func populatedTracer() *tracer.Tracer {
	tr := tracer.New("test-run")
	tr.LogAgentCreation("agent-1", "Scanner", "Scan target", "")
	tr.LogAgentCreation("agent-2", "Browser", "Browse site", "agent-1")
	tr.LogChatMessage("Starting scan", "system", "agent-1")
	tr.LogChatMessage("I will analyze the target", "assistant", "agent-1")
	tr.LogChatMessage("Please focus on auth", "user", "")

	id1 := tr.LogToolExecutionStart("agent-1", "terminal", map[string]any{"command": "nmap"})
	tr.UpdateToolExecution(id1, "completed", "scan results")

	id2 := tr.LogToolExecutionStart("agent-2", "browser_action", map[string]any{"url": "https://example.com"})
	tr.UpdateToolExecution(id2, "completed", map[string]any{
		"screenshot": "iVBORw0KGgoAAAANSUhEUgAAAAEAAAAB",
		"url":        "https://example.com/page",
	})

	tr.AddVulnerabilityReport("XSS in search", "high", "Reflected XSS", "https://example.com")
	tr.UpdateStreamingContent("agent-1", "I am thinking about...")
	return tr
}

func deltaTypes(deltas []delta) []string {
	out := make([]string, len(deltas))
	for i, d := range deltas {
		out[i] = d["type"].(string)
	}
	return out
}

func TestDetectDeltasInitialThenQuiescent(t *testing.T) {
	b := newTestBridge(populatedTracer())

	first := b.detectDeltas()
	if len(first) == 0 {
		t.Fatal("first poll detected nothing")
	}
	second := b.detectDeltas()
	if len(second) != 0 {
		t.Errorf("quiescent poll produced deltas: %v", deltaTypes(second))
	}
}

func TestDeltaOrderIsFixed(t *testing.T) {
	b := newTestBridge(populatedTracer())

	got := deltaTypes(b.detectDeltas())
	want := []string{
		"agents_update",
		"tools_update",
		"chat_update",
		"vulnerability_update",
		"streaming_update",
		"screenshot_update",
		"stats_update",
	}
	if len(got) != len(want) {
		t.Fatalf("delta types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delta types = %v, want %v", got, want)
		}
	}
}

func TestNewChatMessageDelta(t *testing.T) {
	tr := tracer.New("test")
	b := newTestBridge(tr)
	b.detectDeltas()

	tr.LogChatMessage("Hello", "user", "")
	deltas := b.detectDeltas()

	var chat delta
	for _, d := range deltas {
		if d["type"] == "chat_update" {
			chat = d
		}
	}
	if chat == nil {
		t.Fatalf("no chat_update in %v", deltaTypes(deltas))
	}
	messages := chat["messages"].([]tracer.ChatMessage)
	if len(messages) != 1 || messages[0].Content != "Hello" {
		t.Errorf("messages = %+v", messages)
	}
}

func TestOnlyNewToolsSerialized(t *testing.T) {
	tr := tracer.New("test")
	b := newTestBridge(tr)

	tr.LogToolExecutionStart("a-1", "terminal", map[string]any{"command": "ls"})
	b.detectDeltas()

	tr.LogToolExecutionStart("a-1", "terminal", map[string]any{"command": "id"})
	deltas := b.detectDeltas()

	var tools []toolView
	for _, d := range deltas {
		if d["type"] == "tools_update" {
			tools = d["tools"].([]toolView)
		}
	}
	if len(tools) != 1 || tools[0].Args["command"] != "id" {
		t.Errorf("tools = %+v, want only the new execution", tools)
	}
}

func TestAgentStatusChangeDelta(t *testing.T) {
	tr := tracer.New("test")
	tr.LogAgentCreation("a-1", "Agent", "task", "")
	b := newTestBridge(tr)
	b.detectDeltas()

	tr.UpdateAgentStatus("a-1", "completed")
	deltas := b.detectDeltas()
	found := false
	for _, d := range deltas {
		if d["type"] == "agents_update" {
			found = true
		}
	}
	if !found {
		t.Errorf("status change missed: %v", deltaTypes(deltas))
	}
}

func TestScreenshotDelta(t *testing.T) {
	tr := tracer.New("test")
	b := newTestBridge(tr)
	b.detectDeltas()

	tr.SetLatestScreenshot("a-1", 42)
	deltas := b.detectDeltas()
	var shot delta
	for _, d := range deltas {
		if d["type"] == "screenshot_update" {
			shot = d
		}
	}
	if shot == nil || shot["agent_id"] != "a-1" {
		t.Errorf("screenshot delta = %v", shot)
	}
}

func TestScanConfigAndFinalReportLatch(t *testing.T) {
	tr := tracer.New("test")
	b := newTestBridge(tr)
	b.detectDeltas()

	tr.SetScanConfig(map[string]any{"target": "https://example.com"})
	types := deltaTypes(b.detectDeltas())
	if !contains(types, "scan_config_update") {
		t.Errorf("scan config change missed: %v", types)
	}
	if types := deltaTypes(b.detectDeltas()); contains(types, "scan_config_update") {
		t.Errorf("unchanged scan config re-sent: %v", types)
	}

	tr.SetFinalReport(map[string]any{"summary": "done"})
	types = deltaTypes(b.detectDeltas())
	if !contains(types, "scan_complete") {
		t.Errorf("final report missed: %v", types)
	}
	if types := deltaTypes(b.detectDeltas()); contains(types, "scan_complete") {
		t.Errorf("final report sent twice: %v", types)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestBroadcastRemovesDeadClients(t *testing.T) {
	b := newTestBridge(tracer.New("test"))

	alive := &fakeSub{}
	dead := &fakeSub{fail: true}
	b.AddClient(alive)
	b.AddClient(dead)

	b.broadcast([]delta{{"type": "test"}})

	if b.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", b.ClientCount())
	}
	if len(alive.payloads) != 1 {
		t.Fatalf("alive client got %d payloads", len(alive.payloads))
	}
	var frame struct {
		Type   string           `json:"type"`
		Deltas []map[string]any `json:"deltas"`
	}
	if err := json.Unmarshal(alive.payloads[0], &frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != "delta_batch" || len(frame.Deltas) != 1 {
		t.Errorf("frame = %+v", frame)
	}
}

func TestAddClientDedupes(t *testing.T) {
	b := newTestBridge(tracer.New("test"))
	c := &fakeSub{}
	b.AddClient(c)
	b.AddClient(c)
	if b.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", b.ClientCount())
	}
	b.RemoveClient(c)
	if b.ClientCount() != 0 {
		t.Errorf("ClientCount after remove = %d", b.ClientCount())
	}
}

func TestFullState(t *testing.T) {
	b := newTestBridge(populatedTracer())
	state := b.FullState()

	if state["type"] != "full_state" {
		t.Errorf("type = %v", state["type"])
	}
	agents := state["agents"].([]agentView)
	if len(agents) != 2 {
		t.Fatalf("agents = %d, want 2", len(agents))
	}
	if agents[0].Name != "Scanner" || agents[0].HasScreenshot {
		t.Errorf("agent-1 = %+v", agents[0])
	}
	if !agents[1].HasScreenshot {
		t.Error("agent-2 should have a screenshot")
	}

	tools := state["tools"].([]toolView)
	var browser *toolView
	for i := range tools {
		if tools[i].ToolName == "browser_action" {
			browser = &tools[i]
		}
	}
	if browser == nil {
		t.Fatal("browser tool missing")
	}
	if !browser.HasScreenshot {
		t.Error("has_screenshot not set")
	}
	if summary, ok := browser.ResultSummary.(map[string]any); !ok {
		t.Errorf("result summary = %T", browser.ResultSummary)
	} else if _, leaked := summary["screenshot"]; leaked {
		t.Error("screenshot leaked into serialized tool result")
	}

	shots := state["screenshot_agents"].([]string)
	if len(shots) != 1 || shots[0] != "agent-2" {
		t.Errorf("screenshot_agents = %v", shots)
	}
	if len(state["chat"].([]tracer.ChatMessage)) < 3 {
		t.Error("chat messages missing")
	}
	if state["timestamp"] == "" {
		t.Error("timestamp missing")
	}
}

func TestFullStateEmptyTracer(t *testing.T) {
	b := newTestBridge(tracer.New("test"))
	raw, err := json.Marshal(b.FullState())
	if err != nil {
		t.Fatal(err)
	}
	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatal(err)
	}
	// empty collections serialize as [] / {}, not null
	for _, key := range []string{"agents", "tools", "chat", "vulnerabilities"} {
		if _, ok := state[key].([]any); !ok {
			t.Errorf("%s = %v (%T), want array", key, state[key], state[key])
		}
	}
}

func TestLongStringResultsClipped(t *testing.T) {
	tr := tracer.New("test")
	id := tr.LogToolExecutionStart("a-1", "terminal", map[string]any{"command": "cat big"})
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	tr.UpdateToolExecution(id, "completed", string(long))

	b := newTestBridge(tr)
	tools := b.serializeTools(0)
	if got := tools[0].ResultSummary.(string); len(got) != resultClipLen {
		t.Errorf("result length = %d, want %d", len(got), resultClipLen)
	}
}

func TestScreenshotLookup(t *testing.T) {
	b := newTestBridge(populatedTracer())

	data := b.Screenshot("agent-2")
	if data.Screenshot == nil || *data.Screenshot == "" {
		t.Fatal("screenshot missing for agent-2")
	}
	if data.URL != "https://example.com/page" {
		t.Errorf("url = %q", data.URL)
	}
	if data.AgentID != "agent-2" {
		t.Errorf("agent_id = %q", data.AgentID)
	}

	if got := b.Screenshot("agent-1"); got.Screenshot != nil {
		t.Errorf("agent without screenshots returned %v", *got.Screenshot)
	}
	if got := b.Screenshot("nonexistent"); got.Screenshot != nil || got.AgentID != "nonexistent" {
		t.Errorf("unknown agent = %+v", got)
	}
}

func TestScreenshotRenderedPlaceholderSkipped(t *testing.T) {
	tr := tracer.New("test")
	id := tr.LogToolExecutionStart("a-x", "browser_action", map[string]any{"url": "http://test"})
	tr.UpdateToolExecution(id, "completed", map[string]any{"screenshot": "[rendered]", "url": "http://test"})
	tr.SetLatestScreenshot("a-x", id)

	b := newTestBridge(tr)
	if got := b.Screenshot("a-x"); got.Screenshot != nil {
		t.Errorf("placeholder screenshot returned: %v", *got.Screenshot)
	}
}

func TestScreenshotFallbackScan(t *testing.T) {
	tr := tracer.New("test")
	id1 := tr.LogToolExecutionStart("a-1", "browser_action", map[string]any{"url": "http://a"})
	tr.UpdateToolExecution(id1, "completed", map[string]any{"screenshot": "older", "url": "http://a"})
	id2 := tr.LogToolExecutionStart("a-1", "browser_action", map[string]any{"url": "http://b"})
	tr.UpdateToolExecution(id2, "completed", map[string]any{"screenshot": "newer", "url": "http://b"})

	b := newTestBridge(tr)
	// break the latest pointer so the fallback scan has to find it
	tr.SetLatestScreenshot("a-1", 9999)

	data := b.Screenshot("a-1")
	if data.Screenshot == nil || *data.Screenshot != "newer" {
		t.Errorf("fallback picked %v, want newest execution", data.Screenshot)
	}
}
