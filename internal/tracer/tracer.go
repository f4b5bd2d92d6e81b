// Package tracer holds the shared run state written by the agent
// runtime and the dispatcher, and read by the dashboard fan-out. One
// mutex guards everything; readers get copies and tolerate observing
// state mid-update by re-polling.
package tracer

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/esprit-sec/esprit/internal/llm"
)

// Agent is one runtime agent's visible state.
type Agent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Task      string `json:"task"`
	Status    string `json:"status"`
	ParentID  string `json:"parent_id,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ToolExecution is one tool call's lifecycle record. Result is either a
// plain string or a map; browser results carry a base64 screenshot that
// the fan-out strips before serializing.
type ToolExecution struct {
	ExecutionID int            `json:"execution_id"`
	AgentID     string         `json:"agent_id"`
	ToolName    string         `json:"tool_name"`
	Status      string         `json:"status"`
	Args        map[string]any `json:"args"`
	Result      any            `json:"result,omitempty"`
	Timestamp   string         `json:"timestamp"`
	CompletedAt string         `json:"completed_at,omitempty"`
}

// ChatMessage is one conversation entry shown in the dashboard feed.
type ChatMessage struct {
	Content   string `json:"content"`
	Role      string `json:"role"`
	AgentID   string `json:"agent_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Vulnerability is one reported finding.
type Vulnerability struct {
	Title       string `json:"title"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Target      string `json:"target,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// llmSource is the per-agent view the stats aggregation reads. The
// dispatch client satisfies it.
type llmSource interface {
	Stats() llm.RequestStats
	Model() string
}

// Tracer is the process-wide run arena. Construct one per scan and
// inject it where needed; there is no package-level singleton.
type Tracer struct {
	mu sync.Mutex

	runName   string
	runID     string
	startTime time.Time
	endTime   time.Time
	status    string

	agents     map[string]*Agent
	agentOrder []string

	toolExecs  map[int]*ToolExecution
	nextExecID int

	chatMessages []ChatMessage
	vulns        []Vulnerability

	streaming  map[string]string
	compacting map[string]bool

	// latest browser screenshot per agent, by tool execution id
	screenshots map[string]int

	llms     map[string]llmSource
	llmOrder []string

	scanConfig  map[string]any
	finalReport any

	now func() time.Time
}

// New creates an empty tracer for one run.
func New(runName string) *Tracer {
	t := &Tracer{
		runName:     runName,
		runID:       uuid.NewString(),
		status:      "running",
		agents:      map[string]*Agent{},
		toolExecs:   map[int]*ToolExecution{},
		streaming:   map[string]string{},
		compacting:  map[string]bool{},
		screenshots: map[string]int{},
		llms:        map[string]llmSource{},
		now:         time.Now,
	}
	t.startTime = t.now().UTC()
	return t
}

func (t *Tracer) stamp() string { return t.now().UTC().Format(time.RFC3339) }

// RunName returns the human-readable run name.
func (t *Tracer) RunName() string { return t.runName }

// RunID returns the unique run identifier.
func (t *Tracer) RunID() string { return t.runID }

// LogAgentCreation records a new agent. parentID is empty for the root.
func (t *Tracer) LogAgentCreation(id, name, task, parentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.agents[id]; !exists {
		t.agentOrder = append(t.agentOrder, id)
	}
	ts := t.stamp()
	t.agents[id] = &Agent{
		ID:        id,
		Name:      name,
		Task:      task,
		Status:    "running",
		ParentID:  parentID,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

// UpdateAgentStatus transitions an agent's status.
func (t *Tracer) UpdateAgentStatus(id, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.agents[id]; ok {
		a.Status = status
		a.UpdatedAt = t.stamp()
	}
}

// LogChatMessage appends one conversation entry.
func (t *Tracer) LogChatMessage(content, role, agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chatMessages = append(t.chatMessages, ChatMessage{
		Content:   content,
		Role:      role,
		AgentID:   agentID,
		Timestamp: t.stamp(),
	})
}

// LogToolExecutionStart records a tool call beginning and returns its
// execution id. Ids are sequential from 1.
func (t *Tracer) LogToolExecutionStart(agentID, toolName string, args map[string]any) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextExecID++
	id := t.nextExecID
	t.toolExecs[id] = &ToolExecution{
		ExecutionID: id,
		AgentID:     agentID,
		ToolName:    toolName,
		Status:      "running",
		Args:        args,
		Timestamp:   t.stamp(),
	}
	return id
}

// UpdateToolExecution finishes (or fails) a tool call. Browser results
// carrying a screenshot also update the agent's latest-screenshot
// pointer.
func (t *Tracer) UpdateToolExecution(execID int, status string, result any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	te, ok := t.toolExecs[execID]
	if !ok {
		return
	}
	te.Status = status
	te.Result = result
	te.CompletedAt = t.stamp()

	if te.ToolName == "browser_action" {
		if m, ok := result.(map[string]any); ok {
			if ss, ok := m["screenshot"].(string); ok && ss != "" && ss != "[rendered]" {
				t.screenshots[te.AgentID] = execID
			}
		}
	}
}

// AddVulnerabilityReport records one finding.
func (t *Tracer) AddVulnerabilityReport(title, severity, description, target string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vulns = append(t.vulns, Vulnerability{
		Title:       title,
		Severity:    severity,
		Description: description,
		Target:      target,
		Timestamp:   t.stamp(),
	})
}

// UpdateStreamingContent replaces an agent's live streaming buffer.
func (t *Tracer) UpdateStreamingContent(agentID, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streaming[agentID] = content
}

// ClearStreamingContent drops an agent's streaming buffer once the turn
// completes.
func (t *Tracer) ClearStreamingContent(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.streaming, agentID)
}

// BeginCompaction marks an agent as compressing its history.
func (t *Tracer) BeginCompaction(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.compacting[agentID] = true
}

// EndCompaction clears the compacting mark.
func (t *Tracer) EndCompaction(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.compacting, agentID)
}

// SetLatestScreenshot points an agent at the tool execution holding its
// newest screenshot.
func (t *Tracer) SetLatestScreenshot(agentID string, execID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.screenshots[agentID] = execID
}

// RegisterLLM attaches an agent's dispatch client so its token counters
// feed the aggregate stats.
func (t *Tracer) RegisterLLM(agentID string, src llmSource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.llms[agentID]; !exists {
		t.llmOrder = append(t.llmOrder, agentID)
	}
	t.llms[agentID] = src
}

// SetScanConfig records the scan configuration shown in the dashboard.
func (t *Tracer) SetScanConfig(cfg map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scanConfig = cfg
}

// SetFinalReport latches the final scan result.
func (t *Tracer) SetFinalReport(report any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finalReport = report
}

// Finish marks the run complete and freezes the elapsed clock.
func (t *Tracer) Finish(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	t.endTime = t.now().UTC()
}

// Model returns the primary run model recorded in the scan config.
func (t *Tracer) Model() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.scanConfig["model"].(string); ok {
		return m
	}
	return ""
}
