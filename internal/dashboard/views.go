package dashboard

import "github.com/esprit-sec/esprit/internal/tracer"

// agentView is one serialized agent row.
type agentView struct {
	tracer.Agent
	HasScreenshot bool `json:"has_screenshot"`
	ToolCount     int  `json:"tool_count"`
	Compacting    bool `json:"compacting"`
}

// toolView is one serialized tool execution, screenshots stripped.
type toolView struct {
	ExecutionID   int            `json:"execution_id"`
	AgentID       string         `json:"agent_id"`
	ToolName      string         `json:"tool_name"`
	Status        string         `json:"status"`
	Timestamp     string         `json:"timestamp"`
	CompletedAt   string         `json:"completed_at,omitempty"`
	Args          map[string]any `json:"args"`
	ResultSummary any            `json:"result_summary,omitempty"`
	HasScreenshot bool           `json:"has_screenshot,omitempty"`
}

func (b *Bridge) serializeAgents() []agentView {
	t := b.tracer
	agents := t.Agents()
	out := make([]agentView, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentView{
			Agent:         a,
			HasScreenshot: t.HasScreenshot(a.ID),
			ToolCount:     t.AgentToolCount(a.ID),
			Compacting:    t.IsCompacting(a.ID),
		})
	}
	return out
}

// serializeTools serializes executions with id greater than offset.
// Screenshot payloads never leave through this path; clients fetch
// them by REST when flagged.
func (b *Bridge) serializeTools(offset int) []toolView {
	var out []toolView
	for _, te := range b.tracer.ToolExecutionsFrom(offset) {
		v := toolView{
			ExecutionID: te.ExecutionID,
			AgentID:     te.AgentID,
			ToolName:    te.ToolName,
			Status:      te.Status,
			Timestamp:   te.Timestamp,
			CompletedAt: te.CompletedAt,
			Args:        stripKey(te.Args, "screenshot"),
		}
		switch result := te.Result.(type) {
		case map[string]any:
			v.ResultSummary = stripKey(result, "screenshot")
			if ss, ok := result["screenshot"].(string); ok && ss != "" {
				v.HasScreenshot = true
			}
		case string:
			if len(result) > resultClipLen {
				result = result[:resultClipLen]
			}
			v.ResultSummary = result
		}
		out = append(out, v)
	}
	return out
}

func stripKey(m map[string]any, key string) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// ScreenshotData is the REST screenshot response. Screenshot is nil
// when the agent has none.
type ScreenshotData struct {
	Screenshot *string `json:"screenshot"`
	URL        string  `json:"url"`
	AgentID    string  `json:"agent_id"`
}

// Screenshot returns the agent's most recent browser screenshot,
// following the latest-screenshot pointer and falling back to a scan
// of the agent's browser executions.
func (b *Bridge) Screenshot(agentID string) ScreenshotData {
	t := b.tracer

	if execID, ok := t.Screenshots()[agentID]; ok {
		if te, found := t.ToolExecution(execID); found {
			if data, ok := screenshotFrom(te); ok {
				data.AgentID = agentID
				return data
			}
		}
	}

	best := ScreenshotData{AgentID: agentID}
	bestID := -1
	for _, te := range t.ToolExecutions() {
		if te.ToolName != "browser_action" || te.AgentID != agentID {
			continue
		}
		if data, ok := screenshotFrom(te); ok && te.ExecutionID > bestID {
			bestID = te.ExecutionID
			data.AgentID = agentID
			best = data
		}
	}
	return best
}

func screenshotFrom(te tracer.ToolExecution) (ScreenshotData, bool) {
	result, ok := te.Result.(map[string]any)
	if !ok {
		return ScreenshotData{}, false
	}
	ss, ok := result["screenshot"].(string)
	if !ok || ss == "" || ss == "[rendered]" {
		return ScreenshotData{}, false
	}
	url, _ := result["url"].(string)
	if url == "" {
		url, _ = te.Args["url"].(string)
	}
	return ScreenshotData{Screenshot: &ss, URL: url}, true
}
