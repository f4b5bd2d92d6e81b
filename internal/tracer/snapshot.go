package tracer

// Read-side accessors for the dashboard fan-out. Everything returns
// copies; a poll that races a writer just sees slightly stale data and
// picks the change up next tick.

// Agents returns the agents in creation order.
func (t *Tracer) Agents() []Agent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Agent, 0, len(t.agentOrder))
	for _, id := range t.agentOrder {
		out = append(out, *t.agents[id])
	}
	return out
}

// AgentStatuses returns agent id to status, for cheap change detection.
func (t *Tracer) AgentStatuses() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.agents))
	for id, a := range t.agents {
		out[id] = a.Status
	}
	return out
}

// ToolExecutions returns every execution in id order.
func (t *Tracer) ToolExecutions() []ToolExecution {
	return t.ToolExecutionsFrom(0)
}

// ToolExecutionsFrom returns executions with id greater than offset.
func (t *Tracer) ToolExecutionsFrom(offset int) []ToolExecution {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []ToolExecution
	for id := offset + 1; id <= t.nextExecID; id++ {
		if te, ok := t.toolExecs[id]; ok {
			out = append(out, *te)
		}
	}
	return out
}

// ToolExecution returns one execution record by id.
func (t *Tracer) ToolExecution(execID int) (ToolExecution, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	te, ok := t.toolExecs[execID]
	if !ok {
		return ToolExecution{}, false
	}
	return *te, true
}

// ToolCount returns the number of recorded executions.
func (t *Tracer) ToolCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.toolExecs)
}

// AgentToolCount counts one agent's executions.
func (t *Tracer) AgentToolCount(agentID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, te := range t.toolExecs {
		if te.AgentID == agentID {
			n++
		}
	}
	return n
}

// ChatMessagesFrom returns messages starting at offset.
func (t *Tracer) ChatMessagesFrom(offset int) []ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	if offset >= len(t.chatMessages) {
		return nil
	}
	out := make([]ChatMessage, len(t.chatMessages)-offset)
	copy(out, t.chatMessages[offset:])
	return out
}

// ChatCount returns the number of chat messages.
func (t *Tracer) ChatCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.chatMessages)
}

// VulnerabilitiesFrom returns findings starting at offset.
func (t *Tracer) VulnerabilitiesFrom(offset int) []Vulnerability {
	t.mu.Lock()
	defer t.mu.Unlock()
	if offset >= len(t.vulns) {
		return nil
	}
	out := make([]Vulnerability, len(t.vulns)-offset)
	copy(out, t.vulns[offset:])
	return out
}

// VulnCount returns the number of findings.
func (t *Tracer) VulnCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.vulns)
}

// StreamingContent returns a copy of the live per-agent buffers.
func (t *Tracer) StreamingContent() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.streaming))
	for k, v := range t.streaming {
		out[k] = v
	}
	return out
}

// IsCompacting reports whether an agent is compressing history.
func (t *Tracer) IsCompacting(agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.compacting[agentID]
}

// Screenshots returns agent id to latest screenshot execution id.
func (t *Tracer) Screenshots() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.screenshots))
	for k, v := range t.screenshots {
		out[k] = v
	}
	return out
}

// HasScreenshot reports whether an agent has any screenshot recorded.
func (t *Tracer) HasScreenshot(agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.screenshots[agentID]
	return ok
}

// ScanConfig returns the recorded scan configuration, nil before it is
// set.
func (t *Tracer) ScanConfig() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.scanConfig == nil {
		return nil
	}
	out := make(map[string]any, len(t.scanConfig))
	for k, v := range t.scanConfig {
		out[k] = v
	}
	return out
}

// FinalReport returns the latched final report, nil until the run ends.
func (t *Tracer) FinalReport() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalReport
}

// Status returns the run status.
func (t *Tracer) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
