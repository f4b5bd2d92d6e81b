package chat

// Response is a streamed snapshot of the model's reply. Content is
// cumulative: each snapshot carries the full text so far, and the final
// snapshot adds parsed tool invocations and thinking blocks.
type Response struct {
	Content         string
	ToolInvocations []ToolInvocation
	ThinkingBlocks  []ThinkingBlock
}

// ToolInvocation is a tool call parsed out of the model's text protocol.
type ToolInvocation struct {
	Name       string            `json:"toolName"`
	Parameters map[string]string `json:"parameters"`
}

// ThinkingBlock is a reasoning segment surfaced by thinking models.
type ThinkingBlock struct {
	Type     string `json:"type"`
	Thinking string `json:"thinking"`
}

// Usage is the token accounting for one completed request.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	CachedTokens int `json:"cached_tokens"`
}
