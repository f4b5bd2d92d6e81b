package antigravity

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/esprit-sec/esprit/internal/chat"
)

// Chunk is one parsed SSE data frame from the Cloud Code stream.
type Chunk struct {
	Text         string
	Thinking     []chat.ThinkingBlock
	ToolCalls    []chat.ToolCall
	Usage        *chat.Usage
	FinishReason string
}

type streamPayload struct {
	Response      *streamPayload `json:"response,omitempty"`
	Candidates    []candidate    `json:"candidates,omitempty"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
}

type candidate struct {
	Content      *GenContent `json:"content,omitempty"`
	FinishReason string      `json:"finishReason,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
}

// ParseChunk decodes one SSE data payload. Unparseable data yields an
// empty chunk.
func ParseChunk(data []byte) Chunk {
	var payload streamPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Chunk{}
	}
	// responses arrive wrapped in a "response" envelope
	body := &payload
	if payload.Response != nil {
		body = payload.Response
	}

	var chunk Chunk
	if body.UsageMetadata != nil {
		chunk.Usage = parseUsage(body.UsageMetadata)
	}
	if len(body.Candidates) == 0 {
		return chunk
	}

	cand := body.Candidates[0]
	chunk.FinishReason = mapFinishReason(cand.FinishReason)
	if cand.Content == nil {
		return chunk
	}

	for _, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				args = []byte("{}")
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
			}
			chunk.ToolCalls = append(chunk.ToolCalls, chat.ToolCall{
				ID:   id,
				Type: "function",
				Function: chat.FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				},
			})
		case part.Thought:
			chunk.Thinking = append(chunk.Thinking, chat.ThinkingBlock{
				Type:     "thinking",
				Thinking: part.Text,
			})
		case part.Text != "":
			chunk.Text += part.Text
		}
	}
	return chunk
}

// mapFinishReason translates GenAI finish reasons to the Anthropic
// names the rest of the pipeline uses.
func mapFinishReason(reason string) string {
	switch reason {
	case "":
		return ""
	case "STOP":
		return "end_turn"
	case "MAX_TOKENS":
		return "max_tokens"
	case "TOOL_USE":
		return "tool_use"
	}
	return reason
}

// parseUsage converts usageMetadata into token counts. Cached tokens
// are reported inside promptTokenCount, so input excludes them.
func parseUsage(um *usageMetadata) *chat.Usage {
	input := um.PromptTokenCount - um.CachedContentTokenCount
	if input < 0 {
		input = 0
	}
	return &chat.Usage{
		InputTokens:  input,
		OutputTokens: um.CandidatesTokenCount,
		CachedTokens: um.CachedContentTokenCount,
	}
}
