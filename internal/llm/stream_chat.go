package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/esprit-sec/esprit/internal/chat"
	"github.com/esprit-sec/esprit/internal/httpclient"
	"github.com/esprit-sec/esprit/internal/provider"
)

// chatRequest is the OpenAI-compatible streaming completion request.
type chatRequest struct {
	Model           string         `json:"model"`
	Messages        []chat.Message `json:"messages"`
	Stream          bool           `json:"stream"`
	StreamOptions   *streamOptions `json:"stream_options,omitempty"`
	ReasoningEffort string         `json:"reasoning_effort,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content        string               `json:"content"`
			ThinkingBlocks []chat.ThinkingBlock `json:"thinking_blocks"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

type chatUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	PromptTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
}

// usageDrainChunks is how many extra chunks to read after the tool-call
// cut, waiting for the trailing usage chunk.
const usageDrainChunks = 5

// streamChat runs one standard chat-completions streaming attempt.
func (c *Client) streamChat(ctx context.Context, messages []chat.Message, emit func(*chat.Response) bool) error {
	providerID := c.detectProvider()
	adapter, hasAdapter := provider.Get(providerID)

	creds, err := c.credentialsFor(ctx, providerID)
	if err != nil {
		return err
	}

	if !c.deps.Pricing.SupportsVision(c.cfg.Model) {
		messages = stripImages(messages)
	}

	body := chatRequest{
		Model:         bareModel(c.cfg.Model),
		Messages:      messages,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	}
	if c.deps.Pricing.SupportsReasoning(c.cfg.Model) {
		body.ReasoningEffort = c.reasoningEffort
	}

	base := c.cfg.APIBase
	if base == "" && hasAdapter {
		base = adapter.BaseURL()
	}
	if base == "" {
		return &RequestError{Kind: KindRequestFailed, Message: "no API endpoint for model " + c.cfg.Model}
	}
	url := strings.TrimRight(base, "/") + "/chat/completions"

	c.stats.beginRequest()

	sctx, cancel := context.WithTimeout(ctx, c.streamTimeout())
	defer cancel()

	stream := httpclient.NewStream(30 * time.Second)
	resp, err := stream.PostStream(sctx, url, body, func(r *http.Request) {
		if hasAdapter && creds != nil {
			_ = adapter.ModifyRequest(r, creds)
		}
	})
	if err != nil {
		return &connectError{err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{
			Code:       resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Body:       httpclient.SummarizeBody(raw),
		}
	}

	var (
		accumulated   string
		thinking      []chat.ThinkingBlock
		usage         *chat.Usage
		doneStreaming int
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(line[len("data: "):])
		if data == "[DONE]" {
			break
		}
		var chunk chatChunk
		if jerr := json.Unmarshal([]byte(data), &chunk); jerr != nil {
			continue
		}
		if chunk.Usage != nil {
			usage = &chat.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				CachedTokens: chunk.Usage.PromptTokensDetails.CachedTokens,
			}
		}
		if doneStreaming > 0 {
			doneStreaming++
			if usage != nil || doneStreaming > usageDrainChunks {
				break
			}
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if len(delta.ThinkingBlocks) > 0 {
			thinking = append(thinking, delta.ThinkingBlocks...)
		}
		if delta.Content == "" {
			continue
		}
		accumulated += delta.Content
		if strings.Contains(accumulated, functionClose) {
			accumulated = truncateToFirstFunction(accumulated)
			if !emit(&chat.Response{Content: accumulated}) {
				return ctx.Err()
			}
			doneStreaming = 1
			continue
		}
		if !emit(&chat.Response{Content: accumulated}) {
			return ctx.Err()
		}
	}
	if serr := scanner.Err(); serr != nil && doneStreaming == 0 {
		return serr
	}

	if usage != nil {
		cost := c.deps.Pricing.Cost(c.cfg.Model, usage.InputTokens, usage.OutputTokens, usage.CachedTokens)
		c.stats.addUsage(*usage, cost)
	}

	final := fixIncompleteToolCall(truncateToFirstFunction(accumulated))
	terminal := &chat.Response{
		Content:         final,
		ToolInvocations: parseToolInvocations(final),
		ThinkingBlocks:  thinking,
	}
	if !emit(terminal) {
		return ctx.Err()
	}
	return nil
}
