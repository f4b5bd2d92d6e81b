package llm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/esprit-sec/esprit/internal/chat"
	"github.com/esprit-sec/esprit/internal/config"
	"github.com/esprit-sec/esprit/internal/httpclient"
	"github.com/esprit-sec/esprit/internal/provider/antigravity"
)

// streamCloudCode runs one Cloud Code streaming attempt, walking the
// endpoint list. Claude-family models only exist on the sandbox hosts.
func (c *Client) streamCloudCode(ctx context.Context, messages []chat.Message, emit func(*chat.Response) bool) error {
	c.stats.beginRequest()

	creds, err := c.credentialsFor(ctx, "antigravity")
	if err != nil {
		return err
	}
	if creds == nil {
		return &RequestError{Kind: KindAuthMissing, Message: "no antigravity credentials; run 'esprit auth login antigravity'"}
	}

	projectID := creds.ProjectID()
	if projectID == "" {
		pid, _, derr := antigravity.DiscoverProject(ctx, creds.AccessToken)
		if derr != nil || pid == "" {
			return &RequestError{
				Kind:    KindAuthExpired,
				Message: "no cloud project for this account; log in again",
				Details: errString(derr),
			}
		}
		projectID = pid
	}

	model := bareModel(c.cfg.Model)
	envelope := antigravity.BuildRequest(messages, model, projectID, antigravity.RequestOptions{
		MaxTokens: config.MaxTokens(),
	})
	headers := antigravity.StreamHeaders(creds.AccessToken, model)

	isClaude := strings.Contains(model, "claude")
	var lastErr error
	for _, endpoint := range c.endpoints() {
		// Production doesn't serve Claude models.
		if isClaude && !strings.Contains(endpoint, "sandbox") {
			continue
		}
		url := antigravity.StreamURL(endpoint)

		err := c.doCloudCodeStream(ctx, url, headers, envelope, emit)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		var ce *connectError
		if errors.As(err, &ce) {
			// keep the more informative error from an earlier endpoint
			continue
		}
		switch statusOf(err) {
		case 429, 401, 403:
			return err
		case 400:
			// Cloud Code 400s can be transient; retry this endpoint.
			retryErr := err
			for retry := 0; retry < 2; retry++ {
				select {
				case <-ctx.Done():
					return retryErr
				case <-time.After(time.Duration(2*(retry+1)) * time.Second):
				}
				rerr := c.doCloudCodeStream(ctx, url, headers, envelope, emit)
				if rerr == nil {
					return nil
				}
				if statusOf(rerr) != 400 {
					return rerr
				}
				retryErr = rerr
			}
			return retryErr
		case 404:
			// model unknown on this endpoint, try the next
			lastErr = err
		default:
			lastErr = err
		}
	}

	if lastErr != nil {
		return lastErr
	}
	return &RequestError{Kind: KindUnreachable, Message: "all Cloud Code endpoints unreachable"}
}

// doCloudCodeStream executes a single SSE stream against one endpoint.
func (c *Client) doCloudCodeStream(ctx context.Context, url string, headers map[string]string, body *antigravity.Envelope, emit func(*chat.Response) bool) error {
	sctx, cancel := context.WithTimeout(ctx, c.streamTimeout())
	defer cancel()

	stream := httpclient.NewStream(30 * time.Second)
	resp, err := stream.PostStream(sctx, url, body, httpclient.WithHeaders(headers))
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
		accumulated string
		thinking    []chat.ThinkingBlock
		usage       *chat.Usage
		done        bool
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for !done && scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(line[len("data: "):])
		if data == "[DONE]" {
			break
		}
		chunk := antigravity.ParseChunk([]byte(data))
		if len(chunk.Thinking) > 0 {
			thinking = append(thinking, chunk.Thinking...)
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if chunk.Text == "" {
			continue
		}
		accumulated += chunk.Text
		if strings.Contains(accumulated, functionClose) {
			accumulated = truncateToFirstFunction(accumulated)
			if !emit(&chat.Response{Content: accumulated}) {
				return ctx.Err()
			}
			done = true
			continue
		}
		if !emit(&chat.Response{Content: accumulated}) {
			return ctx.Err()
		}
	}
	if serr := scanner.Err(); serr != nil && !done {
		return fmt.Errorf("reading stream: %w", serr)
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

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
