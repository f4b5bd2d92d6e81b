// Package llm is the dispatch core: it takes a conversation, selects a
// provider and account, streams the completion, and yields cumulative
// response snapshots ending in one terminal snapshot with parsed tool
// invocations.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/esprit-sec/esprit/internal/accounts"
	"github.com/esprit-sec/esprit/internal/chat"
	"github.com/esprit-sec/esprit/internal/config"
	"github.com/esprit-sec/esprit/internal/logging"
	"github.com/esprit-sec/esprit/internal/pricing"
	"github.com/esprit-sec/esprit/internal/provider"
	"github.com/esprit-sec/esprit/internal/provider/antigravity"
)

// Compressor trims conversation history before each turn. The history
// slice is replaced in-place with its output.
type Compressor interface {
	Compress(ctx context.Context, history []chat.Message) ([]chat.Message, error)
}

// CompactionSignaler lets the UI show that an agent's history is being
// compressed.
type CompactionSignaler interface {
	BeginCompaction(agentID string)
	EndCompaction(agentID string)
}

// Config holds the per-client generation settings. Model is mutable:
// automatic fallback sticks for the client's lifetime.
type Config struct {
	Model        string
	ScanMode     string
	SystemPrompt string

	// APIBase overrides the adapter's default chat endpoint.
	APIBase string

	// StreamTimeout bounds one streaming attempt. Zero uses the
	// configured fetch stream timeout.
	StreamTimeout time.Duration

	EnablePromptCaching bool
}

// Deps are the shared components a client dispatches through.
type Deps struct {
	Store      *provider.Store
	Pool       *accounts.Pool
	Pricing    *pricing.DB
	Compressor Compressor
	Signaler   CompactionSignaler
	Logger     *log.Logger
}

// Event is one element of the generate sequence: a response snapshot
// or the terminal error.
type Event struct {
	Response *chat.Response
	Err      error
}

// Client dispatches completions for one agent.
type Client struct {
	cfg   Config
	deps  Deps
	stats statsBox

	agentName string
	agentID   string

	reasoningEffort string

	originalModel string
	triedModels   map[string]bool

	// endpointsOverride replaces the Cloud Code endpoint list in tests.
	endpointsOverride []string
}

// New builds a client. Reasoning effort follows the configured
// override, else medium for quick scans and high otherwise.
func New(cfg Config, deps Deps) *Client {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	effort := config.ReasoningEffort()
	if effort == "" {
		if cfg.ScanMode == "quick" {
			effort = "medium"
		} else {
			effort = "high"
		}
	}
	return &Client{cfg: cfg, deps: deps, reasoningEffort: effort}
}

// SetAgentIdentity attaches the agent name and id carried in the
// identity block and compaction signals.
func (c *Client) SetAgentIdentity(name, id string) {
	if name != "" {
		c.agentName = name
	}
	if id != "" {
		c.agentID = id
	}
}

// Model returns the currently active model, which may differ from the
// configured one after a fallback.
func (c *Client) Model() string { return c.cfg.Model }

// Stats returns a snapshot of the accumulated token and cost totals.
func (c *Client) Stats() RequestStats { return c.stats.snapshot() }

// Generate streams one completion turn. The returned channel carries
// cumulative partial snapshots followed by either one terminal
// snapshot or one error, then closes. Canceling the context tears
// down the in-flight stream.
func (c *Client) Generate(ctx context.Context, history *[]chat.Message) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		c.run(ctx, history, ch)
	}()
	return ch
}

func (c *Client) run(ctx context.Context, history *[]chat.Message, ch chan<- Event) {
	emit := func(r *chat.Response) bool {
		select {
		case ch <- Event{Response: r}:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(e *RequestError) {
		select {
		case ch <- Event{Err: e}:
		case <-ctx.Done():
		}
	}

	messages := c.prepareMessages(ctx, history)
	maxRetries := config.MaxRetries()

	attempt := 0
	for attempt <= maxRetries {
		var err error
		if c.isCloudCode() {
			err = c.streamCloudCode(ctx, messages, emit)
		} else {
			err = c.streamChat(ctx, messages, emit)
		}
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			fail(&RequestError{Kind: KindAborted, Message: "request canceled", Details: ctx.Err().Error()})
			return
		}
		if c.tryRotateOnRateLimit(err) {
			// fresh account, same attempt budget
			continue
		}
		if attempt >= maxRetries || !shouldRetry(err) {
			if c.isCloudCode() && c.tryModelFallback(err) {
				attempt = 0
				continue
			}
			fail(c.toRequestError(err))
			return
		}
		wait := 2 << attempt // 2, 4, 8, ...
		if wait > 10 {
			wait = 10
		}
		select {
		case <-ctx.Done():
			fail(&RequestError{Kind: KindAborted, Message: "request canceled", Details: ctx.Err().Error()})
			return
		case <-time.After(time.Duration(wait) * time.Second):
		}
		attempt++
	}
}

func (c *Client) toRequestError(err error) *RequestError {
	var re *RequestError
	if errors.As(err, &re) {
		return re
	}
	var ce *connectError
	if errors.As(err, &ce) {
		return &RequestError{Kind: KindUnreachable, Message: "provider unreachable", Details: ce.Error()}
	}
	switch statusOf(err) {
	case 429:
		return &RequestError{Kind: KindRateLimited, Message: "rate limited with no account available", Details: err.Error()}
	case 401, 403:
		return &RequestError{Kind: KindAuthExpired, Message: "provider rejected credentials", Details: err.Error()}
	}
	return &RequestError{Kind: KindRequestFailed, Message: "LLM request failed", Details: err.Error()}
}

// detectProvider resolves the adapter for the active model, counting a
// provider as authenticated when it has pooled accounts or a stored
// credential.
func (c *Client) detectProvider() string {
	return provider.Detect(c.cfg.Model, c.hasCreds)
}

func (c *Client) hasCreds(providerID string) bool {
	if accounts.IsMultiAccount(providerID) && c.deps.Pool != nil && c.deps.Pool.Count(providerID) > 0 {
		return true
	}
	return c.deps.Store != nil && c.deps.Store.Has(providerID)
}

func (c *Client) isCloudCode() bool {
	a, ok := provider.Get(c.detectProvider())
	return ok && a.Family() == provider.FamilyCloudCode
}

func (c *Client) isAnthropic() bool {
	m := strings.ToLower(c.cfg.Model)
	return strings.Contains(m, "anthropic/") || strings.Contains(m, "claude")
}

func bareModel(model string) string {
	if i := strings.Index(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

// credentialsFor selects credentials for a provider, preferring the
// account pool and refreshing expired OAuth tokens in place.
func (c *Client) credentialsFor(ctx context.Context, providerID string) (*provider.Credentials, error) {
	adapter, ok := provider.Get(providerID)
	if !ok {
		return nil, nil
	}

	if accounts.IsMultiAccount(providerID) && c.deps.Pool != nil && c.deps.Pool.Count(providerID) > 0 {
		acct, _, err := c.deps.Pool.GetBest(providerID, bareModel(c.cfg.Model))
		if err != nil {
			return nil, err
		}
		if acct == nil {
			return nil, &RequestError{
				Kind:    KindRateLimited,
				Message: fmt.Sprintf("every %s account is cooling down", providerID),
			}
		}
		creds := acct.Credentials
		if creds.IsExpired() {
			fresh, err := adapter.Refresh(ctx, creds)
			if err != nil {
				return nil, &RequestError{
					Kind:    KindAuthExpired,
					Message: fmt.Sprintf("could not refresh %s token for %s", providerID, logging.MaskEmail(acct.Email)),
					Details: err.Error(),
				}
			}
			if uerr := c.deps.Pool.UpdateCredentials(providerID, acct.Email, fresh); uerr != nil {
				c.deps.Logger.Warn("could not persist refreshed credentials", "provider", providerID, "err", uerr)
			}
			creds = fresh
		}
		return creds, nil
	}

	if c.deps.Store == nil {
		return nil, &RequestError{Kind: KindAuthMissing, Message: "no credential store configured"}
	}
	creds, err := c.deps.Store.Get(providerID)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, &RequestError{
			Kind:    KindAuthMissing,
			Message: fmt.Sprintf("no %s credentials; run 'esprit auth login %s'", providerID, providerID),
		}
	}
	if creds.IsExpired() {
		fresh, err := adapter.Refresh(ctx, creds)
		if err != nil {
			return nil, &RequestError{
				Kind:    KindAuthExpired,
				Message: fmt.Sprintf("could not refresh %s token; log in again", providerID),
				Details: err.Error(),
			}
		}
		if serr := c.deps.Store.Set(providerID, fresh); serr != nil {
			c.deps.Logger.Warn("could not persist refreshed credentials", "provider", providerID, "err", serr)
		}
		creds = fresh
	}
	return creds, nil
}

// prepareMessages builds the outgoing message list: system prompt,
// agent identity block, then the compressed history. The caller's
// history slice is replaced in-place with the compressed form.
func (c *Client) prepareMessages(ctx context.Context, history *[]chat.Message) []chat.Message {
	messages := []chat.Message{{Role: chat.RoleSystem, Content: chat.Text(c.cfg.SystemPrompt)}}

	if c.agentName != "" {
		identity := fmt.Sprintf(
			"\n\n<agent_identity>\n"+
				"<meta>Internal metadata: do not echo or reference.</meta>\n"+
				"<agent_name>%s</agent_name>\n"+
				"<agent_id>%s</agent_id>\n"+
				"</agent_identity>\n\n",
			c.agentName, c.agentID)
		messages = append(messages, chat.Message{Role: chat.RoleUser, Content: chat.Text(identity)})
	}

	compressed := c.compressWithSignal(ctx, *history)
	*history = append((*history)[:0], compressed...)
	messages = append(messages, compressed...)

	if c.isAnthropic() && c.cfg.EnablePromptCaching && c.deps.Pricing.SupportsPromptCaching(c.cfg.Model) {
		messages = addCacheControl(messages)
	}
	return messages
}

func (c *Client) compressWithSignal(ctx context.Context, history []chat.Message) []chat.Message {
	if c.deps.Compressor == nil {
		return history
	}
	if c.deps.Signaler != nil && c.agentID != "" {
		c.deps.Signaler.BeginCompaction(c.agentID)
		defer c.deps.Signaler.EndCompaction(c.agentID)
	}
	compressed, err := c.deps.Compressor.Compress(ctx, history)
	if err != nil {
		c.deps.Logger.Warn("history compression failed", "err", err)
		return history
	}
	return compressed
}

// addCacheControl marks the system prompt as a prompt-cache breakpoint.
func addCacheControl(messages []chat.Message) []chat.Message {
	if len(messages) == 0 || messages[0].Role != chat.RoleSystem {
		return messages
	}
	out := make([]chat.Message, len(messages))
	copy(out, messages)
	if sys := out[0].Content; !sys.IsParts() {
		out[0].Content = chat.Parts(chat.Part{
			Type:         chat.PartText,
			Text:         sys.String(),
			CacheControl: &chat.CacheControl{Type: "ephemeral"},
		})
	}
	return out
}

// stripImages flattens multi-part messages to text, replacing image
// parts with a placeholder, for models without vision support.
func stripImages(messages []chat.Message) []chat.Message {
	out := make([]chat.Message, len(messages))
	copy(out, messages)
	for i, msg := range out {
		if !msg.Content.IsParts() {
			continue
		}
		var texts []string
		for _, p := range msg.Content.PartList() {
			switch p.Type {
			case chat.PartText:
				texts = append(texts, p.Text)
			case chat.PartImageURL:
				texts = append(texts, "[Image removed - model doesn't support vision]")
			}
		}
		out[i].Content = chat.Text(strings.Join(texts, "\n"))
	}
	return out
}

// tryRotateOnRateLimit handles a 429 by cooling the active account and
// rotating to another one. Returns true when rotation succeeded and
// the attempt should restart immediately.
func (c *Client) tryRotateOnRateLimit(err error) bool {
	se, ok := err.(*statusError)
	if !ok || se.Code != 429 {
		return false
	}
	providerID := c.detectProvider()
	if providerID == "" || c.deps.Pool == nil || !accounts.IsMultiAccount(providerID) {
		return false
	}
	current, _, perr := c.deps.Pool.PeekBest(providerID, "")
	if perr != nil || current == nil {
		return false
	}

	bare := bareModel(c.cfg.Model)
	if merr := c.deps.Pool.MarkRateLimited(providerID, current.Email, bare, se.retryAfter()); merr != nil {
		c.deps.Logger.Warn("could not record rate limit", "err", merr)
	}
	rotated, rerr := c.deps.Pool.Rotate(providerID, bare)
	if rerr == nil && rotated != nil {
		c.deps.Logger.Info("rate limited, rotated account",
			"from", logging.MaskEmail(current.Email),
			"to", logging.MaskEmail(rotated.Email))
		return true
	}
	c.deps.Logger.Warn("rate limited with no other account available",
		"account", logging.MaskEmail(current.Email))
	return false
}

// tryModelFallback switches to the next untried model in the fallback
// chain. The switch is sticky for this client's lifetime so persistent
// failures on the original model are not retried every turn.
func (c *Client) tryModelFallback(err error) bool {
	if !config.AutoFallback() {
		return false
	}
	fallbacks := antigravity.FallbackModels(c.cfg.Model)
	if len(fallbacks) == 0 {
		return false
	}

	if c.originalModel == "" {
		c.originalModel = c.cfg.Model
	}
	if c.triedModels == nil {
		c.triedModels = map[string]bool{}
	}
	c.triedModels[bareModel(c.cfg.Model)] = true

	for _, fb := range fallbacks {
		if c.triedModels[fb] {
			continue
		}
		prefix := "antigravity/"
		if i := strings.Index(c.cfg.Model, "/"); i >= 0 {
			prefix = c.cfg.Model[:i+1]
		}
		old := c.cfg.Model
		c.cfg.Model = prefix + fb
		c.triedModels[fb] = true
		c.deps.Logger.Warn("model failed, falling back", "from", old, "to", c.cfg.Model, "err", err)
		return true
	}
	return false
}

func (c *Client) streamTimeout() time.Duration {
	if c.cfg.StreamTimeout > 0 {
		return c.cfg.StreamTimeout
	}
	return time.Duration(config.Get().Fetch.StreamTimeout * float64(time.Second))
}

func (c *Client) endpoints() []string {
	if c.endpointsOverride != nil {
		return c.endpointsOverride
	}
	return antigravity.Endpoints
}
