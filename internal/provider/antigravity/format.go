package antigravity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/esprit-sec/esprit/internal/chat"
)

// Envelope is the Cloud Code request wrapper.
type Envelope struct {
	Project     string   `json:"project"`
	Model       string   `json:"model"`
	Request     *Request `json:"request"`
	RequestType string   `json:"requestType"`
	UserAgent   string   `json:"userAgent"`
	RequestID   string   `json:"requestId"`
}

// Request is the inner GenAI generate request.
type Request struct {
	Contents          []GenContent   `json:"contents"`
	SystemInstruction *GenContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  map[string]any `json:"generationConfig,omitempty"`
	Tools             []GenTool      `json:"tools,omitempty"`
	ToolConfig        map[string]any `json:"toolConfig,omitempty"`
	SessionID         string         `json:"sessionId,omitempty"`
}

// GenContent is one conversation turn in GenAI form.
type GenContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []GenPart `json:"parts"`
}

// GenPart is a single content part.
type GenPart struct {
	Text             string               `json:"text,omitempty"`
	Thought          bool                 `json:"thought,omitempty"`
	InlineData       *InlineData          `json:"inlineData,omitempty"`
	FileData         *FileData            `json:"fileData,omitempty"`
	FunctionCall     *GenFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *GenFunctionResponse `json:"functionResponse,omitempty"`
}

// InlineData carries base64 image bytes.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// FileData references an external image.
type FileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

// GenFunctionCall is a structured tool call.
type GenFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	ID   string         `json:"id,omitempty"`
}

// GenFunctionResponse is a tool result.
type GenFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
	ID       string         `json:"id,omitempty"`
}

// GenTool wraps function declarations.
type GenTool struct {
	FunctionDeclarations []GenFunctionDecl `json:"functionDeclarations"`
}

// GenFunctionDecl is one declared tool.
type GenFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// RequestOptions tune the generate request.
type RequestOptions struct {
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	Tools       []chat.Tool
}

// claudeThinkingBudget and geminiThinkingBudget are the reasoning-token
// allowances for thinking models.
const (
	claudeThinkingBudget = 32768
	geminiThinkingBudget = 16384
)

// BuildRequest assembles the full Cloud Code envelope for a
// conversation.
func BuildRequest(messages []chat.Message, model, projectID string, opts RequestOptions) *Envelope {
	systemInstruction, contents := convertMessages(messages)

	genConfig := map[string]any{}
	if opts.MaxTokens > 0 {
		genConfig["maxOutputTokens"] = opts.MaxTokens
	}
	if opts.Temperature != nil {
		genConfig["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		genConfig["topP"] = *opts.TopP
	}

	isThinking := strings.Contains(model, "thinking")
	isClaude := strings.Contains(model, "claude")
	if isThinking {
		if isClaude {
			// Cloud Code wraps Anthropic's native API, which takes
			// snake_case thinking fields.
			genConfig["thinkingConfig"] = map[string]any{
				"include_thoughts": true,
				"thinking_budget":  claudeThinkingBudget,
			}
			if current, _ := genConfig["maxOutputTokens"].(int); current <= claudeThinkingBudget {
				genConfig["maxOutputTokens"] = claudeThinkingBudget + 16384
			}
		} else {
			genConfig["thinkingConfig"] = map[string]any{
				"includeThoughts": true,
				"thinkingBudget":  geminiThinkingBudget,
			}
		}
	}

	req := &Request{Contents: contents, SystemInstruction: systemInstruction}
	if len(genConfig) > 0 {
		req.GenerationConfig = genConfig
	}

	if tools := convertTools(opts.Tools); len(tools) > 0 {
		req.Tools = tools
		if isClaude {
			// Claude needs strict parameter checking
			req.ToolConfig = map[string]any{
				"functionCallingConfig": map[string]any{"mode": "VALIDATED"},
			}
		}
	}

	// Hash of the first user message keeps the prompt cache warm across
	// requests in the same conversation.
	if text := firstUserText(messages); text != "" {
		sum := sha256.Sum256([]byte(text))
		req.SessionID = hex.EncodeToString(sum[:])[:32]
	}

	return &Envelope{
		Project:     projectID,
		Model:       model,
		Request:     req,
		RequestType: "agent",
		UserAgent:   "antigravity",
		RequestID:   "agent-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
	}
}

func firstUserText(messages []chat.Message) string {
	for _, msg := range messages {
		if msg.Role != chat.RoleUser {
			continue
		}
		if msg.Content.IsParts() {
			for _, p := range msg.Content.PartList() {
				if p.Type == chat.PartText {
					return p.Text
				}
			}
			return ""
		}
		return msg.Content.String()
	}
	return ""
}

func convertPart(p chat.Part) GenPart {
	switch p.Type {
	case chat.PartImageURL:
		if p.ImageURL == nil {
			return GenPart{Text: ""}
		}
		url := p.ImageURL.URL
		if strings.HasPrefix(url, "data:") {
			// data:image/png;base64,xxxx
			header, data, found := strings.Cut(url, ",")
			mime := strings.TrimPrefix(strings.SplitN(header, ";", 2)[0], "data:")
			if found && mime != "" {
				return GenPart{InlineData: &InlineData{MimeType: mime, Data: data}}
			}
		}
		return GenPart{FileData: &FileData{MimeType: "image/jpeg", FileURI: url}}
	default:
		return GenPart{Text: p.Text}
	}
}

func convertToolCall(tc chat.ToolCall) GenPart {
	args := map[string]any{}
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		args = map[string]any{"raw": tc.Function.Arguments}
	}
	return GenPart{FunctionCall: &GenFunctionCall{
		Name: tc.Function.Name,
		Args: args,
		ID:   tc.ID,
	}}
}

func convertMessages(messages []chat.Message) (*GenContent, []GenContent) {
	var systemParts []GenPart
	var contents []GenContent
	// tool_call_id to function name, for functionResponse resolution
	callNames := map[string]string{}

	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			if msg.Content.IsParts() {
				for _, p := range msg.Content.PartList() {
					systemParts = append(systemParts, convertPart(p))
				}
			} else if text := msg.Content.String(); text != "" {
				systemParts = append(systemParts, GenPart{Text: text})
			}

		case chat.RoleTool:
			name := callNames[msg.ToolCallID]
			if name == "" {
				name = msg.ToolCallID
			}
			raw := msg.Content.String()
			response := map[string]any{}
			if err := json.Unmarshal([]byte(raw), &response); err != nil || response == nil {
				response = map[string]any{"result": raw}
			}
			contents = append(contents, GenContent{
				Role: "user",
				Parts: []GenPart{{FunctionResponse: &GenFunctionResponse{
					Name:     name,
					Response: response,
					ID:       msg.ToolCallID,
				}}},
			})

		default:
			role := "user"
			if msg.Role == chat.RoleAssistant {
				role = "model"
			}
			var parts []GenPart
			if msg.Content.IsParts() {
				for _, p := range msg.Content.PartList() {
					parts = append(parts, convertPart(p))
				}
			} else if text := msg.Content.String(); text != "" {
				parts = append(parts, GenPart{Text: text})
			}
			for _, tc := range msg.ToolCalls {
				if tc.ID != "" && tc.Function.Name != "" {
					callNames[tc.ID] = tc.Function.Name
				}
				parts = append(parts, convertToolCall(tc))
			}
			if len(parts) > 0 {
				contents = append(contents, GenContent{Role: role, Parts: parts})
			}
		}
	}

	var systemInstruction *GenContent
	if len(systemParts) > 0 {
		systemInstruction = &GenContent{Role: "user", Parts: systemParts}
	}
	return systemInstruction, contents
}

func convertTools(tools []chat.Tool) []GenTool {
	var decls []GenFunctionDecl
	for _, tool := range tools {
		if tool.Type != "function" {
			continue
		}
		decl := GenFunctionDecl{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
		}
		if tool.Function.Parameters != nil {
			decl.Parameters = SanitizeSchema(tool.Function.Parameters)
		}
		decls = append(decls, decl)
	}
	if len(decls) == 0 {
		return nil
	}
	return []GenTool{{FunctionDeclarations: decls}}
}
