// Package chat defines the provider-neutral conversation types shared
// by the dispatcher and the provider adapters. The wire format is the
// OpenAI chat shape; adapters translate from here to their own APIs.
package chat

import (
	"encoding/json"
	"strings"
)

// Roles used in conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of conversation history.
type Message struct {
	Role       string     `json:"role"`
	Content    Content    `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Content is either a plain string or a list of typed parts. It
// marshals to whichever form it holds, matching the OpenAI wire format.
type Content struct {
	text  string
	parts []Part
}

// Text returns string content.
func Text(s string) Content { return Content{text: s} }

// Parts returns multi-part content.
func Parts(parts ...Part) Content { return Content{parts: parts} }

// IsParts reports whether the content is the multi-part form.
func (c Content) IsParts() bool { return c.parts != nil }

// PartList returns the parts, or nil for string content.
func (c Content) PartList() []Part { return c.parts }

// String flattens the content to plain text. Image parts are skipped.
func (c Content) String() string {
	if c.parts == nil {
		return c.text
	}
	var b strings.Builder
	for _, p := range c.parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// IsEmpty reports whether there is no content at all.
func (c Content) IsEmpty() bool { return c.text == "" && len(c.parts) == 0 }

func (c Content) MarshalJSON() ([]byte, error) {
	if c.parts != nil {
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Content{text: s}
		return nil
	}
	var parts []Part
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	*c = Content{parts: parts}
	return nil
}

// Part types.
const (
	PartText     = "text"
	PartImageURL = "image_url"
)

// Part is one element of multi-part message content.
type Part struct {
	Type         string        `json:"type"`
	Text         string        `json:"text,omitempty"`
	ImageURL     *ImageURL     `json:"image_url,omitempty"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// ImageURL carries an image reference or data URI.
type ImageURL struct {
	URL string `json:"url"`
}

// CacheControl marks a content part as a prompt-cache breakpoint.
type CacheControl struct {
	Type string `json:"type"`
}

// ToolCall is a structured tool call emitted by an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall is the function half of a tool call. Arguments is raw
// JSON text as the providers emit it.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is an OpenAI-style tool definition offered to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes one callable tool.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}
