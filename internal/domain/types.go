package domain

import "context"

// Caller is the per-session surface a tool handler sees. Notify enqueues a
// server notification into the calling session's own queue; it is the only
// sanctioned way for a handler to push an asynchronous event. Delivery is
// decoupled from the call: the stream dispatcher drains the queue whenever a
// push connection is attached.
type Caller interface {
	// SessionID returns the opaque identifier of the calling session.
	SessionID() string

	// Notify enqueues a server notification for the calling session.
	Notify(method string, params map[string]any)
}

// ToolHandler executes a single tool call. Returning a domain error with
// CodeInvalidParams maps to an invalid-params response; any other error maps
// to an internal error carrying the error text as detail.
type ToolHandler func(ctx context.Context, args map[string]any, caller Caller) (any, error)

// Tool describes one entry in the method registry: a name, a JSON schema for
// its arguments, and an opaque executor.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	Handler     ToolHandler    `json:"-"`
}

// TextContent is a single text block in a tool result.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the MCP-shaped payload returned by tools/call.
type ToolResult struct {
	Content []TextContent `json:"content"`
	IsError bool          `json:"isError"`
}

// TextResult wraps a single text block into a successful tool result.
func TextResult(text string) ToolResult {
	return ToolResult{Content: []TextContent{{Type: "text", Text: text}}}
}

// Resource describes a resource clients can read.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
}

// ResourceContents is the payload returned by resources/read.
type ResourceContents struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

// ResourceProvider exposes readable resources to the request processor.
type ResourceProvider interface {
	ListResources(ctx context.Context) []Resource
	ReadResource(ctx context.Context, uri string) (ResourceContents, error)
}

// PromptArgument describes one argument of a prompt template.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// Prompt describes a prompt template clients can render.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptMessage is one rendered message of a prompt.
type PromptMessage struct {
	Role    string      `json:"role"`
	Content TextContent `json:"content"`
}

// PromptResult is the payload returned by prompts/get.
type PromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// PromptProvider exposes prompt templates to the request processor.
type PromptProvider interface {
	ListPrompts(ctx context.Context) []Prompt
	GetPrompt(ctx context.Context, name string, args map[string]any) (PromptResult, error)
}
