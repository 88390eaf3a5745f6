package llm

import (
	"context"
	"encoding/json"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// StopReason is the normalized terminal reason of one model round-trip.
// Provider adapters map their vendor-specific finish reasons onto these
// values so downstream code never inspects raw SDK fields.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopOther     StopReason = "other"
)

// ContentType identifies the type of content in a ContentBlock
type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
)

// ToolCall is a single tool invocation requested by the model.
// Input is kept as raw JSON so the executor can hand it to the tool
// unchanged; it may be an object or a JSON-encoded string containing one.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of executing one ToolCall. Content and Error
// are mutually exclusive: a result either succeeded with Content or failed
// with a human-readable Error.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

// IsError reports whether this result represents a failed invocation.
func (r ToolResult) IsError() bool {
	return r.Error != ""
}

// ContentBlock represents a single piece of message content
type ContentBlock struct {
	Type       ContentType
	Text       string      // Used when Type == ContentTypeText
	ToolCall   *ToolCall   // Used when Type == ContentTypeToolUse
	ToolResult *ToolResult // Used when Type == ContentTypeToolResult
}

// Message represents a conversation message. Assistant messages may carry
// tool_use blocks alongside text; user messages may carry tool_result blocks.
type Message struct {
	Role    Role
	Content string         // Simple text content
	Parts   []ContentBlock // Structured content blocks (take precedence over Content if non-empty)
}

// HasParts returns true if the message has structured content blocks
func (m Message) HasParts() bool {
	return len(m.Parts) > 0
}

// GetTextContent returns the text content of the message.
// If Parts is set, concatenates all text parts; otherwise returns Content.
func (m Message) GetTextContent() string {
	if !m.HasParts() {
		return m.Content
	}
	var text string
	for _, part := range m.Parts {
		if part.Type == ContentTypeText {
			text += part.Text
		}
	}
	return text
}

// ToolCalls returns the tool_use blocks of the message, if any.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, part := range m.Parts {
		if part.Type == ContentTypeToolUse && part.ToolCall != nil {
			calls = append(calls, *part.ToolCall)
		}
	}
	return calls
}

// NewTextMessage creates a simple text-only message
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: text}
}

// NewToolUseMessage creates an assistant message recording the model's text
// and its requested tool calls, in the order the model emitted them.
func NewToolUseMessage(text string, calls []ToolCall) Message {
	parts := make([]ContentBlock, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, ContentBlock{Type: ContentTypeText, Text: text})
	}
	for i := range calls {
		call := calls[i]
		parts = append(parts, ContentBlock{Type: ContentTypeToolUse, ToolCall: &call})
	}
	return Message{Role: RoleAssistant, Parts: parts}
}

// NewToolResultMessage creates a user message carrying one tool_result block
// per executed call. Results are ordered to match the originating calls, but
// pairing is by ToolUseID, not position.
func NewToolResultMessage(results []ToolResult) Message {
	parts := make([]ContentBlock, 0, len(results))
	for i := range results {
		res := results[i]
		parts = append(parts, ContentBlock{Type: ContentTypeToolResult, ToolResult: &res})
	}
	return Message{Role: RoleUser, Parts: parts}
}

// ToolDefinition is the provider-agnostic declaration of one callable tool,
// included with a chat request so the model can emit tool_use blocks.
// InputSchema holds a JSON-schema object ({"type":"object","properties":...}).
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type StreamChunk struct {
	Content string
	Done    bool
	Error   error
	Usage   *Usage // Only populated on final chunk (Done=true)
}

type ChatRequest struct {
	Model         string
	Messages      []Message
	Tools         []ToolDefinition
	MaxTokens     int
	Temperature   float64
	StopSequences []string
}

// ChatResponse is the single normalized response shape. Provider adapters
// flatten whatever block structure their SDK returns into Text plus
// ToolCalls exactly once; nothing downstream branches on raw SDK shapes.
type ChatResponse struct {
	ID         string
	Text       string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      Usage
}

// HasToolCalls reports whether the model requested any tool invocations.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

type Usage struct {
	InputTokens  int
	OutputTokens int

	// Cache-related fields (provider-specific, may be zero if not supported)
	CacheCreationInputTokens int // Anthropic: tokens used to create new cache entry
	CacheReadInputTokens     int // Anthropic: tokens read from existing cache
	CachedTokens             int // OpenAI: tokens served from cache
}

type Provider interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
}
