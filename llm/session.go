package llm

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Session owns the append-only transcript of one model-driven conversation.
// A session is exclusively owned by its caller; no two concurrent loops
// share a transcript.
type Session struct {
	id            string
	provider      Provider
	model         string
	systemPrompts []string
	tools         []ToolDefinition
	maxTokens     int
	messages      []Message
}

func NewSession(provider Provider, model string, systemPrompts ...string) *Session {
	return &Session{
		id:            uuid.New().String(),
		provider:      provider,
		model:         model,
		systemPrompts: systemPrompts,
		messages:      []Message{},
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// SetTools sets the tool definitions advertised on every request.
func (s *Session) SetTools(tools []ToolDefinition) {
	s.tools = tools
}

// SetMaxTokens caps the output tokens of every request.
func (s *Session) SetMaxTokens(n int) {
	s.maxTokens = n
}

// SnapshotMessages returns the current message history for inspection.
// The returned slice shares the underlying array; do not modify.
func (s *Session) SnapshotMessages() []Message {
	return s.messages
}

// Append adds a message to the transcript without issuing a request.
// Used by callers that record tool rounds themselves.
func (s *Session) Append(msg Message) {
	s.messages = append(s.messages, msg)
}

// Clone creates a copy of this session with the same state. The clone can
// be used independently without affecting the original session. The clone
// shares the same provider instance but has its own message history copy.
func (s *Session) Clone() *Session {
	systemPromptsCopy := make([]string, len(s.systemPrompts))
	copy(systemPromptsCopy, s.systemPrompts)

	messagesCopy := make([]Message, len(s.messages))
	for i, msg := range s.messages {
		messagesCopy[i] = Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
		if len(msg.Parts) > 0 {
			messagesCopy[i].Parts = make([]ContentBlock, len(msg.Parts))
			for j, part := range msg.Parts {
				messagesCopy[i].Parts[j] = ContentBlock{
					Type: part.Type,
					Text: part.Text,
				}
				if part.ToolCall != nil {
					call := *part.ToolCall
					messagesCopy[i].Parts[j].ToolCall = &call
				}
				if part.ToolResult != nil {
					res := *part.ToolResult
					messagesCopy[i].Parts[j].ToolResult = &res
				}
			}
		}
	}

	toolsCopy := make([]ToolDefinition, len(s.tools))
	copy(toolsCopy, s.tools)

	return &Session{
		id:            uuid.New().String(),
		provider:      s.provider, // Shared - providers are thread-safe
		model:         s.model,
		systemPrompts: systemPromptsCopy,
		tools:         toolsCopy,
		maxTokens:     s.maxTokens,
		messages:      messagesCopy,
	}
}

// buildMessages builds the full request message list: system prompts first,
// then the transcript so far.
func (s *Session) buildMessages() []Message {
	var msgs []Message

	for _, sp := range s.systemPrompts {
		msgs = append(msgs, Message{Role: RoleSystem, Content: sp})
	}

	msgs = append(msgs, s.messages...)

	return msgs
}

// Send appends the user message and issues one round-trip. The assistant
// response, including any tool_use blocks, is appended to the transcript
// before returning.
func (s *Session) Send(ctx context.Context, userMessage string) (*ChatResponse, error) {
	s.messages = append(s.messages, NewTextMessage(RoleUser, userMessage))

	return s.Resume(ctx)
}

// Resume issues one round-trip over the transcript as it stands, without
// adding a user message first. Used after tool results have been appended.
func (s *Session) Resume(ctx context.Context) (*ChatResponse, error) {
	req := &ChatRequest{
		Model:     s.model,
		Messages:  s.buildMessages(),
		Tools:     s.tools,
		MaxTokens: s.maxTokens,
	}

	resp, err := s.provider.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.HasToolCalls() {
		s.messages = append(s.messages, NewToolUseMessage(resp.Text, resp.ToolCalls))
	} else {
		s.messages = append(s.messages, NewTextMessage(RoleAssistant, resp.Text))
	}

	return resp, nil
}

// AppendToolResults records the results of one executed tool batch as a
// single user message, preserving call order.
func (s *Session) AppendToolResults(results []ToolResult) {
	s.messages = append(s.messages, NewToolResultMessage(results))
}

// SendStream issues one streaming round-trip with the user message appended.
// Tool use is not streamed; this path is for text-only interactions such as
// synthesis.
func (s *Session) SendStream(ctx context.Context, userMessage string, onChunk func(StreamChunk)) (*ChatResponse, error) {
	req := &ChatRequest{
		Model:     s.model,
		Messages:  append(s.buildMessages(), NewTextMessage(RoleUser, userMessage)),
		MaxTokens: s.maxTokens,
	}

	stream, err := s.provider.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}

	var contentBuilder strings.Builder
	var lastChunk StreamChunk

	for chunk := range stream {
		if chunk.Error != nil {
			return nil, chunk.Error
		}

		contentBuilder.WriteString(chunk.Content)

		if onChunk != nil {
			onChunk(chunk)
		}

		lastChunk = chunk
	}

	content := contentBuilder.String()

	resp := &ChatResponse{
		ID:         uuid.New().String(),
		Text:       content,
		StopReason: StopEndTurn,
	}

	// Capture usage from the final chunk if provider included it
	if lastChunk.Usage != nil {
		resp.Usage = *lastChunk.Usage
	}

	s.messages = append(s.messages, NewTextMessage(RoleUser, userMessage))
	s.messages = append(s.messages, NewTextMessage(RoleAssistant, content))

	return resp, nil
}
