package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := p.buildModel(req)

	chat := model.StartChat()
	chat.History = p.convertHistory(req.Messages)

	lastParts := p.getLastUserMessageParts(req.Messages)

	resp, err := chat.SendMessage(ctx, lastParts...)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	text, toolCalls := p.extractContent(resp)

	// Gemini has no tool_use finish reason; the presence of function
	// calls is the signal.
	stopReason := p.convertFinishReason(resp.Candidates[0].FinishReason)
	if len(toolCalls) > 0 {
		stopReason = StopToolUse
	}

	return &ChatResponse{
		ID:         uuid.New().String(),
		Text:       text,
		ToolCalls:  toolCalls,
		StopReason: stopReason,
		Usage: Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		},
	}, nil
}

func (p *GeminiProvider) ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	model := p.buildModel(req)

	chat := model.StartChat()
	chat.History = p.convertHistory(req.Messages)

	lastParts := p.getLastUserMessageParts(req.Messages)

	iter := chat.SendMessageStream(ctx, lastParts...)

	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)

		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				chunks <- StreamChunk{Done: true}
				break
			}
			if err != nil {
				chunks <- StreamChunk{Error: err, Done: true}
				break
			}

			text, _ := p.extractContent(resp)
			if text != "" {
				chunks <- StreamChunk{
					Content: text,
					Done:    false,
				}
			}
		}
	}()

	return chunks, nil
}

func (p *GeminiProvider) buildModel(req *ChatRequest) *genai.GenerativeModel {
	model := p.client.GenerativeModel(req.Model)

	systemContent := p.extractSystemPrompts(req.Messages)
	if systemContent != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemContent))
	}

	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{{
			FunctionDeclarations: p.convertTools(req.Tools),
		}}
	}

	return model
}

func (p *GeminiProvider) convertTools(defs []ToolDefinition) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  convertGeminiSchema(def.InputSchema),
		})
	}
	return decls
}

// convertGeminiSchema maps a JSON-schema object onto genai's typed Schema.
func convertGeminiSchema(raw json.RawMessage) *genai.Schema {
	var node struct {
		Type        string                     `json:"type"`
		Description string                     `json:"description"`
		Properties  map[string]json.RawMessage `json:"properties"`
		Items       json.RawMessage            `json:"items"`
		Required    []string                   `json:"required"`
	}
	if err := json.Unmarshal(raw, &node); err != nil {
		return &genai.Schema{Type: genai.TypeObject}
	}

	schema := &genai.Schema{Description: node.Description, Required: node.Required}
	switch node.Type {
	case "object":
		schema.Type = genai.TypeObject
		if len(node.Properties) > 0 {
			schema.Properties = make(map[string]*genai.Schema, len(node.Properties))
			for name, prop := range node.Properties {
				schema.Properties[name] = convertGeminiSchema(prop)
			}
		}
	case "array":
		schema.Type = genai.TypeArray
		if node.Items != nil {
			schema.Items = convertGeminiSchema(node.Items)
		}
	case "string":
		schema.Type = genai.TypeString
	case "integer":
		schema.Type = genai.TypeInteger
	case "number":
		schema.Type = genai.TypeNumber
	case "boolean":
		schema.Type = genai.TypeBoolean
	default:
		schema.Type = genai.TypeString
	}
	return schema
}

func (p *GeminiProvider) extractSystemPrompts(messages []Message) string {
	var system string
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		}
	}
	return system
}

func (p *GeminiProvider) convertHistory(messages []Message) []*genai.Content {
	// Track tool names by call id so tool results can be rendered as
	// FunctionResponse parts (Gemini pairs by name, not id).
	callNames := make(map[string]string)

	var history []*genai.Content

	nonSystemMsgs := make([]Message, 0)
	for _, m := range messages {
		if m.Role != RoleSystem {
			nonSystemMsgs = append(nonSystemMsgs, m)
		}
	}

	// Exclude the last user message (it's sent separately)
	if len(nonSystemMsgs) > 0 {
		nonSystemMsgs = nonSystemMsgs[:len(nonSystemMsgs)-1]
	}

	for _, m := range nonSystemMsgs {
		var role string
		switch m.Role {
		case RoleUser:
			role = "user"
		case RoleAssistant:
			role = "model"
		default:
			continue
		}

		history = append(history, &genai.Content{
			Role:  role,
			Parts: p.buildGeminiParts(m, callNames),
		})
	}

	return history
}

// buildGeminiParts converts a Message to Gemini parts
func (p *GeminiProvider) buildGeminiParts(m Message, callNames map[string]string) []genai.Part {
	if !m.HasParts() {
		return []genai.Part{genai.Text(m.Content)}
	}

	var parts []genai.Part
	for _, part := range m.Parts {
		switch part.Type {
		case ContentTypeText:
			parts = append(parts, genai.Text(part.Text))
		case ContentTypeToolUse:
			if part.ToolCall != nil {
				callNames[part.ToolCall.ID] = part.ToolCall.Name
				var args map[string]any
				_ = json.Unmarshal(part.ToolCall.Input, &args)
				parts = append(parts, genai.FunctionCall{
					Name: part.ToolCall.Name,
					Args: args,
				})
			}
		case ContentTypeToolResult:
			if part.ToolResult != nil {
				response := map[string]any{"content": part.ToolResult.Content}
				if part.ToolResult.IsError() {
					response = map[string]any{"error": part.ToolResult.Error}
				}
				parts = append(parts, genai.FunctionResponse{
					Name:     callNames[part.ToolResult.ToolUseID],
					Response: response,
				})
			}
		}
	}

	return parts
}

// getLastUserMessageParts returns the last user message as Gemini parts
func (p *GeminiProvider) getLastUserMessageParts(messages []Message) []genai.Part {
	callNames := make(map[string]string)
	for _, m := range messages {
		for _, call := range m.ToolCalls() {
			callNames[call.ID] = call.Name
		}
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return p.buildGeminiParts(messages[i], callNames)
		}
	}
	return []genai.Part{genai.Text("")}
}

func (p *GeminiProvider) extractContent(resp *genai.GenerateContentResponse) (string, []ToolCall) {
	var text string
	var toolCalls []ToolCall
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				text += string(v)
			case genai.FunctionCall:
				input, _ := json.Marshal(v.Args)
				toolCalls = append(toolCalls, ToolCall{
					ID:    uuid.New().String(),
					Name:  v.Name,
					Input: input,
				})
			}
		}
	}
	return text, toolCalls
}

func (p *GeminiProvider) convertFinishReason(reason genai.FinishReason) StopReason {
	switch reason {
	case genai.FinishReasonStop:
		return StopEndTurn
	case genai.FinishReasonMaxTokens:
		return StopMaxTokens
	default:
		return StopOther
	}
}
