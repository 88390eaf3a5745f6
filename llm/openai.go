package llm

import (
	"context"
	"encoding/json"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type OpenAIProvider struct {
	client *openai.Client
}

func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{client: &client}
}

func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	params := p.buildParams(req)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}

	var text string
	var toolCalls []ToolCall
	var finishReason string
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		text = choice.Message.Content
		finishReason = choice.FinishReason
		for _, tc := range choice.Message.ToolCalls {
			toolCalls = append(toolCalls, ToolCall{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: json.RawMessage(tc.Function.Arguments),
			})
		}
	}

	usage := Usage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	// Capture cached tokens if available
	if resp.Usage.PromptTokensDetails.CachedTokens > 0 {
		usage.CachedTokens = int(resp.Usage.PromptTokensDetails.CachedTokens)
	}

	return &ChatResponse{
		ID:         resp.ID,
		Text:       text,
		ToolCalls:  toolCalls,
		StopReason: p.convertFinishReason(finishReason),
		Usage:      usage,
	}, nil
}

func (p *OpenAIProvider) ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	params := p.buildParams(req)
	// Enable usage reporting in streaming responses
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)

		var finalUsage Usage

		for stream.Next() {
			chunk := stream.Current()

			// Capture usage from final chunk (when include_usage is enabled)
			if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
				finalUsage.InputTokens = int(chunk.Usage.PromptTokens)
				finalUsage.OutputTokens = int(chunk.Usage.CompletionTokens)
				if chunk.Usage.PromptTokensDetails.CachedTokens > 0 {
					finalUsage.CachedTokens = int(chunk.Usage.PromptTokensDetails.CachedTokens)
				}
			}

			if len(chunk.Choices) > 0 {
				delta := chunk.Choices[0].Delta
				if delta.Content != "" {
					chunks <- StreamChunk{
						Content: delta.Content,
						Done:    false,
					}
				}

				if chunk.Choices[0].FinishReason != "" {
					chunks <- StreamChunk{
						Done:  true,
						Usage: &finalUsage,
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			chunks <- StreamChunk{
				Error: err,
				Done:  true,
			}
		}
	}()

	return chunks, nil
}

func (p *OpenAIProvider) buildParams(req *ChatRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: p.convertMessages(req.Messages),
	}

	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	if len(req.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: req.StopSequences,
		}
	}

	if len(req.Tools) > 0 {
		params.Tools = p.convertTools(req.Tools)
	}

	return params
}

func (p *OpenAIProvider) convertMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	var msgs []openai.ChatCompletionMessageParamUnion

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleUser:
			if m.HasParts() {
				// Tool results travel as dedicated tool messages; any text
				// parts become a plain user message.
				for _, part := range m.Parts {
					if part.Type == ContentTypeToolResult && part.ToolResult != nil {
						content := part.ToolResult.Content
						if part.ToolResult.IsError() {
							content = "Error: " + part.ToolResult.Error
						}
						msgs = append(msgs, openai.ToolMessage(content, part.ToolResult.ToolUseID))
					}
				}
				if text := m.GetTextContent(); text != "" {
					msgs = append(msgs, openai.UserMessage(text))
				}
			} else {
				msgs = append(msgs, openai.UserMessage(m.Content))
			}
		case RoleAssistant:
			msgs = append(msgs, p.buildAssistantMessage(m))
		}
	}

	return msgs
}

func (p *OpenAIProvider) buildAssistantMessage(m Message) openai.ChatCompletionMessageParamUnion {
	calls := m.ToolCalls()
	if len(calls) == 0 {
		return openai.AssistantMessage(m.GetTextContent())
	}

	assistant := openai.ChatCompletionAssistantMessageParam{}
	if text := m.GetTextContent(); text != "" {
		assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(text),
		}
	}
	for _, call := range calls {
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: string(call.Input),
			},
		})
	}

	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func (p *OpenAIProvider) convertTools(defs []ToolDefinition) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		_ = json.Unmarshal(def.InputSchema, &schema)

		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(schema),
			},
		})
	}
	return tools
}

func (p *OpenAIProvider) convertFinishReason(reason string) StopReason {
	switch reason {
	case "stop":
		return StopEndTurn
	case "tool_calls", "function_call":
		return StopToolUse
	case "length":
		return StopMaxTokens
	default:
		return StopOther
	}
}
