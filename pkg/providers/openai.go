package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

func init() {
	RegisterFactory(ProviderOpenAI, newOpenAIProvider)
	// OpenRouter speaks the same wire protocol on a different base URL.
	RegisterFactory(ProviderOpenRouter, newOpenRouterProvider)
}

type openAIProvider struct {
	client       *goopenai.Client
	defaultModel string
	name         string
}

func newOpenAIProvider(settings Settings) (LLMProvider, error) {
	return newOpenAICompatible(ProviderOpenAI, settings, "")
}

func newOpenRouterProvider(settings Settings) (LLMProvider, error) {
	return newOpenAICompatible(ProviderOpenRouter, settings, "https://openrouter.ai/api/v1")
}

func newOpenAICompatible(name string, settings Settings, defaultBase string) (LLMProvider, error) {
	if strings.TrimSpace(settings.APIKey) == "" {
		return nil, fmt.Errorf("%s: api key is required", name)
	}
	cfg := goopenai.DefaultConfig(settings.APIKey)
	base := strings.TrimSpace(settings.BaseURL)
	if base == "" {
		base = defaultBase
	}
	if base != "" {
		cfg.BaseURL = strings.TrimRight(base, "/")
	}
	model := strings.TrimSpace(settings.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	return &openAIProvider{
		client:       goopenai.NewClientWithConfig(cfg),
		defaultModel: model,
		name:         name,
	}, nil
}

func (p *openAIProvider) GetDefaultModel() string { return p.defaultModel }

func (p *openAIProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = p.defaultModel
	}

	req := goopenai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if maxTokens, ok := optionAsInt(options, "max_tokens"); ok {
		req.MaxTokens = maxTokens
	}
	if temperature, ok := optionAsFloat(options, "temperature"); ok {
		req.Temperature = float32(temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s chat: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return &LLMResponse{FinishReason: "stop"}, nil
	}

	choice := resp.Choices[0]
	out := &LLMResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: &UsageInfo{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Type:      string(tc.Type),
			Name:      tc.Function.Name,
			Arguments: parseToolArguments(tc.Function.Arguments),
		})
	}
	return out, nil
}

func toOpenAIMessages(messages []Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := goopenai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			msg.ToolCalls = append(msg.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

// parseToolArguments decodes a JSON arguments string. Malformed args
// survive under "raw" so the tool layer can report them instead of
// dropping the call.
func parseToolArguments(raw string) map[string]interface{} {
	args := map[string]interface{}{}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return args
	}
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return map[string]interface{}{"raw": raw}
	}
	return args
}
