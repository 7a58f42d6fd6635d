// Package adapter bridges external model providers into the langchaingo
// llms.Model interface the analysis generator consumes.
package adapter

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
)

// ErrEmptyCompletion is returned when the provider sends no choices back.
var ErrEmptyCompletion = errors.New("adapter: empty completion response")

// OpenAIChat adapts an OpenAI-compatible chat completion endpoint to
// llms.Model. Any gateway speaking the OpenAI wire format works, which is how
// non-OpenAI providers are reached.
type OpenAIChat struct {
	client *openai.Client
	model  string
}

var _ llms.Model = (*OpenAIChat)(nil)

// NewOpenAIChat creates an adapter for the given credentials. An empty
// baseURL targets the official OpenAI endpoint.
func NewOpenAIChat(apiKey, baseURL, model string) *OpenAIChat {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIChat{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// GenerateContent implements llms.Model.
func (o *OpenAIChat) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{Model: o.model}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Model == "" {
		opts.Model = o.model
	}

	req := openai.ChatCompletionRequest{
		Model:       opts.Model,
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    roleFor(m.Role),
			Content: flatten(m.Parts),
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	choices := make([]*llms.ContentChoice, len(resp.Choices))
	for i, c := range resp.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: string(c.FinishReason),
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

// Call implements the legacy single-prompt entry point of llms.Model.
func (o *OpenAIChat) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, o, prompt, options...)
}

func roleFor(role llms.ChatMessageType) string {
	switch role {
	case llms.ChatMessageTypeSystem:
		return openai.ChatMessageRoleSystem
	case llms.ChatMessageTypeAI:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

func flatten(parts []llms.ContentPart) string {
	var b strings.Builder
	for _, p := range parts {
		if text, ok := p.(llms.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}
