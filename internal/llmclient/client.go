// Package llmclient defines the consumed LLM.generate capability (spec.md
// §6.1) and a default implementation backed by
// github.com/sashabaranov/go-openai, modeled on
// pkg/executor/builtin/llm.go's LLMProvider/LLMExecutor wrapping of a
// chat-completions call.
package llmclient

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smilemakc/mbflow-inference/internal/domain"
)

// Client is the capability every agent's generate(role, prompt, temperature)
// call is built on.
type Client interface {
	Generate(ctx context.Context, role, prompt string, temperature float64) (string, error)
}

// OpenAIClient is the default Client implementation.
type OpenAIClient struct {
	api   *openai.Client
	model string
}

// NewOpenAIClient builds a Client around the given API key and model.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		api:   openai.NewClient(apiKey),
		model: model,
	}
}

// Generate issues a single chat-completion call, using role as the system
// message the way pkg/executor/builtin/llm.go threads an Instruction field
// through to the provider call.
func (c *OpenAIClient) Generate(ctx context.Context, role, prompt string, temperature float64) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: role},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrLLMGenerateFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", domain.ErrLLMGenerateFailed)
	}
	return resp.Choices[0].Message.Content, nil
}
