// Package llm talks to an OpenAI-compatible chat endpoint (LM Studio,
// llama.cpp server, or the hosted API). The core treats it as a plain
// function with a deadline; transport details stay in here.
package llm

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/pkg/errors"
)

// Message is one chat message in provider-neutral form.
type Message struct {
	Role    string
	Content string
}

// Options shape a single completion call.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client is the stateless request/response surface the turn coordinator
// consumes. Implementations must honor ctx cancellation.
type Client interface {
	Complete(ctx context.Context, msgs []Message, opts Options) (string, error)
}

// ErrEmptyCompletion is returned when the endpoint answers without content.
var ErrEmptyCompletion = errors.New("llm: empty completion")

type OpenAIClient struct {
	api *openai.Client
}

var _ Client = &OpenAIClient{}

func NewOpenAIClient(baseURL, apiKey string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIClient{api: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAIClient) Complete(ctx context.Context, msgs []Message, opts Options) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       opts.Model,
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
