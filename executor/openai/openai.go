// Package openai provides a task executor backed by the OpenAI Chat
// Completions API. The task description and parameters are rendered into a
// single user message and the content of the first choice becomes the task
// result.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/executor"
)

// Options configure the OpenAI executor. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	SystemPrompt        string
}

// Executor runs tasks through the OpenAI Chat Completions API.
type Executor struct {
	client *openai.Client
	opts   Options
}

// New creates a new OpenAI executor using the official client.
func New(optFns ...func(o *Options)) *Executor {
	client := openai.NewClient()

	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new OpenAI executor from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Executor {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Executor{
		client: client,
		opts:   opts,
	}
}

// Execute implements core.Executor.
func (e *Executor) Execute(ctx context.Context, task *core.Task) (any, error) {
	var messages []openai.ChatCompletionMessageParamUnion

	if e.opts.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(e.opts.SystemPrompt))
	}

	messages = append(messages, openai.UserMessage(executor.Prompt(task)))

	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               e.opts.Model,
		Temperature:         openai.Float(e.opts.Temperature),
		MaxCompletionTokens: openai.Int(e.opts.MaxCompletionTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	return resp.Choices[0].Message.Content, nil
}
