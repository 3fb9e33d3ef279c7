// Package anthropic provides a task executor backed by the Anthropic
// Messages API. The task description and parameters are rendered into a
// single user message and the first text block of the reply becomes the
// task result.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/executor"
)

// Options configures the Anthropic executor (model id, temperature, max
// tokens, API key, system prompt). Extend via functional options to
// preserve stability.
type Options struct {
	Model        anthropic.Model
	Temperature  float64
	MaxTokens    int64
	APIKey       string
	SystemPrompt string
}

// Executor runs tasks through the Anthropic Messages API.
type Executor struct {
	client *anthropic.Client
	opts   Options
}

// New creates a new Anthropic executor using the official client.
func New(optFns ...func(o *Options)) *Executor {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Executor{
		client: &client,
		opts:   opts,
	}
}

// NewFromClient creates a new Anthropic executor from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Executor {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Executor{
		client: client,
		opts:   opts,
	}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Execute implements core.Executor.
func (e *Executor) Execute(ctx context.Context, task *core.Task) (any, error) {
	params := anthropic.MessageNewParams{
		Model:       e.opts.Model,
		MaxTokens:   e.opts.MaxTokens,
		Temperature: anthropic.Float(e.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(executor.Prompt(task))),
		},
	}

	if e.opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: e.opts.SystemPrompt}}
	}

	resp, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			if text := block.AsText().Text; text != "" {
				return text, nil
			}
		}
	}

	return nil, fmt.Errorf("no text content returned")
}
