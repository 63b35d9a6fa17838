package retrieval

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// GeneratorConfig configures the OpenAI-compatible completion backend. Any
// server speaking the chat completions protocol works via BaseURL.
type GeneratorConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
}

// ApplyDefaults sets default values for unset fields.
func (c *GeneratorConfig) ApplyDefaults() {
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
}

// Validate checks required fields.
func (c *GeneratorConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("generation model is required")
	}
	return nil
}

// OpenAIGenerator completes prompts through an OpenAI-compatible endpoint.
type OpenAIGenerator struct {
	llm    *openai.LLM
	config GeneratorConfig
}

// NewOpenAIGenerator creates the completion backend.
func NewOpenAIGenerator(config GeneratorConfig) (*OpenAIGenerator, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []openai.Option{openai.WithModel(config.Model)}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}
	if config.APIKey != "" {
		opts = append(opts, openai.WithToken(config.APIKey))
	} else {
		// Local OpenAI-compatible servers ignore the token but the client
		// requires one.
		opts = append(opts, openai.WithToken("not-needed"))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating completion client: %w", err)
	}
	return &OpenAIGenerator{llm: llm, config: config}, nil
}

// Complete returns the model's text for prompt.
func (g *OpenAIGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
		llms.WithTemperature(g.config.Temperature),
		llms.WithMaxTokens(g.config.MaxTokens),
	)
}

var _ Generator = (*OpenAIGenerator)(nil)
