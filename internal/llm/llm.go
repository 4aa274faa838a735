// Package llm talks to language models that generate exam questions and
// grade free-text answers.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/examgen/internal/llm/prompts"
	"github.com/pavelanni/examgen/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Provider names a supported model API.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// Client generates questions and grades text answers.
type Client interface {
	GenerateQuestions(ctx context.Context, sourceRef string, count int, cfg model.GenerationConfig) (model.GeneratedQuestions, error)
	GradeTextAnswers(ctx context.Context, items []model.GradingItem) ([]model.GradingVerdict, error)
	Close() error
}

// Config selects and configures a provider.
type Config struct {
	Provider Provider
	BaseURL  string
	APIKey   string
	Model    string
	Variant  prompts.PromptVariant
}

// New returns a client for cfg.Provider.
func New(ctx context.Context, cfg Config) (Client, error) {
	if cfg.Variant == "" {
		cfg.Variant = prompts.PromptStandard
	}
	if !prompts.IsValidVariant(string(cfg.Variant)) {
		return nil, fmt.Errorf("invalid prompt variant %q", cfg.Variant)
	}
	if err := prompts.Load(nil); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Variant), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.Variant)
	}
	return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
}

// OpenAI wraps an OpenAI-compatible API client.
type OpenAI struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
}

// NewOpenAI creates a client for an OpenAI-compatible endpoint. An empty
// baseURL uses the OpenAI default.
func NewOpenAI(baseURL, apiKey, modelName string, variant prompts.PromptVariant) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: variant,
	}
}

// GenerateQuestions asks the model for question templates based on the text
// document at sourceRef. Binary documents such as PDFs need the Gemini provider.
func (c *OpenAI) GenerateQuestions(ctx context.Context, sourceRef string, count int, cfg model.GenerationConfig) (model.GeneratedQuestions, error) {
	doc, err := readDocument(sourceRef)
	if err != nil {
		return model.GeneratedQuestions{}, err
	}
	if !doc.IsText() {
		return model.GeneratedQuestions{}, fmt.Errorf("source document %s has type %s; only text documents are supported by the openai provider", doc.Name, doc.MIMEType)
	}
	prompt, err := prompts.BuildGeneratePrompt(count, cfg, string(doc.Data))
	if err != nil {
		return model.GeneratedQuestions{}, err
	}
	raw, err := c.complete(ctx, prompt, 0.7)
	if err != nil {
		return model.GeneratedQuestions{}, fmt.Errorf("LLM generation call: %w", err)
	}
	return ParseGenerated(raw)
}

// GradeTextAnswers grades a batch of answers in one call.
func (c *OpenAI) GradeTextAnswers(ctx context.Context, items []model.GradingItem) ([]model.GradingVerdict, error) {
	prompt, err := prompts.BuildGradePrompt(c.variant, items)
	if err != nil {
		return nil, err
	}
	raw, err := c.complete(ctx, prompt, 0.1)
	if err != nil {
		return nil, fmt.Errorf("LLM grading call: %w", err)
	}
	return ParseVerdicts(raw)
}

func (c *OpenAI) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "provider", ProviderOpenAI, "raw", raw)
	return raw, nil
}

// Close is a no-op; the HTTP client needs no cleanup.
func (c *OpenAI) Close() error { return nil }
