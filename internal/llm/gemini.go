package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/pavelanni/examgen/internal/llm/prompts"
	"github.com/pavelanni/examgen/internal/model"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini generates and grades with Google's Gemini API. Source documents
// of any type Gemini accepts, PDFs included, are sent inline.
type Gemini struct {
	client  *genai.Client
	model   string
	variant prompts.PromptVariant
}

// NewGemini creates a Gemini client. Call Close when done.
func NewGemini(ctx context.Context, apiKey, modelName string, variant prompts.PromptVariant) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	return &Gemini{client: client, model: modelName, variant: variant}, nil
}

func (g *Gemini) generativeModel(temperature float32) *genai.GenerativeModel {
	m := g.client.GenerativeModel(g.model)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(temperature)
	return m
}

// GenerateQuestions sends the document at sourceRef with the generation prompt.
func (g *Gemini) GenerateQuestions(ctx context.Context, sourceRef string, count int, cfg model.GenerationConfig) (model.GeneratedQuestions, error) {
	doc, err := readDocument(sourceRef)
	if err != nil {
		return model.GeneratedQuestions{}, err
	}
	var parts []genai.Part
	inline := ""
	if doc.IsText() {
		inline = string(doc.Data)
	} else {
		parts = append(parts, genai.Blob{MIMEType: doc.MIMEType, Data: doc.Data})
	}
	prompt, err := prompts.BuildGeneratePrompt(count, cfg, inline)
	if err != nil {
		return model.GeneratedQuestions{}, err
	}
	parts = append(parts, genai.Text(prompt))

	raw, err := g.generate(ctx, 0.7, parts...)
	if err != nil {
		return model.GeneratedQuestions{}, fmt.Errorf("gemini generation call: %w", err)
	}
	return ParseGenerated(raw)
}

// GradeTextAnswers grades a batch of answers in one call.
func (g *Gemini) GradeTextAnswers(ctx context.Context, items []model.GradingItem) ([]model.GradingVerdict, error) {
	prompt, err := prompts.BuildGradePrompt(g.variant, items)
	if err != nil {
		return nil, err
	}
	raw, err := g.generate(ctx, 0.1, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini grading call: %w", err)
	}
	return ParseVerdicts(raw)
}

func (g *Gemini) generate(ctx context.Context, temperature float32, parts ...genai.Part) (string, error) {
	resp, err := g.generativeModel(temperature).GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini returned no content")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("gemini returned no text content")
	}
	slog.Debug("LLM response", "provider", ProviderGemini, "raw", sb.String())
	return sb.String(), nil
}

// Close releases the underlying connection.
func (g *Gemini) Close() error {
	return g.client.Close()
}
