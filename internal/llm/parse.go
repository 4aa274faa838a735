package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/examgen/internal/model"
)

// rawVariation accepts the field spellings models are known to produce.
type rawVariation struct {
	Text           string   `json:"text"`
	Question       string   `json:"question"`
	Prompt         string   `json:"prompt"`
	QuestionText   string   `json:"questionText"`
	Options        []string `json:"options"`
	CorrectAnswers []string `json:"correctAnswers"`
	CorrectSnake   []string `json:"correct_answers"`
}

type rawTemplate struct {
	Type       string         `json:"type"`
	Variations []rawVariation `json:"variations"`
}

type rawGenerated struct {
	Questions      []rawTemplate `json:"questions"`
	BonusQuestions []rawTemplate `json:"bonusQuestions"`
	BonusSnake     []rawTemplate `json:"bonus_questions"`
}

// ParseGenerated decodes a generation response. Text found under
// "question", "prompt" or "questionText" is used when "text" is empty.
func ParseGenerated(raw string) (model.GeneratedQuestions, error) {
	body := extractJSON(raw, '{', '}')
	var g rawGenerated
	if err := json.Unmarshal([]byte(body), &g); err != nil {
		return model.GeneratedQuestions{}, fmt.Errorf("parse generated questions: %w", err)
	}
	bonus := g.BonusQuestions
	if len(bonus) == 0 {
		bonus = g.BonusSnake
	}
	return model.GeneratedQuestions{
		Questions:      convertTemplates(g.Questions),
		BonusQuestions: convertTemplates(bonus),
	}, nil
}

func convertTemplates(in []rawTemplate) []model.QuestionTemplate {
	out := make([]model.QuestionTemplate, 0, len(in))
	for _, t := range in {
		qt := model.QuestionTemplate{Type: t.Type}
		for _, v := range t.Variations {
			correct := v.CorrectAnswers
			if len(correct) == 0 {
				correct = v.CorrectSnake
			}
			qt.Variations = append(qt.Variations, model.Variation{
				Text:           firstNonEmpty(v.Text, v.Question, v.Prompt, v.QuestionText),
				Options:        v.Options,
				CorrectAnswers: correct,
			})
		}
		out = append(out, qt)
	}
	return out
}

type rawVerdict struct {
	ID           string `json:"id"`
	ValidationID string `json:"validationId"`
	IsCorrect    *bool  `json:"isCorrect"`
	IsCorrectAlt *bool  `json:"is_correct"`
	Feedback     string `json:"feedback"`
}

// ParseVerdicts decodes a grading response: either a bare array of verdicts
// or an object holding one under "results". Malformed entries are dropped.
// It fails only when nothing usable can be read.
func ParseVerdicts(raw string) ([]model.GradingVerdict, error) {
	entries, err := verdictEntries(raw)
	if err != nil {
		return nil, err
	}
	out := make([]model.GradingVerdict, 0, len(entries))
	for _, e := range entries {
		var v rawVerdict
		if err := json.Unmarshal(e, &v); err != nil {
			continue
		}
		id := firstNonEmpty(v.ID, v.ValidationID)
		correct := v.IsCorrect
		if correct == nil {
			correct = v.IsCorrectAlt
		}
		if id == "" || correct == nil {
			continue
		}
		out = append(out, model.GradingVerdict{ID: id, IsCorrect: *correct, Feedback: strings.TrimSpace(v.Feedback)})
	}
	if len(out) == 0 && len(entries) > 0 {
		return nil, errors.New("parse verdicts: no usable entries")
	}
	return out, nil
}

func verdictEntries(raw string) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(stripFences(raw))
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Results  []json.RawMessage `json:"results"`
			Verdicts []json.RawMessage `json:"verdicts"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapped); err == nil {
			if wrapped.Results != nil {
				return wrapped.Results, nil
			}
			if wrapped.Verdicts != nil {
				return wrapped.Verdicts, nil
			}
		}
	}
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(extractJSON(raw, '[', ']')), &entries); err != nil {
		return nil, fmt.Errorf("parse verdicts: %w", err)
	}
	return entries, nil
}

// extractJSON strips Markdown fences and returns the text between the first
// open and the last close delimiter, or the trimmed input when there is none.
func extractJSON(raw string, open, close byte) string {
	s := strings.TrimSpace(stripFences(raw))
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
