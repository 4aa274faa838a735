package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/examgen/internal/model"
)

//go:embed templates/*.txt
var builtin embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
	documentRegex           = regexp.MustCompile(`(?i)</?\s*document\b[^>]*>`)
)

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict only accepts complete and accurate answers.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient accepts answers that get the core idea right.
	PromptLenient PromptVariant = "lenient"
)

// VariationsPerQuestion is how many variations the generator is asked for.
const VariationsPerQuestion = 3

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce       sync.Once
	loadErr        error
	generateTmpl   *template.Template
	gradeTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// TypeCount is one line of a requested type distribution.
type TypeCount struct {
	Type  string
	Count int
}

// BonusData describes the requested bonus section.
type BonusData struct {
	Count      int
	Difficulty string
	Source     model.BonusSource
}

// GenerateData holds template data for the generation prompt.
type GenerateData struct {
	Count        int
	Difficulty   string
	Distribution []TypeCount
	Bonus        *BonusData
	Variations   int
	Document     string
}

// GradeItem is one answer inside a grading prompt.
type GradeItem struct {
	ID        string
	Question  string
	Guideline string
	Answer    string
}

// GradeData holds template data for grading prompts.
type GradeData struct {
	Items []GradeItem
}

// Load parses the prompt templates. A nil fsys uses the built-in templates.
// Templates are loaded once; later calls return the first result.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		if fsys == nil {
			fsys = builtin
		}
		t, err := parseFile(fsys, "templates/generate.txt")
		if err != nil {
			loadErr = err
			return
		}
		generateTmpl = t

		gradeTemplates = make(map[PromptVariant]*template.Template)
		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			t, err := parseFile(fsys, "templates/grade_"+string(v)+".txt")
			if err != nil {
				loadErr = err
				return
			}
			gradeTemplates[v] = t
		}
	})
	return loadErr
}

func parseFile(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.New("failed to read prompt file " + name + ": " + err.Error())
	}
	t, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, errors.New("failed to parse prompt template " + name + ": " + err.Error())
	}
	return t, nil
}

// generatorTypeName is the type name the generation prompt uses.
func generatorTypeName(t model.QuestionType) string {
	switch t {
	case model.QuestionSingle:
		return "Radio"
	case model.QuestionMulti:
		return "MultiChoice"
	case model.QuestionText:
		return "Text"
	}
	return string(t)
}

// BuildGeneratePrompt renders the question generation prompt. document is
// the source text to embed, or empty when the document is attached separately.
func BuildGeneratePrompt(count int, cfg model.GenerationConfig, document string) (string, error) {
	if generateTmpl == nil {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("templates not initialized: call Load first")
	}

	data := GenerateData{
		Count:      count,
		Difficulty: cfg.Difficulty,
		Variations: VariationsPerQuestion,
		Document:   documentRegex.ReplaceAllString(document, ""),
	}
	if data.Difficulty == "" {
		data.Difficulty = "Medium"
	}
	if cfg.ManualCounts {
		for t, n := range cfg.Distribution {
			if n > 0 {
				data.Distribution = append(data.Distribution, TypeCount{Type: generatorTypeName(t), Count: n})
			}
		}
		sort.Slice(data.Distribution, func(i, j int) bool { return data.Distribution[i].Type < data.Distribution[j].Type })
	}
	if cfg.BonusEnabled() {
		b := cfg.Bonus
		data.Bonus = &BonusData{Count: b.Count, Difficulty: b.Difficulty, Source: b.Source}
		if data.Bonus.Difficulty == "" {
			data.Bonus.Difficulty = data.Difficulty
		}
		if data.Bonus.Source == "" {
			data.Bonus.Source = model.BonusFromFile
		}
	}

	var buf bytes.Buffer
	if err := generateTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildGradePrompt renders a batch grading prompt using the specified variant.
func BuildGradePrompt(variant PromptVariant, items []model.GradingItem) (string, error) {
	if gradeTemplates == nil {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := gradeTemplates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data := GradeData{Items: make([]GradeItem, 0, len(items))}
	for _, it := range items {
		data.Items = append(data.Items, GradeItem{
			ID:        it.ID,
			Question:  strings.TrimSpace(it.QuestionText),
			Guideline: strings.TrimSpace(it.Guideline),
			Answer:    sanitizeAnswer(it.AnswerText),
		})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > 10000 {
		runes := []rune(answer)
		runes = runes[:10000]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
