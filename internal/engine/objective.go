package engine

import (
	"fmt"

	"github.com/pavelanni/examgen/internal/model"
)

// SubmittedAnswer is one answer as sent by a taker. For text questions
// SelectedOptions holds at most one element: the free-text response.
type SubmittedAnswer struct {
	QuestionID      string   `json:"question_id"`
	SelectedOptions []string `json:"selected_options"`
}

// IsObjectiveCorrect reports whether selected equals, as a set, the correct
// answers of at least one variation of q. An empty selection is never correct.
func IsObjectiveCorrect(q model.Question, selected []string) bool {
	if len(selected) == 0 {
		return false
	}
	got := toSet(selected)
	for _, v := range q.Variations {
		if len(v.CorrectAnswers) > 0 && setEqual(got, toSet(v.CorrectAnswers)) {
			return true
		}
	}
	return false
}

// gradeSubmission validates a submission against the exam's questions and
// grades it. Objective answers are decided here; text answers start pending.
// Questions the taker skipped get an empty, incorrect answer so the stored
// answer list covers the whole exam.
func gradeSubmission(questions []model.Question, submitted []SubmittedAnswer) ([]model.Answer, error) {
	const op = "submit"
	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	given := make(map[string][]string, len(submitted))
	for _, s := range submitted {
		q, ok := byID[s.QuestionID]
		if !ok {
			return nil, newError(KindInvalidSubmission, op, fmt.Sprintf("unknown question %q", s.QuestionID), nil)
		}
		if _, dup := given[s.QuestionID]; dup {
			return nil, newError(KindInvalidSubmission, op, fmt.Sprintf("question %q answered twice", s.QuestionID), nil)
		}
		if err := validateSelection(q, s.SelectedOptions); err != nil {
			return nil, newError(KindInvalidSubmission, op, err.Error(), nil)
		}
		given[s.QuestionID] = s.SelectedOptions
	}

	answers := make([]model.Answer, 0, len(questions))
	for _, q := range questions {
		sel := given[q.ID]
		if sel == nil {
			sel = []string{}
		}
		a := model.Answer{
			QuestionID:      q.ID,
			QuestionType:    q.Type,
			IsBonus:         q.IsBonus,
			SelectedOptions: sel,
		}
		if q.Type.Objective() {
			a.IsCorrect = IsObjectiveCorrect(q, sel)
		} else {
			a.GradingStatus = model.GradingPending
		}
		answers = append(answers, a)
	}
	return answers, nil
}

func validateSelection(q model.Question, selected []string) error {
	switch q.Type {
	case model.QuestionText:
		if len(selected) > 1 {
			return fmt.Errorf("text question %q takes a single answer", q.ID)
		}
		return nil
	case model.QuestionSingle:
		if len(toSet(selected)) > 1 {
			return fmt.Errorf("single-select question %q takes one option", q.ID)
		}
	}
	known := make(map[string]struct{})
	for _, v := range q.Variations {
		for _, o := range v.Options {
			known[o] = struct{}{}
		}
	}
	for _, o := range selected {
		if o == "" {
			return fmt.Errorf("empty option for question %q", q.ID)
		}
		if _, ok := known[o]; !ok {
			return fmt.Errorf("option %q is not offered by question %q", o, q.ID)
		}
	}
	return nil
}

func toSet(ss []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
