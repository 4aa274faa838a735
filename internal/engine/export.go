package engine

import (
	"context"

	"github.com/pavelanni/examgen/internal/model"
)

// ExportResults gathers every attempt of an exam into one document for
// offline review. Only the creator may export.
func (e *Engine) ExportResults(ctx context.Context, examID string, actor model.Actor) (model.ExamExport, error) {
	const op = "export results"
	exam, err := e.store.GetExam(ctx, examID)
	if err != nil {
		return model.ExamExport{}, storeErr(op, err)
	}
	if err := requireCreator(op, exam, actor); err != nil {
		return model.ExamExport{}, err
	}
	questions, err := e.store.ListQuestions(ctx, examID)
	if err != nil {
		return model.ExamExport{}, storeErr(op, err)
	}
	results, err := e.store.ListResults(ctx, examID)
	if err != nil {
		return model.ExamExport{}, storeErr(op, err)
	}

	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	out := model.ExamExport{
		ExamID:     exam.ID,
		Title:      exam.Title,
		ExportedAt: e.now().UTC(),
		Results:    make([]model.StudentResult, 0, len(results)),
	}
	out.NumQuestions, out.NumBonus = questionTotals(questions)

	for _, r := range results {
		sr := model.StudentResult{
			ResultID:    r.ID,
			UserID:      r.UserID,
			Status:      r.Status,
			StartedAt:   r.StartTime,
			CompletedAt: r.CompletedAt,
			Score:       r.Score,
			BonusScore:  r.BonusScore,
			Questions:   make([]model.QuestionResult, 0, len(r.Answers)),
		}
		for _, a := range r.Answers {
			if a.GradingStatus == model.GradingPending {
				out.PendingAnswers++
			}
			sr.Questions = append(sr.Questions, model.QuestionResult{
				QuestionID:    a.QuestionID,
				Type:          a.QuestionType,
				IsBonus:       a.IsBonus,
				Text:          ResolveVariation(byID[a.QuestionID], a.SelectedOptions).Text,
				Selected:      a.SelectedOptions,
				IsCorrect:     a.IsCorrect,
				GradingStatus: a.GradingStatus,
				Feedback:      a.AIFeedback,
			})
		}
		out.Results = append(out.Results, sr)
	}
	return out, nil
}
