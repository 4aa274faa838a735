package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/examgen/internal/model"
)

// BatchSummary reports the outcome of a batch grading run.
type BatchSummary struct {
	Requested int `json:"requested"`
	Graded    int `json:"graded"`
	Pending   int `json:"pending"`
}

// pendingItem ties a grading item back to the answer it came from.
type pendingItem struct {
	resultID   string
	questionID string
}

func gradingItemID(resultID, questionID string) string { return resultID + "/" + questionID }

// TriggerBatchGrade sends every pending text answer of an exam to the AI
// grader in one call and applies the verdicts. Only the exam creator may
// trigger it. Concurrent triggers for the same exam share one upstream call.
// When the grader fails no result is changed. When saving verdicts fails
// partway, the summary returned with the error counts what was saved.
func (e *Engine) TriggerBatchGrade(ctx context.Context, examID string, actor model.Actor) (BatchSummary, error) {
	const op = "grade text batch"
	exam, err := e.store.GetExam(ctx, examID)
	if err != nil {
		return BatchSummary{}, storeErr(op, err)
	}
	if err := requireCreator(op, exam, actor); err != nil {
		return BatchSummary{}, err
	}
	if e.grader == nil {
		return BatchSummary{}, newError(KindUpstreamGrading, op, "no text grader configured", nil)
	}

	// Shared with concurrent triggers: detach from the first caller's cancellation.
	v, err, shared := e.batches.Do(examID, func() (any, error) {
		return e.gradeBatch(context.WithoutCancel(ctx), exam, actor)
	})
	if shared {
		e.logger.Debug("batch grading shared with concurrent trigger", "exam_id", examID)
	}
	summary, _ := v.(BatchSummary)
	return summary, err
}

func (e *Engine) gradeBatch(ctx context.Context, exam model.Exam, actor model.Actor) (BatchSummary, error) {
	const op = "grade text batch"
	results, err := e.store.ListResults(ctx, exam.ID)
	if err != nil {
		return BatchSummary{}, storeErr(op, err)
	}
	questions, err := e.store.ListQuestions(ctx, exam.ID)
	if err != nil {
		return BatchSummary{}, storeErr(op, err)
	}
	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	var (
		items []model.GradingItem
		index = make(map[string]pendingItem)
	)
	for _, r := range results {
		if r.Status != model.ResultCompleted {
			continue
		}
		for _, a := range r.Answers {
			if a.QuestionType != model.QuestionText || a.GradingStatus != model.GradingPending {
				continue
			}
			q, ok := byID[a.QuestionID]
			if !ok || len(q.Variations) == 0 {
				continue
			}
			id := gradingItemID(r.ID, a.QuestionID)
			answer := ""
			if len(a.SelectedOptions) > 0 {
				answer = a.SelectedOptions[0]
			}
			items = append(items, model.GradingItem{
				ID:           id,
				QuestionText: q.Variations[0].Text,
				Guideline:    strings.Join(q.Variations[0].CorrectAnswers, " OR "),
				AnswerText:   answer,
			})
			index[id] = pendingItem{resultID: r.ID, questionID: a.QuestionID}
		}
	}
	summary := BatchSummary{Requested: len(items)}
	if len(items) == 0 {
		return summary, nil
	}

	call := e.beginAICall(model.AILogGrade, exam.ID, actor.ID, fmt.Sprintf("grade %d text answers", len(items)))
	verdicts, err := e.grader.GradeTextAnswers(ctx, items)
	e.finishAICall(ctx, call, verdicts, err)
	if err != nil {
		return BatchSummary{}, newError(KindUpstreamGrading, op, "AI grading failed", err)
	}

	perResult := make(map[string]map[string]model.GradingVerdict)
	for _, v := range verdicts {
		p, ok := index[v.ID]
		if !ok {
			e.logger.Warn("grader returned unknown item", "exam_id", exam.ID, "item_id", v.ID)
			continue
		}
		if perResult[p.resultID] == nil {
			perResult[p.resultID] = make(map[string]model.GradingVerdict)
		}
		perResult[p.resultID][p.questionID] = v
	}

	for resultID, byQuestion := range perResult {
		applied := 0
		_, err := e.updateResult(ctx, op, resultID, func(r *model.Result) (bool, error) {
			applied = 0
			for i := range r.Answers {
				a := &r.Answers[i]
				v, ok := byQuestion[a.QuestionID]
				if !ok || a.GradingStatus != model.GradingPending {
					continue
				}
				a.IsCorrect = v.IsCorrect
				a.AIFeedback = v.Feedback
				a.GradingStatus = model.GradingAI
				applied++
			}
			return applied > 0, nil
		})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Reset while the grader was running.
				continue
			}
			summary.Pending = summary.Requested - summary.Graded
			e.logger.Error("batch grading stopped after partial apply", "exam_id", exam.ID,
				"result_id", resultID, "graded", summary.Graded, "pending", summary.Pending, "error", err)
			return summary, err
		}
		summary.Graded += applied
	}
	summary.Pending = summary.Requested - summary.Graded
	e.logger.Info("text answers graded", "exam_id", exam.ID,
		"requested", summary.Requested, "graded", summary.Graded, "pending", summary.Pending)
	return summary, nil
}

// ManualGrade records the creator's verdict on one text answer and
// re-aggregates the result. Repeating the same call changes nothing.
func (e *Engine) ManualGrade(ctx context.Context, resultID, questionID string, actor model.Actor, isCorrect bool, feedback string) (model.Result, error) {
	const op = "manual grade"
	r, err := e.store.GetResult(ctx, resultID)
	if err != nil {
		return model.Result{}, storeErr(op, err)
	}
	exam, err := e.store.GetExam(ctx, r.ExamID)
	if err != nil {
		return model.Result{}, storeErr(op, err)
	}
	if err := requireCreator(op, exam, actor); err != nil {
		return model.Result{}, err
	}

	return e.updateResult(ctx, op, resultID, func(r *model.Result) (bool, error) {
		i := r.AnswerFor(questionID)
		if i < 0 {
			return false, newError(KindNotFound, op, fmt.Sprintf("no answer for question %q", questionID), nil)
		}
		a := &r.Answers[i]
		if a.QuestionType != model.QuestionText {
			return false, newError(KindInvalidSubmission, op, "only text answers can be graded manually", nil)
		}
		if a.GradingStatus == model.GradingManual && a.IsCorrect == isCorrect && (feedback == "" || a.AIFeedback == feedback) {
			return false, nil
		}
		a.IsCorrect = isCorrect
		// An empty note keeps the existing feedback.
		if feedback != "" {
			a.AIFeedback = feedback
		}
		a.GradingStatus = model.GradingManual
		return true, nil
	})
}

// updateResult applies fn to a fresh copy of the result under the result
// lock, re-aggregates and persists it. A concurrent writer detected by the
// version check causes a reload and another try. fn reports whether it
// changed anything; unchanged results are not written.
func (e *Engine) updateResult(ctx context.Context, op, resultID string, fn func(r *model.Result) (bool, error)) (model.Result, error) {
	unlock := e.locks.Lock(resultKey(resultID))
	defer unlock()

	for attempt := 1; ; attempt++ {
		r, err := e.store.GetResult(ctx, resultID)
		if err != nil {
			return model.Result{}, storeErr(op, err)
		}
		changed, err := fn(&r)
		if err != nil {
			return model.Result{}, err
		}
		if !changed {
			return r, nil
		}
		rescore(&r)
		err = e.store.SaveGrades(ctx, r)
		if err == nil {
			r.Version++
			return r, nil
		}
		if !errors.Is(err, model.ErrConflict) || attempt >= maxSaveAttempts {
			return model.Result{}, storeErr(op, err)
		}
		e.logger.Debug("result changed concurrently, retrying", "result_id", resultID, "attempt", attempt)
	}
}
