package engine

import (
	"context"
	"errors"
	"time"

	"github.com/pavelanni/examgen/internal/model"
)

// UserStatus is the attempt state of an exam as seen by one user.
type UserStatus string

const (
	StatusNew        UserStatus = "new"
	StatusInProgress UserStatus = "in-progress"
	StatusCompleted  UserStatus = "completed"
)

// Attempt describes a started attempt.
type Attempt struct {
	ResultID  string    `json:"result_id"`
	StartTime time.Time `json:"start_time"`
	TimeLimit *int      `json:"time_limit"`
	// Remaining is the time left in seconds; nil when the exam is untimed.
	Remaining *int64 `json:"remaining_seconds,omitempty"`
}

// QuestionView is a question rendered through one of its variations.
// Correct answers are never included.
type QuestionView struct {
	ID      string             `json:"id"`
	Type    model.QuestionType `json:"type"`
	Text    string             `json:"text"`
	Options []string           `json:"options"`
	IsBonus bool               `json:"is_bonus"`
}

// ExamView is what a taker sees when opening an exam.
type ExamView struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	TimeLimit  *int           `json:"time_limit"`
	UserStatus UserStatus     `json:"user_status"`
	StartTime  *time.Time     `json:"start_time,omitempty"`
	Remaining  *int64         `json:"remaining_seconds,omitempty"`
	ResultID   string         `json:"result_id,omitempty"`
	Questions  []QuestionView `json:"questions"`
}

// SubmitSummary reports the outcome of a submission.
type SubmitSummary struct {
	ResultID            string `json:"result_id"`
	Score               int    `json:"score"`
	Total               int    `json:"total"`
	BonusScore          int    `json:"bonus_score"`
	TotalBonusQuestions int    `json:"total_bonus_questions"`
	PendingText         int    `json:"pending_text"`
}

// Remaining returns the seconds left on an attempt started at start, or nil
// when limit is nil. The value is negative once time is up.
func Remaining(limit *int, start, now time.Time) *int64 {
	if limit == nil {
		return nil
	}
	left := int64(*limit)*60 - int64(now.Sub(start)/time.Second)
	return &left
}

// loadViewable returns the exam after checking that actor may open it.
func (e *Engine) loadViewable(ctx context.Context, op, examID string, actor model.Actor) (model.Exam, error) {
	exam, err := e.store.GetExam(ctx, examID)
	if err != nil {
		return model.Exam{}, storeErr(op, err)
	}
	if !e.policy.CanView(exam, actor) {
		return model.Exam{}, newError(KindForbidden, op, "no access to this exam", nil)
	}
	if exam.Status != model.ExamReady {
		return model.Exam{}, newError(KindInvalidRequest, op, "exam is not ready", nil)
	}
	return exam, nil
}

// Start opens an attempt for actor, or returns the running one unchanged.
// It fails with KindAlreadyCompleted once the actor has submitted.
func (e *Engine) Start(ctx context.Context, examID string, actor model.Actor) (Attempt, error) {
	const op = "start"
	exam, err := e.loadViewable(ctx, op, examID, actor)
	if err != nil {
		return Attempt{}, err
	}

	unlock := e.locks.Lock(attemptKey(examID, actor.ID))
	defer unlock()

	r, err := e.findOrCreateResult(ctx, op, exam, actor)
	if err != nil {
		return Attempt{}, err
	}
	if r.Status == model.ResultCompleted {
		return Attempt{}, newError(KindAlreadyCompleted, op, "exam already completed", nil)
	}
	return Attempt{
		ResultID:  r.ID,
		StartTime: r.StartTime,
		TimeLimit: exam.TimeLimit,
		Remaining: Remaining(exam.TimeLimit, r.StartTime, e.now()),
	}, nil
}

// findOrCreateResult returns the actor's result on exam, creating an
// in-progress one when absent. Callers hold the attempt lock.
func (e *Engine) findOrCreateResult(ctx context.Context, op string, exam model.Exam, actor model.Actor) (model.Result, error) {
	r, err := e.store.FindResult(ctx, exam.ID, actor.ID)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.Result{}, storeErr(op, err)
	}

	r = model.Result{
		ID:        e.newID(),
		ExamID:    exam.ID,
		UserID:    actor.ID,
		Status:    model.ResultInProgress,
		StartTime: storedTime(e.now()),
		Answers:   []model.Answer{},
	}
	err = e.store.CreateResult(ctx, r)
	switch {
	case err == nil:
		e.logger.Info("attempt started", "exam_id", exam.ID, "user_id", actor.ID, "result_id", r.ID)
		return r, nil
	case errors.Is(err, model.ErrDuplicate):
		// Another process created it first.
		r, err = e.store.FindResult(ctx, exam.ID, actor.ID)
		if err != nil {
			return model.Result{}, storeErr(op, err)
		}
		return r, nil
	default:
		return model.Result{}, storeErr(op, err)
	}
}

// GetExamView renders the exam for actor with one random variation per
// question, along with the actor's attempt state.
func (e *Engine) GetExamView(ctx context.Context, examID string, actor model.Actor) (ExamView, error) {
	const op = "get exam"
	exam, err := e.loadViewable(ctx, op, examID, actor)
	if err != nil {
		return ExamView{}, err
	}
	questions, err := e.store.ListQuestions(ctx, examID)
	if err != nil {
		return ExamView{}, storeErr(op, err)
	}

	view := ExamView{
		ID:         exam.ID,
		Title:      exam.Title,
		TimeLimit:  exam.TimeLimit,
		UserStatus: StatusNew,
		Questions:  make([]QuestionView, 0, len(questions)),
	}
	r, err := e.store.FindResult(ctx, examID, actor.ID)
	switch {
	case err == nil:
		view.ResultID = r.ID
		start := r.StartTime
		view.StartTime = &start
		view.UserStatus = StatusInProgress
		if r.Status == model.ResultCompleted {
			view.UserStatus = StatusCompleted
		} else {
			view.Remaining = Remaining(exam.TimeLimit, r.StartTime, e.now())
		}
	case !errors.Is(err, model.ErrNotFound):
		return ExamView{}, storeErr(op, err)
	}

	for _, q := range questions {
		v := pickVariation(q, e.intn)
		opts := v.Options
		if opts == nil {
			opts = []string{}
		}
		view.Questions = append(view.Questions, QuestionView{
			ID:      q.ID,
			Type:    q.Type,
			Text:    v.Text,
			Options: opts,
			IsBonus: q.IsBonus,
		})
	}
	return view, nil
}

// Submit grades and completes the actor's attempt. It succeeds at most once
// per attempt; later calls fail with KindAlreadyCompleted and leave the
// stored scores alone.
func (e *Engine) Submit(ctx context.Context, examID string, actor model.Actor, answers []SubmittedAnswer) (SubmitSummary, error) {
	const op = "submit"
	exam, err := e.loadViewable(ctx, op, examID, actor)
	if err != nil {
		return SubmitSummary{}, err
	}
	questions, err := e.store.ListQuestions(ctx, examID)
	if err != nil {
		return SubmitSummary{}, storeErr(op, err)
	}
	graded, err := gradeSubmission(questions, answers)
	if err != nil {
		return SubmitSummary{}, err
	}

	unlock := e.locks.Lock(attemptKey(examID, actor.ID))
	defer unlock()

	r, err := e.findOrCreateResult(ctx, op, exam, actor)
	if err != nil {
		return SubmitSummary{}, err
	}
	if r.Status == model.ResultCompleted {
		return SubmitSummary{}, newError(KindAlreadyCompleted, op, "exam already submitted", nil)
	}
	now := e.now()
	if e.expired(exam, r, now) {
		return SubmitSummary{}, newError(KindAttemptExpired, op, "time limit exceeded", nil)
	}

	r.Answers = graded
	r.TotalQuestions, r.TotalBonusQuestions = questionTotals(questions)
	rescore(&r)
	completed := storedTime(now)
	r.CompletedAt = &completed
	if err := e.store.CompleteResult(ctx, r); err != nil {
		if errors.Is(err, model.ErrConflict) {
			return SubmitSummary{}, newError(KindAlreadyCompleted, op, "exam already submitted", err)
		}
		return SubmitSummary{}, storeErr(op, err)
	}

	pending := 0
	for _, a := range r.Answers {
		if a.GradingStatus == model.GradingPending {
			pending++
		}
	}
	e.logger.Info("attempt submitted", "exam_id", examID, "user_id", actor.ID,
		"result_id", r.ID, "score", r.Score, "bonus_score", r.BonusScore, "pending_text", pending)
	return SubmitSummary{
		ResultID:            r.ID,
		Score:               r.Score,
		Total:               r.TotalQuestions,
		BonusScore:          r.BonusScore,
		TotalBonusQuestions: r.TotalBonusQuestions,
		PendingText:         pending,
	}, nil
}

func (e *Engine) expired(exam model.Exam, r model.Result, now time.Time) bool {
	if exam.TimeLimit == nil || e.grace < 0 {
		return false
	}
	deadline := r.StartTime.Add(time.Duration(*exam.TimeLimit)*time.Minute + e.grace)
	return now.After(deadline)
}

// ResetAttempt deletes a result so its taker can start over. Only the exam
// creator may reset.
func (e *Engine) ResetAttempt(ctx context.Context, resultID string, actor model.Actor) error {
	const op = "reset attempt"
	r, err := e.store.GetResult(ctx, resultID)
	if err != nil {
		return storeErr(op, err)
	}
	exam, err := e.store.GetExam(ctx, r.ExamID)
	if err != nil {
		return storeErr(op, err)
	}
	if err := requireCreator(op, exam, actor); err != nil {
		return err
	}

	unlockAttempt := e.locks.Lock(attemptKey(r.ExamID, r.UserID))
	defer unlockAttempt()
	unlockResult := e.locks.Lock(resultKey(r.ID))
	defer unlockResult()

	if err := e.store.DeleteResult(ctx, resultID); err != nil {
		return storeErr(op, err)
	}
	e.logger.Info("attempt reset", "exam_id", r.ExamID, "user_id", r.UserID, "result_id", r.ID, "by", actor.ID)
	return nil
}

// AnswerReview is a stored answer with the question data needed to show it.
type AnswerReview struct {
	model.Answer
	QuestionText   string   `json:"question_text"`
	Options        []string `json:"options"`
	CorrectAnswers []string `json:"correct_answers"`
}

// ResultReview is a result prepared for display.
type ResultReview struct {
	model.Result
	ExamTitle string         `json:"exam_title"`
	Answers   []AnswerReview `json:"answers"`
}

// GetResult returns a result for review by its taker or the exam creator.
// Each answer is shown through the variation it was most likely answered on.
func (e *Engine) GetResult(ctx context.Context, resultID string, actor model.Actor) (ResultReview, error) {
	const op = "get result"
	r, err := e.store.GetResult(ctx, resultID)
	if err != nil {
		return ResultReview{}, storeErr(op, err)
	}
	exam, err := e.store.GetExam(ctx, r.ExamID)
	if err != nil {
		return ResultReview{}, storeErr(op, err)
	}
	if r.UserID != actor.ID && exam.CreatorID != actor.ID {
		return ResultReview{}, newError(KindForbidden, op, "not your result", nil)
	}
	questions, err := e.store.ListQuestions(ctx, r.ExamID)
	if err != nil {
		return ResultReview{}, storeErr(op, err)
	}
	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	review := ResultReview{
		Result:    r,
		ExamTitle: exam.Title,
		Answers:   make([]AnswerReview, 0, len(r.Answers)),
	}
	for _, a := range r.Answers {
		ar := AnswerReview{Answer: a}
		if q, ok := byID[a.QuestionID]; ok {
			v := ResolveVariation(q, a.SelectedOptions)
			ar.QuestionText = v.Text
			ar.Options = v.Options
			ar.CorrectAnswers = v.CorrectAnswers
		}
		review.Answers = append(review.Answers, ar)
	}
	return review, nil
}

// storedTime rounds t to the millisecond precision the store keeps, so a
// value returned before and after a reload is the same instant.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
