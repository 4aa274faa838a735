package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/examgen/internal/model"
)

// CreateExamRequest holds the creator's input for a generated exam.
type CreateExamRequest struct {
	Title         string                 `json:"title"`
	SourceRef     string                 `json:"source_ref"`
	Count         int                    `json:"count"`
	TimeLimit     *int                   `json:"time_limit"`
	AccessType    model.AccessType       `json:"access_type"`
	AllowedEmails []string               `json:"allowed_emails"`
	Config        model.GenerationConfig `json:"config"`
}

// CreateExam generates questions from the request's source document and
// stores them as a new exam owned by actor. The exam is kept with status
// failed when generation errors or yields no usable question.
func (e *Engine) CreateExam(ctx context.Context, actor model.Actor, req CreateExamRequest) (model.Exam, error) {
	const op = "create exam"
	if req.Count <= 0 {
		return model.Exam{}, newError(KindInvalidRequest, op, "question count must be positive", nil)
	}
	if strings.TrimSpace(req.SourceRef) == "" {
		return model.Exam{}, newError(KindInvalidRequest, op, "source document is required", nil)
	}
	if e.generator == nil {
		return model.Exam{}, newError(KindUpstreamGeneration, op, "no question generator configured", nil)
	}
	exam, err := e.newExam(op, actor, req.Title, req.TimeLimit, req.AccessType, req.AllowedEmails)
	if err != nil {
		return model.Exam{}, err
	}
	exam.SourceRef = req.SourceRef
	if err := e.store.CreateExam(ctx, exam); err != nil {
		return model.Exam{}, storeErr(op, err)
	}

	call := e.beginAICall(model.AILogGenerate, exam.ID, actor.ID,
		fmt.Sprintf("generate %d questions from %s", req.Count, req.SourceRef))
	generated, genErr := e.generator.GenerateQuestions(ctx, req.SourceRef, req.Count, req.Config)
	e.finishAICall(ctx, call, generated, genErr)
	if genErr != nil {
		e.markFailed(ctx, exam)
		exam.Status = model.ExamFailed
		return exam, newError(KindUpstreamGeneration, op, "question generation failed", genErr)
	}
	return e.storeGenerated(ctx, op, exam, generated)
}

// ExamFile is an exam definition read from disk.
type ExamFile struct {
	Title          string                   `json:"title" yaml:"title"`
	TimeLimit      *int                     `json:"time_limit,omitempty" yaml:"time_limit,omitempty"`
	AccessType     model.AccessType         `json:"access_type,omitempty" yaml:"access_type,omitempty"`
	AllowedEmails  []string                 `json:"allowed_emails,omitempty" yaml:"allowed_emails,omitempty"`
	SourceRef      string                   `json:"source_ref,omitempty" yaml:"source_ref,omitempty"`
	Questions      []model.QuestionTemplate `json:"questions" yaml:"questions"`
	BonusQuestions []model.QuestionTemplate `json:"bonus_questions,omitempty" yaml:"bonus_questions,omitempty"`
}

// ImportExam stores a ready-made exam definition through the same
// ingestion rules as generated questions.
func (e *Engine) ImportExam(ctx context.Context, actor model.Actor, f ExamFile) (model.Exam, error) {
	const op = "import exam"
	exam, err := e.newExam(op, actor, f.Title, f.TimeLimit, f.AccessType, f.AllowedEmails)
	if err != nil {
		return model.Exam{}, err
	}
	exam.SourceRef = f.SourceRef
	if err := e.store.CreateExam(ctx, exam); err != nil {
		return model.Exam{}, storeErr(op, err)
	}
	return e.storeGenerated(ctx, op, exam, model.GeneratedQuestions{
		Questions:      f.Questions,
		BonusQuestions: f.BonusQuestions,
	})
}

func (e *Engine) newExam(op string, actor model.Actor, title string, timeLimit *int, access model.AccessType, emails []string) (model.Exam, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Exam{}, newError(KindInvalidRequest, op, "title is required", nil)
	}
	if timeLimit != nil && *timeLimit <= 0 {
		return model.Exam{}, newError(KindInvalidRequest, op, "time limit must be positive", nil)
	}
	if access == "" {
		access = model.AccessPrivate
	}
	if err := validAccess(op, access); err != nil {
		return model.Exam{}, err
	}
	return model.Exam{
		ID:            e.newID(),
		Title:         title,
		CreatorID:     actor.ID,
		Status:        model.ExamProcessing,
		AccessType:    access,
		AllowedEmails: cleanEmails(emails),
		TimeLimit:     timeLimit,
		CreatedAt:     e.now(),
	}, nil
}

// storeGenerated ingests templates into questions of exam and marks the
// exam ready, or failed when nothing usable remains.
func (e *Engine) storeGenerated(ctx context.Context, op string, exam model.Exam, g model.GeneratedQuestions) (model.Exam, error) {
	var questions []model.Question
	for _, set := range []struct {
		templates []model.QuestionTemplate
		bonus     bool
	}{{g.Questions, false}, {g.BonusQuestions, true}} {
		for i, t := range set.templates {
			qt, vars, err := normalizeTemplate(t.Type, t.Variations)
			if err != nil {
				e.logger.Warn("question template rejected", "exam_id", exam.ID, "bonus", set.bonus, "index", i, "error", err)
				continue
			}
			questions = append(questions, model.Question{
				ID:         e.newID(),
				ExamID:     exam.ID,
				Type:       qt,
				Variations: vars,
				IsBonus:    set.bonus,
				Position:   len(questions),
			})
		}
	}
	if len(questions) == 0 {
		e.markFailed(ctx, exam)
		exam.Status = model.ExamFailed
		return exam, newError(KindUpstreamGeneration, op, "no usable questions", nil)
	}
	if err := e.store.InsertQuestions(ctx, questions); err != nil {
		e.markFailed(ctx, exam)
		return model.Exam{}, storeErr(op, err)
	}
	exam.Status = model.ExamReady
	if err := e.store.UpdateExam(ctx, exam); err != nil {
		return model.Exam{}, storeErr(op, err)
	}
	e.logger.Info("exam ready", "exam_id", exam.ID, "questions", len(questions))
	return exam, nil
}

func (e *Engine) markFailed(ctx context.Context, exam model.Exam) {
	exam.Status = model.ExamFailed
	if err := e.store.UpdateExam(context.WithoutCancel(ctx), exam); err != nil {
		e.logger.Error("failed to mark exam failed", "exam_id", exam.ID, "error", err)
	}
}

// normalizeTemplate resolves the type name and checks every variation
// against the rules for that type.
func normalizeTemplate(typeName string, variations []model.Variation) (model.QuestionType, []model.Variation, error) {
	qt, ok := model.ParseQuestionType(typeName)
	if !ok {
		return "", nil, fmt.Errorf("unknown question type %q", typeName)
	}
	vars, err := normalizeVariations(qt, variations)
	return qt, vars, err
}

func normalizeVariations(qt model.QuestionType, variations []model.Variation) ([]model.Variation, error) {
	if len(variations) == 0 {
		return nil, errors.New("question has no variations")
	}
	out := make([]model.Variation, 0, len(variations))
	for i, v := range variations {
		v.Text = strings.TrimSpace(v.Text)
		if v.Text == "" {
			return nil, fmt.Errorf("variation %d has no text", i)
		}
		v.Options = trimAll(v.Options)
		v.CorrectAnswers = trimAll(v.CorrectAnswers)
		if !qt.Objective() {
			v.Options = []string{}
			out = append(out, v)
			continue
		}
		if len(v.Options) < 2 {
			return nil, fmt.Errorf("variation %d needs at least two options", i)
		}
		if len(v.CorrectAnswers) == 0 {
			return nil, fmt.Errorf("variation %d has no correct answer", i)
		}
		if qt == model.QuestionSingle && len(toSet(v.CorrectAnswers)) != 1 {
			return nil, fmt.Errorf("single-select variation %d needs exactly one correct answer", i)
		}
		if !containsAll(v.Options, v.CorrectAnswers) {
			return nil, fmt.Errorf("variation %d has a correct answer that is not an option", i)
		}
		out = append(out, v)
	}
	return out, nil
}

func trimAll(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// QuestionUpdate is a creator edit of a question. Nil fields stay unchanged.
type QuestionUpdate struct {
	Type       *string           `json:"type,omitempty"`
	Variations []model.Variation `json:"variations,omitempty"`
}

// UpdateQuestion applies a creator edit. Submitted answers keep the type
// they were graded under.
func (e *Engine) UpdateQuestion(ctx context.Context, questionID string, actor model.Actor, upd QuestionUpdate) (model.Question, error) {
	const op = "update question"
	q, err := e.store.GetQuestion(ctx, questionID)
	if err != nil {
		return model.Question{}, storeErr(op, err)
	}
	exam, err := e.store.GetExam(ctx, q.ExamID)
	if err != nil {
		return model.Question{}, storeErr(op, err)
	}
	if err := requireCreator(op, exam, actor); err != nil {
		return model.Question{}, err
	}

	typeName := string(q.Type)
	if upd.Type != nil {
		typeName = *upd.Type
	}
	vars := q.Variations
	if upd.Variations != nil {
		vars = upd.Variations
	}
	qt, vars, err := normalizeTemplate(typeName, vars)
	if err != nil {
		return model.Question{}, newError(KindInvalidRequest, op, err.Error(), nil)
	}
	q.Type = qt
	q.Variations = vars
	if err := e.store.UpdateQuestion(ctx, q); err != nil {
		return model.Question{}, storeErr(op, err)
	}
	return q, nil
}

// SharingUpdate changes who may open an exam. Nil fields stay unchanged.
type SharingUpdate struct {
	AccessType    *model.AccessType `json:"access_type,omitempty"`
	AllowedEmails []string          `json:"allowed_emails,omitempty"`
}

// UpdateSharing changes an exam's access type and allow-list.
func (e *Engine) UpdateSharing(ctx context.Context, examID string, actor model.Actor, upd SharingUpdate) (model.Exam, error) {
	const op = "update sharing"
	exam, err := e.store.GetExam(ctx, examID)
	if err != nil {
		return model.Exam{}, storeErr(op, err)
	}
	if err := requireCreator(op, exam, actor); err != nil {
		return model.Exam{}, err
	}
	if upd.AccessType != nil {
		if err := validAccess(op, *upd.AccessType); err != nil {
			return model.Exam{}, err
		}
		exam.AccessType = *upd.AccessType
	}
	if upd.AllowedEmails != nil {
		exam.AllowedEmails = cleanEmails(upd.AllowedEmails)
	}
	if err := e.store.UpdateExam(ctx, exam); err != nil {
		return model.Exam{}, storeErr(op, err)
	}
	return exam, nil
}

// DeleteExam removes an exam with its questions and results.
func (e *Engine) DeleteExam(ctx context.Context, examID string, actor model.Actor) error {
	const op = "delete exam"
	exam, err := e.store.GetExam(ctx, examID)
	if err != nil {
		return storeErr(op, err)
	}
	if err := requireCreator(op, exam, actor); err != nil {
		return err
	}
	if err := e.store.DeleteExam(ctx, examID); err != nil {
		return storeErr(op, err)
	}
	e.logger.Info("exam deleted", "exam_id", examID)
	return nil
}

// ListExams returns the exams actor created, newest first.
func (e *Engine) ListExams(ctx context.Context, actor model.Actor) ([]model.Exam, error) {
	exams, err := e.store.ListExamsByCreator(ctx, actor.ID)
	if err != nil {
		return nil, storeErr("list exams", err)
	}
	return exams, nil
}

// ListQuestionsForReview returns all questions of an exam with every
// variation and its correct answers.
func (e *Engine) ListQuestionsForReview(ctx context.Context, examID string, actor model.Actor) ([]model.Question, error) {
	const op = "list questions"
	exam, err := e.store.GetExam(ctx, examID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if err := requireCreator(op, exam, actor); err != nil {
		return nil, err
	}
	qs, err := e.store.ListQuestions(ctx, examID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return qs, nil
}

func validAccess(op string, a model.AccessType) error {
	switch a {
	case model.AccessPrivate, model.AccessPublic:
		return nil
	}
	return newError(KindInvalidRequest, op, fmt.Sprintf("unknown access type %q", a), nil)
}

func cleanEmails(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
