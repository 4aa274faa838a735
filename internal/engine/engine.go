// Package engine runs exam attempts and grading: starting and submitting
// attempts, objective grading, score aggregation and the text grading
// pipeline, plus exam authoring on top of a question generator.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pavelanni/examgen/internal/model"
)

// Store is the persistence the engine needs.
type Store interface {
	CreateExam(ctx context.Context, e model.Exam) error
	UpdateExam(ctx context.Context, e model.Exam) error
	GetExam(ctx context.Context, id string) (model.Exam, error)
	ListExamsByCreator(ctx context.Context, creatorID string) ([]model.Exam, error)
	DeleteExam(ctx context.Context, id string) error

	InsertQuestions(ctx context.Context, qs []model.Question) error
	ListQuestions(ctx context.Context, examID string) ([]model.Question, error)
	GetQuestion(ctx context.Context, id string) (model.Question, error)
	UpdateQuestion(ctx context.Context, q model.Question) error

	CreateResult(ctx context.Context, r model.Result) error
	GetResult(ctx context.Context, id string) (model.Result, error)
	FindResult(ctx context.Context, examID, userID string) (model.Result, error)
	ListResults(ctx context.Context, examID string) ([]model.Result, error)
	ListResultsByCreator(ctx context.Context, creatorID string) ([]model.Result, error)
	CompleteResult(ctx context.Context, r model.Result) error
	SaveGrades(ctx context.Context, r model.Result) error
	DeleteResult(ctx context.Context, id string) error

	InsertAILog(ctx context.Context, l model.AILog) error
}

// QuestionGenerator produces question templates from a source document.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, sourceRef string, count int, cfg model.GenerationConfig) (model.GeneratedQuestions, error)
}

// TextGrader evaluates free-text answers in one batch. Verdicts may come
// back in any order and may omit items.
type TextGrader interface {
	GradeTextAnswers(ctx context.Context, items []model.GradingItem) ([]model.GradingVerdict, error)
}

// DefaultSubmitGrace is how long after the time limit a submission is
// still accepted.
const DefaultSubmitGrace = 2 * time.Minute

const maxSaveAttempts = 5

// Engine implements the exam session and grading operations.
type Engine struct {
	store     Store
	generator QuestionGenerator
	grader    TextGrader
	policy    ViewPolicy
	grace     time.Duration
	now       func() time.Time
	intn      func(n int) int
	newID     func() string
	logger    *slog.Logger

	locks   *keyedMutex
	batches singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

func WithGenerator(g QuestionGenerator) Option { return func(e *Engine) { e.generator = g } }
func WithGrader(g TextGrader) Option           { return func(e *Engine) { e.grader = g } }
func WithViewPolicy(p ViewPolicy) Option       { return func(e *Engine) { e.policy = p } }
func WithClock(now func() time.Time) Option    { return func(e *Engine) { e.now = now } }
func WithLogger(l *slog.Logger) Option         { return func(e *Engine) { e.logger = l } }

// WithSubmitGrace sets how late a submission may arrive after the time
// limit. A negative value disables the check.
func WithSubmitGrace(d time.Duration) Option { return func(e *Engine) { e.grace = d } }

// WithRandom sets the source used to pick variations; intn must return a
// value in [0, n).
func WithRandom(intn func(n int) int) Option { return func(e *Engine) { e.intn = intn } }

// New returns an Engine backed by s.
func New(s Store, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		policy: SharingPolicy{},
		grace:  DefaultSubmitGrace,
		now:    time.Now,
		intn:   rand.IntN,
		newID:  uuid.NewString,
		logger: slog.Default(),
		locks:  newKeyedMutex(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// aiCall is one in-flight call to a collaborator, recorded when done.
type aiCall struct {
	log     model.AILog
	started time.Time
}

func (e *Engine) beginAICall(kind model.AILogKind, examID, userID, summary string) *aiCall {
	now := e.now()
	return &aiCall{
		log: model.AILog{
			ID:          e.newID(),
			ExamID:      examID,
			UserID:      userID,
			Kind:        kind,
			Summary:     summary,
			RequestedAt: now,
		},
		started: now,
	}
}

// finishAICall stores the call record. A failed insert is logged and
// otherwise ignored.
func (e *Engine) finishAICall(ctx context.Context, c *aiCall, response any, callErr error) {
	done := e.now()
	c.log.RespondedAt = done
	c.log.DurationMS = done.Sub(c.started).Milliseconds()
	if callErr != nil {
		c.log.Error = callErr.Error()
	}
	if response != nil {
		if b, err := json.Marshal(response); err == nil {
			c.log.Response = string(b)
		}
	}
	if err := e.store.InsertAILog(context.WithoutCancel(ctx), c.log); err != nil {
		e.logger.Warn("failed to record AI call", "kind", c.log.Kind, "exam_id", c.log.ExamID, "error", err)
	}
}
