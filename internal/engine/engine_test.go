package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/store"
)

var (
	creator = model.Actor{ID: "creator", Email: "teacher@example.com"}
	alice   = model.Actor{ID: "alice", Email: "alice@example.com"}
	bob     = model.Actor{ID: "bob", Email: "bob@example.com"}
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type generatorFunc func(ctx context.Context, sourceRef string, count int, cfg model.GenerationConfig) (model.GeneratedQuestions, error)

func (f generatorFunc) GenerateQuestions(ctx context.Context, sourceRef string, count int, cfg model.GenerationConfig) (model.GeneratedQuestions, error) {
	return f(ctx, sourceRef, count, cfg)
}

type graderFunc func(ctx context.Context, items []model.GradingItem) ([]model.GradingVerdict, error)

func (f graderFunc) GradeTextAnswers(ctx context.Context, items []model.GradingItem) ([]model.GradingVerdict, error) {
	return f(ctx, items)
}

type testEnv struct {
	eng   *Engine
	store *store.Store
	clock *fakeClock
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	clock := newFakeClock()
	base := []Option{WithClock(clock.Now), WithRandom(func(int) int { return 0 })}
	return &testEnv{
		eng:   New(s, append(base, opts...)...),
		store: s,
		clock: clock,
	}
}

// seedExam stores a ready exam with two standard questions (q1 single,
// q2 multi), one text question (q3) and one bonus single question (q4).
func (env *testEnv) seedExam(t *testing.T, id string, timeLimit *int, access model.AccessType) model.Exam {
	t.Helper()
	ctx := context.Background()
	exam := model.Exam{
		ID:            id,
		Title:         "Exam " + id,
		CreatorID:     creator.ID,
		Status:        model.ExamReady,
		AccessType:    access,
		AllowedEmails: []string{alice.Email},
		TimeLimit:     timeLimit,
		CreatedAt:     env.clock.Now(),
	}
	if err := env.store.CreateExam(ctx, exam); err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	qs := []model.Question{
		{
			ID: "q1", ExamID: id, Type: model.QuestionSingle, Position: 0,
			Variations: []model.Variation{
				{Text: "2+2?", Options: []string{"3", "4", "5"}, CorrectAnswers: []string{"4"}},
				{Text: "1+3?", Options: []string{"4", "6", "7"}, CorrectAnswers: []string{"4"}},
			},
		},
		{
			ID: "q2", ExamID: id, Type: model.QuestionMulti, Position: 1,
			Variations: []model.Variation{
				{Text: "Primes?", Options: []string{"2", "3", "4"}, CorrectAnswers: []string{"2", "3"}},
				{Text: "Even?", Options: []string{"2", "6", "9"}, CorrectAnswers: []string{"2", "6"}},
			},
		},
		{
			ID: "q3", ExamID: id, Type: model.QuestionText, Position: 2,
			Variations: []model.Variation{
				{Text: "What is a goroutine?", Options: []string{}, CorrectAnswers: []string{"lightweight thread", "managed by the runtime"}},
			},
		},
		{
			ID: "q4", ExamID: id, Type: model.QuestionSingle, Position: 3, IsBonus: true,
			Variations: []model.Variation{
				{Text: "Capital of France?", Options: []string{"Paris", "Rome"}, CorrectAnswers: []string{"Paris"}},
			},
		},
	}
	for i := range qs {
		qs[i].ID = id + "-" + qs[i].ID
	}
	if err := env.store.InsertQuestions(ctx, qs); err != nil {
		t.Fatalf("InsertQuestions: %v", err)
	}
	return exam
}

// answersFor builds a submission keyed by the short question names used in
// seedExam.
func answersFor(examID string, byShort map[string][]string) []SubmittedAnswer {
	var out []SubmittedAnswer
	for _, short := range []string{"q1", "q2", "q3", "q4"} {
		if sel, ok := byShort[short]; ok {
			out = append(out, SubmittedAnswer{QuestionID: examID + "-" + short, SelectedOptions: sel})
		}
	}
	return out
}

func intPtr(v int) *int { return &v }

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("error kind = %s, want %s (err: %v)", got, kind, err)
	}
}

func TestErrorKinds(t *testing.T) {
	err := newError(KindAlreadyCompleted, "submit", "done", errors.New("cause"))
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("errors.Is(AlreadyCompleted) = false")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("errors.Is(NotFound) = true for AlreadyCompleted error")
	}
	if got := err.Error(); got != "submit: done: cause" {
		t.Errorf("Error() = %q", got)
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Errorf("plain error should be internal")
	}

	nf := storeErr("get", model.ErrNotFound)
	if !errors.Is(nf, ErrNotFound) || !errors.Is(nf, model.ErrNotFound) {
		t.Errorf("storeErr should classify and keep the store sentinel: %v", nf)
	}
	if KindOf(storeErr("get", errors.New("disk"))) != KindInternal {
		t.Errorf("storeErr of unknown error should be internal")
	}
}
