package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/examgen/internal/model"
)

func TestStartIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedExam(t, "e1", intPtr(30), model.AccessPrivate)

	first, err := env.eng.Start(ctx, "e1", alice)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if first.TimeLimit == nil || *first.TimeLimit != 30 {
		t.Errorf("TimeLimit = %v, want 30", first.TimeLimit)
	}
	if first.Remaining == nil || *first.Remaining != 30*60 {
		t.Errorf("Remaining = %v, want 1800", first.Remaining)
	}

	env.clock.Advance(5 * time.Minute)
	second, err := env.eng.Start(ctx, "e1", alice)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !second.StartTime.Equal(first.StartTime) || second.ResultID != first.ResultID {
		t.Errorf("second Start = %+v, want same attempt as %+v", second, first)
	}
	if *second.Remaining != 25*60 {
		t.Errorf("Remaining after 5m = %d, want 1500", *second.Remaining)
	}
}

func TestStartTimeStableAcrossReloads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedExam(t, "e1", intPtr(30), model.AccessPrivate)
	env.clock.Advance(123456789 * time.Nanosecond)

	first, err := env.eng.Start(ctx, "e1", alice)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	second, err := env.eng.Start(ctx, "e1", alice)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !second.StartTime.Equal(first.StartTime) {
		t.Errorf("resumed StartTime = %v, want %v", second.StartTime, first.StartTime)
	}
	view, err := env.eng.GetExamView(ctx, "e1", alice)
	if err != nil {
		t.Fatalf("GetExamView: %v", err)
	}
	if view.StartTime == nil || !view.StartTime.Equal(first.StartTime) {
		t.Errorf("view StartTime = %v, want %v", view.StartTime, first.StartTime)
	}
}

func TestStartConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedExam(t, "e1", nil, model.AccessPrivate)

	const n = 10
	var (
		wg  sync.WaitGroup
		ids = make([]string, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := env.eng.Start(ctx, "e1", alice)
			if err != nil {
				t.Errorf("Start %d: %v", i, err)
				return
			}
			ids[i] = a.ResultID
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("Start %d returned result %s, want %s", i, ids[i], ids[0])
		}
	}
	results, err := env.store.ListResults(ctx, "e1")
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestStartAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedExam(t, "private", nil, model.AccessPrivate)
	env.seedExam(t, "public", nil, model.AccessPublic)

	_, err := env.eng.Start(ctx, "private", bob)
	wantKind(t, err, KindForbidden)
	if _, err := env.store.FindResult(ctx, "private", bob.ID); err == nil {
		t.Errorf("forbidden Start created a result")
	}

	if _, err := env.eng.Start(ctx, "public", bob); err != nil {
		t.Errorf("Start on public exam: %v", err)
	}
	if _, err := env.eng.Start(ctx, "private", creator); err != nil {
		t.Errorf("creator Start: %v", err)
	}
	_, err = env.eng.Start(ctx, "missing", alice)
	wantKind(t, err, KindNotFound)
}

func TestStartRejectsUnreadyExam(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := env.seedExam(t, "e1", nil, model.AccessPublic)
	exam.Status = model.ExamProcessing
	if err := env.store.UpdateExam(ctx, exam); err != nil {
		t.Fatalf("UpdateExam: %v", err)
	}
	_, err := env.eng.Start(ctx, "e1", alice)
	wantKind(t, err, KindInvalidRequest)
}

func TestSubmitScores(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedExam(t, "e1", intPtr(30), model.AccessPrivate)
	if _, err := env.eng.Start(ctx, "e1", alice); err != nil {
		t.Fatalf("Start: %v", err)
	}

	env.clock.Advance(10 * time.Minute)
	sum, err := env.eng.Submit(ctx, "e1", alice, answersFor("e1", map[string][]string{
		"q1": {"4"},
		"q2": {"6", "2"}, // correct set of the second variation
		"q3": {"a thread managed by the runtime"},
		"q4": {"Paris"},
	}))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	want := SubmitSummary{ResultID: sum.ResultID, Score: 2, Total: 3, BonusScore: 1, TotalBonusQuestions: 1, PendingText: 1}
	if sum != want {
		t.Errorf("Submit = %+v, want %+v", sum, want)
	}

	r, err := env.store.GetResult(ctx, sum.ResultID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if r.Status != model.ResultCompleted || r.CompletedAt == nil {
		t.Errorf("result not completed: %+v", r)
	}
	if !r.CompletedAt.Equal(env.clock.Now()) {
		t.Errorf("CompletedAt = %v, want %v", r.CompletedAt, env.clock.Now())
	}
	if i := r.AnswerFor("e1-q3"); i < 0 || r.Answers[i].GradingStatus != model.GradingPending {
		t.Errorf("text answer not pending: %+v", r.Answers)
	}
}

func TestSubmitTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedExam(t, "e1", nil, model.AccessPrivate)

	first, err := env.eng.Submit(ctx, "e1", alice, answersFor("e1", map[string][]string{"q1": {"4"}}))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, err = env.eng.Submit(ctx, "e1", alice, answersFor("e1", map[string][]string{
		"q1": {"4"}, "q2": {"2", "3"}, "q4": {"Paris"},
	}))
	wantKind(t, err, KindAlreadyCompleted)

	r, err := env.store.GetResult(ctx, first.ResultID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if r.Score != 1 || r.BonusScore != 0 {
		t.Errorf("score changed by rejected submit: %d/%d", r.Score, r.BonusScore)
	}

	_, err = env.eng.Start(ctx, "e1", alice)
	wantKind(t, err, KindAlreadyCompleted)
}

func TestSubmitConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedExam(t, "e1", nil, model.AccessPrivate)
	if _, err := env.eng.Start(ctx, "e1", alice); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		completed int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.eng.Submit(ctx, "e1", alice, answersFor("e1", map[string][]string{"q1": {"4"}}))
			mu.Lock()
			defer mu.Unlock()
			switch KindOf(err) {
			case KindAlreadyCompleted:
				completed++
			default:
				if err == nil {
					successes++
				} else {
					t.Errorf("Submit: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	if successes != 1 || completed != n-1 {
		t.Errorf("successes=%d already-completed=%d, want 1 and %d", successes, completed, n-1)
	}
}

func TestSubmitImplicitStart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedExam(t, "e1", intPtr(10), model.AccessPrivate)

	sum, err := env.eng.Submit(ctx, "e1", alice, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r, err := env.store.GetResult(ctx, sum.ResultID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if !r.StartTime.Equal(env.clock.Now()) || r.Status != model.ResultCompleted {
		t.Errorf("implicit attempt = %+v", r)
	}
	if len(r.Answers) != 4 || sum.Score != 0 {
		t.Errorf("expected 4 empty answers and score 0, got %d answers and score %d", len(r.Answers), sum.Score)
	}
}

func TestSubmitInvalidLeavesAttemptOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedExam(t, "e1", nil, model.AccessPrivate)
	if _, err := env.eng.Start(ctx, "e1", alice); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err := env.eng.Submit(ctx, "e1", alice, answersFor("e1", map[string][]string{"q1": {"4", "3"}}))
	wantKind(t, err, KindInvalidSubmission)

	r, err := env.store.FindResult(ctx, "e1", alice.ID)
	if err != nil {
		t.Fatalf("FindResult: %v", err)
	}
	if r.Status != model.ResultInProgress {
		t.Errorf("status = %s, want in-progress", r.Status)
	}
}

func TestSubmitTimeLimit(t *testing.T) {
	tests := []struct {
		name    string
		grace   time.Duration
		elapsed time.Duration
		wantErr Kind
	}{
		{"on time", DefaultSubmitGrace, 29 * time.Minute, ""},
		{"inside grace", DefaultSubmitGrace, 31 * time.Minute, ""},
		{"after grace", DefaultSubmitGrace, 33 * time.Minute, KindAttemptExpired},
		{"check disabled", -1, 5 * time.Hour, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, WithSubmitGrace(tt.grace))
			ctx := context.Background()
			env.seedExam(t, "e1", intPtr(30), model.AccessPrivate)
			if _, err := env.eng.Start(ctx, "e1", alice); err != nil {
				t.Fatalf("Start: %v", err)
			}
			env.clock.Advance(tt.elapsed)
			_, err := env.eng.Submit(ctx, "e1", alice, nil)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Submit: %v", err)
				}
				return
			}
			wantKind(t, err, tt.wantErr)
			r, err := env.store.FindResult(ctx, "e1", alice.ID)
			if err != nil {
				t.Fatalf("FindResult: %v", err)
			}
			if r.Status != model.ResultInProgress {
				t.Errorf("expired attempt status = %s, want in-progress", r.Status)
			}
		})
	}
}

func TestGetExamView(t *testing.T) {
	env := newTestEnv(t, WithRandom(func(n int) int { return n - 1 }))
	ctx := context.Background()
	env.seedExam(t, "e1", intPtr(20), model.AccessPrivate)

	view, err := env.eng.GetExamView(ctx, "e1", alice)
	if err != nil {
		t.Fatalf("GetExamView: %v", err)
	}
	if view.UserStatus != StatusNew || view.StartTime != nil || view.ResultID != "" {
		t.Errorf("new view = %+v", view)
	}
	if len(view.Questions) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(view.Questions))
	}
	if view.Questions[0].Text != "1+3?" {
		t.Errorf("expected last variation to be rendered, got %q", view.Questions[0].Text)
	}
	if view.Questions[2].Options == nil || len(view.Questions[2].Options) != 0 {
		t.Errorf("text question options = %v, want empty", view.Questions[2].Options)
	}
	if !view.Questions[3].IsBonus {
		t.Errorf("bonus flag lost")
	}

	if _, err := env.eng.Start(ctx, "e1", alice); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.clock.Advance(time.Minute)
	view, err = env.eng.GetExamView(ctx, "e1", alice)
	if err != nil {
		t.Fatalf("GetExamView: %v", err)
	}
	if view.UserStatus != StatusInProgress || view.Remaining == nil || *view.Remaining != 19*60 {
		t.Errorf("in-progress view = %+v", view)
	}

	if _, err := env.eng.Submit(ctx, "e1", alice, nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	view, err = env.eng.GetExamView(ctx, "e1", alice)
	if err != nil {
		t.Fatalf("GetExamView: %v", err)
	}
	if view.UserStatus != StatusCompleted || view.Remaining != nil {
		t.Errorf("completed view = %+v", view)
	}

	_, err = env.eng.GetExamView(ctx, "e1", bob)
	wantKind(t, err, KindForbidden)
}

func TestResetAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedExam(t, "e1", nil, model.AccessPrivate)
	sum, err := env.eng.Submit(ctx, "e1", alice, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	err = env.eng.ResetAttempt(ctx, sum.ResultID, alice)
	wantKind(t, err, KindForbidden)

	if err := env.eng.ResetAttempt(ctx, sum.ResultID, creator); err != nil {
		t.Fatalf("ResetAttempt: %v", err)
	}
	err = env.eng.ResetAttempt(ctx, sum.ResultID, creator)
	wantKind(t, err, KindNotFound)

	env.clock.Advance(time.Hour)
	a, err := env.eng.Start(ctx, "e1", alice)
	if err != nil {
		t.Fatalf("Start after reset: %v", err)
	}
	if a.ResultID == sum.ResultID || !a.StartTime.Equal(env.clock.Now()) {
		t.Errorf("expected a fresh attempt, got %+v", a)
	}
}

func TestGetResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedExam(t, "e1", nil, model.AccessPrivate)
	sum, err := env.eng.Submit(ctx, "e1", alice, answersFor("e1", map[string][]string{
		"q1": {"6"}, "q3": {"essay"},
	}))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	for _, who := range []model.Actor{alice, creator} {
		rev, err := env.eng.GetResult(ctx, sum.ResultID, who)
		if err != nil {
			t.Fatalf("GetResult as %s: %v", who.ID, err)
		}
		if rev.ExamTitle != "Exam e1" || len(rev.Answers) != 4 {
			t.Fatalf("review = %+v", rev)
		}
		// "6" only appears in the second variation of q1.
		if rev.Answers[0].QuestionText != "1+3?" {
			t.Errorf("q1 shown as %q, want second variation", rev.Answers[0].QuestionText)
		}
		if rev.Answers[1].QuestionText != "Primes?" {
			t.Errorf("unanswered q2 shown as %q, want first variation", rev.Answers[1].QuestionText)
		}
		if len(rev.Answers[2].CorrectAnswers) != 2 {
			t.Errorf("text guideline missing: %+v", rev.Answers[2])
		}
	}

	_, err = env.eng.GetResult(ctx, sum.ResultID, bob)
	wantKind(t, err, KindForbidden)
	_, err = env.eng.GetResult(ctx, "missing", alice)
	wantKind(t, err, KindNotFound)
}
