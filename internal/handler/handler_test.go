package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/examgen/internal/engine"
	appI18n "github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/store"
)

var (
	creator = model.Actor{ID: "teacher-1", Email: "teacher@example.com"}
	alice   = model.Actor{ID: "alice", Email: "alice@example.com"}
	bob     = model.Actor{ID: "bob", Email: "bob@example.com"}
)

type graderFunc func(ctx context.Context, items []model.GradingItem) ([]model.GradingVerdict, error)

func (f graderFunc) GradeTextAnswers(ctx context.Context, items []model.GradingItem) ([]model.GradingVerdict, error) {
	return f(ctx, items)
}

type testServer struct {
	srv  *httptest.Server
	eng  *engine.Engine
	auth *Auth
}

func newTestServer(t *testing.T, grader engine.TextGrader) *testServer {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	eng := engine.New(s, engine.WithGrader(grader), engine.WithRandom(func(int) int { return 0 }))
	auth, err := NewAuth("test-secret")
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	h, err := New(eng, auth, Config{Lang: "en"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, eng: eng, auth: auth}
}

// do sends a JSON request as actor (nil for anonymous) and decodes the
// response body into out when out is non-nil.
func (ts *testServer) do(t *testing.T, actor *model.Actor, method, path string, body any, out any, headers ...string) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if actor != nil {
		tok, err := ts.auth.IssueToken(*actor, time.Hour)
		if err != nil {
			t.Fatalf("IssueToken: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (ts *testServer) importExam(t *testing.T, access model.AccessType) model.Exam {
	t.Helper()
	exam, err := ts.eng.ImportExam(context.Background(), creator, engine.ExamFile{
		Title:      "Go basics",
		AccessType: access,
		Questions: []model.QuestionTemplate{
			{Type: "single", Variations: []model.Variation{
				{Text: "2+2?", Options: []string{"3", "4"}, CorrectAnswers: []string{"4"}},
			}},
			{Type: "text", Variations: []model.Variation{
				{Text: "What is a goroutine?", CorrectAnswers: []string{"a lightweight thread"}},
			}},
		},
	})
	if err != nil {
		t.Fatalf("ImportExam: %v", err)
	}
	return exam
}

func questionIDs(t *testing.T, view engine.ExamView) (single, text string) {
	t.Helper()
	for _, q := range view.Questions {
		switch q.Type {
		case model.QuestionSingle:
			single = q.ID
		case model.QuestionText:
			text = q.ID
		}
	}
	if single == "" || text == "" {
		t.Fatalf("questions missing from view: %+v", view.Questions)
	}
	return single, text
}

func TestHealthAndAuth(t *testing.T) {
	ts := newTestServer(t, nil)

	if code := ts.do(t, nil, http.MethodGet, "/healthz", nil, nil); code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", code)
	}

	var body errorBody
	if code := ts.do(t, nil, http.MethodGet, "/api/exams", nil, &body); code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", code)
	}
	if body.Code != "unauthorized" {
		t.Errorf("code = %q, want unauthorized", body.Code)
	}

	other, err := NewAuth("other-secret")
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	tok, err := other.IssueToken(alice, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/exams", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("foreign token = %d, want 401", resp.StatusCode)
	}
}

func TestAuthTokenRoundTrip(t *testing.T) {
	auth, err := NewAuth("s3cret")
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	tok, err := auth.IssueToken(model.Actor{ID: "u1", Email: " U1@Example.com "}, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	got, err := auth.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.ID != "u1" || got.Email != "u1@example.com" {
		t.Errorf("actor = %+v", got)
	}

	auth.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := auth.Parse(tok); err == nil {
		t.Error("expected expired token to be rejected")
	}
	if _, err := NewAuth(""); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := auth.IssueToken(model.Actor{}, time.Minute); err == nil {
		t.Error("expected error for empty actor ID")
	}
}

func TestTakeExamFlow(t *testing.T) {
	grader := graderFunc(func(ctx context.Context, items []model.GradingItem) ([]model.GradingVerdict, error) {
		out := make([]model.GradingVerdict, 0, len(items))
		for _, it := range items {
			out = append(out, model.GradingVerdict{ID: it.ID, IsCorrect: true, Feedback: "good"})
		}
		return out, nil
	})
	ts := newTestServer(t, grader)
	exam := ts.importExam(t, model.AccessPublic)

	var view engine.ExamView
	if code := ts.do(t, &alice, http.MethodGet, "/api/exams/"+exam.ID, nil, &view); code != http.StatusOK {
		t.Fatalf("get exam = %d", code)
	}
	if view.UserStatus != engine.StatusNew || len(view.Questions) != 2 {
		t.Fatalf("view = %+v", view)
	}
	single, text := questionIDs(t, view)

	var attempt engine.Attempt
	if code := ts.do(t, &alice, http.MethodPost, "/api/exams/"+exam.ID+"/start", nil, &attempt); code != http.StatusOK {
		t.Fatalf("start = %d", code)
	}
	if attempt.ResultID == "" || attempt.Remaining != nil {
		t.Errorf("attempt = %+v", attempt)
	}

	submit := map[string]any{"answers": []engine.SubmittedAnswer{
		{QuestionID: single, SelectedOptions: []string{"4"}},
		{QuestionID: text, SelectedOptions: []string{"a cheap thread"}},
	}}
	var summary engine.SubmitSummary
	if code := ts.do(t, &alice, http.MethodPost, "/api/exams/"+exam.ID+"/submit", submit, &summary); code != http.StatusOK {
		t.Fatalf("submit = %d", code)
	}
	if summary.ResultID != attempt.ResultID || summary.Score != 1 || summary.PendingText != 1 {
		t.Errorf("summary = %+v", summary)
	}

	var errBody errorBody
	if code := ts.do(t, &alice, http.MethodPost, "/api/exams/"+exam.ID+"/submit", submit, &errBody); code != http.StatusConflict {
		t.Errorf("second submit = %d, want 409", code)
	}
	if errBody.Code != string(engine.KindAlreadyCompleted) {
		t.Errorf("code = %q", errBody.Code)
	}

	var forbidden errorBody
	if code := ts.do(t, &alice, http.MethodPost, "/api/exams/"+exam.ID+"/grade-text-batch", nil, &forbidden); code != http.StatusForbidden {
		t.Errorf("taker batch grade = %d, want 403", code)
	}

	var batch batchResponse
	if code := ts.do(t, &creator, http.MethodPost, "/api/exams/"+exam.ID+"/grade-text-batch", nil, &batch); code != http.StatusOK {
		t.Fatalf("batch grade = %d", code)
	}
	if batch.Graded != 1 || batch.Pending != 0 || batch.Message != "1 text answer graded." {
		t.Errorf("batch = %+v", batch)
	}

	var review engine.ResultReview
	if code := ts.do(t, &alice, http.MethodGet, "/api/results/"+attempt.ResultID, nil, &review); code != http.StatusOK {
		t.Fatalf("get result = %d", code)
	}
	if review.Score != 2 || review.ExamTitle != "Go basics" {
		t.Errorf("review score = %d title = %q", review.Score, review.ExamTitle)
	}

	var graded model.Result
	body := map[string]any{"is_correct": false, "feedback": "too vague"}
	if code := ts.do(t, &creator, http.MethodPut, "/api/results/"+attempt.ResultID+"/grade/"+text, body, &graded); code != http.StatusOK {
		t.Fatalf("manual grade = %d", code)
	}
	if graded.Score != 1 {
		t.Errorf("score after manual grade = %d, want 1", graded.Score)
	}

	var subs []model.Result
	if code := ts.do(t, &creator, http.MethodGet, "/api/exams/"+exam.ID+"/submissions", nil, &subs); code != http.StatusOK {
		t.Fatalf("submissions = %d", code)
	}
	if len(subs) != 1 || subs[0].UserID != alice.ID {
		t.Errorf("submissions = %+v", subs)
	}

	var export model.ExamExport
	if code := ts.do(t, &creator, http.MethodGet, "/api/exams/"+exam.ID+"/export", nil, &export); code != http.StatusOK {
		t.Fatalf("export = %d", code)
	}
	if len(export.Results) != 1 {
		t.Errorf("export results = %d, want 1", len(export.Results))
	}

	if code := ts.do(t, &creator, http.MethodDelete, "/api/results/"+attempt.ResultID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("reset = %d", code)
	}
	if code := ts.do(t, &alice, http.MethodGet, "/api/results/"+attempt.ResultID, nil, nil); code != http.StatusNotFound {
		t.Errorf("result after reset = %d, want 404", code)
	}
}

func TestErrorResponses(t *testing.T) {
	ts := newTestServer(t, nil)
	exam := ts.importExam(t, model.AccessPrivate)

	tests := []struct {
		name     string
		actor    *model.Actor
		method   string
		path     string
		body     any
		headers  []string
		wantCode int
		wantKind string
		wantMsg  string
	}{
		{
			name: "missing exam", actor: &alice, method: http.MethodGet, path: "/api/exams/nope",
			wantCode: http.StatusNotFound, wantKind: "not_found", wantMsg: "The requested item was not found.",
		},
		{
			name: "private exam", actor: &bob, method: http.MethodGet, path: "/api/exams/" + exam.ID,
			wantCode: http.StatusForbidden, wantKind: "forbidden",
		},
		{
			name: "localized", actor: &bob, method: http.MethodGet, path: "/api/exams/" + exam.ID,
			headers:  []string{"Accept-Language", "ru-RU,ru;q=0.9"},
			wantCode: http.StatusForbidden, wantKind: "forbidden", wantMsg: "У вас нет доступа к этому объекту.",
		},
		{
			name: "bad json", actor: &creator, method: http.MethodPost, path: "/api/exams/" + exam.ID + "/submit",
			body: "{not json", wantCode: http.StatusBadRequest, wantKind: "invalid_request",
		},
		{
			name: "unknown question", actor: &creator, method: http.MethodPost, path: "/api/exams/" + exam.ID + "/submit",
			body:     map[string]any{"answers": []engine.SubmittedAnswer{{QuestionID: "ghost", SelectedOptions: []string{"x"}}}},
			wantCode: http.StatusBadRequest, wantKind: "invalid_submission",
		},
		{
			name: "manual grade without verdict", actor: &creator, method: http.MethodPut, path: "/api/results/r1/grade/q1",
			body: map[string]any{"feedback": "hmm"}, wantCode: http.StatusBadRequest, wantKind: "invalid_request",
		},
		{
			name: "no grader configured", actor: &creator, method: http.MethodPost, path: "/api/exams/" + exam.ID + "/grade-text-batch",
			wantCode: http.StatusBadGateway, wantKind: "upstream_grading_failure",
		},
		{
			name: "unknown question edit", actor: &alice, method: http.MethodPut, path: "/api/questions/ghost",
			body: map[string]any{"type": "multi"}, wantCode: http.StatusNotFound, wantKind: "not_found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			code := ts.do(t, tt.actor, tt.method, tt.path, tt.body, &body, tt.headers...)
			if code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %+v)", code, tt.wantCode, body)
			}
			if body.Code != tt.wantKind {
				t.Errorf("code = %q, want %q", body.Code, tt.wantKind)
			}
			if tt.wantMsg != "" && body.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", body.Message, tt.wantMsg)
			}
		})
	}
}

func TestUpstreamGradingFailure(t *testing.T) {
	grader := graderFunc(func(ctx context.Context, items []model.GradingItem) ([]model.GradingVerdict, error) {
		return nil, errors.New("model overloaded")
	})
	ts := newTestServer(t, grader)
	exam := ts.importExam(t, model.AccessPublic)

	var view engine.ExamView
	ts.do(t, &alice, http.MethodGet, "/api/exams/"+exam.ID, nil, &view)
	_, text := questionIDs(t, view)
	submit := map[string]any{"answers": []engine.SubmittedAnswer{{QuestionID: text, SelectedOptions: []string{"no idea"}}}}
	if code := ts.do(t, &alice, http.MethodPost, "/api/exams/"+exam.ID+"/submit", submit, nil); code != http.StatusOK {
		t.Fatalf("submit = %d", code)
	}

	var body errorBody
	if code := ts.do(t, &creator, http.MethodPost, "/api/exams/"+exam.ID+"/grade-text-batch", nil, &body); code != http.StatusBadGateway {
		t.Fatalf("batch grade = %d, want 502", code)
	}
	if !strings.Contains(body.Message, "No answers were changed") {
		t.Errorf("message = %q", body.Message)
	}

	var subs []model.Result
	ts.do(t, &creator, http.MethodGet, "/api/exams/"+exam.ID+"/submissions", nil, &subs)
	if len(subs) != 1 || subs[0].Answers[subs[0].AnswerFor(text)].GradingStatus != model.GradingPending {
		t.Errorf("answer should still be pending: %+v", subs)
	}
}

func TestCreateExamWithoutGenerator(t *testing.T) {
	ts := newTestServer(t, nil)
	req := engine.CreateExamRequest{Title: "Draft", SourceRef: "notes.md", Count: 3}

	var body errorBody
	if code := ts.do(t, &creator, http.MethodPost, "/api/exams", req, &body); code != http.StatusBadGateway {
		t.Errorf("create = %d, want 502", code)
	}
	if body.Code != string(engine.KindUpstreamGeneration) {
		t.Errorf("code = %q", body.Code)
	}

	var exams []model.Exam
	if code := ts.do(t, &creator, http.MethodGet, "/api/exams", nil, &exams); code != http.StatusOK {
		t.Fatalf("list = %d", code)
	}
	if len(exams) != 0 {
		t.Errorf("exams = %+v, want none", exams)
	}
}
