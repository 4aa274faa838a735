// Package handler exposes the exam engine as a JSON HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pavelanni/examgen/internal/engine"
	appI18n "github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/model"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Config holds HTTP-layer settings.
type Config struct {
	CORSOrigins []string
	Lang        string
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	eng    *engine.Engine
	auth   *Auth
	config Config
}

// New creates a new Handler.
func New(eng *engine.Engine, auth *Auth, cfg Config) (*Handler, error) {
	if eng == nil {
		return nil, errors.New("handler: engine is required")
	}
	if auth == nil {
		return nil, errors.New("handler: auth is required")
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	return &Handler{eng: eng, auth: auth, config: cfg}, nil
}

// Router builds the full middleware stack and route table.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(h.config.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept-Language"},
			ExposedHeaders:   []string{"Content-Length", "Content-Language"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(appI18n.Middleware(h.config.Lang))

	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Use(h.auth.Middleware)
		h.Routes(r)
	})
	return r
}

// Routes registers the authenticated API routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/exams", h.handleCreateExam)
	r.Get("/exams", h.handleListExams)
	r.Get("/exams/{examID}", h.handleGetExam)
	r.Delete("/exams/{examID}", h.handleDeleteExam)
	r.Post("/exams/{examID}/start", h.handleStart)
	r.Post("/exams/{examID}/submit", h.handleSubmit)
	r.Put("/exams/{examID}/share", h.handleUpdateSharing)
	r.Get("/exams/{examID}/questions", h.handleListQuestions)
	r.Get("/exams/{examID}/submissions", h.handleListSubmissions)
	r.Get("/exams/{examID}/export", h.handleExport)
	r.Post("/exams/{examID}/grade-text-batch", h.handleBatchGrade)
	r.Put("/questions/{questionID}", h.handleUpdateQuestion)
	r.Get("/submissions", h.handleListAllSubmissions)
	r.Get("/results/{resultID}", h.handleGetResult)
	r.Delete("/results/{resultID}", h.handleResetAttempt)
	r.Put("/results/{resultID}/grade/{questionID}", h.handleManualGrade)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var req engine.CreateExamRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	exam, err := h.eng.CreateExam(r.Context(), actorFrom(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exam)
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.eng.ListExams(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	view, err := h.eng.GetExamView(r.Context(), chi.URLParam(r, "examID"), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.DeleteExam(r.Context(), chi.URLParam(r, "examID"), actorFrom(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.eng.Start(r.Context(), chi.URLParam(r, "examID"), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

type submitRequest struct {
	Answers []engine.SubmittedAnswer `json:"answers"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	summary, err := h.eng.Submit(r.Context(), chi.URLParam(r, "examID"), actorFrom(r), req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleUpdateSharing(w http.ResponseWriter, r *http.Request) {
	var upd engine.SharingUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	exam, err := h.eng.UpdateSharing(r.Context(), chi.URLParam(r, "examID"), actorFrom(r), upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.eng.ListQuestionsForReview(r.Context(), chi.URLParam(r, "examID"), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	results, err := h.eng.ListSubmissions(r.Context(), chi.URLParam(r, "examID"), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []model.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleListAllSubmissions(w http.ResponseWriter, r *http.Request) {
	results, err := h.eng.ListAllSubmissions(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []model.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	export, err := h.eng.ExportResults(r.Context(), chi.URLParam(r, "examID"), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

type batchResponse struct {
	engine.BatchSummary
	Message string `json:"message"`
}

func (h *Handler) handleBatchGrade(w http.ResponseWriter, r *http.Request) {
	summary, err := h.eng.TriggerBatchGrade(r.Context(), chi.URLParam(r, "examID"), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := appI18n.Tp(r.Context(), "AnswersGraded", summary.Graded)
	if summary.Pending > 0 {
		msg += " " + appI18n.Tp(r.Context(), "AnswersPending", summary.Pending)
	}
	writeJSON(w, http.StatusOK, batchResponse{BatchSummary: summary, Message: msg})
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var upd engine.QuestionUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	q, err := h.eng.UpdateQuestion(r.Context(), chi.URLParam(r, "questionID"), actorFrom(r), upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) handleGetResult(w http.ResponseWriter, r *http.Request) {
	review, err := h.eng.GetResult(r.Context(), chi.URLParam(r, "resultID"), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *Handler) handleResetAttempt(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.ResetAttempt(r.Context(), chi.URLParam(r, "resultID"), actorFrom(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type manualGradeRequest struct {
	IsCorrect *bool  `json:"is_correct"`
	Feedback  string `json:"feedback"`
}

func (h *Handler) handleManualGrade(w http.ResponseWriter, r *http.Request) {
	var req manualGradeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsCorrect == nil {
		writeProblem(w, r, http.StatusBadRequest, string(engine.KindInvalidRequest), "ErrInvalidRequest", "is_correct is required")
		return
	}
	res, err := h.eng.ManualGrade(r.Context(), chi.URLParam(r, "resultID"), chi.URLParam(r, "questionID"),
		actorFrom(r), *req.IsCorrect, req.Feedback)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decodeJSON reads the request body into v. On failure it writes a 400
// response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeProblem(w, r, http.StatusBadRequest, string(engine.KindInvalidRequest), "ErrBadJSON", err.Error())
		return false
	}
	return true
}

func actorFrom(r *http.Request) model.Actor {
	a, _ := model.ActorFromContext(r.Context())
	return a
}
