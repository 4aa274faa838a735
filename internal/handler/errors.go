package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/pavelanni/examgen/internal/engine"
	appI18n "github.com/pavelanni/examgen/internal/i18n"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorStatus maps an engine error kind to an HTTP status and message ID.
func errorStatus(kind engine.Kind) (int, string) {
	switch kind {
	case engine.KindNotFound:
		return http.StatusNotFound, "ErrNotFound"
	case engine.KindForbidden:
		return http.StatusForbidden, "ErrForbidden"
	case engine.KindAlreadyCompleted:
		return http.StatusConflict, "ErrAlreadyCompleted"
	case engine.KindInvalidSubmission:
		return http.StatusBadRequest, "ErrInvalidSubmission"
	case engine.KindInvalidRequest:
		return http.StatusBadRequest, "ErrInvalidRequest"
	case engine.KindAttemptExpired:
		return http.StatusGone, "ErrAttemptExpired"
	case engine.KindUpstreamGrading:
		return http.StatusBadGateway, "ErrUpstreamGrading"
	case engine.KindUpstreamGeneration:
		return http.StatusBadGateway, "ErrUpstreamGeneration"
	}
	return http.StatusInternalServerError, "ErrInternal"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := engine.KindOf(err)
	status, msgID := errorStatus(kind)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	} else {
		slog.Debug("request rejected", "path", r.URL.Path, "kind", kind, "error", err)
	}

	detail := ""
	var ee *engine.Error
	if errors.As(err, &ee) {
		detail = ee.Msg
		if detail == "" && ee.Err != nil {
			detail = ee.Err.Error()
		}
	}
	writeProblem(w, r, status, string(kind), msgID, detail)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, msgID, detail string) {
	msg := appI18n.Td(r.Context(), msgID, map[string]any{"Detail": detail})
	writeJSON(w, status, errorBody{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
