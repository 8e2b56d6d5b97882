package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"sqlflow/internal/domain"
)

// errorResponse is the envelope every error is returned in.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Clause  string `json:"clause,omitempty"`
}

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var parse *domain.ParseError
	var execution *domain.ExecutionError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &parse):
		return http.StatusBadRequest
	case errors.As(err, &execution):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// codeFromDomainError maps domain errors to stable error codes.
func codeFromDomainError(err error) string {
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var parse *domain.ParseError
	var execution *domain.ExecutionError

	switch {
	case errors.As(err, &notFound):
		return domain.CodeNotFound
	case errors.As(err, &validation):
		return domain.CodeValidation
	case errors.As(err, &parse):
		return domain.CodeParse
	case errors.As(err, &execution):
		return domain.CodeExecution
	default:
		return "INTERNAL_ERROR"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromDomainError(err)
	resp := errorResponse{Code: codeFromDomainError(err), Message: err.Error()}

	var execution *domain.ExecutionError
	if errors.As(err, &execution) {
		resp.Message = execution.Message
		resp.Clause = execution.Clause
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		resp.Message = "internal server error"
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("encoding response", "error", err)
	}
}
