package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"datasetAnalyzer/api/dto"
	"datasetAnalyzer/api/service"
	"datasetAnalyzer/api/validation"
	"datasetAnalyzer/dataset"
	"datasetAnalyzer/repository"
	"datasetAnalyzer/store"
)

// statusFor maps domain errors to an HTTP status and a short code.
func statusFor(err error) (int, string) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "invalid_parameters"
	case errors.Is(err, repository.ErrJobNotFound):
		return http.StatusNotFound, "job_not_found"
	case errors.Is(err, repository.ErrResultNotFound):
		return http.StatusNotFound, "result_not_found"
	case errors.Is(err, dataset.ErrNotCached), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrNoArtifacts):
		return http.StatusNotFound, "no_artifacts"
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func handleError(w http.ResponseWriter, logger *zap.Logger, message string, err error, traceID string) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(message,
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
	} else {
		logger.Debug(message,
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
	}

	// Client errors carry their cause; server errors do not leak internals.
	text := message
	if status < http.StatusInternalServerError {
		text = err.Error()
	}
	respondJSON(w, status, dto.ErrorResponse{
		Error:   text,
		Code:    code,
		TraceID: traceID,
	})
}

func badRequest(w http.ResponseWriter, message string, traceID string) {
	respondJSON(w, http.StatusBadRequest, dto.ErrorResponse{
		Error:   message,
		Code:    "bad_request",
		TraceID: traceID,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
