package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"datasetAnalyzer/api/dto"
	"datasetAnalyzer/api/middleware"
	"datasetAnalyzer/api/service"
	"datasetAnalyzer/models"
)

const maxBodyBytes = 1 << 20

type JobService interface {
	Submit(ctx context.Context, traceID string, req *dto.SubmitJobRequest) (*models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int, error)
	Results(ctx context.Context, id string) (*dto.ResultResponse, error)
	Artifact(ctx context.Context, id string) (*service.Bundle, error)
}

type JobHandler struct {
	service JobService
	logger  *zap.Logger
}

func NewJobHandler(service JobService, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		service: service,
		logger:  logger,
	}
}

func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var req dto.SubmitJobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "request body must be a JSON object", traceID)
		return
	}

	job, err := h.service.Submit(r.Context(), traceID, &req)
	if err != nil {
		handleError(w, h.logger, "Failed to submit job", err, traceID)
		return
	}

	w.Header().Set("Location", "/jobs/"+job.ID)
	respondJSON(w, http.StatusAccepted, job)
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	ids, err := h.service.List(r.Context())
	if err != nil {
		handleError(w, h.logger, "Failed to list jobs", err, traceID)
		return
	}
	respondJSON(w, http.StatusOK, dto.JobListResponse{Jobs: ids})
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	job, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, h.logger, "Failed to get job", err, traceID)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		handleError(w, h.logger, "Failed to delete job", err, traceID)
		return
	}
	respondJSON(w, http.StatusOK, dto.DeletedResponse{Deleted: 1})
}

func (h *JobHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	n, err := h.service.DeleteAll(r.Context())
	if err != nil {
		handleError(w, h.logger, "Failed to delete jobs", err, traceID)
		return
	}
	h.logger.Info("Job records deleted", zap.String("trace_id", traceID), zap.Int("count", n))
	respondJSON(w, http.StatusOK, dto.DeletedResponse{Deleted: n})
}

func (h *JobHandler) Results(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	resp, err := h.service.Results(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, h.logger, "Failed to get results", err, traceID)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *JobHandler) Download(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	b, err := h.service.Artifact(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, h.logger, "Failed to get artifact", err, traceID)
		return
	}

	w.Header().Set("Content-Type", b.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+b.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(b.Data)
}
