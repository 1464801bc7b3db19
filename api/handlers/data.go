package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"datasetAnalyzer/api/dto"
	"datasetAnalyzer/api/middleware"
	"datasetAnalyzer/dataset"
)

type DataService interface {
	RefreshGenes(ctx context.Context) (*dataset.RefreshResult, error)
	Genes(ctx context.Context) ([]map[string]any, error)
	GeneIDs(ctx context.Context) ([]string, error)
	Gene(ctx context.Context, id string) (map[string]any, error)
	Clear(ctx context.Context) (int, error)
	RefreshPopulation(ctx context.Context) (*dataset.RefreshResult, error)
	PopulationYears(ctx context.Context) ([]int, error)
}

type DataHandler struct {
	service DataService
	logger  *zap.Logger
}

func NewDataHandler(service DataService, logger *zap.Logger) *DataHandler {
	return &DataHandler{service: service, logger: logger}
}

func (h *DataHandler) RefreshGenes(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	res, err := h.service.RefreshGenes(r.Context())
	if err != nil {
		handleError(w, h.logger, "Failed to refresh gene data", err, traceID)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *DataHandler) Genes(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	genes, err := h.service.Genes(r.Context())
	if err != nil {
		handleError(w, h.logger, "Failed to read gene data", err, traceID)
		return
	}
	respondJSON(w, http.StatusOK, genes)
}

func (h *DataHandler) Clear(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	n, err := h.service.Clear(r.Context())
	if err != nil {
		handleError(w, h.logger, "Failed to clear data", err, traceID)
		return
	}
	respondJSON(w, http.StatusOK, dto.DeletedResponse{Deleted: n})
}

func (h *DataHandler) GeneIDs(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	ids, err := h.service.GeneIDs(r.Context())
	if err != nil {
		handleError(w, h.logger, "Failed to list genes", err, traceID)
		return
	}
	respondJSON(w, http.StatusOK, ids)
}

func (h *DataHandler) Gene(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	gene, err := h.service.Gene(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, h.logger, "Failed to get gene", err, traceID)
		return
	}
	respondJSON(w, http.StatusOK, gene)
}

func (h *DataHandler) RefreshPopulation(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	res, err := h.service.RefreshPopulation(r.Context())
	if err != nil {
		handleError(w, h.logger, "Failed to refresh population data", err, traceID)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *DataHandler) PopulationYears(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	years, err := h.service.PopulationYears(r.Context())
	if err != nil {
		handleError(w, h.logger, "Failed to list population years", err, traceID)
		return
	}
	respondJSON(w, http.StatusOK, years)
}
