package handlers

import (
	"net/http"

	"datasetAnalyzer/api/dto"
)

// Register mounts every route on mux. submitLimit wraps POST /jobs only.
func Register(mux *http.ServeMux, jobs *JobHandler, data *DataHandler, submitLimit func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /health", Health)

	mux.HandleFunc("POST /data", data.RefreshGenes)
	mux.HandleFunc("GET /data", data.Genes)
	mux.HandleFunc("DELETE /data", data.Clear)
	mux.HandleFunc("GET /genes", data.GeneIDs)
	mux.HandleFunc("GET /genes/{id}", data.Gene)
	mux.HandleFunc("POST /population", data.RefreshPopulation)
	mux.HandleFunc("GET /population/years", data.PopulationYears)

	mux.Handle("POST /jobs", submitLimit(http.HandlerFunc(jobs.Submit)))
	mux.HandleFunc("GET /jobs", jobs.List)
	mux.HandleFunc("DELETE /jobs", jobs.DeleteAll)
	mux.HandleFunc("GET /jobs/{id}", jobs.Get)
	mux.HandleFunc("DELETE /jobs/{id}", jobs.Delete)
	mux.HandleFunc("GET /results/{id}", jobs.Results)
	mux.HandleFunc("GET /download/{id}", jobs.Download)
}

func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok"})
}
