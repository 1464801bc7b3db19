package analysis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"datasetAnalyzer/models"
)

const NoGenesMessage = "No genes found in the specified date range."

// GeneCounter counts locus types of genes approved within a date range.
type GeneCounter struct {
	ds     Dataset
	logger *zap.Logger
}

func NewGeneCounter(ds Dataset, logger *zap.Logger) *GeneCounter {
	return &GeneCounter{ds: ds, logger: logger}
}

func (g *GeneCounter) Analyze(ctx context.Context, job *models.Job) (*models.Result, error) {
	start, err := time.Parse(time.DateOnly, job.Start)
	if err != nil {
		return nil, fmt.Errorf("parse start date: %w", err)
	}
	end, err := time.Parse(time.DateOnly, job.End)
	if err != nil {
		return nil, fmt.Errorf("parse end date: %w", err)
	}

	genes, err := g.ds.Genes(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	skipped := 0
	for _, gene := range genes {
		raw, _ := gene["date_approved_reserved"].(string)
		if raw == "" {
			continue
		}
		approved, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			skipped++
			continue
		}
		if approved.Before(start) || approved.After(end) {
			continue
		}
		if locus, _ := gene["locus_type"].(string); locus != "" {
			counts[locus]++
		}
	}
	if skipped > 0 {
		g.logger.Debug("Skipped genes with unparsable approval dates",
			zap.String("job_id", job.ID),
			zap.Int("skipped", skipped),
		)
	}

	if len(counts) == 0 {
		return &models.Result{Message: NoGenesMessage}, nil
	}
	return &models.Result{Counts: counts}, nil
}
