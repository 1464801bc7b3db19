package analysis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"datasetAnalyzer/dataset"
	"datasetAnalyzer/models"
)

var ErrNoData = errors.New("no data for requested analysis")

// Dataset is the read side of the dataset cache used by analyses.
type Dataset interface {
	Genes(ctx context.Context) ([]map[string]any, error)
	PopulationYear(ctx context.Context, year int) ([]dataset.PopulationRow, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, job *models.Job) (*models.Result, error)
}

// Dispatcher routes a job to the gene counter or the population plotter
// depending on whether a plot type was requested.
type Dispatcher struct {
	genes      *GeneCounter
	population *PopulationPlotter
}

func NewDispatcher(ds Dataset, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		genes:      NewGeneCounter(ds, logger),
		population: NewPopulationPlotter(ds, NewRenderer(logger), logger),
	}
}

func (d *Dispatcher) Analyze(ctx context.Context, job *models.Job) (*models.Result, error) {
	normalized := *job
	normalized.Parameters = job.Normalized()
	job = &normalized

	if job.IsPlot() {
		return d.population.Analyze(ctx, job)
	}
	return d.genes.Analyze(ctx, job)
}

// yearOf accepts YYYY or YYYY-MM-DD.
func yearOf(s string) (int, error) {
	if len(s) < 4 {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return y, nil
}
