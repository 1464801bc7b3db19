package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"datasetAnalyzer/models"
	"datasetAnalyzer/repository"
	"datasetAnalyzer/store"
	"datasetAnalyzer/worker/analysis"
)

// ProcessingError is a failure of the job itself. It ends the job in status
// error; the worker moves on.
type ProcessingError struct {
	JobID string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing job %s: %v", e.JobID, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

type JobRepository interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	SetStatus(ctx context.Context, id string, status models.JobStatus) (*models.Job, error)
	Fail(ctx context.Context, id string, message string) (*models.Job, error)
	MarkMalformed(ctx context.Context, id string, message string) (*models.Job, error)
}

type ResultRepository interface {
	Save(ctx context.Context, result *models.Result) error
}

type Processor struct {
	jobs     JobRepository
	results  ResultRepository
	analyzer analysis.Analyzer
	logger   *zap.Logger
	now      func() time.Time
}

func NewProcessor(jobs JobRepository, results ResultRepository, analyzer analysis.Analyzer, logger *zap.Logger) *Processor {
	return &Processor{
		jobs:     jobs,
		results:  results,
		analyzer: analyzer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Process takes one job from submitted to a terminal status. A returned
// error means the job was not finished and must not be acknowledged;
// it wraps store.ErrUnavailable when the stores could not be reached.
func (p *Processor) Process(ctx context.Context, id string) error {
	logger := p.logger.With(zap.String("job_id", id))

	if _, err := p.jobs.SetStatus(ctx, id, models.StatusInProgress); err != nil {
		switch {
		case errors.Is(err, repository.ErrJobNotFound):
			logger.Warn("Job record missing, dropping queue entry")
			return nil
		case errors.Is(err, repository.ErrInvalidTransition):
			logger.Info("Job already finished, skipping duplicate delivery", zap.Error(err))
			return nil
		case errors.Is(err, repository.ErrMalformedJob):
			return p.markMalformed(ctx, logger, id, err)
		default:
			return err
		}
	}

	job, err := p.jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return err
		}
		if errors.Is(err, repository.ErrMalformedJob) {
			return p.markMalformed(ctx, logger, id, err)
		}
		return p.fail(ctx, logger, id, &ProcessingError{JobID: id, Err: err})
	}

	started := p.now()
	result, err := p.analyze(ctx, job)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return err
		}
		return p.fail(ctx, logger, id, err)
	}

	result.JobID = id
	result.CreatedAt = p.now()
	if err := p.results.Save(ctx, result); err != nil {
		switch {
		case errors.Is(err, repository.ErrResultExists):
			logger.Info("Result already written by an earlier delivery")
		case errors.Is(err, store.ErrUnavailable):
			return err
		default:
			return p.fail(ctx, logger, id, &ProcessingError{JobID: id, Err: err})
		}
	}

	if _, err := p.jobs.SetStatus(ctx, id, models.StatusComplete); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			logger.Warn("Job reached a terminal status concurrently", zap.Error(err))
			return nil
		}
		return err
	}

	logger.Info("Job completed",
		zap.Strings("artifacts", result.ArtifactKeys()),
		zap.Duration("duration", p.now().Sub(started)),
	)
	return nil
}

// analyze runs the analyzer and turns its failures, panics included, into
// a ProcessingError.
func (p *Processor) analyze(ctx context.Context, job *models.Job) (result *models.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Analysis panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			result = nil
			err = &ProcessingError{JobID: job.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	result, err = p.analyzer.Analyze(ctx, job)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return nil, err
		}
		return nil, &ProcessingError{JobID: job.ID, Err: err}
	}
	if result == nil {
		return nil, &ProcessingError{JobID: job.ID, Err: errors.New("analysis returned no result")}
	}
	return result, nil
}

func (p *Processor) markMalformed(ctx context.Context, logger *zap.Logger, id string, cause error) error {
	logger.Error("Job record is malformed", zap.Error(cause))

	if _, err := p.jobs.MarkMalformed(ctx, id, repository.ErrMalformedJob.Error()); err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return err
		}
		logger.Warn("Could not record malformed job", zap.Error(err))
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, logger *zap.Logger, id string, cause error) error {
	logger.Error("Job failed", zap.Error(cause))

	var perr *ProcessingError
	message := cause.Error()
	if errors.As(cause, &perr) {
		message = perr.Err.Error()
	}
	if _, err := p.jobs.Fail(ctx, id, message); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) || errors.Is(err, repository.ErrJobNotFound) {
			logger.Warn("Could not record job failure", zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}
