package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"datasetAnalyzer/api/dto"
	"datasetAnalyzer/api/validation"
	"datasetAnalyzer/models"
	"datasetAnalyzer/queue"
	"datasetAnalyzer/repository"
)

const pendingMessage = "Job not complete yet"

var ErrNoArtifacts = errors.New("job has no downloadable artifacts")

// Bundle is a downloadable artifact.
type Bundle struct {
	Filename    string
	ContentType string
	Data        []byte
}

type JobService struct {
	jobs    *repository.JobRepository
	results *repository.ResultRepository
	queue   queue.Queue
	logger  *zap.Logger
}

func NewJobService(jobs *repository.JobRepository, results *repository.ResultRepository, q queue.Queue, logger *zap.Logger) *JobService {
	return &JobService{
		jobs:    jobs,
		results: results,
		queue:   q,
		logger:  logger,
	}
}

// Submit validates the request, records the job and enqueues its id.
// Nothing is written when validation fails.
func (s *JobService) Submit(ctx context.Context, traceID string, req *dto.SubmitJobRequest) (*models.Job, error) {
	params := req.Parameters()
	if err := validation.Parameters(params); err != nil {
		return nil, err
	}

	job, err := s.jobs.Create(ctx, params)
	if err != nil {
		return nil, err
	}

	if err := s.queue.Push(ctx, job.ID); err != nil {
		// The record would otherwise sit in submitted forever.
		if _, ferr := s.jobs.Fail(ctx, job.ID, "could not enqueue job"); ferr != nil {
			s.logger.Error("Failed to mark unqueued job as error",
				zap.String("trace_id", traceID),
				zap.String("job_id", job.ID),
				zap.Error(ferr),
			)
		}
		return nil, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}

	s.logger.Info("Job submitted",
		zap.String("trace_id", traceID),
		zap.String("job_id", job.ID),
		zap.String("plot_type", params.PlotType),
	)
	return job, nil
}

func (s *JobService) Get(ctx context.Context, id string) (*models.Job, error) {
	return s.jobs.Get(ctx, id)
}

func (s *JobService) List(ctx context.Context) ([]string, error) {
	return s.jobs.List(ctx)
}

func (s *JobService) Delete(ctx context.Context, id string) error {
	return s.jobs.Delete(ctx, id)
}

func (s *JobService) DeleteAll(ctx context.Context) (int, error) {
	return s.jobs.DeleteAll(ctx)
}

// Results returns the outcome of a completed job, or a pending view.
func (s *JobService) Results(ctx context.Context, id string) (*dto.ResultResponse, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.StatusComplete {
		resp := &dto.ResultResponse{Job: job, Pending: !job.Status.IsTerminal(), Message: pendingMessage}
		if job.Status == models.StatusError {
			resp.Message = "Job failed: " + job.ErrorMessage
		}
		return resp, nil
	}

	result, err := s.results.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	body := &dto.ResultBody{
		Counts:    result.Counts,
		Message:   result.Message,
		Data:      result.Data,
		Artifacts: result.ArtifactKeys(),
	}
	if len(result.Images) > 0 {
		body.Images = result.ImageNames()
	}
	if len(body.Artifacts) > 0 {
		body.Download = "/download/" + id
	}
	return &dto.ResultResponse{Job: job, Result: body}, nil
}

// Artifact packages the binary output of a completed job.
func (s *JobService) Artifact(ctx context.Context, id string) (*Bundle, error) {
	if _, err := s.jobs.Get(ctx, id); err != nil {
		return nil, err
	}
	result, err := s.results.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case len(result.Image) > 0:
		return &Bundle{Filename: "plot.png", ContentType: "image/png", Data: result.Image}, nil
	case len(result.Animation) > 0:
		return &Bundle{Filename: "animation.gif", ContentType: "image/gif", Data: result.Animation}, nil
	case len(result.Images) > 0:
		data, err := zipImages(result)
		if err != nil {
			return nil, err
		}
		return &Bundle{Filename: id + ".zip", ContentType: "application/zip", Data: data}, nil
	default:
		return nil, ErrNoArtifacts
	}
}

func zipImages(result *models.Result) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range result.ImageNames() {
		w, err := zw.Create(name + ".png")
		if err != nil {
			return nil, fmt.Errorf("zip %s: %w", name, err)
		}
		if _, err := w.Write(result.Images[name]); err != nil {
			return nil, fmt.Errorf("zip %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}
