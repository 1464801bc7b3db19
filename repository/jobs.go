package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"datasetAnalyzer/models"
	"datasetAnalyzer/store"
)

const maxCreateAttempts = 3

type JobRepository struct {
	store store.Store
	newID func() string
	now   func() time.Time
}

func NewJobRepository(s store.Store) *JobRepository {
	return &JobRepository{
		store: s,
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new job in status submitted. An existing record is never
// overwritten; on an id collision a fresh id is drawn.
func (r *JobRepository) Create(ctx context.Context, params models.Parameters) (*models.Job, error) {
	now := r.now()
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		job := &models.Job{
			ID:         r.newID(),
			Status:     models.StatusSubmitted,
			Parameters: params,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		data, err := json.Marshal(job)
		if err != nil {
			return nil, fmt.Errorf("marshal job: %w", err)
		}
		ok, err := r.store.SetNX(ctx, job.ID, data)
		if err != nil {
			return nil, fmt.Errorf("create job: %w", err)
		}
		if ok {
			return job, nil
		}
	}
	return nil, fmt.Errorf("create job: id collision after %d attempts", maxCreateAttempts)
}

func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	data, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return decodeJob(id, data)
}

// SetStatus moves the job to status. The check against the current status
// and the write happen in one atomic update.
func (r *JobRepository) SetStatus(ctx context.Context, id string, status models.JobStatus) (*models.Job, error) {
	return r.transition(ctx, id, status, "")
}

// Fail moves the job to status error and records message.
func (r *JobRepository) Fail(ctx context.Context, id string, message string) (*models.Job, error) {
	return r.transition(ctx, id, models.StatusError, message)
}

// MarkMalformed replaces a record that no longer decodes with one in status
// error carrying message. A record that does decode is failed through Fail.
func (r *JobRepository) MarkMalformed(ctx context.Context, id string, message string) (*models.Job, error) {
	var (
		updated *models.Job
		valid   bool
	)
	err := r.store.Update(ctx, id, func(current []byte) ([]byte, error) {
		if _, err := decodeJob(id, current); err == nil {
			valid = true
			return current, nil
		}
		now := r.now()
		updated = &models.Job{
			ID:           id,
			Status:       models.StatusError,
			ErrorMessage: message,
			CreatedAt:    now,
			UpdatedAt:    now,
			CompletedAt:  &now,
		}
		return json.Marshal(updated)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("mark job %s malformed: %w", id, err)
	}
	if valid {
		return r.Fail(ctx, id, message)
	}
	return updated, nil
}

func (r *JobRepository) transition(ctx context.Context, id string, next models.JobStatus, message string) (*models.Job, error) {
	var updated *models.Job
	err := r.store.Update(ctx, id, func(current []byte) ([]byte, error) {
		job, err := decodeJob(id, current)
		if err != nil {
			return nil, err
		}
		if !job.Status.CanTransition(next) {
			return nil, &TransitionError{JobID: id, From: job.Status, To: next}
		}
		if job.Status != next {
			now := r.now()
			job.Status = next
			job.UpdatedAt = now
			if next.IsTerminal() {
				job.CompletedAt = &now
			}
		}
		if message != "" {
			job.ErrorMessage = message
		}
		updated = job
		return json.Marshal(job)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrMalformedJob) {
			return nil, err
		}
		return nil, fmt.Errorf("set status %s on job %s: %w", next, id, err)
	}
	return updated, nil
}

// List returns every job id in no particular order.
func (r *JobRepository) List(ctx context.Context) ([]string, error) {
	ids, err := r.store.Keys(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (r *JobRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.store.Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// DeleteAll removes every job record and returns how many there were.
// Results are left in place.
func (r *JobRepository) DeleteAll(ctx context.Context) (int, error) {
	ids, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	if err := r.store.Delete(ctx, ids...); err != nil {
		return 0, fmt.Errorf("delete all jobs: %w", err)
	}
	return len(ids), nil
}

func decodeJob(id string, data []byte) (*models.Job, error) {
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedJob, id, err)
	}
	if job.ID != id || !job.Status.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrMalformedJob, id)
	}
	return &job, nil
}
