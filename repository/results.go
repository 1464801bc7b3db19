package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"datasetAnalyzer/models"
	"datasetAnalyzer/store"
)

type ResultRepository struct {
	store store.Store
}

func NewResultRepository(s store.Store) *ResultRepository {
	return &ResultRepository{store: s}
}

// Save writes the result for its job once. A second write for the same job
// fails with ErrResultExists and leaves the first untouched.
func (r *ResultRepository) Save(ctx context.Context, result *models.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	ok, err := r.store.SetNX(ctx, result.JobID, data)
	if err != nil {
		return fmt.Errorf("save result %s: %w", result.JobID, err)
	}
	if !ok {
		return ErrResultExists
	}
	return nil
}

func (r *ResultRepository) Get(ctx context.Context, jobID string) (*models.Result, error) {
	data, err := r.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("get result %s: %w", jobID, err)
	}
	var result models.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", jobID, err)
	}
	return &result, nil
}

func (r *ResultRepository) Delete(ctx context.Context, jobID string) error {
	if err := r.store.Delete(ctx, jobID); err != nil {
		return fmt.Errorf("delete result %s: %w", jobID, err)
	}
	return nil
}
