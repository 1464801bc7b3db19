package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"datasetAnalyzer/api/dto"
	"datasetAnalyzer/api/validation"
	"datasetAnalyzer/models"
	"datasetAnalyzer/repository"
	"datasetAnalyzer/store"
)

type mockQueue struct {
	mu      sync.Mutex
	pushed  []string
	pushErr error
}

func (q *mockQueue) Push(ctx context.Context, id string) error {
	if q.pushErr != nil {
		return q.pushErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed = append(q.pushed, id)
	return nil
}

func (q *mockQueue) Pop(ctx context.Context) (string, error)      { return "", errors.New("not used") }
func (q *mockQueue) Ack(ctx context.Context, id string) error     { return nil }
func (q *mockQueue) Extend(ctx context.Context, id string) error  { return nil }
func (q *mockQueue) Release(ctx context.Context, id string) error { return nil }
func (q *mockQueue) Reap(ctx context.Context) (int, error)        { return 0, nil }
func (q *mockQueue) Close() error                                 { return nil }

type fixture struct {
	svc     *JobService
	jobs    *repository.JobRepository
	results *repository.ResultRepository
	queue   *mockQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	jobsClient := redis.NewClient(&redis.Options{Addr: mr.Addr(), DB: 2})
	resultsClient := redis.NewClient(&redis.Options{Addr: mr.Addr(), DB: 3})
	t.Cleanup(func() {
		jobsClient.Close()
		resultsClient.Close()
	})
	f := &fixture{
		jobs:    repository.NewJobRepository(store.NewRedisStore(jobsClient)),
		results: repository.NewResultRepository(store.NewRedisStore(resultsClient)),
		queue:   &mockQueue{},
	}
	f.svc = NewJobService(f.jobs, f.results, f.queue, zaptest.NewLogger(t))
	return f
}

func TestJobService_SubmitThenGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.Submit(ctx, "trace", &dto.SubmitJobRequest{Start: "2000", End: "2002", PlotType: "line"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(f.queue.pushed) != 1 || f.queue.pushed[0] != job.ID {
		t.Errorf("pushed = %v, want [%s]", f.queue.pushed, job.ID)
	}

	got, err := f.svc.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.StatusSubmitted {
		t.Errorf("status = %q, want submitted", got.Status)
	}
	want := models.Parameters{Start: "2000", End: "2002", PlotType: "line"}
	if got.Parameters != want {
		t.Errorf("parameters = %+v, want %+v", got.Parameters, want)
	}
}

func TestJobService_SubmitStoresParametersVerbatim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.Submit(ctx, "", &dto.SubmitJobRequest{Start: "2000", End: " 2002", PlotType: "Line", Location: "World "})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got, err := f.svc.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := models.Parameters{Start: "2000", End: " 2002", PlotType: "Line", Location: "World "}
	if got.Parameters != want {
		t.Errorf("parameters = %+v, want %+v", got.Parameters, want)
	}
}

func TestJobService_SubmitAcceptsGeneAliases(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.Submit(context.Background(), "", &dto.SubmitJobRequest{
		DateApprovedStart: "1990-01-01",
		DateApprovedEnd:   "1990-12-31",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Start != "1990-01-01" || job.End != "1990-12-31" || job.IsPlot() {
		t.Errorf("job = %+v", job.Parameters)
	}
}

func TestJobService_InvalidSubmissionCreatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []*dto.SubmitJobRequest{
		{Start: "2002-01-01", End: "2001-01-01"},
		{Start: "not-a-date", End: "2001-01-01"},
		{Start: "2000", End: "2002", PlotType: "pie"},
	}
	for _, req := range tests {
		_, err := f.svc.Submit(ctx, "", req)
		var verr *validation.Error
		if !errors.As(err, &verr) {
			t.Errorf("%+v: err = %v, want validation error", req, err)
		}
	}

	ids, _ := f.svc.List(ctx)
	if len(ids) != 0 || len(f.queue.pushed) != 0 {
		t.Errorf("records = %v, pushed = %v; want none", ids, f.queue.pushed)
	}
}

func TestJobService_PushFailureMarksJobError(t *testing.T) {
	f := newFixture(t)
	f.queue.pushErr = fmt.Errorf("push: %w", store.ErrUnavailable)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, "", &dto.SubmitJobRequest{Start: "2000", End: "2002", PlotType: "bar"})
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	ids, _ := f.svc.List(ctx)
	if len(ids) != 1 {
		t.Fatalf("List = %v", ids)
	}
	job, _ := f.svc.Get(ctx, ids[0])
	if job.Status != models.StatusError {
		t.Errorf("status = %q, want error", job.Status)
	}
}

func TestJobService_Results(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Results(ctx, "unknown"); !errors.Is(err, repository.ErrJobNotFound) {
		t.Fatalf("Results unknown: err = %v", err)
	}

	job, _ := f.svc.Submit(ctx, "", &dto.SubmitJobRequest{Start: "1990-01-01", End: "1990-12-31"})
	pending, err := f.svc.Results(ctx, job.ID)
	if err != nil {
		t.Fatalf("Results pending: %v", err)
	}
	if !pending.Pending || pending.Result != nil || pending.Job.ID != job.ID {
		t.Errorf("pending view = %+v", pending)
	}

	f.jobs.SetStatus(ctx, job.ID, models.StatusInProgress)
	f.results.Save(ctx, &models.Result{JobID: job.ID, Counts: map[string]int{"pseudogene": 4}})
	f.jobs.SetStatus(ctx, job.ID, models.StatusComplete)

	first, err := f.svc.Results(ctx, job.ID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if first.Pending || first.Result == nil || first.Result.Counts["pseudogene"] != 4 {
		t.Fatalf("complete view = %+v", first)
	}
	second, _ := f.svc.Results(ctx, job.ID)
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated Results calls differ")
	}
}

func TestJobService_FailedJobHasNoResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, _ := f.svc.Submit(ctx, "", &dto.SubmitJobRequest{Start: "2000", End: "2002", PlotType: "line"})
	f.jobs.SetStatus(ctx, job.ID, models.StatusInProgress)
	f.jobs.Fail(ctx, job.ID, "no data")

	view, err := f.svc.Results(ctx, job.ID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if view.Result != nil || view.Pending || view.Job.Status != models.StatusError {
		t.Errorf("view = %+v", view)
	}
	if _, err := f.svc.Artifact(ctx, job.ID); !errors.Is(err, repository.ErrResultNotFound) {
		t.Errorf("Artifact: err = %v, want ErrResultNotFound", err)
	}
}

func completeWith(t *testing.T, f *fixture, result *models.Result) string {
	t.Helper()
	ctx := context.Background()
	job, err := f.svc.Submit(ctx, "", &dto.SubmitJobRequest{Start: "2000", End: "2001", PlotType: "scatter"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	result.JobID = job.ID
	f.jobs.SetStatus(ctx, job.ID, models.StatusInProgress)
	if err := f.results.Save(ctx, result); err != nil {
		t.Fatalf("Save: %v", err)
	}
	f.jobs.SetStatus(ctx, job.ID, models.StatusComplete)
	return job.ID
}

func TestJobService_Artifact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	png := []byte{0x89, 'P', 'N', 'G'}
	tests := []struct {
		result      *models.Result
		filename    string
		contentType string
	}{
		{&models.Result{Image: png}, "plot.png", "image/png"},
		{&models.Result{Animation: []byte("GIF89a")}, "animation.gif", "image/gif"},
	}
	for _, tt := range tests {
		id := completeWith(t, f, tt.result)
		b, err := f.svc.Artifact(ctx, id)
		if err != nil {
			t.Fatalf("Artifact: %v", err)
		}
		if b.Filename != tt.filename || b.ContentType != tt.contentType {
			t.Errorf("bundle = %s %s, want %s %s", b.Filename, b.ContentType, tt.filename, tt.contentType)
		}
	}

	id := completeWith(t, f, &models.Result{Images: map[string][]byte{"2001": png, "2000": png}})
	b, err := f.svc.Artifact(ctx, id)
	if err != nil {
		t.Fatalf("Artifact images: %v", err)
	}
	if b.ContentType != "application/zip" {
		t.Fatalf("content type = %s", b.ContentType)
	}
	zr, err := zip.NewReader(bytes.NewReader(b.Data), int64(len(b.Data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "2000.png" || zr.File[1].Name != "2001.png" {
		t.Errorf("zip entries = %v", zr.File)
	}

	id = completeWith(t, f, &models.Result{Counts: map[string]int{"a": 1}})
	if _, err := f.svc.Artifact(ctx, id); !errors.Is(err, ErrNoArtifacts) {
		t.Errorf("counts-only Artifact: err = %v, want ErrNoArtifacts", err)
	}
}

func TestJobService_DeleteAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.svc.Submit(ctx, "", &dto.SubmitJobRequest{Start: "2000", End: "2001", PlotType: "line"})
	}
	n, err := f.svc.DeleteAll(ctx)
	if err != nil || n != 3 {
		t.Fatalf("DeleteAll = %d, %v", n, err)
	}
	if ids, _ := f.svc.List(ctx); len(ids) != 0 {
		t.Errorf("List after DeleteAll = %v", ids)
	}
}
