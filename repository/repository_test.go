package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"datasetAnalyzer/models"
	"datasetAnalyzer/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	s := store.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJobRepository_CreateThenGet(t *testing.T) {
	repo := NewJobRepository(newTestStore(t))
	ctx := context.Background()

	params := models.Parameters{Start: "2000", End: "2002", PlotType: models.PlotLine}
	job, err := repo.Create(ctx, params)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != models.StatusSubmitted {
		t.Errorf("status = %q, want submitted", job.Status)
	}

	got, err := repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Parameters != params {
		t.Errorf("parameters = %+v, want %+v", got.Parameters, params)
	}
	if got.Status != models.StatusSubmitted {
		t.Errorf("stored status = %q, want submitted", got.Status)
	}
}

func TestJobRepository_CreateRetriesOnCollision(t *testing.T) {
	repo := NewJobRepository(newTestStore(t))
	ctx := context.Background()

	ids := []string{"dup", "dup", "fresh"}
	repo.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := repo.Create(ctx, models.Parameters{Start: "2000-01-01", End: "2000-12-31"})
	if err != nil || first.ID != "dup" {
		t.Fatalf("first Create = %v, %v", first, err)
	}
	second, err := repo.Create(ctx, models.Parameters{Start: "1999-01-01", End: "1999-12-31"})
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if second.ID != "fresh" {
		t.Errorf("second id = %q, want fresh", second.ID)
	}

	kept, _ := repo.Get(ctx, "dup")
	if kept.Start != "2000-01-01" {
		t.Errorf("colliding create overwrote the existing record: %+v", kept.Parameters)
	}
}

func TestJobRepository_GetErrors(t *testing.T) {
	s := newTestStore(t)
	repo := NewJobRepository(s)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get unknown: err = %v, want ErrJobNotFound", err)
	}

	s.Set(ctx, "broken", []byte("{not json"))
	if _, err := repo.Get(ctx, "broken"); !errors.Is(err, ErrMalformedJob) {
		t.Errorf("Get malformed: err = %v, want ErrMalformedJob", err)
	}
}

func TestJobRepository_MarkMalformed(t *testing.T) {
	s := newTestStore(t)
	repo := NewJobRepository(s)
	ctx := context.Background()

	s.Set(ctx, "bad", []byte(`{"id":"bad","status":`))
	if _, err := repo.SetStatus(ctx, "bad", models.StatusInProgress); !errors.Is(err, ErrMalformedJob) {
		t.Fatalf("SetStatus: err = %v, want ErrMalformedJob", err)
	}

	if _, err := repo.MarkMalformed(ctx, "bad", "malformed job record"); err != nil {
		t.Fatalf("MarkMalformed: %v", err)
	}
	got, err := repo.Get(ctx, "bad")
	if err != nil {
		t.Fatalf("Get after MarkMalformed: %v", err)
	}
	if got.Status != models.StatusError || got.ErrorMessage != "malformed job record" || got.CompletedAt == nil {
		t.Errorf("job = %+v", got)
	}

	// A record that decodes keeps its parameters and is failed normally.
	job, _ := repo.Create(ctx, models.Parameters{Start: "2000", End: "2002"})
	got, err = repo.MarkMalformed(ctx, job.ID, "boom")
	if err != nil {
		t.Fatalf("MarkMalformed on valid record: %v", err)
	}
	if got.Status != models.StatusError || got.Start != "2000" {
		t.Errorf("job = %+v", got)
	}

	if _, err := repo.MarkMalformed(ctx, "ghost", "x"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("MarkMalformed unknown: err = %v, want ErrJobNotFound", err)
	}
}

func TestJobRepository_SetStatusForwardOnly(t *testing.T) {
	repo := NewJobRepository(newTestStore(t))
	ctx := context.Background()
	job, _ := repo.Create(ctx, models.Parameters{Start: "2000", End: "2001", PlotType: models.PlotBar})

	if _, err := repo.SetStatus(ctx, job.ID, models.StatusInProgress); err != nil {
		t.Fatalf("-> in_progress: %v", err)
	}
	// Redelivered job resumes.
	if _, err := repo.SetStatus(ctx, job.ID, models.StatusInProgress); err != nil {
		t.Fatalf("in_progress -> in_progress: %v", err)
	}
	done, err := repo.SetStatus(ctx, job.ID, models.StatusComplete)
	if err != nil {
		t.Fatalf("-> complete: %v", err)
	}
	if done.CompletedAt == nil {
		t.Error("CompletedAt not set on terminal status")
	}

	_, err = repo.SetStatus(ctx, job.ID, models.StatusInProgress)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete -> in_progress: err = %v, want ErrInvalidTransition", err)
	}
	var terr *TransitionError
	if !errors.As(err, &terr) || terr.From != models.StatusComplete {
		t.Errorf("TransitionError = %+v", terr)
	}

	got, _ := repo.Get(ctx, job.ID)
	if got.Status != models.StatusComplete {
		t.Errorf("status after rejected transition = %q", got.Status)
	}
}

func TestJobRepository_FailRecordsMessage(t *testing.T) {
	repo := NewJobRepository(newTestStore(t))
	ctx := context.Background()
	job, _ := repo.Create(ctx, models.Parameters{Start: "2000", End: "2001"})

	if _, err := repo.Fail(ctx, job.ID, "boom"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, _ := repo.Get(ctx, job.ID)
	if got.Status != models.StatusError || got.ErrorMessage != "boom" {
		t.Errorf("job = %q/%q, want error/boom", got.Status, got.ErrorMessage)
	}
}

func TestJobRepository_SetStatusUnknown(t *testing.T) {
	repo := NewJobRepository(newTestStore(t))
	_, err := repo.SetStatus(context.Background(), "ghost", models.StatusInProgress)
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestJobRepository_ConcurrentTerminalTransitions(t *testing.T) {
	repo := NewJobRepository(newTestStore(t))
	ctx := context.Background()
	job, _ := repo.Create(ctx, models.Parameters{Start: "2000", End: "2001"})
	repo.SetStatus(ctx, job.ID, models.StatusInProgress)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, status := range []models.JobStatus{models.StatusComplete, models.StatusError} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = repo.SetStatus(ctx, job.ID, status)
		}()
	}
	wg.Wait()

	failures := 0
	for _, err := range results {
		if errors.Is(err, ErrInvalidTransition) {
			failures++
		} else if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if failures != 1 {
		t.Errorf("%d transitions rejected, want exactly 1", failures)
	}
}

func TestJobRepository_ListAndDelete(t *testing.T) {
	repo := NewJobRepository(newTestStore(t))
	ctx := context.Background()

	ids, err := repo.List(ctx)
	if err != nil || len(ids) != 0 {
		t.Fatalf("List on empty store = %v, %v", ids, err)
	}

	var created []string
	for i := 0; i < 3; i++ {
		job, _ := repo.Create(ctx, models.Parameters{Start: "2000", End: "2001"})
		created = append(created, job.ID)
	}
	ids, _ = repo.List(ctx)
	sort.Strings(ids)
	sort.Strings(created)
	if len(ids) != 3 || ids[0] != created[0] || ids[2] != created[2] {
		t.Errorf("List = %v, want %v", ids, created)
	}

	if err := repo.Delete(ctx, created[0]); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, created[0]); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("second Delete: err = %v, want ErrJobNotFound", err)
	}

	n, err := repo.DeleteAll(ctx)
	if err != nil || n != 2 {
		t.Errorf("DeleteAll = %d, %v; want 2, nil", n, err)
	}
	ids, _ = repo.List(ctx)
	if len(ids) != 0 {
		t.Errorf("List after DeleteAll = %v", ids)
	}
}

func TestResultRepository_SaveOnce(t *testing.T) {
	repo := NewResultRepository(newTestStore(t))
	ctx := context.Background()

	if _, err := repo.Get(ctx, "j1"); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("Get before Save: err = %v, want ErrResultNotFound", err)
	}

	first := &models.Result{JobID: "j1", Counts: map[string]int{"gene with protein product": 3}}
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second := &models.Result{JobID: "j1", Message: "other"}
	if err := repo.Save(ctx, second); !errors.Is(err, ErrResultExists) {
		t.Fatalf("second Save: err = %v, want ErrResultExists", err)
	}

	got, err := repo.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Counts["gene with protein product"] != 3 || got.Message != "" {
		t.Errorf("result = %+v, want the first write", got)
	}
}

func TestResultRepository_BinaryArtifactsSurvive(t *testing.T) {
	repo := NewResultRepository(newTestStore(t))
	ctx := context.Background()

	png := []byte{0x89, 'P', 'N', 'G', 0, 1, 2}
	repo.Save(ctx, &models.Result{JobID: "j2", Image: png, Images: map[string][]byte{"2000": png}})

	got, _ := repo.Get(ctx, "j2")
	if string(got.Image) != string(png) || string(got.Images["2000"]) != string(png) {
		t.Errorf("artifacts changed in storage")
	}
}
