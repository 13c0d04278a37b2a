package taskstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hochfrequenz/docai-batch/internal/config"
	"github.com/hochfrequenz/docai-batch/internal/domain"
)

func sampleReport(id string, started time.Time) *domain.BatchReport {
	finished := started.Add(3 * time.Second)
	ok := domain.NewSuccess(domain.NewTask(id, 1, "inputs/Sheets.pdf"), &domain.Extraction{
		Content:       "hello",
		PageCount:     2,
		TableCount:    1,
		ProcessorInfo: "abc",
		Tables:        []domain.Table{{Headers: []string{"a", "b"}, Rows: [][]string{{"1", "2"}}}},
	}, started, started.Add(time.Second))
	ok.WorkerID = 2
	bad := domain.NewFailure(domain.NewTask(id, 0, "inputs/broken.pdf"), domain.KindInvalidDocument, "unsupported", started, finished)
	return domain.NewBatchReport(id, "nightly", 2, []domain.TaskResult{ok, bad}, started, finished)
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveAndGetBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	report := sampleReport("b1", started)
	if err := store.SaveBatch(ctx, report); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetBatch(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}

	if got.Name != "nightly" || got.Workers != 2 {
		t.Errorf("got %s/%d, want nightly/2", got.Name, got.Workers)
	}
	if got.TotalTasks != 2 || got.Succeeded != 1 || got.Failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1", got.TotalTasks, got.Succeeded, got.Failed)
	}
	if got.WallClock != 3*time.Second {
		t.Errorf("WallClock = %v, want 3s", got.WallClock)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if len(got.PerTask) != 2 {
		t.Fatalf("PerTask count = %d, want 2", len(got.PerTask))
	}

	// completion order is preserved
	first := got.PerTask[0]
	if first.DocumentID != "inputs/Sheets.pdf" || first.Seq != 1 || first.WorkerID != 2 {
		t.Errorf("PerTask[0] = %+v", first)
	}
	if !first.Succeeded() || first.Extraction.TableCount != 1 || len(first.Extraction.Tables) != 1 {
		t.Errorf("PerTask[0].Extraction = %+v", first.Extraction)
	}
	if first.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", first.Duration)
	}

	second := got.PerTask[1]
	if second.Succeeded() {
		t.Error("PerTask[1] should be a failure")
	}
	if second.Failure.Kind != domain.KindInvalidDocument || second.Failure.Message != "unsupported" {
		t.Errorf("PerTask[1].Failure = %+v", second.Failure)
	}
}

func TestStore_SaveBatchTwiceReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	started := time.Now().UTC()

	report := sampleReport("b1", started)
	if err := store.SaveBatch(ctx, report); err != nil {
		t.Fatal(err)
	}
	report.Name = "renamed"
	report.PerTask = report.PerTask[:1]
	if err := store.SaveBatch(ctx, report); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetBatch(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "renamed" {
		t.Errorf("Name = %q, want renamed", got.Name)
	}
	if len(got.PerTask) != 1 {
		t.Errorf("PerTask count = %d, want 1", len(got.PerTask))
	}
}

func TestStore_GetBatchNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetBatch(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestStore_ListBatches(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		if err := store.SaveBatch(ctx, sampleReport(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.ListBatches(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("count = %d, want 3", len(all))
	}
	if all[0].ID != "new" || all[2].ID != "old" {
		t.Errorf("order = %s, %s, %s, want newest first", all[0].ID, all[1].ID, all[2].ID)
	}

	limited, err := store.ListBatches(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limited count = %d, want 2", len(limited))
	}
}

func TestStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveBatch(context.Background(), sampleReport("b1", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if _, err := reopened.GetBatch(context.Background(), "b1"); err != nil {
		t.Errorf("GetBatch after reopen: %v", err)
	}
}

func TestOpen_DefaultsToSQLite(t *testing.T) {
	store, err := Open(context.Background(), config.StorageConfig{
		DatabasePath: filepath.Join(t.TempDir(), "history.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, ok := store.(*SQLiteStore); !ok {
		t.Errorf("Open returned %T, want *SQLiteStore", store)
	}
}

func TestSummarize(t *testing.T) {
	report := sampleReport("b1", time.Now())
	sum := Summarize(report)
	if sum.ID != "b1" || sum.TotalTasks != 2 || sum.Throughput != report.Throughput {
		t.Errorf("Summarize = %+v", sum)
	}
}

// TestPostgresStore runs against a real server when DOCAI_TEST_DATABASE_URL is set
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("DOCAI_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DOCAI_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := NewPostgres(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	id := "test-" + time.Now().Format("150405.000000")
	if err := store.SaveBatch(ctx, sampleReport(id, time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetBatch(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.PerTask) != 2 || got.PerTask[1].Failure == nil {
		t.Errorf("PerTask = %+v", got.PerTask)
	}
	if _, err := store.GetBatch(ctx, "missing-"+id); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
