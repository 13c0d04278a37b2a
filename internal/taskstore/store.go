// Package taskstore persists finished batch reports for the history, show and serve commands.
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hochfrequenz/docai-batch/internal/config"
	"github.com/hochfrequenz/docai-batch/internal/domain"
)

// ErrNotFound is returned when a batch id is unknown
var ErrNotFound = errors.New("batch not found")

// Store is the batch history
type Store interface {
	SaveBatch(ctx context.Context, report *domain.BatchReport) error
	GetBatch(ctx context.Context, id string) (*domain.BatchReport, error)
	ListBatches(ctx context.Context, limit int) ([]BatchSummary, error)
	Close() error
}

// BatchSummary is a batch without its per-task results
type BatchSummary struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Workers    int           `json:"workers"`
	TotalTasks int           `json:"total_tasks"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	WallClock  time.Duration `json:"wall_clock"`
	Throughput float64       `json:"throughput"`
}

// Summarize drops the per-task results of a report
func Summarize(r *domain.BatchReport) BatchSummary {
	return BatchSummary{
		ID:         r.ID,
		Name:       r.Name,
		Workers:    r.Workers,
		TotalTasks: r.TotalTasks,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		WallClock:  r.WallClock,
		Throughput: r.Throughput,
	}
}

// Open returns a Postgres store when a database URL is configured, else SQLite at the database path
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	if cfg.DatabaseURL != "" {
		return NewPostgres(ctx, cfg.DatabaseURL)
	}
	return New(cfg.DatabasePath)
}

// taskRow is the storage shape of one TaskResult
type taskRow struct {
	status       string
	errorKind    string
	errorMessage string
	extraction   []byte
}

func encodeResult(res domain.TaskResult) (taskRow, error) {
	row := taskRow{status: string(res.Status())}
	if res.Failure != nil {
		row.errorKind = string(res.Failure.Kind)
		row.errorMessage = res.Failure.Message
	}
	if res.Extraction != nil {
		data, err := json.Marshal(res.Extraction)
		if err != nil {
			return row, err
		}
		row.extraction = data
	}
	return row, nil
}

func decodeResult(res *domain.TaskResult, status, kind, message string, extraction []byte) error {
	if status == string(domain.StatusSucceeded) {
		var ext domain.Extraction
		if len(extraction) > 0 {
			if err := json.Unmarshal(extraction, &ext); err != nil {
				return err
			}
		}
		res.Extraction = &ext
		return nil
	}
	res.Failure = &domain.Failure{Kind: domain.ErrorKind(kind), Message: message}
	return nil
}
