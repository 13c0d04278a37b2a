package taskstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hochfrequenz/docai-batch/internal/domain"
)

// PostgresStore persists batches in PostgreSQL, for a history shared by several hosts
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and applies the schema
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveBatch inserts a report, replacing any earlier copy with the same id
func (s *PostgresStore) SaveBatch(ctx context.Context, r *domain.BatchReport) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM task_results WHERE batch_id = $1`, r.ID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO batches (id, name, workers, total_tasks, succeeded, failed, started_at, finished_at, wall_clock_ns, throughput)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				workers = EXCLUDED.workers,
				total_tasks = EXCLUDED.total_tasks,
				succeeded = EXCLUDED.succeeded,
				failed = EXCLUDED.failed,
				started_at = EXCLUDED.started_at,
				finished_at = EXCLUDED.finished_at,
				wall_clock_ns = EXCLUDED.wall_clock_ns,
				throughput = EXCLUDED.throughput
		`,
			r.ID, r.Name, r.Workers, r.TotalTasks, r.Succeeded, r.Failed,
			r.StartedAt.UTC(), r.FinishedAt.UTC(), int64(r.WallClock), r.Throughput,
		)
		if err != nil {
			return fmt.Errorf("saving batch %s: %w", r.ID, err)
		}

		batch := &pgx.Batch{}
		for i, res := range r.PerTask {
			row, err := encodeResult(res)
			if err != nil {
				return err
			}
			batch.Queue(`
				INSERT INTO task_results (batch_id, position, task_id, seq, document_id, source_ref, worker_id, status,
					error_kind, error_message, extraction, started_at, finished_at, duration_ns)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			`,
				r.ID, i, res.TaskID, res.Seq, res.DocumentID, res.SourceRef, res.WorkerID, row.status,
				optional(row.errorKind), optional(row.errorMessage), optional(string(row.extraction)),
				res.StartedAt.UTC(), res.FinishedAt.UTC(), int64(res.Duration),
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// GetBatch retrieves a report with its results in completion order
func (s *PostgresStore) GetBatch(ctx context.Context, id string) (*domain.BatchReport, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, workers, total_tasks, succeeded, failed, started_at, finished_at, wall_clock_ns, throughput
		FROM batches WHERE id = $1
	`, id)
	sum, err := scanSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	report := &domain.BatchReport{
		ID:         sum.ID,
		Name:       sum.Name,
		Workers:    sum.Workers,
		TotalTasks: sum.TotalTasks,
		Succeeded:  sum.Succeeded,
		Failed:     sum.Failed,
		StartedAt:  sum.StartedAt,
		FinishedAt: sum.FinishedAt,
		WallClock:  sum.WallClock,
		Throughput: sum.Throughput,
	}

	rows, err := s.pool.Query(ctx, `
		SELECT task_id, seq, document_id, source_ref, worker_id, status, error_kind, error_message, extraction,
			started_at, finished_at, duration_ns
		FROM task_results WHERE batch_id = $1 ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var res domain.TaskResult
		var sourceRef, kind, message, extraction *string
		var workerID *int
		var status string
		var duration int64
		if err := rows.Scan(&res.TaskID, &res.Seq, &res.DocumentID, &sourceRef, &workerID, &status,
			&kind, &message, &extraction, &res.StartedAt, &res.FinishedAt, &duration); err != nil {
			return nil, err
		}
		res.SourceRef = deref(sourceRef)
		if workerID != nil {
			res.WorkerID = *workerID
		}
		res.Duration = time.Duration(duration)
		if err := decodeResult(&res, status, deref(kind), deref(message), []byte(deref(extraction))); err != nil {
			return nil, fmt.Errorf("decoding result %s: %w", res.TaskID, err)
		}
		report.PerTask = append(report.PerTask, res)
	}
	return report, rows.Err()
}

// ListBatches returns the most recent batches first
func (s *PostgresStore) ListBatches(ctx context.Context, limit int) ([]BatchSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, workers, total_tasks, succeeded, failed, started_at, finished_at, wall_clock_ns, throughput
		FROM batches ORDER BY started_at DESC, id LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BatchSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ Store = (*PostgresStore)(nil)
