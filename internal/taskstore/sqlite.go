package taskstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/docai-batch/internal/domain"
)

// SQLiteStore provides SQLite-backed batch persistence
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path
func New(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveBatch inserts a report, replacing any earlier copy with the same id
func (s *SQLiteStore) SaveBatch(ctx context.Context, r *domain.BatchReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_results WHERE batch_id = ?`, r.ID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (id, name, workers, total_tasks, succeeded, failed, started_at, finished_at, wall_clock_ns, throughput)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			workers = excluded.workers,
			total_tasks = excluded.total_tasks,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			wall_clock_ns = excluded.wall_clock_ns,
			throughput = excluded.throughput
	`,
		r.ID, r.Name, r.Workers, r.TotalTasks, r.Succeeded, r.Failed,
		r.StartedAt.UTC(), r.FinishedAt.UTC(), int64(r.WallClock), r.Throughput,
	)
	if err != nil {
		return fmt.Errorf("saving batch %s: %w", r.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO task_results (batch_id, position, task_id, seq, document_id, source_ref, worker_id, status,
			error_kind, error_message, extraction, started_at, finished_at, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, res := range r.PerTask {
		row, err := encodeResult(res)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			r.ID, i, res.TaskID, res.Seq, res.DocumentID, res.SourceRef, res.WorkerID, row.status,
			nullString(row.errorKind), nullString(row.errorMessage), nullString(string(row.extraction)),
			res.StartedAt.UTC(), res.FinishedAt.UTC(), int64(res.Duration),
		)
		if err != nil {
			return fmt.Errorf("saving result %d of batch %s: %w", i, r.ID, err)
		}
	}

	return tx.Commit()
}

// GetBatch retrieves a report with its results in completion order
func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*domain.BatchReport, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, workers, total_tasks, succeeded, failed, started_at, finished_at, wall_clock_ns, throughput
		FROM batches WHERE id = ?
	`, id)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
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

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, seq, document_id, source_ref, worker_id, status, error_kind, error_message, extraction,
			started_at, finished_at, duration_ns
		FROM task_results WHERE batch_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var res domain.TaskResult
		var sourceRef, kind, message, extraction sql.NullString
		var workerID sql.NullInt64
		var status string
		var duration int64
		if err := rows.Scan(&res.TaskID, &res.Seq, &res.DocumentID, &sourceRef, &workerID, &status,
			&kind, &message, &extraction, &res.StartedAt, &res.FinishedAt, &duration); err != nil {
			return nil, err
		}
		res.SourceRef = sourceRef.String
		res.WorkerID = int(workerID.Int64)
		res.Duration = time.Duration(duration)
		if err := decodeResult(&res, status, kind.String, message.String, []byte(extraction.String)); err != nil {
			return nil, fmt.Errorf("decoding result %s: %w", res.TaskID, err)
		}
		report.PerTask = append(report.PerTask, res)
	}
	return report, rows.Err()
}

// ListBatches returns the most recent batches first
func (s *SQLiteStore) ListBatches(ctx context.Context, limit int) ([]BatchSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, workers, total_tasks, succeeded, failed, started_at, finished_at, wall_clock_ns, throughput
		FROM batches ORDER BY started_at DESC, id LIMIT ?
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

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (BatchSummary, error) {
	var sum BatchSummary
	var wall int64
	err := row.Scan(&sum.ID, &sum.Name, &sum.Workers, &sum.TotalTasks, &sum.Succeeded, &sum.Failed,
		&sum.StartedAt, &sum.FinishedAt, &wall, &sum.Throughput)
	sum.WallClock = time.Duration(wall)
	return sum, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Store = (*SQLiteStore)(nil)
