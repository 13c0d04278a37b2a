// Package coordinator runs one batch of documents through the worker pool and aggregates the outcome.
package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/extract"
	"github.com/hochfrequenz/docai-batch/internal/logging"
	"github.com/hochfrequenz/docai-batch/internal/pool"
)

// Recorder persists finished batches
type Recorder interface {
	SaveBatch(ctx context.Context, report *domain.BatchReport) error
}

// BatchInfo describes a batch that is about to start
type BatchInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Workers   int       `json:"workers"`
	Total     int       `json:"total"`
	StartedAt time.Time `json:"started_at"`
}

// Observer receives batch lifecycle events. Calls come from a single goroutine per batch.
type Observer interface {
	BatchStarted(info BatchInfo)
	TaskCompleted(batchID string, p pool.Progress)
	BatchFinished(report *domain.BatchReport)
}

// Request describes one batch
type Request struct {
	Name        string
	DocumentIDs []string
	Workers     int
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithRecorder persists every finished batch
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithObserver adds a lifecycle observer
func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observers = append(c.observers, o) }
}

// WithTaskTimeout sets the per-task timeout
func WithTaskTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithSlotObserver is called with the number of busy workers whenever it changes
func WithSlotObserver(fn func(busy int)) Option {
	return func(c *Coordinator) { c.slots = fn }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.OrNop(l) }
}

// Coordinator turns document lists into batch reports
type Coordinator struct {
	client    extract.Client
	recorder  Recorder
	observers []Observer
	timeout   time.Duration
	slots     func(busy int)
	logger    *zap.Logger
}

// New creates a coordinator around a shared extraction client
func New(client extract.Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:  client,
		timeout: pool.DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessBatch extracts every document with at most workers concurrent calls.
// Only configuration problems return an error; per-document failures are in the report.
func (c *Coordinator) ProcessBatch(ctx context.Context, documentIDs []string, workers int) (*domain.BatchReport, error) {
	return c.Process(ctx, Request{DocumentIDs: documentIDs, Workers: workers})
}

// Process runs a named batch
func (c *Coordinator) Process(ctx context.Context, req Request) (*domain.BatchReport, error) {
	if req.Workers < 1 {
		return nil, domain.NewConfigurationError("workers must be at least 1, got %d", req.Workers)
	}
	if len(req.DocumentIDs) == 0 {
		return nil, domain.NewConfigurationError("no documents to process")
	}
	if c.client == nil {
		return nil, domain.NewConfigurationError("no extraction client configured")
	}

	batchID := uuid.NewString()
	name := req.Name
	if name == "" {
		name = "batch-" + batchID[:8]
	}

	tasks := make([]domain.Task, len(req.DocumentIDs))
	for i, id := range req.DocumentIDs {
		tasks[i] = domain.NewTask(batchID, i, id)
	}

	opts := []pool.Option{
		pool.WithTimeout(c.timeout),
		pool.WithLogger(c.logger.With(zap.String("batch_id", batchID))),
		pool.WithProgress(func(pr pool.Progress) {
			for _, o := range c.observers {
				o.TaskCompleted(batchID, pr)
			}
		}),
	}
	if c.slots != nil {
		opts = append(opts, pool.WithSlotObserver(c.slots))
	}
	p, err := pool.New(req.Workers, c.invoke, opts...)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	info := BatchInfo{ID: batchID, Name: name, Workers: req.Workers, Total: len(tasks), StartedAt: started}
	for _, o := range c.observers {
		o.BatchStarted(info)
	}
	c.logger.Info("batch started",
		zap.String("batch_id", batchID),
		zap.String("name", name),
		zap.Int("documents", len(tasks)),
		zap.Int("workers", req.Workers),
	)

	results := p.Run(ctx, tasks)
	report := domain.NewBatchReport(batchID, name, req.Workers, results, started, time.Now())

	c.logger.Info("batch finished",
		zap.String("batch_id", batchID),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("wall_clock", report.WallClock),
		zap.Float64("throughput", report.Throughput),
	)

	if c.recorder != nil {
		// persist even when ctx is already cancelled
		if err := c.recorder.SaveBatch(context.WithoutCancel(ctx), report); err != nil {
			c.logger.Error("failed to record batch", zap.String("batch_id", batchID), zap.Error(err))
		}
	}
	for _, o := range c.observers {
		o.BatchFinished(report)
	}
	return report, nil
}

func (c *Coordinator) invoke(ctx context.Context, task domain.Task) (*domain.Extraction, error) {
	return c.client.Extract(ctx, task.SourceRef)
}
