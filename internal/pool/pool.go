// internal/pool/pool.go
package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/logging"
)

// DefaultTimeout bounds a single remote call
const DefaultTimeout = 60 * time.Second

// InvokeFunc performs the remote work for one task
type InvokeFunc func(ctx context.Context, task domain.Task) (*domain.Extraction, error)

// Progress is reported after each collected result
type Progress struct {
	DocumentID string
	Completed  int
	Total      int
	Result     domain.TaskResult
}

// Option configures a Pool
type Option func(*Pool)

// WithTimeout sets the per-task timeout
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithProgress registers a callback invoked from the collector after every result
func WithProgress(fn func(Progress)) Option {
	return func(p *Pool) { p.onProgress = fn }
}

// WithSlotObserver registers a callback invoked whenever the number of in-flight calls changes
func WithSlotObserver(fn func(busy int)) Option {
	return func(p *Pool) { p.onSlots = fn }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) { p.logger = logging.OrNop(l) }
}

// Pool runs tasks on a fixed number of workers
type Pool struct {
	workers    int
	invoke     InvokeFunc
	timeout    time.Duration
	onProgress func(Progress)
	onSlots    func(busy int)
	logger     *zap.Logger
	slots      *slots
}

// New creates a pool with the given concurrency ceiling
func New(workers int, invoke InvokeFunc, opts ...Option) (*Pool, error) {
	if workers < 1 {
		return nil, domain.NewConfigurationError("workers must be at least 1, got %d", workers)
	}
	if invoke == nil {
		return nil, domain.NewConfigurationError("no extraction function configured")
	}
	p := &Pool{
		workers: workers,
		invoke:  invoke,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.slots = newSlots(p.onSlots)
	return p, nil
}

// Workers returns the concurrency ceiling
func (p *Pool) Workers() int {
	return p.workers
}

// Timeout returns the per-task timeout
func (p *Pool) Timeout() time.Duration {
	return p.timeout
}

// PeakBusy returns the highest number of concurrent calls seen over the pool's lifetime
func (p *Pool) PeakBusy() int {
	return p.slots.Peak()
}

// Run executes every task and returns one result per task in completion order.
// Once ctx is cancelled, tasks not yet handed to a worker come back as
// cancelled failures. Calls already in flight finish or time out.
func (p *Pool) Run(ctx context.Context, tasks []domain.Task) []domain.TaskResult {
	total := len(tasks)
	if total == 0 {
		return []domain.TaskResult{}
	}

	queue := make(chan domain.Task, total)
	for _, t := range tasks {
		queue <- t
	}
	close(queue)

	results := make(chan domain.TaskResult, total)

	n := min(p.workers, total)
	var g errgroup.Group
	for w := 1; w <= n; w++ {
		workerID := w
		g.Go(func() error {
			p.work(ctx, workerID, queue, results)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	p.logger.Info("pool started",
		zap.Int("tasks", total),
		zap.Int("workers", n),
		zap.Duration("timeout", p.timeout),
	)

	out := make([]domain.TaskResult, 0, total)
	for res := range results {
		out = append(out, res)
		p.logResult(res, len(out), total)
		if p.onProgress != nil {
			p.onProgress(Progress{
				DocumentID: res.DocumentID,
				Completed:  len(out),
				Total:      total,
				Result:     res,
			})
		}
	}
	return out
}

func (p *Pool) work(ctx context.Context, workerID int, queue <-chan domain.Task, results chan<- domain.TaskResult) {
	for task := range queue {
		if ctx.Err() != nil {
			now := time.Now()
			res := domain.NewFailure(task, domain.KindTransient, domain.MessageCancelled, now, now)
			res.WorkerID = workerID
			results <- res
			continue
		}
		results <- p.execute(ctx, workerID, task)
	}
}

type outcome struct {
	ext *domain.Extraction
	err error
}

// execute runs one call detached from batch cancellation and bounded by the pool timeout.
// A call that outlives the timeout is abandoned; its goroutine exits when the call returns.
func (p *Pool) execute(ctx context.Context, workerID int, task domain.Task) domain.TaskResult {
	p.slots.acquire()
	defer p.slots.release()

	started := time.Now()
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	p.logger.Debug("task dispatched",
		zap.Int("worker_id", workerID),
		zap.Int("seq", task.Seq),
		zap.String("document", task.DocumentID),
	)

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		ext, err := p.invoke(callCtx, task)
		done <- outcome{ext: ext, err: err}
	}()

	var res domain.TaskResult
	select {
	case o := <-done:
		finished := time.Now()
		switch {
		case o.err != nil && errors.Is(o.err, context.DeadlineExceeded) && callCtx.Err() != nil:
			res = domain.NewFailure(task, domain.KindTransient, domain.MessageTimeout, started, finished)
		case o.err != nil:
			f := domain.AsFailure(o.err)
			res = domain.NewFailure(task, f.Kind, f.Message, started, finished)
		case o.ext == nil:
			res = domain.NewFailure(task, domain.KindTransient, "extraction returned no result", started, finished)
		default:
			res = domain.NewSuccess(task, o.ext, started, finished)
		}
	case <-callCtx.Done():
		res = domain.NewFailure(task, domain.KindTransient, domain.MessageTimeout, started, time.Now())
		p.logger.Warn("task abandoned after timeout",
			zap.String("document", task.DocumentID),
			zap.Duration("timeout", p.timeout),
		)
	}
	res.WorkerID = workerID
	return res
}

func (p *Pool) logResult(res domain.TaskResult, completed, total int) {
	fields := []zap.Field{
		zap.Int("completed", completed),
		zap.Int("total", total),
		zap.String("document", res.DocumentID),
		zap.Int("worker_id", res.WorkerID),
		zap.Duration("duration", res.Duration),
	}
	if res.Succeeded() {
		p.logger.Info("task succeeded", append(fields,
			zap.Int("pages", res.Extraction.PageCount),
			zap.Int("tables", res.Extraction.TableCount),
		)...)
		return
	}
	p.logger.Warn("task failed", append(fields,
		zap.String("kind", string(res.Failure.Kind)),
		zap.String("error", res.Failure.Message),
	)...)
}
