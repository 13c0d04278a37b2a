// Package bench sweeps worker counts over the same document set and analyzes the scaling.
package bench

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/hochfrequenz/docai-batch/internal/coordinator"
	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/logging"
)

// DefaultWorkerCounts is the sweep used when none is given
var DefaultWorkerCounts = []int{1, 2, 3, 5, 8, 10}

// Runner processes one batch
type Runner interface {
	Process(ctx context.Context, req coordinator.Request) (*domain.BatchReport, error)
}

// Run is one point of the sweep
type Run struct {
	Workers     int           `json:"workers"`
	Total       int           `json:"total_files"`
	Succeeded   int           `json:"successful"`
	Failed      int           `json:"failed"`
	Elapsed     time.Duration `json:"total_time"`
	AvgTaskTime time.Duration `json:"avg_processing_time"`
	Throughput  float64       `json:"throughput"`
	SuccessRate float64       `json:"success_rate"`
	Speedup     float64       `json:"speedup"`
	Efficiency  float64       `json:"efficiency"`
	BatchID     string        `json:"batch_id"`
}

// Analysis summarizes a sweep
type Analysis struct {
	SequentialTime     time.Duration `json:"sequential_time"`
	BestTime           time.Duration `json:"best_parallel_time"`
	MaxSpeedup         float64       `json:"max_speedup"`
	MaxThroughput      float64       `json:"max_throughput"`
	BestConfiguration  int           `json:"best_configuration"` // worker count with the highest throughput
	TimeSaved          time.Duration `json:"time_saved"`
	AvgSuccessRate     float64       `json:"avg_success_rate"`
	OptimalWorkers     int           `json:"optimal_workers"`
	OptimalEfficiency  float64       `json:"optimal_efficiency"`
	LinearityDeviation float64       `json:"linearity_deviation"`
}

// Result is a complete sweep
type Result struct {
	Documents int       `json:"documents"`
	StartedAt time.Time `json:"started_at"`
	Runs      []Run     `json:"runs"`
	Analysis  Analysis  `json:"analysis"`
}

// Options tunes a sweep
type Options struct {
	WorkerCounts []int
	Logger       *zap.Logger
	// OnRun is called after each finished run
	OnRun func(Run)
}

// Sweep runs one batch per worker count, in the given order, and analyzes the results.
// A cancelled context stops the sweep and returns the runs completed so far.
func Sweep(ctx context.Context, runner Runner, ids []string, opts Options) (*Result, error) {
	logger := logging.OrNop(opts.Logger)
	counts := opts.WorkerCounts
	if len(counts) == 0 {
		counts = DefaultWorkerCounts
	}
	for _, w := range counts {
		if w < 1 {
			return nil, domain.NewConfigurationError("worker count must be at least 1, got %d", w)
		}
	}
	if len(ids) == 0 {
		return nil, domain.NewConfigurationError("no documents to benchmark")
	}

	res := &Result{Documents: len(ids), StartedAt: time.Now()}
	for _, w := range counts {
		if err := ctx.Err(); err != nil {
			res.Analyze()
			return res, err
		}

		logger.Info("benchmark run starting", zap.Int("workers", w), zap.Int("documents", len(ids)))
		report, err := runner.Process(ctx, coordinator.Request{
			Name:        fmt.Sprintf("bench-%dw", w),
			DocumentIDs: ids,
			Workers:     w,
		})
		if err != nil {
			if errors.Is(err, domain.ErrConfiguration) {
				return nil, err
			}
			return nil, fmt.Errorf("benchmark with %d workers: %w", w, err)
		}

		run := runFromReport(report)
		res.Runs = append(res.Runs, run)
		logger.Info("benchmark run finished",
			zap.Int("workers", w),
			zap.Duration("elapsed", run.Elapsed),
			zap.Float64("throughput", run.Throughput),
			zap.Int("succeeded", run.Succeeded),
			zap.Int("failed", run.Failed))
		if opts.OnRun != nil {
			opts.OnRun(run)
		}
	}

	res.Analyze()
	return res, nil
}

func runFromReport(r *domain.BatchReport) Run {
	stats := r.Stats()
	return Run{
		Workers:     r.Workers,
		Total:       r.TotalTasks,
		Succeeded:   r.Succeeded,
		Failed:      r.Failed,
		Elapsed:     r.WallClock,
		AvgTaskTime: stats.AvgProcessingTime,
		Throughput:  r.Throughput,
		SuccessRate: r.SuccessRate(),
		BatchID:     r.ID,
	}
}

// Analyze fills per-run speedup and efficiency and the sweep summary.
// The baseline is the single-worker run, or the first run when there is none.
// Parallel runs are those with more than one worker.
func (r *Result) Analyze() {
	r.Analysis = Analysis{}
	if len(r.Runs) == 0 {
		return
	}

	baseline := r.Runs[0]
	for _, run := range r.Runs {
		if run.Workers == 1 {
			baseline = run
			break
		}
	}

	a := &r.Analysis
	a.SequentialTime = baseline.Elapsed
	a.BestTime = baseline.Elapsed
	a.OptimalWorkers = baseline.Workers

	var rateSum, devSum, bestThroughput float64
	parallel := 0
	for i := range r.Runs {
		run := &r.Runs[i]
		run.Speedup = 1
		if run.Elapsed > 0 {
			run.Speedup = float64(baseline.Elapsed) / float64(run.Elapsed)
		}
		run.Efficiency = run.Speedup / float64(run.Workers)

		rateSum += run.SuccessRate
		if run.Throughput > bestThroughput || i == 0 {
			bestThroughput = run.Throughput
			a.BestConfiguration = run.Workers
		}

		if run.Workers <= 1 {
			continue
		}
		if parallel == 0 || run.Elapsed < a.BestTime {
			a.BestTime = run.Elapsed
		}
		if parallel == 0 || run.Efficiency > a.OptimalEfficiency {
			a.OptimalWorkers = run.Workers
			a.OptimalEfficiency = run.Efficiency
		}
		devSum += math.Abs(run.Speedup - float64(run.Workers))
		parallel++
	}

	a.MaxThroughput = bestThroughput
	a.MaxSpeedup = 1
	if a.BestTime > 0 {
		a.MaxSpeedup = float64(a.SequentialTime) / float64(a.BestTime)
	}
	a.TimeSaved = a.SequentialTime - a.BestTime
	a.AvgSuccessRate = rateSum / float64(len(r.Runs))
	if parallel > 0 {
		a.LinearityDeviation = devSum / float64(parallel)
	} else {
		a.OptimalEfficiency = baseline.Efficiency
	}
}

// ScalingPattern classifies the linearity deviation
func (a Analysis) ScalingPattern() string {
	switch {
	case a.LinearityDeviation < 0.5:
		return "near-linear scaling"
	case a.LinearityDeviation < 1.0:
		return "good scaling with some overhead"
	default:
		return "diminishing returns"
	}
}
