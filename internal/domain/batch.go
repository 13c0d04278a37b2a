package domain

import (
	"sort"
	"time"
)

// BatchReport aggregates one batch run. PerTask is in completion order.
type BatchReport struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Workers    int           `json:"workers"`
	TotalTasks int           `json:"total_tasks"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	WallClock  time.Duration `json:"wall_clock"`
	Throughput float64       `json:"throughput"` // successful tasks per second
	PerTask    []TaskResult  `json:"per_task"`
}

// Stats is the batch-level statistics record handed to benchmarking and reporting tools
type Stats struct {
	BatchID             string        `json:"batch_id"`
	Workers             int           `json:"workers"`
	Total               int           `json:"total"`
	Succeeded           int           `json:"succeeded"`
	Failed              int           `json:"failed"`
	Elapsed             time.Duration `json:"elapsed"`
	Throughput          float64       `json:"throughput"`
	TotalProcessingTime time.Duration `json:"total_processing_time"`
	AvgProcessingTime   time.Duration `json:"avg_processing_time"`
	TotalPages          int           `json:"total_pages"`
	TotalTables         int           `json:"total_tables"`
	TotalBytes          int64         `json:"total_bytes"`
}

// NewBatchReport aggregates results collected between started and finished
func NewBatchReport(id, name string, workers int, results []TaskResult, started, finished time.Time) *BatchReport {
	r := &BatchReport{
		ID:         id,
		Name:       name,
		Workers:    workers,
		TotalTasks: len(results),
		StartedAt:  started,
		FinishedAt: finished,
		WallClock:  finished.Sub(started),
		PerTask:    results,
	}
	for _, res := range results {
		if res.Succeeded() {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
	r.Throughput = Throughput(r.Succeeded, r.WallClock)
	return r
}

// Throughput returns successes per second, or 0 when nothing succeeded or no time elapsed
func Throughput(succeeded int, elapsed time.Duration) float64 {
	if succeeded == 0 || elapsed <= 0 {
		return 0
	}
	return float64(succeeded) / elapsed.Seconds()
}

// Successes returns the successful results in completion order
func (r *BatchReport) Successes() []TaskResult {
	var out []TaskResult
	for _, res := range r.PerTask {
		if res.Succeeded() {
			out = append(out, res)
		}
	}
	return out
}

// Failures returns the failed results in completion order
func (r *BatchReport) Failures() []TaskResult {
	var out []TaskResult
	for _, res := range r.PerTask {
		if !res.Succeeded() {
			out = append(out, res)
		}
	}
	return out
}

// BySubmission returns a copy of PerTask sorted by submission index
func (r *BatchReport) BySubmission() []TaskResult {
	out := make([]TaskResult, len(r.PerTask))
	copy(out, r.PerTask)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// FailuresByKind counts failures per error kind
func (r *BatchReport) FailuresByKind() map[ErrorKind]int {
	counts := make(map[ErrorKind]int)
	for _, res := range r.PerTask {
		if res.Failure != nil {
			counts[res.Failure.Kind]++
		}
	}
	return counts
}

// SuccessRate returns Succeeded/TotalTasks
func (r *BatchReport) SuccessRate() float64 {
	if r.TotalTasks == 0 {
		return 0
	}
	return float64(r.Succeeded) / float64(r.TotalTasks)
}

// Stats summarizes the report
func (r *BatchReport) Stats() Stats {
	s := Stats{
		BatchID:    r.ID,
		Workers:    r.Workers,
		Total:      r.TotalTasks,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Elapsed:    r.WallClock,
		Throughput: r.Throughput,
	}
	for _, res := range r.PerTask {
		s.TotalProcessingTime += res.Duration
		if res.Extraction != nil {
			s.TotalPages += res.Extraction.PageCount
			s.TotalTables += res.Extraction.TableCount
			s.TotalBytes += res.Extraction.SizeBytes
		}
	}
	if len(r.PerTask) > 0 {
		s.AvgProcessingTime = s.TotalProcessingTime / time.Duration(len(r.PerTask))
	}
	return s
}
