// Package observer collects batch metrics and watches input folders for new documents.
package observer

import (
	"sync"
	"time"

	"github.com/hochfrequenz/docai-batch/internal/coordinator"
	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/pool"
)

// Observer monitors batch execution and collects metrics
type Observer struct {
	stuckThreshold time.Duration
	now            func() time.Time

	completions []completion
	active      map[string]*batchState
	batches     int
	mu          sync.RWMutex
}

type completion struct {
	BatchID     string
	DocumentID  string
	Duration    time.Duration
	Pages       int
	Tables      int
	FailureKind domain.ErrorKind
	CompletedAt time.Time
}

type batchState struct {
	info         coordinator.BatchInfo
	completed    int
	lastProgress time.Time
}

// Metrics holds aggregated metrics
type Metrics struct {
	Batches        int                      `json:"batches"`
	ActiveBatches  int                      `json:"active_batches"`
	TotalCompleted int                      `json:"total_completed"`
	TotalFailed    int                      `json:"total_failed"`
	TotalPages     int                      `json:"total_pages"`
	TotalTables    int                      `json:"total_tables"`
	AvgDuration    time.Duration            `json:"avg_duration"`
	FailuresByKind map[domain.ErrorKind]int `json:"failures_by_kind"`
}

// New creates a new Observer. A batch with no completed task for stuckThreshold is reported as stuck.
func New(stuckThreshold time.Duration) *Observer {
	return &Observer{
		stuckThreshold: stuckThreshold,
		now:            time.Now,
		active:         make(map[string]*batchState),
	}
}

// BatchStarted implements coordinator.Observer
func (o *Observer) BatchStarted(info coordinator.BatchInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches++
	o.active[info.ID] = &batchState{info: info, lastProgress: o.now()}
}

// TaskCompleted implements coordinator.Observer
func (o *Observer) TaskCompleted(batchID string, p pool.Progress) {
	o.RecordCompletion(batchID, p.Result)
}

// BatchFinished implements coordinator.Observer
func (o *Observer) BatchFinished(report *domain.BatchReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, report.ID)
}

// RecordCompletion records one task result
func (o *Observer) RecordCompletion(batchID string, res domain.TaskResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	c := completion{
		BatchID:     batchID,
		DocumentID:  res.DocumentID,
		Duration:    res.Duration,
		CompletedAt: o.now(),
	}
	if res.Extraction != nil {
		c.Pages = res.Extraction.PageCount
		c.Tables = res.Extraction.TableCount
	}
	if res.Failure != nil {
		c.FailureKind = res.Failure.Kind
	}
	o.completions = append(o.completions, c)

	if st, ok := o.active[batchID]; ok {
		st.completed++
		st.lastProgress = c.CompletedAt
	}
}

// IsStuck returns true if a running batch has made no progress within the threshold
func (o *Observer) IsStuck(batchID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	st, ok := o.active[batchID]
	if !ok || st.completed >= st.info.Total {
		return false
	}
	return o.now().Sub(st.lastProgress) > o.stuckThreshold
}

// Progress returns completed and total for a running batch
func (o *Observer) Progress(batchID string) (completed, total int, ok bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st, ok := o.active[batchID]
	if !ok {
		return 0, 0, false
	}
	return st.completed, st.info.Total, true
}

// GetMetrics returns aggregated metrics
func (o *Observer) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	metrics := Metrics{
		Batches:        o.batches,
		ActiveBatches:  len(o.active),
		FailuresByKind: make(map[domain.ErrorKind]int),
	}
	var totalDuration time.Duration

	for _, c := range o.completions {
		if c.FailureKind != "" {
			metrics.TotalFailed++
			metrics.FailuresByKind[c.FailureKind]++
			continue
		}
		metrics.TotalCompleted++
		metrics.TotalPages += c.Pages
		metrics.TotalTables += c.Tables
		totalDuration += c.Duration
	}

	if metrics.TotalCompleted > 0 {
		metrics.AvgDuration = totalDuration / time.Duration(metrics.TotalCompleted)
	}

	return metrics
}

// GetRecentCompletions returns the document ids completed within the last duration
func (o *Observer) GetRecentCompletions(since time.Duration) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cutoff := o.now().Add(-since)
	var result []string

	for _, c := range o.completions {
		if c.CompletedAt.After(cutoff) {
			result = append(result, c.DocumentID)
		}
	}

	return result
}

var _ coordinator.Observer = (*Observer)(nil)
