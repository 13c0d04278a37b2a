package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/pool"
)

type scriptedClient struct {
	latency time.Duration
	fail    map[string]domain.ErrorKind
	mu      sync.Mutex
	calls   []string
}

func (c *scriptedClient) Extract(ctx context.Context, ref string) (*domain.Extraction, error) {
	c.mu.Lock()
	c.calls = append(c.calls, ref)
	c.mu.Unlock()
	time.Sleep(c.latency)
	if kind, ok := c.fail[ref]; ok {
		return nil, &domain.ExtractionError{Kind: kind, Message: "scripted " + string(kind)}
	}
	return &domain.Extraction{Content: ref, PageCount: 1, TableCount: 1}, nil
}

type memRecorder struct {
	saved []*domain.BatchReport
	err   error
}

func (r *memRecorder) SaveBatch(ctx context.Context, report *domain.BatchReport) error {
	r.saved = append(r.saved, report)
	return r.err
}

type recordingObserver struct {
	started   []BatchInfo
	completed []pool.Progress
	finished  []*domain.BatchReport
}

func (o *recordingObserver) BatchStarted(info BatchInfo) { o.started = append(o.started, info) }
func (o *recordingObserver) TaskCompleted(batchID string, p pool.Progress) {
	o.completed = append(o.completed, p)
}
func (o *recordingObserver) BatchFinished(r *domain.BatchReport) { o.finished = append(o.finished, r) }

func docs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("inputs/doc%02d.png", i)
	}
	return ids
}

func TestProcessBatch_ConfigurationErrors(t *testing.T) {
	c := New(&scriptedClient{})

	_, err := c.ProcessBatch(context.Background(), docs(3), 0)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = c.ProcessBatch(context.Background(), nil, 2)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	var ce *domain.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

func TestProcessBatch_PartialFailureStillReports(t *testing.T) {
	ids := docs(12)
	client := &scriptedClient{
		latency: 2 * time.Millisecond,
		fail: map[string]domain.ErrorKind{
			ids[3]: domain.KindRateLimited,
			ids[8]: domain.KindInvalidDocument,
		},
	}
	rec := &memRecorder{}
	obs := &recordingObserver{}
	c := New(client, WithRecorder(rec), WithObserver(obs), WithLogger(zaptest.NewLogger(t)))

	report, err := c.ProcessBatch(context.Background(), ids, 4)
	require.NoError(t, err)

	assert.Equal(t, 12, report.TotalTasks)
	assert.Equal(t, 10, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, report.TotalTasks, report.Succeeded+report.Failed)
	assert.Len(t, report.PerTask, 12)
	assert.Greater(t, report.Throughput, 0.0)
	assert.Equal(t, 4, report.Workers)
	assert.True(t, strings.HasPrefix(report.Name, "batch-"))

	kinds := report.FailuresByKind()
	assert.Equal(t, 1, kinds[domain.KindRateLimited])
	assert.Equal(t, 1, kinds[domain.KindInvalidDocument])

	require.Len(t, rec.saved, 1)
	assert.Same(t, report, rec.saved[0])

	require.Len(t, obs.started, 1)
	assert.Equal(t, report.ID, obs.started[0].ID)
	assert.Equal(t, 12, obs.started[0].Total)
	assert.Len(t, obs.completed, 12)
	require.Len(t, obs.finished, 1)
}

func TestProcessBatch_EveryInputAccountedFor(t *testing.T) {
	ids := append(docs(9), "inputs/doc02.png", "inputs/doc05.png", "inputs/doc02.png")
	client := &scriptedClient{
		latency: time.Millisecond,
		fail: map[string]domain.ErrorKind{
			"inputs/doc02.png": domain.KindTransient,
			"inputs/doc07.png": domain.KindInvalidDocument,
		},
	}
	c := New(client, WithLogger(zaptest.NewLogger(t)))

	report, err := c.ProcessBatch(context.Background(), ids, 3)
	require.NoError(t, err)

	got := make([]string, len(report.PerTask))
	taskIDs := make(map[string]bool, len(report.PerTask))
	for i, r := range report.PerTask {
		got[i] = r.DocumentID
		taskIDs[r.TaskID] = true
	}
	assert.ElementsMatch(t, ids, got)
	assert.Len(t, taskIDs, len(ids))
	assert.Equal(t, 3, report.FailuresByKind()[domain.KindTransient])
	assert.Equal(t, 1, report.FailuresByKind()[domain.KindInvalidDocument])
	assert.Equal(t, len(ids)-4, report.Succeeded)
}

func TestProcessBatch_DuplicatesKept(t *testing.T) {
	client := &scriptedClient{}
	c := New(client)

	report, err := c.ProcessBatch(context.Background(), []string{"a.pdf", "a.pdf", "b.pdf"}, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalTasks)
	assert.Len(t, client.calls, 3)

	sub := report.BySubmission()
	assert.Equal(t, []string{"a.pdf", "a.pdf", "b.pdf"}, []string{sub[0].DocumentID, sub[1].DocumentID, sub[2].DocumentID})
	assert.NotEqual(t, sub[0].TaskID, sub[1].TaskID)
}

func TestProcessBatch_RecorderErrorDoesNotFailBatch(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	c := New(&scriptedClient{}, WithRecorder(rec), WithLogger(zaptest.NewLogger(t)))

	report, err := c.Process(context.Background(), Request{Name: "nightly", DocumentIDs: docs(2), Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, "nightly", report.Name)
	assert.Equal(t, 2, report.Succeeded)
}

func TestProcessBatch_AllFailedZeroThroughput(t *testing.T) {
	ids := docs(3)
	fail := map[string]domain.ErrorKind{}
	for _, id := range ids {
		fail[id] = domain.KindUnauthorized
	}
	c := New(&scriptedClient{fail: fail})

	report, err := c.ProcessBatch(context.Background(), ids, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 3, report.Failed)
	assert.Zero(t, report.Throughput)
}

func TestProcessBatch_TimeoutPerTask(t *testing.T) {
	client := &scriptedClient{latency: 200 * time.Millisecond}
	c := New(client, WithTaskTimeout(20*time.Millisecond))

	start := time.Now()
	report, err := c.ProcessBatch(context.Background(), docs(2), 2)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, 2, report.Failed)
	for _, r := range report.PerTask {
		assert.Equal(t, domain.MessageTimeout, r.Failure.Message)
	}
}

func TestProcessBatch_ScalesWithWorkers(t *testing.T) {
	client := &scriptedClient{latency: 30 * time.Millisecond}
	c := New(client)

	report, err := c.ProcessBatch(context.Background(), docs(6), 3)
	require.NoError(t, err)
	// ceil(6/3) rounds of 30ms, plus scheduling overhead
	assert.GreaterOrEqual(t, report.WallClock, 60*time.Millisecond)
	assert.Less(t, report.WallClock, 60*time.Millisecond+400*time.Millisecond)
}
