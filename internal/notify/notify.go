// Package notify tells people that a batch has finished.
package notify

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/hochfrequenz/docai-batch/internal/coordinator"
	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/logging"
	"github.com/hochfrequenz/docai-batch/internal/pool"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Field is one labelled count shown next to the message where the channel supports it
type Field struct {
	Name  string
	Value string
}

// Notification represents a notification to be sent
type Notification struct {
	Title      string
	Message    string
	Type       NotificationType
	BatchID    string // Optional batch reference
	Fields     []Field
	FinishedAt time.Time
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers and joins their errors
func (m *MultiNotifier) Send(n Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// ForBatch summarizes a finished batch: success when every task succeeded,
// warning on partial failure, error when nothing succeeded
func ForBatch(r *domain.BatchReport) Notification {
	n := Notification{BatchID: r.ID, FinishedAt: r.FinishedAt}
	switch {
	case r.Failed == 0:
		n.Type = NotifySuccess
		n.Title = fmt.Sprintf("Batch %s complete", r.Name)
	case r.Succeeded == 0:
		n.Type = NotifyError
		n.Title = fmt.Sprintf("Batch %s failed", r.Name)
	default:
		n.Type = NotifyWarning
		n.Title = fmt.Sprintf("Batch %s finished with failures", r.Name)
	}

	wall := r.WallClock.Round(10 * time.Millisecond)
	n.Fields = []Field{
		{Name: "Succeeded", Value: humanize.Comma(int64(r.Succeeded))},
		{Name: "Failed", Value: humanize.Comma(int64(r.Failed))},
		{Name: "Throughput", Value: fmt.Sprintf("%.2f docs/sec", r.Throughput)},
		{Name: "Wall clock", Value: wall.String()},
	}

	msg := fmt.Sprintf("%d/%d documents extracted in %s (%.2f docs/sec)",
		r.Succeeded, r.TotalTasks, wall, r.Throughput)
	if r.Failed > 0 {
		byKind := r.FailuresByKind()
		kinds := make([]domain.ErrorKind, 0, len(byKind))
		for k := range byKind {
			kinds = append(kinds, k)
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

		parts := make([]string, len(kinds))
		for i, k := range kinds {
			parts[i] = fmt.Sprintf("%s %d", k, byKind[k])
			n.Fields = append(n.Fields, Field{Name: "Failed: " + string(k), Value: fmt.Sprint(byKind[k])})
		}
		msg += fmt.Sprintf("; %s failed (%s)", humanize.Comma(int64(r.Failed)), strings.Join(parts, ", "))
	}
	n.Message = msg
	return n
}

// BatchObserver sends a notification for every finished batch
type BatchObserver struct {
	notifier Notifier
	logger   *zap.Logger
}

// NewBatchObserver wraps a notifier as a coordinator observer. Send errors are logged.
func NewBatchObserver(n Notifier, logger *zap.Logger) *BatchObserver {
	return &BatchObserver{notifier: n, logger: logging.OrNop(logger)}
}

// BatchStarted implements coordinator.Observer
func (o *BatchObserver) BatchStarted(coordinator.BatchInfo) {}

// TaskCompleted implements coordinator.Observer
func (o *BatchObserver) TaskCompleted(string, pool.Progress) {}

// BatchFinished implements coordinator.Observer
func (o *BatchObserver) BatchFinished(r *domain.BatchReport) {
	if err := o.notifier.Send(ForBatch(r)); err != nil {
		o.logger.Warn("sending batch notification", zap.String("batch", r.ID), zap.Error(err))
	}
}

var _ coordinator.Observer = (*BatchObserver)(nil)
