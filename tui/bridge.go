package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/docai-batch/internal/coordinator"
	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/pool"
)

// Sender is satisfied by *tea.Program
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge forwards coordinator events to a running program
type Bridge struct {
	program Sender
}

// NewBridge creates an observer that feeds p
func NewBridge(p Sender) *Bridge {
	return &Bridge{program: p}
}

// BatchStarted implements coordinator.Observer
func (b *Bridge) BatchStarted(info coordinator.BatchInfo) {
	b.program.Send(BatchStartedMsg(info))
}

// TaskCompleted implements coordinator.Observer
func (b *Bridge) TaskCompleted(_ string, p pool.Progress) {
	b.program.Send(TaskDoneMsg(p))
}

// BatchFinished implements coordinator.Observer
func (b *Bridge) BatchFinished(r *domain.BatchReport) {
	b.program.Send(BatchDoneMsg{Report: r})
}

// Slots is a pool slot observer
func (b *Bridge) Slots(busy int) {
	b.program.Send(SlotsMsg{Busy: busy})
}

var _ coordinator.Observer = (*Bridge)(nil)
