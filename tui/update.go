package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/docai-batch/internal/coordinator"
	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/pool"
)

// BatchStartedMsg is sent when the coordinator starts the batch
type BatchStartedMsg coordinator.BatchInfo

// TaskDoneMsg is sent for every collected task result
type TaskDoneMsg pool.Progress

// SlotsMsg reports the number of busy workers
type SlotsMsg struct {
	Busy int
}

// BatchDoneMsg is sent when the batch has returned
type BatchDoneMsg struct {
	Report *domain.BatchReport
	Err    error
}

const tabCount = 2

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.Done() && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case "j", "down":
			m.scroll++
		case "k", "up":
			if m.scroll > 0 {
				m.scroll--
			}
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			m.scroll = 0
		case "f":
			// Jump to failures tab
			m.activeTab = 1
			m.scroll = 0
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.now = time.Time(msg)
		if m.Done() {
			return m, nil
		}
		return m, tickCmd()

	case BatchStartedMsg:
		m.batchID = msg.ID
		m.name = msg.Name
		m.workers = msg.Workers
		m.total = msg.Total
		m.startedAt = msg.StartedAt

	case TaskDoneMsg:
		m.applyResult(msg.Result)
		m.completed = msg.Completed
		m.total = msg.Total

	case SlotsMsg:
		m.busy = msg.Busy
		m.peakBusy = max(m.peakBusy, msg.Busy)

	case BatchDoneMsg:
		m.report = msg.Report
		m.err = msg.Err
		m.busy = 0
		if msg.Report != nil {
			m.completed = msg.Report.TotalTasks
			m.succeeded = msg.Report.Succeeded
			m.failed = msg.Report.Failed
		}
	}

	return m, nil
}

func (m *Model) applyResult(res domain.TaskResult) {
	if res.Succeeded() {
		m.succeeded++
		m.pages += res.Extraction.PageCount
		m.tables += res.Extraction.TableCount
	} else {
		m.failed++
		m.failures = append(m.failures, res)
	}
	m.recent = append(m.recent, res)
	if len(m.recent) > maxRecent {
		m.recent = m.recent[len(m.recent)-maxRecent:]
	}
}
