package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/docai-batch/internal/domain"
)

// maxRecent bounds the completion log shown on the dashboard
const maxRecent = 200

// Model is the TUI application model
type Model struct {
	// Batch
	batchID   string
	name      string
	workers   int
	total     int
	startedAt time.Time

	// Progress
	completed int
	succeeded int
	failed    int
	busy      int
	peakBusy  int
	pages     int
	tables    int
	recent    []domain.TaskResult
	failures  []domain.TaskResult
	report    *domain.BatchReport
	err       error

	// UI state
	width     int
	height    int
	activeTab int
	scroll    int
	now       time.Time
	cancel    func()
}

// ModelConfig holds initial data for the TUI model
type ModelConfig struct {
	Name    string
	Workers int
	Total   int
	// Cancel is called when the user quits before the batch has finished
	Cancel func()
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	return Model{
		name:    cfg.Name,
		workers: cfg.Workers,
		total:   cfg.Total,
		cancel:  cfg.Cancel,
		now:     time.Now(),
	}
}

// Done reports whether the batch has finished
func (m Model) Done() bool {
	return m.report != nil || m.err != nil
}

// Report returns the finished batch, or nil
func (m Model) Report() *domain.BatchReport {
	return m.report
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
	)
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
