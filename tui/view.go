package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/docai-batch/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	queuedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))

	moduleHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	// Header
	header := fmt.Sprintf(" docai-batch │ %s │ Workers: %d/%d │ Done: %d/%d │ Failed: %d ",
		m.name, m.busy, m.workers, m.completed, m.total, m.failed)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	// Tab bar
	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	switch m.activeTab {
	case 0: // Dashboard
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderProgress()))
		b.WriteString("\n")
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderRecent()))
		b.WriteString("\n")
	case 1: // Failures
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderFailures()))
		b.WriteString("\n")
	}

	// Status bar
	status := " q: quit  tab: switch view  f: failures  j/k: scroll "
	if m.Done() {
		status = " Batch finished │ q: quit  tab: switch view "
	}
	b.WriteString(statusBarStyle.Width(m.width).Render(status))

	return b.String()
}

func (m Model) renderTabs() string {
	tabs := []string{"Dashboard", fmt.Sprintf("Failures (%d)", m.failed)}
	var parts []string
	for i, t := range tabs {
		if i == m.activeTab {
			parts = append(parts, tabActiveStyle.Render(t))
		} else {
			parts = append(parts, tabInactiveStyle.Render(t))
		}
	}
	return " " + strings.Join(parts, "  ")
}

func (m Model) elapsed() time.Duration {
	if m.report != nil {
		return m.report.WallClock
	}
	if m.startedAt.IsZero() || m.now.Before(m.startedAt) {
		return 0
	}
	return m.now.Sub(m.startedAt)
}

func (m Model) renderProgress() string {
	var b strings.Builder
	b.WriteString(moduleHeaderStyle.Render("PROGRESS"))
	b.WriteString("\n")

	barWidth := max(10, min(60, m.width-30))
	b.WriteString(progressBar(m.completed, m.total, barWidth))
	b.WriteString(fmt.Sprintf(" %d/%d\n", m.completed, m.total))

	elapsed := m.elapsed()
	throughput := domain.Throughput(m.succeeded, elapsed)
	if m.report != nil {
		throughput = m.report.Throughput
	}

	b.WriteString(fmt.Sprintf("%s  %s  %s\n",
		runningStyle.Render(fmt.Sprintf("✓ %d succeeded", m.succeeded)),
		failedStyle(m.failed).Render(fmt.Sprintf("✗ %d failed", m.failed)),
		queuedStyle.Render(fmt.Sprintf("%d pending", max(0, m.total-m.completed)))))
	b.WriteString(fmt.Sprintf("Elapsed: %s │ Throughput: %.2f docs/sec │ Peak workers: %d\n",
		formatDuration(elapsed), throughput, m.peakBusy))
	b.WriteString(fmt.Sprintf("Pages: %s │ Tables: %s",
		humanize.Comma(int64(m.pages)), humanize.Comma(int64(m.tables))))

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
	}
	return b.String()
}

func failedStyle(n int) lipgloss.Style {
	if n > 0 {
		return warningStyle
	}
	return dimmedStyle
}

func (m Model) visibleRows() int {
	return max(3, m.height-14)
}

func (m Model) renderRecent() string {
	var b strings.Builder
	b.WriteString(moduleHeaderStyle.Render("COMPLETED"))
	b.WriteString("\n")

	if len(m.recent) == 0 {
		b.WriteString(dimmedStyle.Render("  Waiting for the first result..."))
		return b.String()
	}

	// newest first
	rows := m.visibleRows()
	start := min(m.scroll, max(0, len(m.recent)-1))
	for i := len(m.recent) - 1 - start; i >= 0 && rows > 0; i-- {
		b.WriteString(formatResultLine(m.recent[i], m.width-8))
		b.WriteString("\n")
		rows--
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderFailures() string {
	var b strings.Builder
	b.WriteString(moduleHeaderStyle.Render("FAILURES"))
	b.WriteString("\n")

	if len(m.failures) == 0 {
		b.WriteString(dimmedStyle.Render("  No failures"))
		return b.String()
	}

	rows := m.visibleRows()
	start := min(m.scroll, max(0, len(m.failures)-1))
	for _, res := range m.failures[start:] {
		if rows == 0 {
			break
		}
		line := fmt.Sprintf("  %-30s %-18s %s",
			truncate(res.DocumentID, 30), res.Failure.Kind, res.Failure.Message)
		b.WriteString(warningStyle.Render(truncate(line, m.width-6)))
		b.WriteString("\n")
		rows--
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatResultLine(res domain.TaskResult, width int) string {
	if res.Succeeded() {
		line := fmt.Sprintf("  ✓ %-30s %6s  %d pages  %d tables",
			truncate(res.DocumentID, 30), formatDuration(res.Duration), res.Extraction.PageCount, res.Extraction.TableCount)
		return runningStyle.Render(truncate(line, width))
	}
	line := fmt.Sprintf("  ✗ %-30s %6s  %s", truncate(res.DocumentID, 30), formatDuration(res.Duration), res.Failure)
	return warningStyle.Render(truncate(line, width))
}

func progressBar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = min(width, done*width/total)
	}
	return runningStyle.Render(strings.Repeat("█", filled)) + dimmedStyle.Render(strings.Repeat("░", width-filled))
}

func truncate(s string, max int) string {
	if max <= 3 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
