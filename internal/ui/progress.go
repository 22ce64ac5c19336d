package ui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nattadasu/bilidownloader/internal/tasks"
)

type progressUpdateMsg tasks.ProgressUpdate

type cycleCompleteMsg struct {
	result *tasks.CycleResult
	err    error
}

// CycleModel displays live progress for one processing cycle.
type CycleModel struct {
	ctx          context.Context
	engine       *tasks.CycleEngine
	progressChan chan tasks.ProgressUpdate
	progress     tasks.ProgressUpdate
	result       *tasks.CycleResult
	err          error
	done         bool
	help         string
}

// NewCycleModel creates the progress view for a cycle that has not started
// yet; Init kicks it off.
func NewCycleModel(ctx context.Context, engine *tasks.CycleEngine) *CycleModel {
	return &CycleModel{
		ctx:    ctx,
		engine: engine,
		help:   styles.help.Render("q to quit"),
	}
}

// Result returns the finished cycle's outcome, nil while running.
func (m *CycleModel) Result() (*tasks.CycleResult, error) {
	return m.result, m.err
}

func (m *CycleModel) Init() tea.Cmd {
	return m.startCycle()
}

func (m *CycleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case cycleCompleteMsg:
		m.result = msg.result
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *CycleModel) View() string {
	if m.done {
		return m.renderResult()
	}

	title := styles.title.Render("Processing Cycle")

	var phase string
	switch m.progress.Phase {
	case tasks.PhaseReconcile:
		phase = "Reconciling watchlist cursors..."
	case tasks.PhaseSchedule:
		phase = "Fetching release schedule..."
	case tasks.PhaseMatch:
		phase = "Matching against watchlist..."
	case tasks.PhaseFetch:
		phase = fmt.Sprintf("Downloading episodes (%d/%d)", m.progress.Step, m.progress.Total)
	default:
		phase = "Starting..."
	}

	return fmt.Sprintf("%s\n\n%s\n%s\n\n%s", title, phase, m.progress.Message, m.help)
}

func (m *CycleModel) renderResult() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Cycle failed: %v", m.err))
	}
	if m.result == nil {
		return styles.err.Render("No result available")
	}

	title := styles.ok.Render("Cycle complete")
	info := fmt.Sprintf("\nActionable: %d\nSucceeded: %d\nFailed: %d\nSkipped: %d",
		m.result.Actionable, m.result.Succeeded, m.result.Failed, m.result.Skipped)

	var failed string
	if m.result.HasFailures() {
		failed = "\n\n" + styles.warn.Render("Failed episodes:")
		for _, outcome := range m.result.Outcomes {
			if outcome.Err != nil {
				failed += fmt.Sprintf("\n  • %s E%d: %v",
					outcome.Episode.Title, outcome.Episode.Episode, outcome.Err)
			}
		}
	}

	return fmt.Sprintf("%s\n%s%s\n", title, info, failed)
}

func (m *CycleModel) startCycle() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)

	go func() {
		result, err := m.engine.Cycle(m.ctx, m.progressChan)
		m.result = result
		m.err = err
		close(m.progressChan)
	}()

	return m.waitForProgress()
}

func (m *CycleModel) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		if m.progressChan == nil {
			return cycleCompleteMsg{result: m.result, err: m.err}
		}

		update, ok := <-m.progressChan
		if !ok {
			return cycleCompleteMsg{result: m.result, err: m.err}
		}
		return progressUpdateMsg(update)
	}
}
