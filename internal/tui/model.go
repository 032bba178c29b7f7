// Package tui renders live extraction progress. It is a pure observer
// of run events and never affects the extraction itself.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/placesdata/pipeline"
)

// EventMsg wraps a run event for the bubbletea update loop.
type EventMsg pipeline.RunEvent

type Model struct {
	spinner spinner.Model
	start   time.Time

	offset         int
	lastRows       int
	totalRows      int
	totalBatches   int
	failedAttempts int

	done bool
	err  error
}

func NewModel() Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return Model{
		spinner: s,
		start:   time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case EventMsg:
		m.totalRows = msg.TotalRows
		m.totalBatches = msg.TotalBatches
		m.failedAttempts = msg.FailedAttempts
		switch msg.Kind {
		case pipeline.EventBatchFetched:
			m.offset = msg.Offset
			m.lastRows = msg.Rows
		case pipeline.EventRunFinished:
			m.done = true
			m.err = msg.Err
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(Styles.Title.Render("PLACES extraction") + "\n\n")

	status := m.spinner.View() + " fetching"
	if m.done {
		if m.err != nil {
			status = Styles.Error.Render("failed: " + m.err.Error())
		} else {
			status = Styles.Done.Render("done")
		}
	}
	s.WriteString("  " + status + "\n\n")

	elapsed := time.Since(m.start).Seconds()
	throughput := 0.0
	if elapsed > 0 {
		throughput = float64(m.totalRows) / elapsed
	}

	rows := [][2]string{
		{"Offset", humanize.Comma(int64(m.offset))},
		{"Last batch", humanize.Comma(int64(m.lastRows))},
		{"Total rows", humanize.Comma(int64(m.totalRows))},
		{"Batches", fmt.Sprintf("%d", m.totalBatches)},
		{"Failed attempts", fmt.Sprintf("%d", m.failedAttempts)},
		{"Rows/second", fmt.Sprintf("%.0f", throughput)},
	}
	for _, row := range rows {
		s.WriteString(fmt.Sprintf(
			"  %s %s\n",
			Styles.Label.Render(fmt.Sprintf("%-16s", row[0])),
			Styles.Value.Render(row[1]),
		))
	}

	s.WriteString("\n  press q to close the view, extraction continues\n")
	return s.String()
}

// Run renders events until the channel's run finishes or the user
// quits the view.
func Run(events <-chan pipeline.RunEvent) error {
	p := tea.NewProgram(NewModel())
	go func() {
		for ev := range events {
			p.Send(EventMsg(ev))
		}
	}()
	_, err := p.Run()
	return err
}
