// Nukepave - nuke-and-pave backup and restore for relational databases
// Copyright (C) 2025 blubskye
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.
//
// Source code: https://github.com/blubskye/nukepave

// Package tui renders progress and summaries in the terminal.
package tui

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/blubskye/nukepave/internal/logging"
)

// maxFinishedLines is how many completed tables stay on screen
const maxFinishedLines = 8

// Update reports the state of one table, or of the schema replay that
// precedes the tables
type Update struct {
	Table  string
	Index  int // 1-based
	Count  int
	Rows   int64
	Total  int64 // expected rows, 0 if unknown
	Done   bool
	Status string

	// schema replay, before any table is loaded
	Statements int
	Bytes      int64
	TotalBytes int64
}

type finishedMsg struct{ err error }

// ProgressModel shows a spinner, the current table and an overall bar
type ProgressModel struct {
	title    string
	verb     string
	bar      progress.Model
	spin     spinner.Model
	current  Update
	finished []string
	done     bool
	err      error
	stopping bool
	cancel   context.CancelFunc
}

// NewProgressModel creates the model. cancel is called when the user
// presses ctrl+c.
func NewProgressModel(title, verb string, cancel context.CancelFunc) *ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = TitleStyle

	return &ProgressModel{
		title: title,
		verb:  verb,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(40),
		),
		spin:   s,
		cancel: cancel,
	}
}

// Init starts the spinner
func (m *ProgressModel) Init() tea.Cmd {
	return m.spin.Tick
}

// Update handles messages
func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && !m.stopping {
			m.stopping = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		w := msg.Width - 10
		if w > 60 {
			w = 60
		}
		if w > 10 {
			m.bar.Width = w
		}
		return m, nil

	case Update:
		m.current = msg
		if msg.Done {
			line := fmt.Sprintf("%-30s %10d rows  %s", msg.Table, msg.Rows, Status(msg.Status))
			m.finished = append(m.finished, line)
			if len(m.finished) > maxFinishedLines {
				m.finished = m.finished[len(m.finished)-maxFinishedLines:]
			}
		}
		return m, nil

	case finishedMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Percent is the overall completion in [0, 1]
func (m *ProgressModel) Percent() float64 {
	u := m.current
	if u.Table == "" && u.TotalBytes > 0 {
		return math.Min(float64(u.Bytes)/float64(u.TotalBytes), 1)
	}
	if u.Count == 0 {
		return 0
	}
	if u.Done {
		return float64(u.Index) / float64(u.Count)
	}
	frac := 0.0
	if u.Total > 0 {
		frac = float64(u.Rows) / float64(u.Total)
		if frac > 1 {
			frac = 1
		}
	}
	return (float64(u.Index-1) + frac) / float64(u.Count)
}

// View renders the model
func (m *ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(Banner(m.title))
	b.WriteString("\n\n")

	for _, line := range m.finished {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(m.finished) > 0 {
		b.WriteString("\n")
	}

	if m.done {
		return b.String()
	}

	u := m.current
	switch {
	case m.stopping:
		b.WriteString(WarningStyle.Render("Stopping after the current batch..."))
	case u.Table != "":
		fmt.Fprintf(&b, "%s %s %s (%d/%d)", m.spin.View(), m.verb, u.Table, u.Index, u.Count)
		if u.Total > 0 {
			fmt.Fprintf(&b, "  %d/%d rows", u.Rows, u.Total)
		}
	case u.TotalBytes > 0:
		fmt.Fprintf(&b, "%s Replaying schema (%d statements)", m.spin.View(), u.Statements)
	default:
		fmt.Fprintf(&b, "%s Preparing...", m.spin.View())
	}
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(m.Percent()))
	b.WriteString("\n\n")
	b.WriteString(MutedStyle.Render("ctrl+c: stop"))
	b.WriteString("\n")
	return b.String()
}

// Run executes job while showing progress on stderr. job receives a
// context cancelled by ctrl+c and a function to report table updates.
// The job's error is returned.
func Run(ctx context.Context, title, verb string, job func(ctx context.Context, report func(Update)) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgressModel(title, verb, cancel), tea.WithOutput(os.Stderr))

	errCh := make(chan error, 1)
	go func() {
		err := job(ctx, func(u Update) { p.Send(u) })
		p.Send(finishedMsg{err: err})
		errCh <- err
	}()

	if _, err := p.Run(); err != nil {
		logging.Debug("Progress display stopped: %v", err)
	}
	return <-errCh
}
