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

package tui

import (
	"math"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestProgressModelTracksTables(t *testing.T) {
	t.Parallel()

	m := NewProgressModel("restore shop", "Restoring", nil)
	m.Update(Update{Table: "customers", Index: 1, Count: 2, Rows: 50, Total: 100})

	if got := m.Percent(); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("Percent = %v, want 0.25", got)
	}
	if view := m.View(); !strings.Contains(view, "Restoring customers (1/2)") {
		t.Errorf("view lacks current table:\n%s", view)
	}

	m.Update(Update{Table: "customers", Index: 1, Count: 2, Rows: 100, Total: 100, Done: true, Status: "restored"})
	if got := m.Percent(); got != 0.5 {
		t.Errorf("Percent = %v, want 0.5", got)
	}
	if view := m.View(); !strings.Contains(view, "customers") || !strings.Contains(view, "100 rows") {
		t.Errorf("view lacks finished line:\n%s", view)
	}
}

func TestProgressModelKeepsLastLines(t *testing.T) {
	t.Parallel()

	m := NewProgressModel("restore", "Restoring", nil)
	for i := 1; i <= maxFinishedLines+3; i++ {
		m.Update(Update{Table: "t", Index: i, Count: 20, Done: true, Status: "empty"})
	}
	if len(m.finished) != maxFinishedLines {
		t.Errorf("%d finished lines kept, want %d", len(m.finished), maxFinishedLines)
	}
}

func TestProgressModelSchemaPhase(t *testing.T) {
	t.Parallel()

	m := NewProgressModel("restore", "Restoring", nil)
	m.Update(Update{Statements: 12, Bytes: 300, TotalBytes: 1200})

	if got := m.Percent(); got != 0.25 {
		t.Errorf("Percent = %v, want 0.25", got)
	}
	if view := m.View(); !strings.Contains(view, "Replaying schema (12 statements)") {
		t.Errorf("view lacks schema line:\n%s", view)
	}

	m.Update(Update{Table: "customers", Index: 1, Count: 4})
	if got := m.Percent(); got != 0 {
		t.Errorf("Percent after first table = %v, want 0", got)
	}
}

func TestProgressModelCtrlCCancels(t *testing.T) {
	t.Parallel()

	cancelled := 0
	m := NewProgressModel("restore", "Restoring", func() { cancelled++ })

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cancelled != 1 {
		t.Errorf("cancel called %d times, want 1", cancelled)
	}
	if !strings.Contains(m.View(), "Stopping") {
		t.Error("view should say the run is stopping")
	}
}

func TestProgressModelQuitsWhenFinished(t *testing.T) {
	t.Parallel()

	m := NewProgressModel("restore", "Restoring", nil)
	_, cmd := m.Update(finishedMsg{})
	if cmd == nil {
		t.Fatal("finished message should quit the program")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("command should produce tea.QuitMsg")
	}
}
