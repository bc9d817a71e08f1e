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

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	primaryColor   = lipgloss.Color("#FF69B4") // Hot pink
	secondaryColor = lipgloss.Color("#FF1493") // Deep pink
	accentColor    = lipgloss.Color("#FFB6C1") // Light pink
	mutedColor     = lipgloss.Color("#888888")
	errorColor     = lipgloss.Color("#FF4444")
	warningColor   = lipgloss.Color("#FFB347")
	successColor   = lipgloss.Color("#44FF44")

	TitleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Italic(true)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	// Box style for the final summary
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)

	bannerStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)
)

// Status renders a table or sweep status word in its color
func Status(s string) string {
	switch s {
	case "restored", "empty", "kept":
		return SuccessStyle.Render(s)
	case "partial", "skipped", "would delete":
		return WarningStyle.Render(s)
	case "failed":
		return ErrorStyle.Render(s)
	}
	return s
}

// Banner returns the title line shown before interactive runs
func Banner(subtitle string) string {
	return bannerStyle.Render("nukepave") + "  " + SubtitleStyle.Render(subtitle)
}
