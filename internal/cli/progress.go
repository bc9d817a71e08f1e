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

package cli

import (
	"bytes"
	"context"
	"os"

	"golang.org/x/term"

	"github.com/blubskye/nukepave/internal/logging"
	"github.com/blubskye/nukepave/internal/tui"
)

// showProgress reports whether to draw the progress view
func showProgress(disabled bool) bool {
	return !disabled && term.IsTerminal(int(os.Stderr.Fd()))
}

// runJob runs job with the progress view when interactive is true. Log
// output is held back while the view is on screen and printed afterwards.
func runJob(ctx context.Context, interactive bool, title, verb string, job func(ctx context.Context, report func(tui.Update)) error) error {
	if !interactive {
		return job(ctx, func(tui.Update) {})
	}

	var held bytes.Buffer
	restore := logging.Redirect(&held)
	err := tui.Run(ctx, title, verb, job)
	restore()

	if held.Len() > 0 {
		os.Stderr.Write(held.Bytes())
	}
	return err
}
