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

package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blubskye/nukepave/internal/logging"
)

// fkRestoreTimeout bounds re-enabling foreign keys after the run context is gone
const fkRestoreTimeout = 10 * time.Second

// fkGuard disables foreign key enforcement on one session and guarantees it
// is turned back on. The setting is per session, so the guard must wrap the
// same connection all statements run on.
type fkGuard struct {
	mu       sync.Mutex
	conn     queryer
	driver   Driver
	disabled bool
}

func newFKGuard(conn queryer, driver Driver) *fkGuard {
	return &fkGuard{conn: conn, driver: driver}
}

// Disable turns enforcement off for the session
func (g *fkGuard) Disable(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.disabled {
		return nil
	}
	if _, err := g.conn.ExecContext(ctx, g.driver.DisableForeignKeysSQL()); err != nil {
		return fmt.Errorf("failed to disable foreign key checks: %w", err)
	}
	g.disabled = true
	logging.Debug("Foreign key checks disabled")
	return nil
}

// Restore turns enforcement back on. It uses its own context so it still
// runs when the caller's context was cancelled. Safe to call more than once.
func (g *fkGuard) Restore() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.disabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), fkRestoreTimeout)
	defer cancel()

	if _, err := g.conn.ExecContext(ctx, g.driver.EnableForeignKeysSQL()); err != nil {
		logging.Error("Failed to re-enable foreign key checks: %v", err)
		return fmt.Errorf("failed to re-enable foreign key checks: %w", err)
	}
	g.disabled = false
	logging.Debug("Foreign key checks re-enabled")
	return nil
}

// Disabled reports whether enforcement is currently off
func (g *fkGuard) Disabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disabled
}
