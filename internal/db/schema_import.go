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
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/blubskye/nukepave/internal/buffer"
	"github.com/blubskye/nukepave/internal/logging"
)

// SchemaImportOptions configures the schema import
type SchemaImportOptions struct {
	FilePath       string
	TargetDatabase string // when set, database statements in the file are skipped
	Recreate       bool   // drop and recreate TargetDatabase first
	OnProgress     func(statements int, line int)
	OnBytes        func(read, total int64) // file bytes consumed
}

// StatementResult records one failed statement
type StatementResult struct {
	Line int
	SQL  string
	Err  error
}

func (r StatementResult) Error() string {
	return fmt.Sprintf("line %d: %v", r.Line, r.Err)
}

// SchemaImportStats contains statistics about the schema import
type SchemaImportStats struct {
	Statements int
	Succeeded  int
	Skipped    int
	Failures   []StatementResult
	Database   string
	Objects    map[ObjectKind]int
	Duration   time.Duration
}

// ImportSchema replays a schema file one statement at a time with foreign
// key checks disabled. A failing statement is recorded and the import
// continues; only an unreadable file or cancellation stops it.
func (c *Connection) ImportSchema(ctx context.Context, opts SchemaImportOptions) (*SchemaImportStats, error) {
	startTime := time.Now()
	stats := &SchemaImportStats{}

	reader, err := buffer.NewSQLStatementReader(opts.FilePath, opts.OnBytes)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	reader.EnablePostgresQuoting(c.Driver.Type() == DatabaseTypePostgres)

	if opts.TargetDatabase != "" {
		if err := c.prepareTargetDatabase(ctx, opts.TargetDatabase, opts.Recreate); err != nil {
			return nil, err
		}
	}

	conn, err := c.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	guard := newFKGuard(conn, c.Driver)
	if err := guard.Disable(ctx); err != nil {
		return nil, err
	}
	defer guard.Restore()

	logging.Debug("Starting schema import from: %s", opts.FilePath)

	var usedDatabase string
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stmt, line, err := reader.ReadStatement()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read schema file: %w", err)
		}

		stats.Statements++
		if opts.OnProgress != nil {
			opts.OnProgress(stats.Statements, line)
		}

		if opts.TargetDatabase != "" && isDatabaseStatement(stmt) {
			logging.Debug("Skipping database statement at line %d: %s", line, truncateSQL(stmt))
			stats.Skipped++
			continue
		}

		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			logging.Warn("Statement at line %d failed: %v", line, err)
			logging.Debug("  %s", truncateSQL(stmt))
			stats.Failures = append(stats.Failures, StatementResult{Line: line, SQL: truncateSQL(stmt), Err: err})
			continue
		}
		stats.Succeeded++
		if name, ok := parseUseStatement(stmt); ok {
			usedDatabase = name
		}
	}

	if err := guard.Restore(); err != nil {
		logging.Warn("%v", err)
	}

	// Later phases use the pool, so point it at the database the file selected
	if usedDatabase != "" && usedDatabase != c.Config.Database {
		conn.Close()
		if err := c.SwitchDatabase(ctx, usedDatabase); err != nil {
			return stats, err
		}
	}
	stats.Database = c.DatabaseName()

	counts, err := c.ObjectCounts(ctx)
	if err != nil {
		logging.Warn("Could not verify imported objects: %v", err)
	} else {
		stats.Objects = counts
	}
	stats.Duration = time.Since(startTime)

	logging.Info("Schema import complete: %d statements, %d failed, %d skipped in %v",
		stats.Statements, len(stats.Failures), stats.Skipped, stats.Duration.Round(time.Millisecond))
	return stats, nil
}

// prepareTargetDatabase optionally recreates the target and connects to it
func (c *Connection) prepareTargetDatabase(ctx context.Context, name string, recreate bool) error {
	if recreate {
		drop := c.Driver.DropDatabaseQuery(name)
		if drop == "" {
			logging.Warn("Recreate is not supported for %s; importing into the existing database", c.Driver.Type())
		} else {
			// PostgreSQL cannot drop the database it is connected to
			if c.Driver.Type() == DatabaseTypePostgres && c.Config.Database == name {
				if err := c.SwitchDatabase(ctx, "postgres"); err != nil {
					return err
				}
			}
			logging.Info("Recreating database %s", name)
			if _, err := c.DB.ExecContext(ctx, drop); err != nil {
				return fmt.Errorf("failed to drop database %s: %w", name, err)
			}
			if _, err := c.DB.ExecContext(ctx, c.Driver.CreateDatabaseWithOptionsQuery(name, "", "")); err != nil {
				return fmt.Errorf("failed to create database %s: %w", name, err)
			}
		}
	}
	if c.Driver.Type() == DatabaseTypeSQLite {
		return nil
	}
	return c.SwitchDatabase(ctx, name)
}

// isDatabaseStatement reports CREATE/DROP DATABASE and USE statements
func isDatabaseStatement(stmt string) bool {
	fields := strings.Fields(strings.ToUpper(stmt))
	if len(fields) == 0 {
		return false
	}
	if fields[0] == "USE" {
		return true
	}
	if len(fields) >= 2 && (fields[0] == "CREATE" || fields[0] == "DROP") {
		return fields[1] == "DATABASE" || fields[1] == "SCHEMA"
	}
	return false
}

func parseUseStatement(stmt string) (string, bool) {
	fields := strings.Fields(stmt)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "USE") {
		return "", false
	}
	return strings.Trim(fields[1], "`\"';"), true
}
