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
	"database/sql"
	"fmt"
	"strings"

	"github.com/blubskye/nukepave/internal/logging"
)

type pendingRow struct {
	index int
	args  []interface{}
}

// batchLoader accumulates rows and inserts them with one multi-row INSERT
// per batch. When a batch fails it is rolled back and retried row by row so
// one bad row costs only itself.
type batchLoader struct {
	conn     *sql.Conn
	driver   Driver
	table    string
	columns  string
	override string
	width    int
	size     int
	rows     []pendingRow
}

func (c *Connection) newBatchLoader(conn *sql.Conn, table string, cols []ColumnDescriptor, batchSize int) *batchLoader {
	quoted := make([]string, len(cols))
	override := ""
	for i, col := range cols {
		quoted[i] = c.QuoteIdentifier(col.Name)
		if col.Identity {
			override = c.Driver.InsertOverrideClause()
		}
	}

	// keep each statement under the dialect's bind parameter limit
	if limit := c.Driver.MaxPlaceholders() / len(cols); batchSize > limit {
		logging.Debug("Batch size for %s capped at %d rows", table, limit)
		batchSize = limit
	}
	if batchSize < 1 {
		batchSize = 1
	}

	return &batchLoader{
		conn:     conn,
		driver:   c.Driver,
		table:    c.QuoteIdentifier(table),
		columns:  strings.Join(quoted, ", "),
		override: override,
		width:    len(cols),
		size:     batchSize,
		rows:     make([]pendingRow, 0, batchSize),
	}
}

func (b *batchLoader) add(index int, args []interface{}) {
	b.rows = append(b.rows, pendingRow{index: index, args: args})
}

func (b *batchLoader) full() bool {
	return len(b.rows) >= b.size
}

// insertStatement builds an INSERT with n value tuples
func (b *batchLoader) insertStatement(n int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) ", b.table, b.columns)
	if b.override != "" {
		sb.WriteString(b.override)
		sb.WriteString(" ")
	}
	sb.WriteString("VALUES ")

	p := 1
	for r := 0; r < n; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for i := 0; i < b.width; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(b.driver.Placeholder(p))
			p++
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// flush inserts the pending rows and returns how many went in plus the
// errors of those that did not
func (b *batchLoader) flush(ctx context.Context) (int64, []RowError) {
	n := len(b.rows)
	if n == 0 {
		return 0, nil
	}
	defer func() { b.rows = b.rows[:0] }()

	args := make([]interface{}, 0, n*b.width)
	for _, r := range b.rows {
		args = append(args, r.args...)
	}

	err := b.execBatch(ctx, b.insertStatement(n), args)
	if err == nil {
		return int64(n), nil
	}
	if n == 1 {
		return 0, []RowError{{Index: b.rows[0].index, Err: err}}
	}

	logging.Debug("Batch of %d rows into %s failed (%v); retrying row by row", n, b.table, err)

	// Non-transactional engines (MyISAM, Aria) keep the rows written before
	// the failing one, so their retries fail as duplicates and are counted
	// as failed even though the data is present.

	single := b.insertStatement(1)
	var inserted int64
	var rowErrs []RowError
	for _, r := range b.rows {
		if _, err := b.conn.ExecContext(ctx, single, r.args...); err != nil {
			rowErrs = append(rowErrs, RowError{Index: r.index, Err: err})
			continue
		}
		inserted++
	}
	return inserted, rowErrs
}

func (b *batchLoader) execBatch(ctx context.Context, stmt string, args []interface{}) error {
	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
