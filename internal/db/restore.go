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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/blubskye/nukepave/internal/archive"
	"github.com/blubskye/nukepave/internal/graph"
	"github.com/blubskye/nukepave/internal/logging"
)

const (
	// DefaultBatchSize is the number of rows per multi-row INSERT
	DefaultBatchSize = 1000

	// maxRowErrors caps the row errors kept per table; Failed still counts all
	maxRowErrors = 20
)

// TableStatus is the outcome of restoring one table
type TableStatus string

const (
	StatusRestored TableStatus = "restored"
	StatusPartial  TableStatus = "partial"
	StatusFailed   TableStatus = "failed"
	StatusEmpty    TableStatus = "empty"
	StatusSkipped  TableStatus = "skipped"
)

// RestoreOptions configures a data restore
type RestoreOptions struct {
	DataDir        string
	Tables         []string // restore only these; empty = every table in the manifest
	ManualOrder    []string // tables listed here go first, in this order
	BatchSize      int
	RecomputeOrder bool // ignore table_order.json
	OnProgress     func(ProgressEvent)
}

// ProgressEvent reports restore progress after each batch and table
type ProgressEvent struct {
	Table      string
	TableIndex int
	TableCount int
	Rows       int64
	TableRows  int64
	Done       bool
	Status     TableStatus
}

// RowError is one row that could not be inserted
type RowError struct {
	Index int
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

// TableResult is the outcome of one table
type TableResult struct {
	Table              string
	Status             TableStatus
	Cyclic             bool
	Attempted          int64
	Inserted           int64
	Failed             int64
	ExcludedColumns    []string // generated columns left out of the INSERT
	DroppedColumns     []string // in the backup but not in the live table
	MissingColumns     []string // in the live table but not in the backup
	AutoIncrementReset int64
	Errors             []RowError
	Err                error
	Duration           time.Duration
}

func (tr *TableResult) addRowError(index int, err error) {
	tr.Attempted++
	tr.Failed++
	if len(tr.Errors) < maxRowErrors {
		tr.Errors = append(tr.Errors, RowError{Index: index, Err: err})
	}
}

func (tr *TableResult) finish() {
	switch {
	case tr.Err != nil && tr.Inserted == 0:
		tr.Status = StatusFailed
	case tr.Err != nil:
		tr.Status = StatusPartial
	case tr.Attempted == 0:
		tr.Status = StatusEmpty
	case tr.Failed == 0:
		tr.Status = StatusRestored
	case tr.Inserted == 0:
		tr.Status = StatusFailed
	default:
		tr.Status = StatusPartial
	}
}

// RestoreResult is the outcome of a whole restore run
type RestoreResult struct {
	RunID     string
	Database  string
	DataDir   string
	Order     graph.Order
	Tables    []TableResult
	Skipped   []string // named in the manual order but absent from the backup
	StartedAt time.Time
	Duration  time.Duration
}

func (r *RestoreResult) tablesWith(statuses ...TableStatus) []string {
	var out []string
	for _, t := range r.Tables {
		for _, s := range statuses {
			if t.Status == s {
				out = append(out, t.Table)
				break
			}
		}
	}
	return out
}

// RestoredTables returns fully restored tables, including empty ones
func (r *RestoreResult) RestoredTables() []string {
	return r.tablesWith(StatusRestored, StatusEmpty)
}

// PartialTables returns tables with some failed rows
func (r *RestoreResult) PartialTables() []string {
	return r.tablesWith(StatusPartial)
}

// FailedTables returns tables with no rows restored
func (r *RestoreResult) FailedTables() []string {
	return r.tablesWith(StatusFailed)
}

// TotalInserted sums inserted rows over all tables
func (r *RestoreResult) TotalInserted() int64 {
	var n int64
	for _, t := range r.Tables {
		n += t.Inserted
	}
	return n
}

// TotalFailed sums failed rows over all tables
func (r *RestoreResult) TotalFailed() int64 {
	var n int64
	for _, t := range r.Tables {
		n += t.Failed
	}
	return n
}

// Err aggregates table failures, or returns nil when every table restored
func (r *RestoreResult) Err() error {
	var result *multierror.Error
	for _, t := range r.Tables {
		switch {
		case t.Err != nil:
			result = multierror.Append(result, fmt.Errorf("%s: %w", t.Table, t.Err))
		case t.Failed > 0:
			result = multierror.Append(result, fmt.Errorf("%s: %d of %d rows failed", t.Table, t.Failed, t.Attempted))
		}
	}
	return result.ErrorOrNil()
}

// RestoreData reloads a data backup directory into the connected database.
// Tables are cleared and loaded in dependency order on one session with
// foreign key checks off; the checks are re-enabled however the run ends.
// Per-table and per-row failures are reported in the result, not as an error.
func (c *Connection) RestoreData(ctx context.Context, opts RestoreOptions) (*RestoreResult, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	manifest, err := archive.ReadManifest(opts.DataDir)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{
		RunID:     uuid.NewString(),
		Database:  c.DatabaseName(),
		DataDir:   opts.DataDir,
		StartedAt: time.Now(),
	}
	runLog := logging.With().Str("run_id", result.RunID).Logger()

	order, skipped, err := restorePlan(opts.DataDir, manifest, opts)
	if err != nil {
		return nil, err
	}
	result.Order = order
	result.Skipped = skipped

	runLog.Info().
		Str("backup", manifest.Database).
		Str("timestamp", manifest.BackupTimestamp).
		Int("tables", len(order.Tables)).
		Msg("Starting data restore")
	if order.HasCycles() {
		runLog.Warn().Strs("cyclic", order.Cyclic).Msg("Circular foreign keys; these tables load last")
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

	for i, table := range order.Tables {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(result.StartedAt)
			return result, err
		}

		entry, _ := manifest.Entry(table)
		tr := c.restoreTable(ctx, conn, opts, entry, func(rows int64) {
			if opts.OnProgress != nil {
				opts.OnProgress(ProgressEvent{
					Table: table, TableIndex: i + 1, TableCount: len(order.Tables),
					Rows: rows, TableRows: entry.RowCount,
				})
			}
		})
		tr.Cyclic = order.IsCyclic(table)
		result.Tables = append(result.Tables, tr)

		logTableResult(runLog, tr)
		if opts.OnProgress != nil {
			opts.OnProgress(ProgressEvent{
				Table: table, TableIndex: i + 1, TableCount: len(order.Tables),
				Rows: tr.Inserted, TableRows: entry.RowCount, Done: true, Status: tr.Status,
			})
		}

		// a cancelled run stops here rather than recording more failures
		if ctx.Err() != nil {
			result.Duration = time.Since(result.StartedAt)
			return result, ctx.Err()
		}
	}

	if err := guard.Restore(); err != nil {
		runLog.Error().Err(err).Msg("Foreign key checks may still be disabled on this session")
	}

	result.Duration = time.Since(result.StartedAt)
	runLog.Info().
		Int("restored", len(result.RestoredTables())).
		Int("partial", len(result.PartialTables())).
		Int("failed", len(result.FailedTables())).
		Int64("rows", result.TotalInserted()).
		Dur("duration", result.Duration).
		Msg("Data restore finished")
	return result, nil
}

func logTableResult(l zerolog.Logger, tr TableResult) {
	var ev *zerolog.Event
	switch tr.Status {
	case StatusFailed:
		ev = l.Error()
	case StatusPartial:
		ev = l.Warn()
	default:
		ev = l.Info()
	}
	if tr.Err != nil {
		ev = ev.Err(tr.Err)
	}
	ev.Str("table", tr.Table).
		Str("status", string(tr.Status)).
		Int64("inserted", tr.Inserted).
		Int64("failed", tr.Failed).
		Msg("Table restored")
}

// restorePlan works out which tables to load and in which order
func restorePlan(dir string, manifest *archive.Manifest, opts RestoreOptions) (graph.Order, []string, error) {
	available := manifest.TableNames()
	if len(opts.Tables) > 0 {
		want := make(map[string]bool, len(opts.Tables))
		for _, t := range opts.Tables {
			want[t] = true
		}
		var subset []string
		for _, t := range available {
			if want[t] {
				subset = append(subset, t)
				delete(want, t)
			}
		}
		for t := range want {
			logging.Warn("Table %s is not in the backup, skipping", t)
		}
		available = subset
	}

	var order graph.Order
	cached := false
	if !opts.RecomputeOrder {
		o, found, err := archive.ReadOrder(dir)
		if err != nil {
			logging.Warn("Ignoring cached order: %v", err)
		} else if found {
			order, cached = restrictOrder(*o, available)
		}
	}
	if !cached {
		edges, found, err := archive.ReadDependencies(dir)
		if err != nil {
			return graph.Order{}, nil, err
		}
		if !found {
			logging.Warn("No %s in backup; restoring in manifest order", archive.DependenciesFile)
		}
		order = graph.TopologicalOrder(graph.Build(available, edges).Subset(available))
	} else {
		logging.Debug("Using cached order from %s", archive.OrderFile)
	}

	var skipped []string
	if len(opts.ManualOrder) > 0 {
		var missing []string
		order.Tables, missing = graph.ApplyManualOrder(order.Tables, opts.ManualOrder)
		for _, t := range missing {
			logging.Warn("Table %s from the manual order is not in the backup, skipping", t)
		}
		skipped = missing
	}
	return order, skipped, nil
}

// restrictOrder narrows a cached order to the available tables. ok is false
// when the cache does not cover them all.
func restrictOrder(o graph.Order, available []string) (graph.Order, bool) {
	keep := make(map[string]bool, len(available))
	for _, t := range available {
		keep[t] = true
	}

	var out graph.Order
	for _, t := range o.Tables {
		if keep[t] {
			out.Tables = append(out.Tables, t)
			delete(keep, t)
		}
	}
	if len(keep) > 0 {
		return graph.Order{}, false
	}
	for _, t := range o.Cyclic {
		for _, a := range out.Tables {
			if a == t {
				out.Cyclic = append(out.Cyclic, t)
				break
			}
		}
	}
	out.Cycles = o.Cycles
	return out, true
}

// restoreTable clears one table and loads its rows file into it
func (c *Connection) restoreTable(ctx context.Context, conn *sql.Conn, opts RestoreOptions, entry archive.TableEntry, progress func(int64)) TableResult {
	start := time.Now()
	table := entry.Table
	tr := TableResult{Table: table}
	defer func() { tr.Duration = time.Since(start) }()

	exists, err := c.tableExists(ctx, conn, table)
	if err != nil {
		tr.Err = err
		tr.finish()
		return tr
	}
	if !exists {
		tr.Err = ErrTableNotFound
		tr.finish()
		return tr
	}

	live, err := c.columns(ctx, conn, table)
	if err != nil {
		tr.Err = err
		tr.finish()
		return tr
	}

	var backupCols []ColumnDescriptor
	if err := archive.ReadJSONFile(filepath.Join(opts.DataDir, archive.ColumnsFileName(table)), &backupCols); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Ignoring column metadata of %s: %v", table, err)
		}
		backupCols = nil
	}

	rowsPath, findErr := archive.FindRowsFile(opts.DataDir, table)
	var reader *archive.RowReader
	if findErr == nil {
		if reader, err = archive.OpenRowReader(rowsPath); err != nil {
			tr.Err = err
			tr.finish()
			return tr
		}
		defer reader.Close()
	} else if entry.RowCount > 0 {
		tr.Err = fmt.Errorf("%w: %s", ErrRowsFileMissing, archive.RowsFileName(table, ""))
		tr.finish()
		return tr
	}

	// Without column metadata the first row's keys stand in for it
	var first map[string]interface{}
	var firstErr error
	if reader != nil {
		first, firstErr = reader.Next()
		if errors.Is(firstErr, io.EOF) {
			first, firstErr = nil, nil
			reader = nil
		}
	}
	var backupNames []string
	if backupCols != nil {
		for _, col := range backupCols {
			backupNames = append(backupNames, col.Name)
		}
	} else if first != nil {
		for k := range first {
			backupNames = append(backupNames, k)
		}
		sort.Strings(backupNames)
	}

	cols := planColumns(&tr, live, backupCols, backupNames)
	if len(tr.DroppedColumns) > 0 {
		logging.Warn("%s: backup columns not in the table are ignored: %s", table, strings.Join(tr.DroppedColumns, ", "))
	}
	if len(tr.MissingColumns) > 0 {
		logging.Warn("%s: table columns not in the backup get defaults: %s", table, strings.Join(tr.MissingColumns, ", "))
	}

	// Clear. A failure here is reported but loading still proceeds.
	if _, err := conn.ExecContext(ctx, c.Driver.ClearTableQuery(table)); err != nil {
		logging.Warn("Failed to clear %s: %v", table, err)
	}

	if reader == nil && firstErr == nil {
		tr.finish()
		return tr
	}
	if len(cols) == 0 {
		tr.Err = fmt.Errorf("no columns in common between backup and table")
		tr.finish()
		return tr
	}

	loader := c.newBatchLoader(conn, table, cols, opts.BatchSize)

	handle := func(index int, obj map[string]interface{}, err error) {
		if err != nil {
			tr.addRowError(index, err)
			return
		}
		args, err := rowArgs(obj, cols)
		if err != nil {
			tr.addRowError(index, err)
			return
		}
		tr.Attempted++
		loader.add(index, args)
	}
	flush := func() {
		inserted, rowErrs := loader.flush(ctx)
		tr.Inserted += inserted
		for _, re := range rowErrs {
			tr.Failed++
			if len(tr.Errors) < maxRowErrors {
				tr.Errors = append(tr.Errors, re)
			}
		}
		progress(tr.Inserted)
	}

	if firstErr != nil && !isRowDecodeError(firstErr) {
		tr.Err = firstErr
		tr.finish()
		return tr
	}
	index := 0
	handle(index, first, decodeErr(firstErr))

	for {
		if loader.full() {
			flush()
		}
		if err := ctx.Err(); err != nil {
			tr.Err = err
			break
		}

		obj, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		index++
		if err != nil && !isRowDecodeError(err) {
			// the stream is unreadable past this point
			tr.Err = err
			break
		}
		handle(index, obj, decodeErr(err))
	}
	if ctx.Err() == nil {
		flush()
	}

	if tr.Inserted > 0 {
		c.resetAutoIncrement(ctx, conn, &tr, live)
	}

	tr.finish()
	return tr
}

func isRowDecodeError(err error) bool {
	var de *archive.RowDecodeError
	return errors.As(err, &de)
}

func decodeErr(err error) error {
	if err == nil {
		return nil
	}
	var de *archive.RowDecodeError
	if errors.As(err, &de) {
		return de.Err
	}
	return err
}

// planColumns intersects backup and live columns and drops generated ones
func planColumns(tr *TableResult, live, backup []ColumnDescriptor, backupNames []string) []ColumnDescriptor {
	liveByName := make(map[string]ColumnDescriptor, len(live))
	for _, col := range live {
		liveByName[col.Name] = col
	}
	backupGenerated := make(map[string]bool)
	for _, col := range backup {
		if col.Generated {
			backupGenerated[col.Name] = true
		}
	}

	inBackup := make(map[string]bool, len(backupNames))
	var cols []ColumnDescriptor
	for _, name := range backupNames {
		inBackup[name] = true
		col, ok := liveByName[name]
		switch {
		case !ok:
			tr.DroppedColumns = append(tr.DroppedColumns, name)
		case col.Generated || backupGenerated[name]:
			tr.ExcludedColumns = append(tr.ExcludedColumns, name)
		default:
			cols = append(cols, col)
		}
	}
	for _, col := range live {
		if !inBackup[col.Name] && !col.Generated {
			tr.MissingColumns = append(tr.MissingColumns, col.Name)
		}
	}
	return cols
}

// rowArgs converts a row object into bind arguments in column order
func rowArgs(obj map[string]interface{}, cols []ColumnDescriptor) ([]interface{}, error) {
	row, err := RowFromJSON(obj)
	if err != nil {
		return nil, err
	}
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		v, ok := row[col.Name]
		if !ok {
			v = Null()
		}
		if args[i], err = coerce(v, col); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// resetAutoIncrement moves the sequence past the restored maximum
func (c *Connection) resetAutoIncrement(ctx context.Context, conn *sql.Conn, tr *TableResult, live []ColumnDescriptor) {
	for _, col := range live {
		if !col.AutoIncrement {
			continue
		}

		var max sql.NullInt64
		if err := conn.QueryRowContext(ctx, c.Driver.MaxValueQuery(tr.Table, col.Name)).Scan(&max); err != nil {
			logging.Warn("Could not read max %s.%s: %v", tr.Table, col.Name, err)
			return
		}
		if !max.Valid {
			return
		}

		next := max.Int64 + 1
		if _, err := conn.ExecContext(ctx, c.Driver.ResetAutoIncrementQuery(tr.Table, col.Name, next)); err != nil {
			logging.Warn("Could not reset auto-increment of %s: %v", tr.Table, err)
			return
		}
		tr.AutoIncrementReset = next
		logging.Debug("Reset auto-increment of %s.%s to %d", tr.Table, col.Name, next)
		return
	}
}
