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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/blubskye/nukepave/internal/archive"
	"github.com/blubskye/nukepave/internal/buffer"
	"github.com/blubskye/nukepave/internal/graph"
	"github.com/blubskye/nukepave/internal/logging"
	"github.com/blubskye/nukepave/internal/worker"
)

// DefaultFetchSize is the number of rows read per page during data export
const DefaultFetchSize = 5000

// DataExportOptions configures the data export
type DataExportOptions struct {
	OutputDir   string // exact directory; overrides BaseDir
	BaseDir     string // parent of data_backup_<db>_<timestamp>
	Tables      []string
	FetchSize   int
	Parallel    int // tables exported concurrently (0 or 1 = sequential)
	Compression buffer.CompressionType
	Timestamp   time.Time
	ToolVersion string
	OnProgress  func(table string, done, total int, rows int64)
}

// DataExportStats contains statistics about the data export
type DataExportStats struct {
	RunID        string
	Dir          string
	Tables       int
	Rows         int64
	FailedTables []string
	Order        graph.Order
	Duration     time.Duration
}

type tableExport struct {
	entry archive.TableEntry
	err   error
}

// ExportData writes one JSON row array and one column metadata file per
// table, the dependency edges, the computed order and finally the manifest.
// A failing table does not stop the export; it is recorded in the manifest.
func (c *Connection) ExportData(ctx context.Context, opts DataExportOptions) (*DataExportStats, error) {
	startTime := time.Now()
	if opts.FetchSize <= 0 {
		opts.FetchSize = DefaultFetchSize
	}
	ts := opts.Timestamp
	if ts.IsZero() {
		ts = startTime
	}

	dir := opts.OutputDir
	if dir == "" {
		dir = filepath.Join(opts.BaseDir, archive.DataDirName(c.DatabaseName(), ts))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	catalog, err := c.ReadCatalog(ctx)
	if err != nil {
		return nil, err
	}

	tables := catalog.Tables
	if len(opts.Tables) > 0 {
		tables = tables[:0:0]
		for _, name := range opts.Tables {
			td, ok := catalog.Table(name)
			if !ok {
				logging.Warn("Table %s does not exist, skipping", name)
				continue
			}
			tables = append(tables, *td)
		}
	}

	stats := &DataExportStats{RunID: uuid.NewString(), Dir: dir}
	logging.Debug("Exporting %d tables to %s", len(tables), dir)

	var done int32
	var progressMu sync.Mutex
	exportOne := func(ctx context.Context, td TableDescriptor) (tableExport, error) {
		if err := ctx.Err(); err != nil {
			return tableExport{entry: archive.TableEntry{Table: td.Name}, err: err}, err
		}
		entry, err := c.exportTable(ctx, dir, td, opts)
		if err != nil {
			logging.Error("Failed to export table %s: %v", td.Name, err)
		} else {
			logging.Debug("Exported %s: %d rows", td.Name, entry.RowCount)
		}
		if opts.OnProgress != nil {
			progressMu.Lock()
			opts.OnProgress(td.Name, int(atomic.AddInt32(&done, 1)), len(tables), entry.RowCount)
			progressMu.Unlock()
		}
		return tableExport{entry: entry, err: err}, nil
	}

	// per-table failures live in the results; errs only carries cancellation
	var results []tableExport
	var errs []error
	if opts.Parallel > 1 && len(tables) > 1 {
		logging.Debug("Exporting %d tables with %d parallel workers", len(tables), opts.Parallel)
		results, errs = worker.ParallelMap(ctx, opts.Parallel, tables, exportOne)
	} else {
		for _, td := range tables {
			r, err := exportOne(ctx, td)
			results = append(results, r)
			errs = append(errs, err)
		}
	}

	if err := worker.FirstError(errs); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	manifest := &archive.Manifest{
		Database:        c.DatabaseName(),
		BackupTimestamp: ts.Format(archive.TimestampLayout),
		RunID:           stats.RunID,
		ServerType:      string(c.Driver.Type()),
		ToolVersion:     opts.ToolVersion,
		Compression:     string(opts.Compression),
	}
	if v, err := c.ServerVersion(ctx); err == nil {
		manifest.ServerVersion = v
	}

	var exported []string
	for _, r := range results {
		if r.err != nil {
			manifest.Partial = true
			manifest.FailedTables = append(manifest.FailedTables, r.entry.Table)
			continue
		}
		manifest.Tables = append(manifest.Tables, r.entry)
		exported = append(exported, r.entry.Table)
		stats.Rows += r.entry.RowCount
	}
	stats.Tables = len(manifest.Tables)
	stats.FailedTables = manifest.FailedTables

	edges := catalog.Edges()
	if err := archive.WriteDependencies(dir, edges); err != nil {
		return nil, err
	}

	stats.Order = graph.TopologicalOrder(graph.Build(exported, edges).Subset(exported))
	if err := archive.WriteOrder(dir, stats.Order); err != nil {
		return nil, err
	}
	if stats.Order.HasCycles() {
		logging.Warn("Circular foreign keys between: %s", strings.Join(stats.Order.Cyclic, ", "))
	}

	// The manifest marks the directory complete, so it is written last
	if err := archive.WriteManifest(dir, manifest); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(startTime)
	logging.Info("Data export complete: %d tables, %d rows, %d failed in %v",
		stats.Tables, stats.Rows, len(stats.FailedTables), stats.Duration.Round(time.Millisecond))
	return stats, nil
}

// exportTable pages through one table in primary key order
func (c *Connection) exportTable(ctx context.Context, dir string, td TableDescriptor, opts DataExportOptions) (archive.TableEntry, error) {
	entry := archive.TableEntry{Table: td.Name, RowsFile: archive.RowsFileName(td.Name, opts.Compression)}

	columnsPath := filepath.Join(dir, archive.ColumnsFileName(td.Name))
	if err := archive.WriteJSONFile(columnsPath, td.Columns); err != nil {
		return entry, err
	}

	rw, err := archive.CreateRowWriter(filepath.Join(dir, entry.RowsFile), opts.Compression)
	if err != nil {
		os.Remove(columnsPath)
		return entry, err
	}

	if err := c.pageRows(ctx, td, opts.FetchSize, rw); err != nil {
		rw.Abort()
		os.Remove(columnsPath)
		return entry, err
	}
	if err := rw.Close(); err != nil {
		os.Remove(columnsPath)
		return entry, fmt.Errorf("failed to write rows: %w", err)
	}

	entry.RowCount = rw.Count()
	return entry, nil
}

func (c *Connection) pageRows(ctx context.Context, td TableDescriptor, fetchSize int, rw *archive.RowWriter) error {
	if len(td.Columns) == 0 {
		return nil
	}

	names := make([]string, len(td.Columns))
	quoted := make([]string, len(td.Columns))
	for i, col := range td.Columns {
		names[i] = col.Name
		quoted[i] = c.QuoteIdentifier(col.Name)
	}

	// Stable paging needs a total order; without a key every column is used
	orderBy := quoted
	if pk := td.PrimaryKey(); len(pk) > 0 {
		orderBy = make([]string, len(pk))
		for i, p := range pk {
			orderBy[i] = c.QuoteIdentifier(p)
		}
	}

	base := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(quoted, ", "), c.QuoteIdentifier(td.Name), strings.Join(orderBy, ", "))

	values := make([]interface{}, len(names))
	holders := make([]interface{}, len(names))
	for i := range holders {
		holders[i] = &values[i]
	}
	out := make([]interface{}, len(names))

	for offset := 0; ; offset += fetchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		rows, err := c.DB.QueryContext(ctx, fmt.Sprintf("%s LIMIT %d OFFSET %d", base, fetchSize, offset))
		if err != nil {
			return fmt.Errorf("failed to read rows: %w", err)
		}

		fetched := 0
		for rows.Next() {
			if err := rows.Scan(holders...); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan row: %w", err)
			}
			for i, col := range td.Columns {
				out[i] = exportValue(values[i], col)
			}
			if err := rw.WriteRow(names, out); err != nil {
				rows.Close()
				return err
			}
			fetched++
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("failed to read rows: %w", err)
		}

		if fetched < fetchSize {
			return nil
		}
	}
}
