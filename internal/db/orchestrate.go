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
	"time"

	"github.com/blubskye/nukepave/internal/archive"
	"github.com/blubskye/nukepave/internal/buffer"
	"github.com/blubskye/nukepave/internal/logging"
)

// RestoreMode selects which phases a full restore runs
type RestoreMode string

const (
	RestoreAll        RestoreMode = "all"
	RestoreSchemaOnly RestoreMode = "schema-only"
	RestoreDataOnly   RestoreMode = "data-only"
)

// FullRestoreOptions configures a schema plus data restore
type FullRestoreOptions struct {
	Mode             RestoreMode
	SchemaFile       string
	TargetDatabase   string
	Recreate         bool
	Data             RestoreOptions
	OnSchemaProgress func(statements, line int)
	OnSchemaBytes    func(read, total int64)
}

// FullRestoreResult holds the outcome of each phase that ran
type FullRestoreResult struct {
	Schema *SchemaImportStats
	Data   *RestoreResult
}

// Restore runs the schema import and then reloads data. The data
// directory's manifest is read before anything touches the database.
func (c *Connection) Restore(ctx context.Context, opts FullRestoreOptions) (*FullRestoreResult, error) {
	if opts.Mode == "" {
		opts.Mode = RestoreAll
	}
	withSchema := opts.Mode != RestoreDataOnly
	withData := opts.Mode != RestoreSchemaOnly

	if withSchema && opts.SchemaFile == "" {
		return nil, fmt.Errorf("%w: no schema file given", ErrBackupNotFound)
	}
	if withData && opts.Data.DataDir == "" {
		return nil, fmt.Errorf("%w: no data directory given", ErrBackupNotFound)
	}
	if withData {
		if _, err := archive.ReadManifest(opts.Data.DataDir); err != nil {
			return nil, err
		}
	}

	result := &FullRestoreResult{}

	if withSchema {
		logging.Info("Restoring schema from %s", opts.SchemaFile)
		stats, err := c.ImportSchema(ctx, SchemaImportOptions{
			FilePath:       opts.SchemaFile,
			TargetDatabase: opts.TargetDatabase,
			Recreate:       opts.Recreate,
			OnProgress:     opts.OnSchemaProgress,
			OnBytes:        opts.OnSchemaBytes,
		})
		result.Schema = stats
		if err != nil {
			return result, fmt.Errorf("failed to import schema: %w", err)
		}
	} else if opts.TargetDatabase != "" {
		if err := c.SwitchDatabase(ctx, opts.TargetDatabase); err != nil {
			return result, err
		}
	}

	if !withData {
		return result, nil
	}

	logging.Info("Restoring data from %s", opts.Data.DataDir)
	data, err := c.RestoreData(ctx, opts.Data)
	result.Data = data
	if err != nil {
		return result, err
	}
	return result, nil
}

// BackupOptions configures a schema plus data backup
type BackupOptions struct {
	Dir         string
	Compression buffer.CompressionType
	Tables      []string
	FetchSize   int
	Parallel    int
	ToolVersion string
	OnProgress  func(table string, done, total int, rows int64)
}

// BackupResult holds the artifacts of one backup
type BackupResult struct {
	SchemaFile string
	Schema     *SchemaExportStats
	Data       *DataExportStats
}

// Backup writes the schema file and the data directory side by side with
// a shared timestamp
func (c *Connection) Backup(ctx context.Context, opts BackupOptions) (*BackupResult, error) {
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	ts := time.Now()

	schemaFile := filepath.Join(opts.Dir, archive.SchemaFileName(c.DatabaseName(), ts, opts.Compression))
	schema, err := c.ExportSchema(ctx, SchemaExportOptions{
		FilePath:    schemaFile,
		Compression: opts.Compression,
		Tables:      opts.Tables,
		ToolVersion: opts.ToolVersion,
	})
	if err != nil {
		os.Remove(schemaFile)
		return nil, fmt.Errorf("failed to export schema: %w", err)
	}

	data, err := c.ExportData(ctx, DataExportOptions{
		BaseDir:     opts.Dir,
		Tables:      opts.Tables,
		FetchSize:   opts.FetchSize,
		Parallel:    opts.Parallel,
		Compression: opts.Compression,
		Timestamp:   ts,
		ToolVersion: opts.ToolVersion,
		OnProgress:  opts.OnProgress,
	})
	if err != nil {
		return &BackupResult{SchemaFile: schemaFile, Schema: schema}, fmt.Errorf("failed to export data: %w", err)
	}

	return &BackupResult{SchemaFile: schemaFile, Schema: schema, Data: data}, nil
}
