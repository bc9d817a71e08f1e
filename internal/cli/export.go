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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blubskye/nukepave/internal/archive"
	"github.com/blubskye/nukepave/internal/buffer"
	"github.com/blubskye/nukepave/internal/db"
	"github.com/blubskye/nukepave/internal/tui"
)

var (
	exportOutput     string
	exportTables     string
	exportCompress   string
	exportBatchSize  int
	exportParallel   int
	exportNoProgress bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the schema or the data of a database",
	Long: `Export the schema of a database to a SQL file, or its rows to a directory
of JSON files.

Supports compression: gzip (.gz), xz (.xz), zstd (.zst)

Examples:
  nukepave export schema -d shop
  nukepave export schema -d shop -o shop.sql.zst
  nukepave export data -d shop --parallel 4 --compress gzip
  nukepave export data -t sqlite -d shop.db --tables customers,orders`,
}

var exportSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Export tables, views, routines and foreign keys to a SQL file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connect(cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		output, compression, err := schemaOutput(cmd, conn.DatabaseName(), time.Now())
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		interactive := showProgress(exportNoProgress)
		var stats *db.SchemaExportStats
		err = runJob(cmd.Context(), interactive, "Exporting schema of "+conn.DatabaseName(), "Exported",
			func(ctx context.Context, report func(tui.Update)) error {
				var err error
				stats, err = conn.ExportSchema(ctx, db.SchemaExportOptions{
					FilePath:    output,
					Compression: compression,
					Tables:      parseList(exportTables),
					ToolVersion: Version,
					OnProgress: func(object string, done, total int) {
						report(tui.Update{Table: object, Index: done, Count: total, Done: true})
					},
				})
				return err
			})
		if err != nil {
			return fmt.Errorf("schema export failed: %w", err)
		}

		printSchemaExport(cmd.OutOrStdout(), stats)
		return nil
	},
}

// schemaOutput picks the schema file path. Without -o the standard name is
// used inside the backup directory; with -o and no --compress the
// compression follows the file extension.
func schemaOutput(cmd *cobra.Command, dbName string, ts time.Time) (string, buffer.CompressionType, error) {
	if exportOutput == "" {
		compression, err := compressionFlag(cmd, exportCompress)
		if err != nil {
			return "", "", err
		}
		name := archive.SchemaFileName(dbName, ts, compression)
		return filepath.Join(cfg.Backup.Dir, name), compression, nil
	}

	if !cmd.Flags().Changed("compress") {
		return exportOutput, buffer.DetectCompression(exportOutput), nil
	}
	compression, err := buffer.ParseCompression(exportCompress)
	if err != nil {
		return "", "", err
	}
	output := exportOutput
	if ext := compression.Extension(); ext != "" && !strings.HasSuffix(strings.ToLower(output), ext) {
		output += ext
	}
	return output, compression, nil
}

var exportDataCmd = &cobra.Command{
	Use:   "data",
	Short: "Export every table's rows to JSON files",
	Long: `Export every table's rows to <table>.json files, with column metadata,
the foreign key edge list and a manifest, in one data directory.

Without -o the directory is data_backup_<database>_<timestamp> inside the
backup directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		compression, err := compressionFlag(cmd, exportCompress)
		if err != nil {
			return err
		}

		conn, err := connect(cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		opts := db.DataExportOptions{
			OutputDir:   exportOutput,
			BaseDir:     cfg.Backup.Dir,
			Tables:      parseList(exportTables),
			FetchSize:   cfg.Backup.FetchSize,
			Parallel:    cfg.Backup.Parallel,
			Compression: compression,
			Timestamp:   time.Now(),
			ToolVersion: Version,
		}
		if cmd.Flags().Changed("batch-size") {
			opts.FetchSize = exportBatchSize
		}
		if cmd.Flags().Changed("parallel") {
			opts.Parallel = exportParallel
		}

		interactive := showProgress(exportNoProgress)
		var stats *db.DataExportStats
		err = runJob(cmd.Context(), interactive, "Exporting data of "+conn.DatabaseName(), "Exported",
			func(ctx context.Context, report func(tui.Update)) error {
				opts.OnProgress = func(table string, done, total int, rows int64) {
					report(tui.Update{Table: table, Index: done, Count: total, Rows: rows, Done: true})
				}
				var err error
				stats, err = conn.ExportData(ctx, opts)
				return err
			})
		if err != nil {
			return fmt.Errorf("data export failed: %w", err)
		}

		printDataExport(cmd.OutOrStdout(), stats)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{exportSchemaCmd, exportDataCmd} {
		c.Flags().StringVar(&exportTables, "tables", "", "Comma separated tables to export (default: all)")
		c.Flags().StringVar(&exportCompress, "compress", "none", "Compression: none, gzip, xz, zstd")
		c.Flags().BoolVar(&exportNoProgress, "no-progress", false, "Do not draw the progress view")
	}
	exportSchemaCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file")
	exportDataCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output directory")
	exportDataCmd.Flags().IntVar(&exportBatchSize, "batch-size", db.DefaultFetchSize, "Rows fetched per page")
	exportDataCmd.Flags().IntVar(&exportParallel, "parallel", 1, "Tables exported concurrently")

	exportCmd.AddCommand(exportSchemaCmd)
	exportCmd.AddCommand(exportDataCmd)
}
