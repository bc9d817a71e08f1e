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
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blubskye/nukepave/internal/buffer"
	"github.com/blubskye/nukepave/internal/db"
	"github.com/blubskye/nukepave/internal/logging"
	"github.com/blubskye/nukepave/internal/metrics"
	"github.com/blubskye/nukepave/internal/retention"
	"github.com/blubskye/nukepave/internal/tui"
)

var (
	backupDirFlag     string
	backupCompress    string
	backupTables      string
	backupParallel    int
	backupBatchSize   int
	backupKeep        int
	backupMetricsFile string
	backupNoProgress  bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a schema file and a data directory side by side",
	Long: `Back up the schema and the data of a database into one directory, using
the standard names so that "restore --auto" and "cleanup" can find them.

Examples:
  nukepave backup -d shop --dir /var/backups/shop
  nukepave backup -d shop --compress zstd --parallel 4
  nukepave backup -d shop --keep 5            # sweep old backups afterwards`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := newBackupPlan(cmd)
		if err != nil {
			return err
		}

		conn, err := connect(cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		// the summary is printed once the progress view is gone
		var summary bytes.Buffer
		interactive := showProgress(backupNoProgress)
		err = runJob(cmd.Context(), interactive, "Backing up "+conn.DatabaseName(), "Exported",
			func(ctx context.Context, report func(tui.Update)) error {
				plan.onProgress = func(table string, done, total int, rows int64) {
					report(tui.Update{Table: table, Index: done, Count: total, Rows: rows, Done: true})
				}
				return plan.run(ctx, conn, &summary)
			})
		cmd.OutOrStdout().Write(summary.Bytes())
		return err
	},
}

// backupPlan is one backup, optionally followed by a retention sweep. The
// schedule command runs the same plan on every tick.
type backupPlan struct {
	opts        db.BackupOptions
	keep        int // 0 skips the sweep
	metricsFile string
	onProgress  func(table string, done, total int, rows int64)
}

func newBackupPlan(cmd *cobra.Command) (*backupPlan, error) {
	compression, err := compressionFlag(cmd, backupCompress)
	if err != nil {
		return nil, err
	}

	p := &backupPlan{
		opts: db.BackupOptions{
			Dir:         backupDir(cmd, backupDirFlag),
			Compression: compression,
			Tables:      parseList(backupTables),
			FetchSize:   cfg.Backup.FetchSize,
			Parallel:    cfg.Backup.Parallel,
			ToolVersion: Version,
		},
		keep:        backupKeep,
		metricsFile: backupMetricsFile,
	}
	if cmd.Flags().Changed("parallel") {
		p.opts.Parallel = backupParallel
	}
	if cmd.Flags().Changed("batch-size") {
		p.opts.FetchSize = backupBatchSize
	}
	if p.keep < 0 {
		return nil, fmt.Errorf("%w (got %d)", retention.ErrInvalidKeep, p.keep)
	}
	return p, nil
}

func (p *backupPlan) run(ctx context.Context, conn *db.Connection, out io.Writer) error {
	rec := metrics.New()
	defer p.writeMetrics(rec)

	opts := p.opts
	opts.OnProgress = p.onProgress
	res, err := conn.Backup(ctx, opts)
	if res != nil {
		printSchemaExport(out, res.Schema)
		printDataExport(out, res.Data)
		rec.RecordBackup(res.Data)
	}
	if err != nil {
		return err
	}

	if p.keep == 0 {
		return nil
	}
	report, err := retention.Sweep(opts.Dir, retention.Policy{Keep: p.keep})
	if err != nil {
		return err
	}
	rec.RecordSweep(report)
	fmt.Fprintln(out)
	printSweepReport(out, report)
	if err := report.Err(); err != nil {
		logging.Warn("Some old backups could not be deleted: %v", err)
	}
	return nil
}

func (p *backupPlan) writeMetrics(rec *metrics.Recorder) {
	if p.metricsFile == "" {
		return
	}
	if err := rec.WriteTextfile(p.metricsFile); err != nil {
		logging.Warn("Failed to write metrics: %v", err)
	}
}

// addBackupFlags registers the flags shared by backup and schedule
func addBackupFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&backupDirFlag, "dir", "", "Backup directory (default from config, else .)")
	f.StringVar(&backupCompress, "compress", string(buffer.CompressionNone), "Compression: none, gzip, xz, zstd")
	f.StringVar(&backupTables, "tables", "", "Comma separated tables to back up (default: all)")
	f.IntVar(&backupParallel, "parallel", 1, "Tables exported concurrently")
	f.IntVar(&backupBatchSize, "batch-size", db.DefaultFetchSize, "Rows fetched per page")
	f.StringVar(&backupMetricsFile, "metrics-file", "", "Write Prometheus metrics to this file")
}

func init() {
	addBackupFlags(backupCmd)
	backupCmd.Flags().IntVar(&backupKeep, "keep", 0, "Sweep afterwards, keeping this many backups of each kind (0 = no sweep)")
	backupCmd.Flags().BoolVar(&backupNoProgress, "no-progress", false, "Do not draw the progress view")
}
