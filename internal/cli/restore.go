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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blubskye/nukepave/internal/archive"
	"github.com/blubskye/nukepave/internal/db"
	"github.com/blubskye/nukepave/internal/logging"
	"github.com/blubskye/nukepave/internal/metrics"
	"github.com/blubskye/nukepave/internal/retention"
	"github.com/blubskye/nukepave/internal/tui"
)

var (
	restoreSchema      string
	restoreData        string
	restoreAuto        bool
	restoreDirFlag     string
	restoreTables      string
	restoreOrder       string
	restoreBatchSize   int
	restoreRecompute   bool
	restoreSchemaOnly  bool
	restoreDataOnly    bool
	restoreYes         bool
	restoreNoProgress  bool
	restoreMetricsFile string
	restoreTargetDB    string
	restoreRecreate    bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace a database with a backup",
	Long: `Replay a schema file and reload every table from a data directory.

Tables are loaded in foreign key order with foreign key checks disabled;
checks are switched back on however the restore ends. Tables in a foreign
key cycle are loaded last. A table that fails does not stop the others.

Examples:
  nukepave restore -d shop --auto --dir /var/backups/shop
  nukepave restore -d shop --schema schema_backup_shop_20250101_020000.sql \
      --data data_backup_shop_20250101_020000
  nukepave restore -d shop --auto --data-only --tables orders,order_items
  nukepave restore --auto --target-db shop_copy --recreate --yes`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := restoreMode(restoreSchemaOnly, restoreDataOnly)
		if restoreRecreate && restoreTargetDB == "" {
			return errors.New("--recreate needs --target-db")
		}

		schemaFile, dataDir, err := resolveRestoreInputs(mode, restoreSchema, restoreData, restoreAuto, backupDir(cmd, restoreDirFlag))
		if err != nil {
			return err
		}

		conn, err := connect(cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		target := restoreTargetDB
		if target == "" {
			target = conn.DatabaseName()
		}
		if !restoreYes {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return errors.New("refusing to restore without confirmation; pass --yes")
			}
			prompt := restorePrompt(target, schemaFile, dataDir)
			if !confirm(os.Stdin, cmd.ErrOrStderr(), prompt) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Aborted.")
				return nil
			}
		}

		batchSize := cfg.Restore.BatchSize
		if cmd.Flags().Changed("batch-size") {
			batchSize = restoreBatchSize
		}
		opts := db.FullRestoreOptions{
			Mode:           mode,
			SchemaFile:     schemaFile,
			TargetDatabase: restoreTargetDB,
			Recreate:       restoreRecreate,
			Data: db.RestoreOptions{
				DataDir:        dataDir,
				Tables:         parseList(restoreTables),
				ManualOrder:    parseList(restoreOrder),
				BatchSize:      batchSize,
				RecomputeOrder: restoreRecompute,
			},
		}

		var res *db.FullRestoreResult
		interactive := showProgress(restoreNoProgress)
		err = runJob(cmd.Context(), interactive, "Restoring "+target, "Restored",
			func(ctx context.Context, report func(tui.Update)) error {
				statements := 0
				opts.OnSchemaProgress = func(n, line int) {
					statements = n
					logging.Trace("Schema import at line %d (%d statements)", line, n)
				}
				opts.OnSchemaBytes = func(read, total int64) {
					report(tui.Update{Statements: statements, Bytes: read, TotalBytes: total})
				}
				opts.Data.OnProgress = func(ev db.ProgressEvent) {
					report(progressUpdate(ev))
				}
				var err error
				res, err = conn.Restore(ctx, opts)
				return err
			})

		printRestoreSummary(cmd.OutOrStdout(), res)
		if restoreMetricsFile != "" && res != nil {
			rec := metrics.New()
			rec.RecordRestore(res.Data)
			if werr := rec.WriteTextfile(restoreMetricsFile); werr != nil {
				logging.Warn("Failed to write metrics: %v", werr)
			}
		}
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		if res.Data != nil {
			if ferr := res.Data.Err(); ferr != nil {
				logging.Warn("Restore finished with errors: %v", ferr)
			}
		}
		return nil
	},
}

func restoreMode(schemaOnly, dataOnly bool) db.RestoreMode {
	switch {
	case schemaOnly:
		return db.RestoreSchemaOnly
	case dataOnly:
		return db.RestoreDataOnly
	}
	return db.RestoreAll
}

// resolveRestoreInputs returns the schema file and data directory to use.
// With auto, whichever of the two was not given explicitly is the newest
// one in dir.
func resolveRestoreInputs(mode db.RestoreMode, schemaFile, dataDir string, auto bool, dir string) (string, string, error) {
	needSchema := mode != db.RestoreDataOnly
	needData := mode != db.RestoreSchemaOnly

	if auto && ((needSchema && schemaFile == "") || (needData && dataDir == "")) {
		schema, data, err := retention.Latest(dir)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", db.ErrBackupNotFound, err)
		}
		if needSchema && schemaFile == "" && schema != nil {
			schemaFile = schema.Path
		}
		if needData && dataDir == "" && data != nil {
			dataDir = data.Path
		}
		if schema != nil && data != nil && needSchema && needData && !schema.Timestamp.Equal(data.Timestamp) {
			logging.Warn("Newest schema (%s) and data (%s) come from different backups", schema.Name, data.Name)
		}
	}

	if needSchema {
		if schemaFile == "" {
			return "", "", fmt.Errorf("%w: no schema file (use --schema or --auto)", db.ErrBackupNotFound)
		}
		if _, err := os.Stat(schemaFile); err != nil {
			return "", "", fmt.Errorf("%w: %v", db.ErrBackupNotFound, err)
		}
	}
	if needData {
		if dataDir == "" {
			return "", "", fmt.Errorf("%w: no data directory (use --data or --auto)", db.ErrBackupNotFound)
		}
		info, err := os.Stat(dataDir)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", db.ErrBackupNotFound, err)
		}
		if !info.IsDir() {
			return "", "", fmt.Errorf("%w: %s is not a directory", db.ErrBackupNotFound, dataDir)
		}
		if _, err := archive.ReadManifest(dataDir); err != nil {
			return "", "", err
		}
	}
	return schemaFile, dataDir, nil
}

func restorePrompt(target, schemaFile, dataDir string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", tui.WarningStyle.Render("This replaces the contents of database "+target+"."))
	if schemaFile != "" {
		fmt.Fprintf(&b, "  schema: %s\n", schemaFile)
	}
	if dataDir != "" {
		fmt.Fprintf(&b, "  data:   %s\n", dataDir)
	}
	b.WriteString("Continue? [y/N] ")
	return b.String()
}

// confirm prints prompt and reads a yes/no answer; anything but y or yes
// is a no
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func progressUpdate(ev db.ProgressEvent) tui.Update {
	return tui.Update{
		Table:  ev.Table,
		Index:  ev.TableIndex,
		Count:  ev.TableCount,
		Rows:   ev.Rows,
		Total:  ev.TableRows,
		Done:   ev.Done,
		Status: string(ev.Status),
	}
}

func init() {
	f := restoreCmd.Flags()
	f.StringVar(&restoreSchema, "schema", "", "Schema file to replay")
	f.StringVar(&restoreData, "data", "", "Data directory to reload")
	f.BoolVar(&restoreAuto, "auto", false, "Use the newest schema file and data directory in --dir")
	f.StringVar(&restoreDirFlag, "dir", "", "Backup directory searched by --auto (default from config, else .)")
	f.StringVar(&restoreTables, "tables", "", "Comma separated tables to restore (default: all in the backup)")
	f.StringVar(&restoreOrder, "order", "", "Comma separated tables to load first, in this order")
	f.IntVar(&restoreBatchSize, "batch-size", db.DefaultBatchSize, "Rows per INSERT")
	f.BoolVar(&restoreRecompute, "recompute-order", false, "Ignore a cached table_order.json")
	f.BoolVar(&restoreSchemaOnly, "schema-only", false, "Only replay the schema")
	f.BoolVar(&restoreDataOnly, "data-only", false, "Only reload the data")
	f.BoolVarP(&restoreYes, "yes", "y", false, "Do not ask for confirmation")
	f.BoolVar(&restoreNoProgress, "no-progress", false, "Do not draw the progress view")
	f.StringVar(&restoreMetricsFile, "metrics-file", "", "Write Prometheus metrics to this file")
	f.StringVar(&restoreTargetDB, "target-db", "", "Restore into this database instead of the one in the schema file")
	f.BoolVar(&restoreRecreate, "recreate", false, "Drop and recreate --target-db first")

	restoreCmd.MarkFlagsMutuallyExclusive("schema-only", "data-only")
}
