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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blubskye/nukepave/internal/logging"
	"github.com/blubskye/nukepave/internal/metrics"
	"github.com/blubskye/nukepave/internal/retention"
)

var (
	cleanupDirFlag     string
	cleanupKeep        int
	cleanupDryRun      bool
	cleanupYes         bool
	cleanupMetricsFile string
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old backups, keeping the newest of each kind",
	Long: `Delete old schema files and data directories, keeping the newest --keep
of each. Only files named like nukepave backups are touched.

A backup that cannot be deleted is reported and the sweep continues.

Examples:
  nukepave cleanup --dir /var/backups/shop --dry-run
  nukepave cleanup --dir /var/backups/shop --keep 7 --yes`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := backupDir(cmd, cleanupDirFlag)
		keep := cfg.Retention.Keep
		if cmd.Flags().Changed("keep") {
			keep = cleanupKeep
		}
		out := cmd.OutOrStdout()

		// a dry run first shows what a real sweep would delete
		preview, err := retention.Sweep(dir, retention.Policy{Keep: keep, DryRun: true})
		if err != nil {
			return err
		}
		if cleanupDryRun || len(preview.Deleted) == 0 {
			printSweepReport(out, preview)
			return nil
		}

		if !cleanupYes {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("refusing to delete %d backups without confirmation; pass --yes", len(preview.Deleted))
			}
			printSweepReport(out, preview)
			prompt := fmt.Sprintf("\nDelete %d backups? [y/N] ", len(preview.Deleted))
			if !confirm(os.Stdin, cmd.ErrOrStderr(), prompt) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Aborted.")
				return nil
			}
		}

		report, err := retention.Sweep(dir, retention.Policy{Keep: keep})
		if err != nil {
			return err
		}
		printSweepReport(out, report)

		if cleanupMetricsFile != "" {
			rec := metrics.New()
			rec.RecordSweep(report)
			if err := rec.WriteTextfile(cleanupMetricsFile); err != nil {
				logging.Warn("Failed to write metrics: %v", err)
			}
		}
		return nil
	},
}

func init() {
	f := cleanupCmd.Flags()
	f.StringVar(&cleanupDirFlag, "dir", "", "Backup directory (default from config, else .)")
	f.IntVar(&cleanupKeep, "keep", retention.DefaultKeep, "Backups of each kind to keep")
	f.BoolVar(&cleanupDryRun, "dry-run", false, "Only show what would be deleted")
	f.BoolVarP(&cleanupYes, "yes", "y", false, "Do not ask for confirmation")
	f.StringVar(&cleanupMetricsFile, "metrics-file", "", "Write Prometheus metrics to this file")
}
