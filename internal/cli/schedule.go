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
	"strings"

	"github.com/spf13/cobra"

	"github.com/blubskye/nukepave/internal/db"
	"github.com/blubskye/nukepave/internal/logging"
	"github.com/blubskye/nukepave/internal/schedule"
)

var (
	scheduleCron   string
	scheduleRunNow bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run backup and cleanup on a schedule",
	Long: `Run a backup followed by a retention sweep on a cron schedule until
interrupted. A run that is still going when the next one is due makes the
next one skip.

The schedule is a five-field cron expression or one of: ` + strings.Join(schedule.IntervalOptions(), ", ") + `.

Examples:
  nukepave schedule -d shop --cron "0 2 * * *" --dir /var/backups/shop --keep 7
  nukepave schedule -d shop --cron daily --compress zstd --metrics-file /var/lib/node_exporter/nukepave.prom`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec := cfg.Schedule.Cron
		if cmd.Flags().Changed("cron") {
			spec = scheduleCron
		}
		if spec == "" {
			return fmt.Errorf("no schedule given; use --cron or schedule.cron in the config")
		}

		plan, err := newBackupPlan(cmd)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("keep") {
			plan.keep = cfg.Retention.Keep
		}

		connCfg, err := resolveConnection(cmd)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		job := func(ctx context.Context) error {
			conn, err := db.Connect(ctx, connCfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			return plan.run(ctx, conn, out)
		}

		runner, err := schedule.NewRunner(spec, job)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if scheduleRunNow {
			if err := job(ctx); err != nil {
				logging.Error("Initial run failed: %v", err)
			}
		}
		if err := runner.Run(ctx); err != nil {
			return err
		}

		total, failed := runner.Runs()
		logging.Info("Scheduler stopped after %d runs (%d failed)", total, failed)
		return nil
	},
}

func init() {
	addBackupFlags(scheduleCmd)
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "Cron expression or hourly, daily, weekly, monthly")
	scheduleCmd.Flags().IntVar(&backupKeep, "keep", 0, "Backups of each kind to keep (default from config)")
	scheduleCmd.Flags().BoolVar(&scheduleRunNow, "run-now", false, "Run once immediately, then on schedule")
}
