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
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blubskye/nukepave/internal/archive"
	"github.com/blubskye/nukepave/internal/db"
	"github.com/blubskye/nukepave/internal/retention"
	"github.com/blubskye/nukepave/internal/tui"
)

var listDirFlag string

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the backups in a directory",
	Long: `List schema files and data directories in the backup directory, newest
first. Data directories show their table and row counts from the manifest.

Examples:
  nukepave list --dir /var/backups/shop`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := backupDir(cmd, listDirFlag)
		entries, err := retention.Scan(dir)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintf(out, "No backups in %s\n", dir)
			return nil
		}
		printBackupList(out, entries)
		return nil
	},
}

func printBackupList(w io.Writer, entries []retention.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].Kind > entries[j].Kind
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tKIND\tDATABASE\tSIZE\tTABLES\tROWS\tNAME")
	for _, e := range entries {
		tables, rows := "-", "-"
		if e.Kind == archive.KindData {
			if m, err := archive.ReadManifest(e.Path); err == nil {
				var total int64
				for _, t := range m.Tables {
					total += t.RowCount
				}
				tables = fmt.Sprint(len(m.Tables))
				rows = fmt.Sprint(total)
				if m.Partial {
					tables += " " + tui.WarningStyle.Render("(partial)")
				}
			} else {
				tables = tui.ErrorStyle.Render("no manifest")
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Kind, e.Database, db.FormatSize(e.Size), tables, rows, e.Name)
	}
	tw.Flush()
}

func init() {
	listCmd.Flags().StringVar(&listDirFlag, "dir", "", "Backup directory (default from config, else .)")
}
