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
	"strings"
	"text/tabwriter"
	"time"

	"github.com/blubskye/nukepave/internal/db"
	"github.com/blubskye/nukepave/internal/retention"
	"github.com/blubskye/nukepave/internal/tui"
)

// maxListedErrors bounds the per-table row errors and statement failures
// printed in a summary
const maxListedErrors = 5

func printSchemaImport(w io.Writer, stats *db.SchemaImportStats) {
	if stats == nil {
		return
	}
	fmt.Fprintln(w, tui.HeaderStyle.Render("Schema"))
	fmt.Fprintf(w, "  %d statements, %d succeeded, %d failed, %d skipped in %s\n",
		stats.Statements, stats.Succeeded, len(stats.Failures), stats.Skipped, stats.Duration.Round(time.Millisecond))
	if stats.Database != "" {
		fmt.Fprintf(w, "  Target database: %s\n", stats.Database)
	}
	for i, f := range stats.Failures {
		if i == maxListedErrors {
			fmt.Fprintf(w, "  ... and %d more\n", len(stats.Failures)-maxListedErrors)
			break
		}
		fmt.Fprintf(w, "  %s %s\n", tui.ErrorStyle.Render("!"), f.Error())
	}
}

func printRestoreResult(w io.Writer, res *db.RestoreResult) {
	if res == nil {
		return
	}
	fmt.Fprintln(w, tui.HeaderStyle.Render("Data"))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  TABLE\tINSERTED\tFAILED\tNOTES\tSTATUS")
	for _, t := range res.Tables {
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%s\t%s\n", t.Table, t.Inserted, t.Failed, tableNotes(t), tui.Status(string(t.Status)))
	}
	for _, name := range res.Skipped {
		fmt.Fprintf(tw, "  %s\t-\t-\tnot in backup\t%s\n", name, tui.Status(string(db.StatusSkipped)))
	}
	tw.Flush()

	for _, t := range res.Tables {
		if t.Err != nil {
			fmt.Fprintf(w, "  %s %s: %v\n", tui.ErrorStyle.Render("!"), t.Table, t.Err)
		}
		for i, re := range t.Errors {
			if i == maxListedErrors {
				fmt.Fprintf(w, "    ... and %d more\n", len(t.Errors)-maxListedErrors)
				break
			}
			fmt.Fprintf(w, "    %s %s\n", t.Table, re.Error())
		}
	}

	if res.Order.HasCycles() {
		fmt.Fprintf(w, "  %s foreign key cycle: %s\n", tui.WarningStyle.Render("Restored last,"), strings.Join(res.Order.Cyclic, ", "))
	}

	fmt.Fprintf(w, "\n  %d restored, %d partial, %d failed; %d rows inserted, %d rows failed in %s\n",
		len(res.RestoredTables()), len(res.PartialTables()), len(res.FailedTables()),
		res.TotalInserted(), res.TotalFailed(), res.Duration.Round(time.Millisecond))
}

func tableNotes(t db.TableResult) string {
	var notes []string
	if t.Cyclic {
		notes = append(notes, "cyclic")
	}
	if len(t.ExcludedColumns) > 0 {
		notes = append(notes, "generated: "+strings.Join(t.ExcludedColumns, ","))
	}
	if len(t.DroppedColumns) > 0 {
		notes = append(notes, "dropped: "+strings.Join(t.DroppedColumns, ","))
	}
	if len(t.MissingColumns) > 0 {
		notes = append(notes, "defaulted: "+strings.Join(t.MissingColumns, ","))
	}
	if t.AutoIncrementReset > 0 {
		notes = append(notes, fmt.Sprintf("next id %d", t.AutoIncrementReset))
	}
	if len(notes) == 0 {
		return "-"
	}
	return strings.Join(notes, "; ")
}

func printRestoreSummary(w io.Writer, res *db.FullRestoreResult) {
	if res == nil {
		return
	}
	printSchemaImport(w, res.Schema)
	if res.Schema != nil && res.Data != nil {
		fmt.Fprintln(w)
	}
	printRestoreResult(w, res.Data)
}

func printSchemaExport(w io.Writer, stats *db.SchemaExportStats) {
	if stats == nil {
		return
	}
	kinds := make([]string, 0, len(stats.Objects))
	for k := range stats.Objects {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	var parts []string
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%d %ss", stats.Objects[db.ObjectKind(k)], k))
	}
	if stats.Constraints > 0 {
		parts = append(parts, fmt.Sprintf("%d foreign keys", stats.Constraints))
	}
	size := db.FormatSize(stats.BytesWritten)
	if stats.SQLBytes != stats.BytesWritten {
		size += " from " + db.FormatSize(stats.SQLBytes) + " of SQL"
	}
	fmt.Fprintf(w, "Schema written to %s (%s, %s)\n", stats.OutputFile, size, stats.Duration.Round(time.Millisecond))
	if len(parts) > 0 {
		fmt.Fprintf(w, "  %s\n", strings.Join(parts, ", "))
	}
	for _, s := range stats.Skipped {
		fmt.Fprintf(w, "  %s skipped %s\n", tui.WarningStyle.Render("!"), s)
	}
}

func printDataExport(w io.Writer, stats *db.DataExportStats) {
	if stats == nil {
		return
	}
	fmt.Fprintf(w, "Data written to %s: %d tables, %d rows in %s\n", stats.Dir, stats.Tables, stats.Rows, stats.Duration.Round(time.Millisecond))
	if stats.Order.HasCycles() {
		fmt.Fprintf(w, "  foreign key cycle: %s\n", strings.Join(stats.Order.Cyclic, ", "))
	}
	if len(stats.FailedTables) > 0 {
		fmt.Fprintf(w, "  %s %s\n", tui.ErrorStyle.Render("failed:"), strings.Join(stats.FailedTables, ", "))
	}
}

func printSweepReport(w io.Writer, report *retention.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tSIZE\tACTION")
	deleted := "deleted"
	if report.DryRun {
		deleted = "would delete"
	}
	for _, e := range report.Kept {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Kind, e.Name, db.FormatSize(e.Size), tui.Status("kept"))
	}
	for _, e := range report.Deleted {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Kind, e.Name, db.FormatSize(e.Size), tui.Status(deleted))
	}
	for _, f := range report.Failed {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Entry.Kind, f.Entry.Name, db.FormatSize(f.Entry.Size), tui.Status("failed"))
	}
	tw.Flush()

	verb := "Freed"
	if report.DryRun {
		verb = "Would free"
	}
	fmt.Fprintf(w, "\n%s %s (%d kept, %d removed, %d failed)\n",
		verb, db.FormatSize(report.FreedBytes), len(report.Kept), len(report.Deleted), len(report.Failed))
	for _, f := range report.Failed {
		fmt.Fprintf(w, "  %s %s\n", tui.ErrorStyle.Render("!"), f.Error())
	}
}
