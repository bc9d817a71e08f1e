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
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blubskye/nukepave/internal/archive"
	"github.com/blubskye/nukepave/internal/graph"
	"github.com/blubskye/nukepave/internal/tui"
)

var analyzeNoWrite bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze [data-dir]",
	Short: "Compute the table load order of a data backup",
	Long: `Compute the foreign key load order of a data backup, print it together
with any foreign key cycles, and cache it as table_order.json so that later
restores reuse it.

Without a directory the order of the connected database is printed instead.

Examples:
  nukepave analyze data_backup_shop_20250101_020000
  nukepave analyze -d shop`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			conn, err := connect(cmd)
			if err != nil {
				return err
			}
			defer conn.Close()

			catalog, err := conn.ReadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			g := catalog.Graph()
			fmt.Fprintf(out, "%s: %d tables, %d foreign keys\n", catalog.Database, g.Len(), g.EdgeCount())
			printOrder(out, graph.TopologicalOrder(g))
			return nil
		}

		dir := args[0]
		order, edges, err := analyzeBackup(dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d tables, %d foreign keys\n", filepath.Base(dir), len(order.Tables), edges)
		printOrder(out, order)

		if analyzeNoWrite {
			return nil
		}
		if err := archive.WriteOrder(dir, order); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nWrote %s\n", filepath.Join(dir, archive.OrderFile))
		return nil
	},
}

// analyzeBackup computes the order of the tables listed in a data
// directory's manifest from its dependency file
func analyzeBackup(dir string) (graph.Order, int, error) {
	manifest, err := archive.ReadManifest(dir)
	if err != nil {
		return graph.Order{}, 0, err
	}
	edges, found, err := archive.ReadDependencies(dir)
	if err != nil {
		return graph.Order{}, 0, err
	}
	if !found {
		return graph.Order{}, 0, fmt.Errorf("%s not found in %s", archive.DependenciesFile, dir)
	}

	tables := manifest.TableNames()
	g := graph.Build(tables, edges).Subset(tables)
	return graph.TopologicalOrder(g), g.EdgeCount(), nil
}

func printOrder(w io.Writer, order graph.Order) {
	fmt.Fprintln(w, tui.HeaderStyle.Render("Load order"))
	for i, t := range order.Tables {
		mark := ""
		if order.IsCyclic(t) {
			mark = "  " + tui.WarningStyle.Render("(cyclic)")
		}
		fmt.Fprintf(w, "  %3d. %s%s\n", i+1, t, mark)
	}
	if !order.HasCycles() {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, tui.WarningStyle.Render("Foreign key cycles"))
	for _, c := range order.Cycles {
		fmt.Fprintf(w, "  %s\n", strings.Join(c, " -> "))
	}
	fmt.Fprintf(w, "  Cyclic tables are loaded last: %s\n", strings.Join(order.Cyclic, ", "))
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeNoWrite, "no-write", false, "Print the order without writing table_order.json")
}
