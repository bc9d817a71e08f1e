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
	"strings"

	"github.com/spf13/cobra"

	"github.com/blubskye/nukepave/internal/db"
	"github.com/blubskye/nukepave/internal/graph"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Test the database connection",
	Long:  `Connect to the database, print the server version and summarize the catalog.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connect(cmd)
		if err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}
		defer conn.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Connection successful!")

		if version, err := conn.ServerVersion(ctx); err == nil {
			fmt.Fprintf(out, "Server:   %s %s\n", conn.Config.Type, version)
		}
		fmt.Fprintf(out, "Database: %s\n", conn.DatabaseName())

		catalog, err := conn.ReadCatalog(ctx)
		if err != nil {
			return fmt.Errorf("failed to read catalog: %w", err)
		}
		fmt.Fprintf(out, "Tables:   %d\n", len(catalog.Tables))
		fmt.Fprintf(out, "FKs:      %d\n", len(catalog.ForeignKeys))

		if counts, err := conn.ObjectCounts(ctx); err == nil {
			for _, kind := range append([]db.ObjectKind{db.ObjectView}, db.RoutineKinds...) {
				if n := counts[kind]; n > 0 {
					fmt.Fprintf(out, "%-10s%d\n", strings.ToUpper(string(kind[:1]))+string(kind[1:])+"s:", n)
				}
			}
		}

		order := graph.TopologicalOrder(catalog.Graph())
		if order.HasCycles() {
			fmt.Fprintf(out, "Cyclic:   %s\n", strings.Join(order.Cyclic, ", "))
		}
		return nil
	},
}
