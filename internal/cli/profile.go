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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blubskye/nukepave/internal/config"
	"github.com/blubskye/nukepave/internal/db"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage connection profiles",
	Long: `Manage saved connection profiles.

Profiles are stored in $XDG_CONFIG_HOME/nukepave/config.yaml (or the file
given with --config).`,
}

var profileListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		names := cfg.ListProfiles()
		if len(names) == 0 {
			fmt.Fprintln(out, "No profiles configured.")
			fmt.Fprintln(out, "Use 'nukepave profile add <name>' to create one.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tHOST\tPORT\tUSER\tDATABASE\tDEFAULT")
		for _, name := range names {
			p := cfg.Profiles[name]
			isDefault := ""
			if name == cfg.DefaultProfile {
				isDefault = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				name, db.NormalizeDatabaseType(p.Type), p.Host, p.Port, p.User, p.Database, isDefault)
		}
		return w.Flush()
	},
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a new profile",
	Long: `Add a new connection profile from the connection flags.

Examples:
  nukepave profile add local -u root -d shop
  nukepave profile add production -H db.example.com -P 3307 -u admin -d shop
  nukepave profile add pg -t postgres -H localhost -u postgres -d shop
  nukepave profile add file -t sqlite -d /var/lib/shop.db`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		out := cmd.OutOrStdout()

		if _, exists := cfg.Profiles[name]; exists {
			return fmt.Errorf("profile '%s' already exists; remove it first", name)
		}

		p := config.Profile{
			Type:     string(db.NormalizeDatabaseType(dbType)),
			Host:     host,
			Port:     port,
			User:     user,
			Password: password,
			Socket:   socket,
			Database: database,
		}
		if p.Type == string(db.DatabaseTypeSQLite) {
			if p.Database == "" {
				return fmt.Errorf("a sqlite profile needs a database file. Use -d/--database")
			}
			p.Host = ""
		} else if p.User == "" {
			return fmt.Errorf("user is required. Use -u/--user")
		}

		cfg.AddProfile(name, p)
		if len(cfg.Profiles) == 1 {
			cfg.DefaultProfile = name
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Fprintf(out, "Profile '%s' added.\n", name)
		if cfg.DefaultProfile == name {
			fmt.Fprintln(out, "Set as default profile.")
		}
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm", "delete"},
	Short:   "Remove a profile",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := cfg.RemoveProfile(name); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' removed.\n", name)
		return nil
	},
}

var profileDefaultCmd = &cobra.Command{
	Use:     "default <name>",
	Aliases: []string{"use"},
	Short:   "Set the default profile",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := cfg.SetDefault(name); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Default profile set to '%s'.\n", name)
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show profile details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		p, err := cfg.GetProfile(name)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Profile: %s\n", name)
		fmt.Fprintf(out, "  Type:     %s\n", db.NormalizeDatabaseType(p.Type))
		if p.Host != "" {
			fmt.Fprintf(out, "  Host:     %s\n", p.Host)
			fmt.Fprintf(out, "  Port:     %d\n", p.Port)
		}
		if p.User != "" {
			fmt.Fprintf(out, "  User:     %s\n", p.User)
		}
		fmt.Fprintf(out, "  Database: %s\n", p.Database)
		if p.Socket != "" {
			fmt.Fprintf(out, "  Socket:   %s\n", p.Socket)
		}
		if p.Password != "" {
			fmt.Fprintln(out, "  Password: ****")
		}
		if name == cfg.DefaultProfile {
			fmt.Fprintln(out, "  (default)")
		}
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileRemoveCmd)
	profileCmd.AddCommand(profileDefaultCmd)
	profileCmd.AddCommand(profileShowCmd)
}
