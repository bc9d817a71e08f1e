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

// Package cli implements the nukepave command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blubskye/nukepave/internal/buffer"
	"github.com/blubskye/nukepave/internal/config"
	"github.com/blubskye/nukepave/internal/db"
	"github.com/blubskye/nukepave/internal/logging"
)

// Version is set at build time with -ldflags
var Version = "0.1.0"

var (
	// Global flags
	host       string
	port       int
	user       string
	password   string
	socket     string
	profile    string
	database   string
	dbType     string
	configPath string
	logLevel   string
	logFormat  string
	logFile    string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "nukepave",
	Short: "Nuke-and-pave backup and restore for relational databases",
	Long: `nukepave backs up a database as a schema file plus a directory of JSON
row files, and restores it by replaying the schema and reloading every table
in foreign key order.

Supported databases: MariaDB/MySQL, PostgreSQL and SQLite.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initApp(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&host, "host", "H", "localhost", "Database host")
	pf.IntVarP(&port, "port", "P", 0, "Database port (default depends on --type)")
	pf.StringVarP(&user, "user", "u", "", "Database user")
	pf.StringVarP(&password, "password", "p", "", "Database password")
	pf.StringVarP(&socket, "socket", "S", "", "Unix socket path")
	pf.StringVarP(&database, "database", "d", "", "Database name (file path for sqlite)")
	pf.StringVarP(&dbType, "type", "t", "", "Database type: "+typeNames())
	pf.StringVar(&profile, "profile", "", "Connection profile to use")
	pf.StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/nukepave/config.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "", "Log format: console or json")
	pf.StringVar(&logFile, "log-file", "", "Also write logs to this file")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(versionCmd)
}

// initApp loads .env and the config file, then sets up logging. Flags
// beat environment variables, which beat the file.
func initApp(cmd *cobra.Command) error {
	if err := config.LoadEnvFile(".env"); err != nil {
		return err
	}

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	if logFormat != "" {
		logCfg.Format = logFormat
	}
	logCfg.Caller = logCfg.Level == "trace"
	logging.Init(logCfg)

	file := cfg.Log.File
	if logFile != "" {
		file = logFile
	}
	if file != "" {
		if err := logging.SetLogFile(file); err != nil {
			return err
		}
	}

	logging.Debug("Loaded config from %s", cfg.Path())
	return nil
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorLine(err))
	}
	return err
}

// ErrorLine formats an error for the terminal
func ErrorLine(err error) string {
	if errors.Is(err, context.Canceled) {
		return "Interrupted"
	}
	return "Error: " + err.Error()
}

// getConnectionConfig resolves the connection from the config (profile and
// database section) and overrides it with any flag set on the command line
func getConnectionConfig(cmd *cobra.Command) (db.ConnectionConfig, error) {
	connCfg, err := cfg.Connection(profile)
	if err != nil {
		return connCfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("type") {
		t := db.NormalizeDatabaseType(dbType)
		if _, err := db.GetDriver(t); err != nil {
			return connCfg, err
		}
		if t != connCfg.Type {
			connCfg.Port = 0
		}
		connCfg.Type = t
	}
	if flags.Changed("host") || connCfg.Host == "" {
		connCfg.Host = host
	}
	if flags.Changed("port") {
		connCfg.Port = port
	}
	if flags.Changed("user") {
		connCfg.User = user
	}
	if flags.Changed("password") {
		connCfg.Password = password
	}
	if flags.Changed("socket") {
		connCfg.Socket = socket
	}
	if flags.Changed("database") {
		connCfg.Database = database
	}

	if connCfg.Type == db.DatabaseTypeSQLite {
		if connCfg.Database == "" {
			return connCfg, fmt.Errorf("%w: sqlite needs a database file (-d)", db.ErrNoConnectionParams)
		}
		return connCfg, nil
	}
	if connCfg.User == "" {
		return connCfg, fmt.Errorf("%w: no user given, use -u/--user or set up a profile", db.ErrNoConnectionParams)
	}
	if connCfg.Database == "" {
		return connCfg, fmt.Errorf("%w: no database given, use -d/--database", db.ErrNoConnectionParams)
	}
	return connCfg, nil
}

// promptPassword reads a password from the terminal without echo
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter password: ")
	pwd, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pwd), nil
}

// resolveConnection returns the connection settings, prompting for a
// missing password when stdin is a terminal
func resolveConnection(cmd *cobra.Command) (db.ConnectionConfig, error) {
	connCfg, err := getConnectionConfig(cmd)
	if err != nil {
		return connCfg, err
	}

	if connCfg.Password == "" && connCfg.Type != db.DatabaseTypeSQLite && connCfg.Socket == "" &&
		term.IsTerminal(int(os.Stdin.Fd())) {
		pwd, err := promptPassword()
		if err != nil {
			return connCfg, err
		}
		connCfg.Password = pwd
	}
	return connCfg, nil
}

// connect establishes a database connection
func connect(cmd *cobra.Command) (*db.Connection, error) {
	connCfg, err := resolveConnection(cmd)
	if err != nil {
		return nil, err
	}
	return db.Connect(cmd.Context(), connCfg)
}

func typeNames() string {
	var names []string
	for _, t := range db.ValidDatabaseTypes() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

// parseList splits a comma separated flag value, dropping blanks
func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// compressionFlag returns the --compress value, or the configured default
func compressionFlag(cmd *cobra.Command, value string) (buffer.CompressionType, error) {
	if !cmd.Flags().Changed("compress") {
		value = cfg.Backup.Compression
	}
	return buffer.ParseCompression(value)
}

// backupDir returns the --dir value, or the configured default
func backupDir(cmd *cobra.Command, value string) string {
	if cmd.Flags().Changed("dir") || value != "" {
		return value
	}
	return cfg.Backup.Dir
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "nukepave v%s\n", Version)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Copyright (C) 2025 blubskye")
		fmt.Fprintln(out, "License: GNU AGPL v3.0 <https://www.gnu.org/licenses/agpl-3.0.html>")
		fmt.Fprintln(out, "Source:  https://github.com/blubskye/nukepave")
	},
}
