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

package db

import (
	"fmt"
	"strings"
)

// MariaDBDriver implements the Driver interface for MariaDB/MySQL
type MariaDBDriver struct{}

// Type returns the database type
func (d *MariaDBDriver) Type() DatabaseType {
	return DatabaseTypeMariaDB
}

// DSN generates a MariaDB/MySQL connection string
func (d *MariaDBDriver) DSN(cfg ConnectionConfig) string {
	// Use socket if provided
	if cfg.Socket != "" {
		return fmt.Sprintf("%s:%s@unix(%s)/%s?parseTime=true&multiStatements=true",
			cfg.User, cfg.Password, cfg.Socket, cfg.Database)
	}

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = d.DefaultPort()
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		cfg.User, cfg.Password, host, port, cfg.Database)
}

// DriverName returns the database/sql driver name
func (d *MariaDBDriver) DriverName() string {
	return "mysql"
}

// DefaultPort returns the default MariaDB port
func (d *MariaDBDriver) DefaultPort() int {
	return 3306
}

// QuoteIdentifier quotes an identifier with backticks
func (d *MariaDBDriver) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Placeholder returns the positional parameter marker
func (d *MariaDBDriver) Placeholder(n int) string {
	return "?"
}

// MaxPlaceholders is the prepared statement parameter limit
func (d *MariaDBDriver) MaxPlaceholders() int {
	return 65535
}

func (d *MariaDBDriver) ListTablesQuery() string {
	return `SELECT TABLE_NAME FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`
}

func (d *MariaDBDriver) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE' AND TABLE_NAME = ?`
}

// ColumnsQuery lists column metadata. DEFAULT_GENERATED in EXTRA (MySQL 8
// expression defaults) is not a generated column.
func (d *MariaDBDriver) ColumnsQuery(table string) (string, []interface{}) {
	return `SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY,
			COLUMN_DEFAULT, EXTRA,
			CASE WHEN COALESCE(GENERATION_EXPRESSION, '') <> ''
				OR EXTRA LIKE '%VIRTUAL%' OR EXTRA LIKE '%STORED%' OR EXTRA LIKE '%PERSISTENT%'
				THEN 1 ELSE 0 END,
			CASE WHEN EXTRA LIKE '%auto_increment%' THEN 1 ELSE 0 END,
			0
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, []interface{}{table}
}

func (d *MariaDBDriver) ForeignKeysQuery() string {
	return `SELECT TABLE_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME, CONSTRAINT_NAME
		FROM information_schema.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = DATABASE() AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION`
}

func (d *MariaDBDriver) IndexesQuery() string {
	return `SELECT TABLE_NAME, INDEX_NAME,
			GROUP_CONCAT(COLUMN_NAME ORDER BY SEQ_IN_INDEX SEPARATOR ','),
			CASE WHEN MIN(NON_UNIQUE) = 0 THEN 1 ELSE 0 END
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE()
		GROUP BY TABLE_NAME, INDEX_NAME
		ORDER BY TABLE_NAME, INDEX_NAME`
}

// ListObjectsQuery returns the query listing object names of a kind
func (d *MariaDBDriver) ListObjectsQuery(kind ObjectKind) string {
	switch kind {
	case ObjectTable:
		return d.ListTablesQuery()
	case ObjectView:
		return `SELECT TABLE_NAME FROM information_schema.VIEWS
			WHERE TABLE_SCHEMA = DATABASE() ORDER BY TABLE_NAME`
	case ObjectProcedure:
		return `SELECT ROUTINE_NAME FROM information_schema.ROUTINES
			WHERE ROUTINE_SCHEMA = DATABASE() AND ROUTINE_TYPE = 'PROCEDURE' ORDER BY ROUTINE_NAME`
	case ObjectFunction:
		return `SELECT ROUTINE_NAME FROM information_schema.ROUTINES
			WHERE ROUTINE_SCHEMA = DATABASE() AND ROUTINE_TYPE = 'FUNCTION' ORDER BY ROUTINE_NAME`
	case ObjectTrigger:
		return `SELECT TRIGGER_NAME FROM information_schema.TRIGGERS
			WHERE TRIGGER_SCHEMA = DATABASE() ORDER BY TRIGGER_NAME`
	case ObjectEvent:
		return `SELECT EVENT_NAME FROM information_schema.EVENTS
			WHERE EVENT_SCHEMA = DATABASE() ORDER BY EVENT_NAME`
	}
	return ""
}

func (d *MariaDBDriver) DatabaseOptionsQuery() string {
	return `SELECT DEFAULT_CHARACTER_SET_NAME, DEFAULT_COLLATION_NAME
		FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = DATABASE()`
}

// ServerVersionQuery returns the query to get server version
func (d *MariaDBDriver) ServerVersionQuery() string {
	return "SELECT VERSION()"
}

// ObjectDDLQuery uses the SHOW CREATE family. The DDL column differs per kind.
func (d *MariaDBDriver) ObjectDDLQuery(kind ObjectKind, name string) (string, []interface{}, int) {
	q := d.QuoteIdentifier(name)
	switch kind {
	case ObjectTable:
		return "SHOW CREATE TABLE " + q, nil, 1
	case ObjectView:
		return "SHOW CREATE VIEW " + q, nil, 1
	case ObjectProcedure:
		return "SHOW CREATE PROCEDURE " + q, nil, 2
	case ObjectFunction:
		return "SHOW CREATE FUNCTION " + q, nil, 2
	case ObjectTrigger:
		return "SHOW CREATE TRIGGER " + q, nil, 2
	case ObjectEvent:
		return "SHOW CREATE EVENT " + q, nil, 3
	}
	return "", nil, 0
}

// TableIndexDDLQuery is empty: SHOW CREATE TABLE already carries the indexes
func (d *MariaDBDriver) TableIndexDDLQuery() string {
	return ""
}

// ConstraintDDLQuery is empty: SHOW CREATE TABLE already carries the constraints
func (d *MariaDBDriver) ConstraintDDLQuery() string {
	return ""
}

// CreateDatabaseWithOptionsQuery returns the query to create a database with charset and collation
func (d *MariaDBDriver) CreateDatabaseWithOptionsQuery(name, charset, collation string) string {
	query := fmt.Sprintf("CREATE DATABASE %s", d.QuoteIdentifier(name))
	if charset != "" {
		query += fmt.Sprintf(" CHARACTER SET %s", charset)
	}
	if collation != "" {
		query += fmt.Sprintf(" COLLATE %s", collation)
	}
	return query
}

// DropDatabaseQuery returns the query to drop a database
func (d *MariaDBDriver) DropDatabaseQuery(name string) string {
	return fmt.Sprintf("DROP DATABASE IF EXISTS %s", d.QuoteIdentifier(name))
}

// UseDatabaseStatement returns the statement to switch databases
func (d *MariaDBDriver) UseDatabaseStatement(name string) string {
	return fmt.Sprintf("USE %s", d.QuoteIdentifier(name))
}

func (d *MariaDBDriver) DropObjectStatement(kind ObjectKind, name string) string {
	switch kind {
	case ObjectTable, ObjectView, ObjectProcedure, ObjectFunction, ObjectTrigger, ObjectEvent:
		return fmt.Sprintf("DROP %s IF EXISTS %s", strings.ToUpper(string(kind)), d.QuoteIdentifier(name))
	}
	return ""
}

// DisableForeignKeysSQL returns the SQL to disable foreign key checks
func (d *MariaDBDriver) DisableForeignKeysSQL() string {
	return "SET FOREIGN_KEY_CHECKS = 0"
}

// EnableForeignKeysSQL returns the SQL to enable foreign key checks
func (d *MariaDBDriver) EnableForeignKeysSQL() string {
	return "SET FOREIGN_KEY_CHECKS = 1"
}

// ClearTableQuery uses DELETE rather than TRUNCATE, which is refused on referenced tables
func (d *MariaDBDriver) ClearTableQuery(table string) string {
	return fmt.Sprintf("DELETE FROM %s", d.QuoteIdentifier(table))
}

// TableRowCountQuery returns the query to count rows in a table
func (d *MariaDBDriver) TableRowCountQuery(table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", d.QuoteIdentifier(table))
}

func (d *MariaDBDriver) MaxValueQuery(table, column string) string {
	return fmt.Sprintf("SELECT MAX(%s) FROM %s", d.QuoteIdentifier(column), d.QuoteIdentifier(table))
}

func (d *MariaDBDriver) ResetAutoIncrementQuery(table, column string, next int64) string {
	return fmt.Sprintf("ALTER TABLE %s AUTO_INCREMENT = %d", d.QuoteIdentifier(table), next)
}

func (d *MariaDBDriver) InsertOverrideClause() string {
	return ""
}
