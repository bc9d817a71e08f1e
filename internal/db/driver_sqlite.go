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

// SQLiteDriver implements the Driver interface for SQLite files.
// ConnectionConfig.Database holds the file path.
type SQLiteDriver struct{}

// Type returns the database type
func (d *SQLiteDriver) Type() DatabaseType {
	return DatabaseTypeSQLite
}

// DSN returns the file path with a busy timeout pragma
func (d *SQLiteDriver) DSN(cfg ConnectionConfig) string {
	return cfg.Database + "?_pragma=busy_timeout(5000)"
}

// DriverName returns the database/sql driver name registered by modernc.org/sqlite
func (d *SQLiteDriver) DriverName() string {
	return "sqlite"
}

func (d *SQLiteDriver) DefaultPort() int {
	return 0
}

// QuoteIdentifier quotes an identifier with double quotes
func (d *SQLiteDriver) QuoteIdentifier(name string) string {
	return "\"" + strings.ReplaceAll(name, "\"", "\"\"") + "\""
}

func (d *SQLiteDriver) Placeholder(n int) string {
	return "?"
}

// MaxPlaceholders is SQLITE_MAX_VARIABLE_NUMBER since 3.32
func (d *SQLiteDriver) MaxPlaceholders() int {
	return 32766
}

func (d *SQLiteDriver) ListTablesQuery() string {
	return `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
}

func (d *SQLiteDriver) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
}

// ColumnsQuery reads pragma_table_xinfo; hidden 2 and 3 are generated columns.
// Only an AUTOINCREMENT rowid alias keeps a sequence worth resetting.
func (d *SQLiteDriver) ColumnsQuery(table string) (string, []interface{}) {
	return `SELECT name, lower(type), type,
			CASE WHEN "notnull" = 1 THEN 'NO' ELSE 'YES' END,
			CASE WHEN pk > 0 THEN 'PRI' ELSE '' END,
			dflt_value, '',
			CASE WHEN hidden IN (2, 3) THEN 1 ELSE 0 END,
			CASE WHEN pk = 1 AND upper(type) = 'INTEGER' AND (
				SELECT COUNT(*) FROM sqlite_master
				WHERE type = 'table' AND name = ? AND upper(sql) LIKE '%AUTOINCREMENT%') > 0
				THEN 1 ELSE 0 END,
			0
		FROM pragma_table_xinfo(?)
		ORDER BY cid`, []interface{}{table, table}
}

func (d *SQLiteDriver) ForeignKeysQuery() string {
	return `SELECT m.name, p."from", p."table", COALESCE(p."to", ''),
			'fk_' || m.name || '_' || p.id
		FROM sqlite_master m
		JOIN pragma_foreign_key_list(m.name) p
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, p.id, p.seq`
}

func (d *SQLiteDriver) IndexesQuery() string {
	return `SELECT m.name, il.name,
			(SELECT group_concat(ii.name, ',') FROM pragma_index_info(il.name) ii),
			il."unique"
		FROM sqlite_master m
		JOIN pragma_index_list(m.name) il
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, il.name`
}

func (d *SQLiteDriver) ListObjectsQuery(kind ObjectKind) string {
	switch kind {
	case ObjectTable:
		return d.ListTablesQuery()
	case ObjectView, ObjectTrigger:
		return fmt.Sprintf(`SELECT name FROM sqlite_master WHERE type = '%s' ORDER BY name`, kind)
	}
	return ""
}

func (d *SQLiteDriver) DatabaseOptionsQuery() string {
	return ""
}

func (d *SQLiteDriver) ServerVersionQuery() string {
	return "SELECT 'SQLite ' || sqlite_version()"
}

func (d *SQLiteDriver) ObjectDDLQuery(kind ObjectKind, name string) (string, []interface{}, int) {
	switch kind {
	case ObjectTable, ObjectView, ObjectTrigger:
		return `SELECT sql FROM sqlite_master WHERE type = ? AND name = ?`,
			[]interface{}{string(kind), name}, 0
	}
	return "", nil, 0
}

// TableIndexDDLQuery skips automatic indexes, which have no SQL
func (d *SQLiteDriver) TableIndexDDLQuery() string {
	return `SELECT sql FROM sqlite_master
		WHERE type = 'index' AND tbl_name = ? AND sql IS NOT NULL ORDER BY name`
}

func (d *SQLiteDriver) ConstraintDDLQuery() string {
	return ""
}

func (d *SQLiteDriver) CreateDatabaseWithOptionsQuery(name, charset, collation string) string {
	return ""
}

func (d *SQLiteDriver) DropDatabaseQuery(name string) string {
	return ""
}

func (d *SQLiteDriver) UseDatabaseStatement(name string) string {
	return ""
}

func (d *SQLiteDriver) DropObjectStatement(kind ObjectKind, name string) string {
	switch kind {
	case ObjectTable, ObjectView, ObjectTrigger:
		return fmt.Sprintf("DROP %s IF EXISTS %s", strings.ToUpper(string(kind)), d.QuoteIdentifier(name))
	}
	return ""
}

// DisableForeignKeysSQL is a no-op inside a transaction, so the guard runs it on a bare connection
func (d *SQLiteDriver) DisableForeignKeysSQL() string {
	return "PRAGMA foreign_keys = OFF"
}

func (d *SQLiteDriver) EnableForeignKeysSQL() string {
	return "PRAGMA foreign_keys = ON"
}

func (d *SQLiteDriver) ClearTableQuery(table string) string {
	return fmt.Sprintf("DELETE FROM %s", d.QuoteIdentifier(table))
}

func (d *SQLiteDriver) TableRowCountQuery(table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", d.QuoteIdentifier(table))
}

func (d *SQLiteDriver) MaxValueQuery(table, column string) string {
	return fmt.Sprintf("SELECT MAX(%s) FROM %s", d.QuoteIdentifier(column), d.QuoteIdentifier(table))
}

// ResetAutoIncrementQuery stores next-1 since sqlite_sequence holds the last value used
func (d *SQLiteDriver) ResetAutoIncrementQuery(table, column string, next int64) string {
	return fmt.Sprintf("UPDATE sqlite_sequence SET seq = %d WHERE name = '%s'",
		next-1, strings.ReplaceAll(table, "'", "''"))
}

func (d *SQLiteDriver) InsertOverrideClause() string {
	return ""
}
