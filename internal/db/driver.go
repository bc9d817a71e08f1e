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

import "fmt"

// DatabaseType represents supported database types
type DatabaseType string

const (
	DatabaseTypeMariaDB  DatabaseType = "mariadb"
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeSQLite   DatabaseType = "sqlite"
)

// ObjectKind identifies a schema object class dumped by the schema exporter
type ObjectKind string

const (
	ObjectTable     ObjectKind = "table"
	ObjectView      ObjectKind = "view"
	ObjectProcedure ObjectKind = "procedure"
	ObjectFunction  ObjectKind = "function"
	ObjectTrigger   ObjectKind = "trigger"
	ObjectEvent     ObjectKind = "event"
)

// RoutineKinds are dumped inside a DELIMITER block, in this order
var RoutineKinds = []ObjectKind{ObjectProcedure, ObjectFunction, ObjectTrigger, ObjectEvent}

// Driver produces the dialect-specific SQL the backup pipeline needs.
// Methods returning an empty string mean the dialect has no equivalent.
type Driver interface {
	// Connection
	Type() DatabaseType
	DSN(cfg ConnectionConfig) string
	DriverName() string
	DefaultPort() int

	// Identifiers and parameters
	QuoteIdentifier(name string) string
	Placeholder(n int) string
	MaxPlaceholders() int

	// Catalog
	ListTablesQuery() string
	TableExistsQuery() string
	ColumnsQuery(table string) (string, []interface{})
	ForeignKeysQuery() string
	IndexesQuery() string
	ListObjectsQuery(kind ObjectKind) string
	DatabaseOptionsQuery() string
	ServerVersionQuery() string

	// DDL retrieval: the query, its arguments and the result column holding the DDL
	ObjectDDLQuery(kind ObjectKind, name string) (string, []interface{}, int)
	TableIndexDDLQuery() string
	ConstraintDDLQuery() string

	// Database statements
	CreateDatabaseWithOptionsQuery(name, charset, collation string) string
	DropDatabaseQuery(name string) string
	UseDatabaseStatement(name string) string
	DropObjectStatement(kind ObjectKind, name string) string

	// Restore
	DisableForeignKeysSQL() string
	EnableForeignKeysSQL() string
	ClearTableQuery(table string) string
	TableRowCountQuery(table string) string
	MaxValueQuery(table, column string) string
	ResetAutoIncrementQuery(table, column string, next int64) string
	InsertOverrideClause() string
}

// GetDriver returns the appropriate driver for the given database type
func GetDriver(dbType DatabaseType) (Driver, error) {
	switch dbType {
	case DatabaseTypeMariaDB, "mysql", "":
		return &MariaDBDriver{}, nil
	case DatabaseTypePostgres, "postgresql":
		return &PostgresDriver{}, nil
	case DatabaseTypeSQLite, "sqlite3":
		return &SQLiteDriver{}, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// ValidDatabaseTypes returns all valid database type values
func ValidDatabaseTypes() []DatabaseType {
	return []DatabaseType{DatabaseTypeMariaDB, DatabaseTypePostgres, DatabaseTypeSQLite}
}

// NormalizeDatabaseType maps aliases onto the canonical type names
func NormalizeDatabaseType(t string) DatabaseType {
	switch t {
	case "", "mysql", "mariadb":
		return DatabaseTypeMariaDB
	case "postgresql", "postgres", "pg":
		return DatabaseTypePostgres
	case "sqlite3", "sqlite":
		return DatabaseTypeSQLite
	default:
		return DatabaseType(t)
	}
}
