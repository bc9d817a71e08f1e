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
	"context"
	"database/sql"
	"fmt"

	"github.com/blubskye/nukepave/internal/graph"
)

// ColumnDescriptor describes one column as read from the catalog. It is
// also the element type of <table>_columns.json.
type ColumnDescriptor struct {
	Name          string  `json:"name"`
	DataType      string  `json:"data_type"`
	ColumnType    string  `json:"column_type,omitempty"`
	Nullable      bool    `json:"nullable"`
	Key           string  `json:"key,omitempty"`
	Default       *string `json:"default,omitempty"`
	Extra         string  `json:"extra,omitempty"`
	Generated     bool    `json:"generated,omitempty"`
	AutoIncrement bool    `json:"auto_increment,omitempty"`
	Identity      bool    `json:"identity,omitempty"`
}

// IsPrimaryKey reports whether the column is part of the primary key
func (c ColumnDescriptor) IsPrimaryKey() bool {
	return c.Key == "PRI"
}

// ForeignKey is one referencing column of a foreign key constraint
type ForeignKey struct {
	Table            string `json:"table_name"`
	Column           string `json:"column_name"`
	ReferencedTable  string `json:"referenced_table_name"`
	ReferencedColumn string `json:"referenced_column_name"`
	Constraint       string `json:"constraint_name"`
}

// TableDescriptor is a table with its columns and outgoing references
type TableDescriptor struct {
	Name       string
	Columns    []ColumnDescriptor
	References []ForeignKey
}

// Column looks up a column by name
func (t *TableDescriptor) Column(name string) (ColumnDescriptor, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDescriptor{}, false
}

// PrimaryKey returns the primary key column names in ordinal order
func (t *TableDescriptor) PrimaryKey() []string {
	var pk []string
	for _, c := range t.Columns {
		if c.IsPrimaryKey() {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// IndexInfo summarizes one index for the schema file comment block
type IndexInfo struct {
	Table   string
	Name    string
	Columns string
	Unique  bool
}

// Catalog is a snapshot of the tables and foreign keys of one database
type Catalog struct {
	Database    string
	Tables      []TableDescriptor
	ForeignKeys []ForeignKey
}

// Table looks up a table by name
func (c *Catalog) Table(name string) (*TableDescriptor, bool) {
	for i := range c.Tables {
		if c.Tables[i].Name == name {
			return &c.Tables[i], true
		}
	}
	return nil, false
}

// TableNames returns the table names in catalog order
func (c *Catalog) TableNames() []string {
	names := make([]string, len(c.Tables))
	for i, t := range c.Tables {
		names[i] = t.Name
	}
	return names
}

// Edges converts the foreign keys into dependency graph edges
func (c *Catalog) Edges() []graph.Edge {
	return fkEdges(c.ForeignKeys)
}

// Graph builds the dependency graph of the catalog
func (c *Catalog) Graph() *graph.Graph {
	return graph.Build(c.TableNames(), c.Edges())
}

func fkEdges(fks []ForeignKey) []graph.Edge {
	edges := make([]graph.Edge, 0, len(fks))
	for _, fk := range fks {
		edges = append(edges, graph.Edge{Table: fk.Table, ReferencedTable: fk.ReferencedTable})
	}
	return edges
}

// ReadCatalog reads every base table with its columns and foreign keys
func (c *Connection) ReadCatalog(ctx context.Context) (*Catalog, error) {
	return c.readCatalog(ctx, c.DB)
}

func (c *Connection) readCatalog(ctx context.Context, q queryer) (*Catalog, error) {
	names, err := c.listTableNames(ctx, q)
	if err != nil {
		return nil, err
	}
	fks, err := c.foreignKeys(ctx, q)
	if err != nil {
		return nil, err
	}

	byTable := make(map[string][]ForeignKey)
	for _, fk := range fks {
		byTable[fk.Table] = append(byTable[fk.Table], fk)
	}

	cat := &Catalog{Database: c.DatabaseName(), ForeignKeys: fks}
	for _, name := range names {
		cols, err := c.columns(ctx, q, name)
		if err != nil {
			return nil, err
		}
		cat.Tables = append(cat.Tables, TableDescriptor{
			Name:       name,
			Columns:    cols,
			References: byTable[name],
		})
	}
	return cat, nil
}

// ListTableNames returns base table names, excluding system schemas
func (c *Connection) ListTableNames(ctx context.Context) ([]string, error) {
	return c.listTableNames(ctx, c.DB)
}

func (c *Connection) listTableNames(ctx context.Context, q queryer) ([]string, error) {
	names, err := queryStrings(ctx, q, c.Driver.ListTablesQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return names, nil
}

// Columns returns the column metadata of a table in ordinal order
func (c *Connection) Columns(ctx context.Context, table string) ([]ColumnDescriptor, error) {
	return c.columns(ctx, c.DB, table)
}

func (c *Connection) columns(ctx context.Context, q queryer, table string) ([]ColumnDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query, args := c.Driver.ColumnsQuery(table)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []ColumnDescriptor
	for rows.Next() {
		var col ColumnDescriptor
		var nullable string
		var def sql.NullString
		var generated, autoInc, identity int64
		if err := rows.Scan(&col.Name, &col.DataType, &col.ColumnType, &nullable, &col.Key,
			&def, &col.Extra, &generated, &autoInc, &identity); err != nil {
			return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
		}
		col.Nullable = nullable == "YES"
		if def.Valid {
			v := def.String
			col.Default = &v
		}
		col.Generated = generated != 0
		col.AutoIncrement = autoInc != 0
		col.Identity = identity != 0
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	return cols, nil
}

// ForeignKeys returns every foreign key column reference in the database
func (c *Connection) ForeignKeys(ctx context.Context) ([]ForeignKey, error) {
	return c.foreignKeys(ctx, c.DB)
}

func (c *Connection) foreignKeys(ctx context.Context, q queryer) ([]ForeignKey, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := q.QueryContext(ctx, c.Driver.ForeignKeysQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Table, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn, &fk.Constraint); err != nil {
			return nil, fmt.Errorf("failed to read foreign keys: %w", err)
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read foreign keys: %w", err)
	}
	return fks, nil
}

// TableExists reports whether a base table exists in the connected database
func (c *Connection) TableExists(ctx context.Context, table string) (bool, error) {
	return c.tableExists(ctx, c.DB, table)
}

func (c *Connection) tableExists(ctx context.Context, q queryer, table string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int64
	if err := q.QueryRowContext(ctx, c.Driver.TableExistsQuery(), table).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

// ObjectCounts counts schema objects per kind; kinds the dialect lacks are omitted
func (c *Connection) ObjectCounts(ctx context.Context) (map[ObjectKind]int, error) {
	return c.objectCounts(ctx, c.DB)
}

func (c *Connection) objectCounts(ctx context.Context, q queryer) (map[ObjectKind]int, error) {
	counts := make(map[ObjectKind]int)
	for _, kind := range append([]ObjectKind{ObjectTable, ObjectView}, RoutineKinds...) {
		query := c.Driver.ListObjectsQuery(kind)
		if query == "" {
			continue
		}
		names, err := queryStrings(ctx, q, query)
		if err != nil {
			return nil, fmt.Errorf("failed to count %ss: %w", kind, err)
		}
		counts[kind] = len(names)
	}
	return counts, nil
}

// Indexes lists the indexes of every table
func (c *Connection) Indexes(ctx context.Context) ([]IndexInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := c.DB.QueryContext(ctx, c.Driver.IndexesQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to read indexes: %w", err)
	}
	defer rows.Close()

	var out []IndexInfo
	for rows.Next() {
		var idx IndexInfo
		var cols sql.NullString
		var unique int64
		if err := rows.Scan(&idx.Table, &idx.Name, &cols, &unique); err != nil {
			return nil, fmt.Errorf("failed to read indexes: %w", err)
		}
		idx.Columns = cols.String
		idx.Unique = unique != 0
		out = append(out, idx)
	}
	return out, rows.Err()
}

// TableRowCount returns COUNT(*) for a table
func (c *Connection) TableRowCount(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := c.DB.QueryRowContext(ctx, c.Driver.TableRowCountQuery(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	return n, nil
}

// queryStrings runs a single column query under the catalog timeout
func queryStrings(ctx context.Context, q queryer, query string, args ...interface{}) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
