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
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/blubskye/nukepave/internal/buffer"
	"github.com/blubskye/nukepave/internal/logging"
)

// routineDelimiter terminates statements inside the routine block
const routineDelimiter = "//"

// SchemaExportOptions configures the schema export
type SchemaExportOptions struct {
	FilePath     string
	Compression  buffer.CompressionType // auto-detected from extension if empty
	Tables       []string               // Empty = all tables
	SkipDatabase bool                   // omit DROP/CREATE DATABASE and USE
	ToolVersion  string
	OnProgress   func(object string, done, total int)
}

// SchemaExportStats contains statistics about the schema export
type SchemaExportStats struct {
	Objects      map[ObjectKind]int
	Constraints  int
	Skipped      []string
	BytesWritten int64 // on disk
	SQLBytes     int64 // before compression
	Duration     time.Duration
	OutputFile   string
}

var definerPattern = regexp.MustCompile("DEFINER=`[^`]*`@`[^`]*`\\s*")

// ExportSchema writes the complete DDL of the connected database to one file.
// Objects whose DDL cannot be read are skipped and listed in the stats.
// opts.Tables limits the table section only; views, routines, triggers and
// constraints are always written in full, so some of them may fail on
// replay when they reference a table that was left out.
func (c *Connection) ExportSchema(ctx context.Context, opts SchemaExportOptions) (*SchemaExportStats, error) {
	startTime := time.Now()
	stats := &SchemaExportStats{Objects: make(map[ObjectKind]int), OutputFile: opts.FilePath}

	compression := opts.Compression
	if compression == buffer.CompressionNone {
		compression = buffer.DetectCompression(opts.FilePath)
	}

	logging.Debug("Starting schema export to: %s (compression: %s)", opts.FilePath, compression)

	tables := opts.Tables
	if len(tables) > 0 {
		logging.Info("Exporting %d selected tables; views, routines and constraints are exported in full", len(tables))
	} else {
		var err error
		if tables, err = c.ListTableNames(ctx); err != nil {
			return nil, err
		}
	}

	w, err := buffer.NewBufferedWriter(opts.FilePath, compression, buffer.DefaultBufferSize)
	if err != nil {
		return nil, err
	}

	version, err := c.ServerVersion(ctx)
	if err != nil {
		logging.Warn("Could not read server version: %v", err)
	}

	fmt.Fprintf(w, "-- Nukepave schema backup\n")
	fmt.Fprintf(w, "-- Database: %s\n", c.DatabaseName())
	fmt.Fprintf(w, "-- Server: %s %s\n", c.Driver.Type(), version)
	fmt.Fprintf(w, "-- Generated: %s\n", startTime.Format(time.RFC3339))
	if opts.ToolVersion != "" {
		fmt.Fprintf(w, "-- Tool: nukepave %s\n", opts.ToolVersion)
	}
	fmt.Fprintf(w, "\n")

	if !opts.SkipDatabase {
		c.writeDatabaseSection(ctx, w)
	}

	// Tables
	for i, table := range tables {
		if err := ctx.Err(); err != nil {
			w.Close()
			return nil, err
		}
		if opts.OnProgress != nil {
			opts.OnProgress(table, i+1, len(tables))
		}

		ddl, err := c.tableDDL(ctx, table)
		if err != nil {
			logging.Warn("Skipping table %s: %v", table, err)
			stats.Skipped = append(stats.Skipped, string(ObjectTable)+" "+table)
			continue
		}

		fmt.Fprintf(w, "-- --------------------------------------------------------\n")
		fmt.Fprintf(w, "-- Table structure for table %s\n", c.QuoteIdentifier(table))
		fmt.Fprintf(w, "-- --------------------------------------------------------\n\n")
		fmt.Fprintf(w, "%s;\n", c.Driver.DropObjectStatement(ObjectTable, table))
		fmt.Fprintf(w, "%s;\n", strings.TrimRight(ddl, "; \n"))

		if q := c.Driver.TableIndexDDLQuery(); q != "" {
			indexes, err := queryStrings(ctx, c.DB, q, table)
			if err != nil {
				logging.Warn("Could not read indexes of %s: %v", table, err)
			}
			for _, idx := range indexes {
				fmt.Fprintf(w, "%s;\n", strings.TrimRight(idx, "; \n"))
			}
		}
		fmt.Fprintf(w, "\n")
		stats.Objects[ObjectTable]++
	}

	// Views: all drops first so views referencing each other can be recreated
	if views := c.listObjects(ctx, ObjectView); len(views) > 0 {
		fmt.Fprintf(w, "-- Views\n\n")
		for _, v := range views {
			fmt.Fprintf(w, "%s;\n", c.Driver.DropObjectStatement(ObjectView, v))
		}
		fmt.Fprintf(w, "\n")
		for _, v := range views {
			ddl, err := c.objectDDL(ctx, ObjectView, v)
			if err != nil {
				logging.Warn("Skipping view %s: %v", v, err)
				stats.Skipped = append(stats.Skipped, string(ObjectView)+" "+v)
				continue
			}
			fmt.Fprintf(w, "%s;\n\n", strings.TrimRight(ddl, "; \n"))
			stats.Objects[ObjectView]++
		}
	}

	// Procedures, functions, triggers and events. Their bodies contain
	// semicolons, so they go inside a DELIMITER block.
	type routine struct {
		kind ObjectKind
		name string
	}
	var routines []routine
	for _, kind := range RoutineKinds {
		for _, name := range c.listObjects(ctx, kind) {
			routines = append(routines, routine{kind, name})
		}
	}
	if len(routines) > 0 {
		fmt.Fprintf(w, "-- Routines, triggers and events\n\n")
		fmt.Fprintf(w, "DELIMITER %s\n\n", routineDelimiter)
		for _, r := range routines {
			ddl, err := c.objectDDL(ctx, r.kind, r.name)
			if err != nil {
				logging.Warn("Skipping %s %s: %v", r.kind, r.name, err)
				stats.Skipped = append(stats.Skipped, string(r.kind)+" "+r.name)
				continue
			}
			if drop := c.Driver.DropObjectStatement(r.kind, r.name); drop != "" {
				fmt.Fprintf(w, "%s%s\n", drop, routineDelimiter)
			}
			fmt.Fprintf(w, "%s%s\n\n", strings.TrimRight(ddl, "; \n"), routineDelimiter)
			stats.Objects[r.kind]++
		}
		fmt.Fprintf(w, "DELIMITER ;\n\n")
	}

	// Constraints added after every table exists
	if q := c.Driver.ConstraintDDLQuery(); q != "" {
		constraints, err := queryStrings(ctx, c.DB, q)
		if err != nil {
			logging.Warn("Could not read constraints: %v", err)
		}
		if len(constraints) > 0 {
			fmt.Fprintf(w, "-- Foreign key constraints\n\n")
			for _, stmt := range constraints {
				fmt.Fprintf(w, "%s;\n", stmt)
			}
			fmt.Fprintf(w, "\n")
			stats.Constraints = len(constraints)
		}
	}

	c.writeMetadataComments(ctx, w)

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to write schema file: %w", err)
	}

	stats.SQLBytes = w.Written()
	if size, err := buffer.GetFileSize(opts.FilePath); err == nil {
		stats.BytesWritten = size
	}
	stats.Duration = time.Since(startTime)

	logging.Info("Schema export complete: %d tables, %d views, %d skipped in %v",
		stats.Objects[ObjectTable], stats.Objects[ObjectView], len(stats.Skipped), stats.Duration.Round(time.Millisecond))
	return stats, nil
}

func (c *Connection) writeDatabaseSection(ctx context.Context, w io.Writer) {
	name := c.DatabaseName()
	use := c.Driver.UseDatabaseStatement(name)
	if use == "" || name == "" {
		return
	}

	var charset, collation sql.NullString
	if q := c.Driver.DatabaseOptionsQuery(); q != "" {
		qctx, cancel := context.WithTimeout(ctx, queryTimeout)
		if err := c.DB.QueryRowContext(qctx, q).Scan(&charset, &collation); err != nil {
			logging.Warn("Could not read database options: %v", err)
		}
		cancel()
	}

	fmt.Fprintf(w, "%s;\n", c.Driver.DropDatabaseQuery(name))
	fmt.Fprintf(w, "%s;\n", c.Driver.CreateDatabaseWithOptionsQuery(name, charset.String, collation.String))
	fmt.Fprintf(w, "%s;\n\n", use)
}

// writeMetadataComments records foreign keys and indexes for readers of the file
func (c *Connection) writeMetadataComments(ctx context.Context, w io.Writer) {
	fks, err := c.ForeignKeys(ctx)
	if err != nil {
		logging.Warn("Could not read foreign keys for comments: %v", err)
	}
	indexes, err := c.Indexes(ctx)
	if err != nil {
		logging.Warn("Could not read indexes for comments: %v", err)
	}
	if len(fks) == 0 && len(indexes) == 0 {
		return
	}

	fmt.Fprintf(w, "-- --------------------------------------------------------\n")
	if len(fks) > 0 {
		fmt.Fprintf(w, "-- Foreign keys:\n")
		for _, fk := range fks {
			fmt.Fprintf(w, "--   %s.%s -> %s.%s (%s)\n", fk.Table, fk.Column, fk.ReferencedTable, fk.ReferencedColumn, fk.Constraint)
		}
	}
	if len(indexes) > 0 {
		fmt.Fprintf(w, "-- Indexes:\n")
		for _, idx := range indexes {
			unique := ""
			if idx.Unique {
				unique = " UNIQUE"
			}
			fmt.Fprintf(w, "--   %s.%s (%s)%s\n", idx.Table, idx.Name, idx.Columns, unique)
		}
	}
	fmt.Fprintf(w, "-- --------------------------------------------------------\n")
}

// listObjects returns object names of a kind, or nil when the dialect lacks
// the kind or the listing fails
func (c *Connection) listObjects(ctx context.Context, kind ObjectKind) []string {
	q := c.Driver.ListObjectsQuery(kind)
	if q == "" {
		return nil
	}
	names, err := queryStrings(ctx, c.DB, q)
	if err != nil {
		logging.Warn("Could not list %ss: %v", kind, err)
		return nil
	}
	return names
}

func (c *Connection) tableDDL(ctx context.Context, table string) (string, error) {
	if c.Driver.Type() == DatabaseTypePostgres {
		return c.buildCreateTablePostgres(ctx, table)
	}
	return c.objectDDL(ctx, ObjectTable, table)
}

// objectDDL fetches the create statement of one object
func (c *Connection) objectDDL(ctx context.Context, kind ObjectKind, name string) (string, error) {
	query, args, col := c.Driver.ObjectDDLQuery(kind, name)
	if query == "" {
		return "", fmt.Errorf("%s DDL is not supported for %s", kind, c.Driver.Type())
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	if col >= len(cols) {
		return "", fmt.Errorf("unexpected result shape for %s %s", kind, name)
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%s %s not found", kind, name)
	}

	vals := make([]sql.NullString, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return "", err
	}
	if !vals[col].Valid || vals[col].String == "" {
		return "", fmt.Errorf("no DDL returned for %s %s (missing privileges?)", kind, name)
	}

	ddl := vals[col].String
	if c.Driver.Type() == DatabaseTypeMariaDB {
		ddl = definerPattern.ReplaceAllString(ddl, "")
	}
	return ddl, nil
}

// buildCreateTablePostgres builds a CREATE TABLE statement from information_schema
func (c *Connection) buildCreateTablePostgres(ctx context.Context, tableName string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := c.DB.QueryContext(ctx, `
		SELECT column_name, data_type, character_maximum_length, numeric_precision, numeric_scale,
		       is_nullable, column_default, udt_name,
		       is_generated, generation_expression, is_identity, identity_generation
		FROM information_schema.columns
		WHERE table_name = $1 AND table_schema = current_schema()
		ORDER BY ordinal_position`, tableName)
	if err != nil {
		return "", fmt.Errorf("failed to get columns: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var colName, dataType, isNullable, udtName string
		var charMaxLen, numPrecision, numScale sql.NullInt64
		var colDefault, isGenerated, genExpr, isIdentity, identityGen sql.NullString

		if err := rows.Scan(&colName, &dataType, &charMaxLen, &numPrecision, &numScale,
			&isNullable, &colDefault, &udtName, &isGenerated, &genExpr, &isIdentity, &identityGen); err != nil {
			return "", err
		}

		colDef := fmt.Sprintf("  %s ", c.QuoteIdentifier(colName))
		serial := colDefault.Valid && strings.HasPrefix(colDefault.String, "nextval(")

		// Build type with length if applicable
		switch {
		case serial && dataType == "bigint":
			colDef += "bigserial"
		case serial && dataType == "integer":
			colDef += "serial"
		case serial && dataType == "smallint":
			colDef += "smallserial"
		case charMaxLen.Valid && charMaxLen.Int64 > 0:
			colDef += fmt.Sprintf("%s(%d)", dataType, charMaxLen.Int64)
		case dataType == "numeric" && numPrecision.Valid:
			colDef += fmt.Sprintf("numeric(%d,%d)", numPrecision.Int64, numScale.Int64)
		case dataType == "USER-DEFINED" || dataType == "ARRAY":
			colDef += pgArrayType(udtName)
		default:
			colDef += dataType
		}

		switch {
		case isGenerated.String == "ALWAYS":
			colDef += fmt.Sprintf(" GENERATED ALWAYS AS (%s) STORED", genExpr.String)
		case isIdentity.String == "YES":
			colDef += fmt.Sprintf(" GENERATED %s AS IDENTITY", identityGen.String)
		case colDefault.Valid && !serial:
			colDef += fmt.Sprintf(" DEFAULT %s", colDefault.String)
		}

		if isNullable == "NO" {
			colDef += " NOT NULL"
		}

		columns = append(columns, colDef)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	if len(columns) == 0 {
		return "", fmt.Errorf("no columns found for table %s", tableName)
	}

	// Primary key, unique and check constraints; foreign keys come later
	constraints, err := queryStrings(ctx, c.DB, `
		SELECT 'CONSTRAINT ' || quote_ident(con.conname) || ' ' || pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE t.relname = $1 AND n.nspname = current_schema() AND con.contype IN ('p', 'u', 'c')
		ORDER BY con.contype = 'p' DESC, con.conname`, tableName)
	if err != nil {
		return "", fmt.Errorf("failed to get constraints: %w", err)
	}
	for _, con := range constraints {
		columns = append(columns, "  "+con)
	}

	createStmt := fmt.Sprintf("CREATE TABLE %s (\n%s\n)",
		c.QuoteIdentifier(tableName),
		strings.Join(columns, ",\n"))

	return createStmt, nil
}

// pgArrayType maps an array udt name (_int4) to its declared form (int4[])
func pgArrayType(udt string) string {
	if strings.HasPrefix(udt, "_") {
		return udt[1:] + "[]"
	}
	return udt
}
