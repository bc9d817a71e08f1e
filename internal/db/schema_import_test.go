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
	"os"
	"path/filepath"
	"testing"
)

func TestIsDatabaseStatement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stmt    string
		want    bool
		useName string
		isUse   bool
	}{
		{stmt: "CREATE DATABASE IF NOT EXISTS `shop`", want: true},
		{stmt: "create schema shop", want: true},
		{stmt: "DROP DATABASE shop", want: true},
		{stmt: "drop\n  schema if exists shop", want: true},
		{stmt: "USE `shop`", want: true, useName: "shop", isUse: true},
		{stmt: `use "shop"`, want: true, useName: "shop", isUse: true},
		{stmt: "CREATE TABLE databases (id int)", want: false},
		{stmt: "DROP TABLE shop", want: false},
		{stmt: "CREATE INDEX database ON t(id)", want: false},
		{stmt: "SELECT 'USE shop'", want: false},
		{stmt: "", want: false},
	}

	for _, tt := range tests {
		if got := isDatabaseStatement(tt.stmt); got != tt.want {
			t.Errorf("isDatabaseStatement(%q) = %v, want %v", tt.stmt, got, tt.want)
		}
		name, ok := parseUseStatement(tt.stmt)
		if ok != tt.isUse || name != tt.useName {
			t.Errorf("parseUseStatement(%q) = %q, %v, want %q, %v", tt.stmt, name, ok, tt.useName, tt.isUse)
		}
	}
}

func TestImportSchemaIntoTargetSkipsDatabaseStatements(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "schema.sql")
	schema := "CREATE DATABASE IF NOT EXISTS `shop`;\n" +
		"USE `shop`;\n" +
		"/* tables; in dependency order */\n" +
		"CREATE TABLE one (id INTEGER PRIMARY KEY);\n" +
		"DROP DATABASE IF EXISTS `old_shop`;\n" +
		"CREATE TABLE two (id INTEGER PRIMARY KEY, one_id INTEGER REFERENCES one(id));\n"
	if err := os.WriteFile(path, []byte(schema), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		target    string
		skipped   int
		succeeded int
		failed    int
	}{
		{name: "into target", target: "restored", skipped: 3, succeeded: 2},
		// SQLite has no database statements, so replaying them as written fails
		{name: "as written", target: "", succeeded: 2, failed: 3},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dst := newSQLite(t, "restored.db")
			stats, err := dst.ImportSchema(context.Background(), SchemaImportOptions{
				FilePath:       path,
				TargetDatabase: tt.target,
			})
			if err != nil {
				t.Fatalf("ImportSchema: %v", err)
			}
			if stats.Statements != 5 {
				t.Errorf("statements = %d, want 5", stats.Statements)
			}
			if stats.Skipped != tt.skipped || stats.Succeeded != tt.succeeded {
				t.Errorf("skipped %d succeeded %d, want %d/%d", stats.Skipped, stats.Succeeded, tt.skipped, tt.succeeded)
			}
			if len(stats.Failures) != tt.failed {
				t.Errorf("failures = %v, want %d", stats.Failures, tt.failed)
			}
			if stats.Objects[ObjectTable] != 2 {
				t.Errorf("tables = %d, want 2", stats.Objects[ObjectTable])
			}
		})
	}
}

func TestImportSchemaReportsBytes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "schema.sql")
	schema := "CREATE TABLE one (id INTEGER PRIMARY KEY);\n"
	if err := os.WriteFile(path, []byte(schema), 0644); err != nil {
		t.Fatal(err)
	}

	var read, total int64
	dst := newSQLite(t, "restored.db")
	_, err := dst.ImportSchema(context.Background(), SchemaImportOptions{
		FilePath: path,
		OnBytes:  func(r, n int64) { read, total = r, n },
	})
	if err != nil {
		t.Fatalf("ImportSchema: %v", err)
	}
	if total != int64(len(schema)) || read != total {
		t.Errorf("progress = %d/%d, want %d/%d", read, total, len(schema), len(schema))
	}
}
