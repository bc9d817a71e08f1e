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

package archive

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/blubskye/nukepave/internal/buffer"
	"github.com/blubskye/nukepave/internal/graph"
)

func TestParseArtifactName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		isDir   bool
		wantOK  bool
		kind    Kind
		db      string
		tsValue string
	}{
		{"schema_backup_shop_20250102_030405.sql", false, true, KindSchema, "shop", "20250102_030405"},
		{"schema_backup_my_app_20250102_030405.sql.gz", false, true, KindSchema, "my_app", "20250102_030405"},
		{"schema_backup_shop_20250102_030405.sql.zst", false, true, KindSchema, "shop", "20250102_030405"},
		{"data_backup_shop_20241231_235959", true, true, KindData, "shop", "20241231_235959"},
		{"data_backup_shop_20241231_235959", false, false, "", "", ""},
		{"schema_backup_shop_20250102_030405.txt", false, false, "", "", ""},
		{"schema_backup_shop_2025.sql", false, false, "", "", ""},
		{"notes.txt", false, false, "", "", ""},
		{"data_backup_shop_20241399_000000", true, false, "", "", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, err := ParseArtifactName(tt.name, tt.isDir)
			if !tt.wantOK {
				if err == nil {
					t.Fatalf("expected %q to be rejected, got %+v", tt.name, a)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseArtifactName(%q) error: %v", tt.name, err)
			}
			if a.Kind != tt.kind || a.Database != tt.db {
				t.Errorf("got kind=%s db=%s, want kind=%s db=%s", a.Kind, a.Database, tt.kind, tt.db)
			}
			if got := a.Timestamp.Format(TimestampLayout); got != tt.tsValue {
				t.Errorf("timestamp = %s, want %s", got, tt.tsValue)
			}
		})
	}
}

func TestArtifactNamesRoundTrip(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local)
	a, err := ParseArtifactName(SchemaFileName("inventory_db", ts, buffer.CompressionXZ), false)
	if err != nil {
		t.Fatalf("schema name did not parse: %v", err)
	}
	if a.Database != "inventory_db" || !a.Timestamp.Equal(ts) {
		t.Errorf("schema round trip got %+v", a)
	}

	a, err = ParseArtifactName(DataDirName("inventory_db", ts), true)
	if err != nil {
		t.Fatalf("data name did not parse: %v", err)
	}
	if a.Kind != KindData || !a.Timestamp.Equal(ts) {
		t.Errorf("data round trip got %+v", a)
	}
}

func writeRows(t *testing.T, path string, c buffer.CompressionType, rows [][]interface{}) {
	t.Helper()
	w, err := CreateRowWriter(path, c)
	if err != nil {
		t.Fatalf("CreateRowWriter: %v", err)
	}
	for _, r := range rows {
		if err := w.WriteRow([]string{"id", "name", "note"}, r); err != nil {
			t.Fatalf("WriteRow: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func readAll(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	r, err := OpenRowReader(path)
	if err != nil {
		t.Fatalf("OpenRowReader: %v", err)
	}
	defer r.Close()

	var out []map[string]interface{}
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, row)
	}
}

func TestRowsRoundTrip(t *testing.T) {
	t.Parallel()

	rows := [][]interface{}{
		{1, "alice", nil},
		{2, "bob \"the\" builder", "line1\nline2"},
		{9007199254740993, "big", ""},
	}

	for _, c := range []buffer.CompressionType{
		buffer.CompressionNone, buffer.CompressionGzip, buffer.CompressionXZ, buffer.CompressionZstd,
	} {
		c := c
		t.Run("compression="+string(c), func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			path := filepath.Join(dir, RowsFileName("people", c))
			writeRows(t, path, c, rows)

			found, err := FindRowsFile(dir, "people")
			if err != nil || found != path {
				t.Fatalf("FindRowsFile = %q, %v; want %q", found, err, path)
			}

			got := readAll(t, path)
			if len(got) != len(rows) {
				t.Fatalf("read %d rows, want %d", len(got), len(rows))
			}
			if got[0]["note"] != nil {
				t.Errorf("null column decoded as %v", got[0]["note"])
			}
			if got[1]["name"] != "bob \"the\" builder" {
				t.Errorf("name = %v", got[1]["name"])
			}
			// large integers survive as json.Number
			if n, ok := got[2]["id"].(json.Number); !ok || n.String() != "9007199254740993" {
				t.Errorf("id = %#v", got[2]["id"])
			}
		})
	}
}

func TestRowsKeepColumnOrder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "t.json")
	w, err := CreateRowWriter(path, buffer.CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRow([]string{"z", "a", "m"}, []interface{}{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	w.Close()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `{"z":1,"a":2,"m":3}`) {
		t.Errorf("unexpected encoding: %s", data)
	}
}

func TestEmptyRowsFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "empty.json")
	writeRows(t, path, buffer.CompressionNone, nil)

	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("empty table encoded as %q", data)
	}
	if rows := readAll(t, path); len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}

	zero := filepath.Join(dir, "zero.json")
	os.WriteFile(zero, nil, 0644)
	if rows := readAll(t, zero); len(rows) != 0 {
		t.Errorf("zero byte file gave %d rows", len(rows))
	}
}

func TestMalformedElementIsRecoverable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`[{"id":1}, 42, {"id":3}, "x", {"id":5}]`), 0644)

	r, err := OpenRowReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var good, bad []int
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var de *RowDecodeError
		if errors.As(err, &de) {
			bad = append(bad, de.Index)
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		n, _ := row["id"].(json.Number).Int64()
		good = append(good, int(n))
	}

	if len(good) != 3 || good[2] != 5 {
		t.Errorf("good rows = %v", good)
	}
	if len(bad) != 2 || bad[0] != 1 || bad[1] != 3 {
		t.Errorf("bad indexes = %v", bad)
	}
}

func TestNotAnArray(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "obj.json")
	os.WriteFile(path, []byte(`{"id":1}`), 0644)
	if _, err := OpenRowReader(path); err == nil {
		t.Fatal("expected an error for a non-array rows file")
	}
}

func TestManifestAndDependencies(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := ReadManifest(dir); !errors.Is(err, ErrNoManifest) {
		t.Fatalf("missing manifest error = %v", err)
	}

	m := &Manifest{
		Database:        "shop",
		BackupTimestamp: "20250101_000000",
		Tables:          []TableEntry{{Table: "customers", RowCount: 2}, {Table: "orders", RowCount: 0}},
	}
	if err := WriteManifest(dir, m); err != nil {
		t.Fatal(err)
	}
	got, err := ReadManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.Database != "shop" || len(got.Tables) != 2 {
		t.Errorf("manifest = %+v", got)
	}
	if e, ok := got.Entry("orders"); !ok || e.RowCount != 0 {
		t.Errorf("Entry(orders) = %+v, %v", e, ok)
	}

	if _, found, err := ReadDependencies(dir); found || err != nil {
		t.Errorf("absent dependencies: found=%v err=%v", found, err)
	}
	if err := WriteDependencies(dir, nil); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, DependenciesFile))
	if strings.TrimSpace(string(data)) != "null" {
		t.Errorf("empty dependencies written as %q", data)
	}
	edges, found, err := ReadDependencies(dir)
	if !found || err != nil || len(edges) != 0 {
		t.Errorf("null dependencies: %v %v %v", edges, found, err)
	}

	want := []graph.Edge{{Table: "orders", ReferencedTable: "customers"}}
	WriteDependencies(dir, want)
	edges, _, _ = ReadDependencies(dir)
	if len(edges) != 1 || edges[0] != want[0] {
		t.Errorf("edges = %v", edges)
	}

	order := graph.Order{Tables: []string{"customers", "orders"}}
	if err := WriteOrder(dir, order); err != nil {
		t.Fatal(err)
	}
	cached, found, err := ReadOrder(dir)
	if !found || err != nil || len(cached.Tables) != 2 || cached.Tables[0] != "customers" {
		t.Errorf("cached order = %+v %v %v", cached, found, err)
	}
}
