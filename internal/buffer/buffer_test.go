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

package buffer

import (
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func readAll(t *testing.T, sr *SQLStatementReader) []string {
	t.Helper()

	var out []string
	for {
		stmt, _, err := sr.ReadStatement()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("ReadStatement() error = %v", err)
		}
		out = append(out, stmt)
	}
}

func TestSQLStatementReader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		script   string
		postgres bool
		want     []string
	}{
		{
			name: "comments and multi-line statements",
			script: `-- header comment
# hash comment

CREATE TABLE employee (
  empid INT PRIMARY KEY,
  -- inline comment line
  mgr_empid INT
);
DROP TABLE IF EXISTS time;
`,
			want: []string{
				"CREATE TABLE employee (\n  empid INT PRIMARY KEY,\n  mgr_empid INT\n)",
				"DROP TABLE IF EXISTS time",
			},
		},
		{
			name: "delimiter inside quoted string",
			script: `INSERT INTO notes VALUES ('a;b', "c;d", 'it''s;');
SELECT 1;`,
			want: []string{
				`INSERT INTO notes VALUES ('a;b', "c;d", 'it''s;')`,
				"SELECT 1",
			},
		},
		{
			name:   "several statements on one line",
			script: "SET a = 1; SET b = 2;SET c = 3;\n",
			want:   []string{"SET a = 1", "SET b = 2", "SET c = 3"},
		},
		{
			name: "delimiter change around trigger body",
			script: `DELIMITER //
CREATE TRIGGER trg BEFORE INSERT ON time FOR EACH ROW
BEGIN
  SET NEW.hours = 0;
  SET NEW.note = 'x';
END//
DELIMITER ;
SELECT 2;
`,
			want: []string{
				"CREATE TRIGGER trg BEFORE INSERT ON time FOR EACH ROW\nBEGIN\n  SET NEW.hours = 0;\n  SET NEW.note = 'x';\nEND",
				"SELECT 2",
			},
		},
		{
			name:     "dollar quoted function body",
			postgres: true,
			script:   "CREATE FUNCTION f() RETURNS int AS $fn$\nBEGIN\n  RETURN 1; -- it's fine\nEND;\n$fn$ LANGUAGE plpgsql;\nSELECT 3;\n",
			want: []string{
				"CREATE FUNCTION f() RETURNS int AS $fn$\nBEGIN\n  RETURN 1; -- it's fine\nEND;\n$fn$ LANGUAGE plpgsql",
				"SELECT 3",
			},
		},
		{
			name:     "backslash does not escape in postgres strings",
			postgres: true,
			script:   "CREATE TABLE t (p text DEFAULT 'C:\\');\nCREATE TABLE u (id int);\n",
			want: []string{
				"CREATE TABLE t (p text DEFAULT 'C:\\')",
				"CREATE TABLE u (id int)",
			},
		},
		{
			name:     "backslash escapes inside postgres E strings",
			postgres: true,
			script:   "SELECT E'a\\';b';\nSELECT 'x\\';\n",
			want:     []string{"SELECT E'a\\';b'", "SELECT 'x\\'"},
		},
		{
			name:   "backslash escapes in mysql strings",
			script: "INSERT INTO t VALUES ('it\\'s;');\nSELECT 1;\n",
			want:   []string{"INSERT INTO t VALUES ('it\\'s;')", "SELECT 1"},
		},
		{
			name:   "delimiter inside block comment",
			script: "/* note; more */\nCREATE TABLE u (id int);\n",
			want:   []string{"CREATE TABLE u (id int)"},
		},
		{
			name:   "multi-line block comment",
			script: "/*\n * header; with delimiters;\n */\nSELECT 1 /* inline; */ + 1;\nSELECT 2;\n",
			want:   []string{"SELECT 1   + 1", "SELECT 2"},
		},
		{
			name:   "executable comments are kept",
			script: "/*!40101 SET @OLD_CHARACTER_SET_CLIENT=@@CHARACTER_SET_CLIENT */;\nSELECT 1;\n",
			want:   []string{"/*!40101 SET @OLD_CHARACTER_SET_CLIENT=@@CHARACTER_SET_CLIENT */", "SELECT 1"},
		},
		{
			name:   "trailing statement without delimiter",
			script: "SELECT 1;\nSELECT 2",
			want:   []string{"SELECT 1", "SELECT 2"},
		},
		{
			name:   "empty statements are dropped",
			script: ";;\n  ;\nSELECT 4;",
			want:   []string{"SELECT 4"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sr := NewSQLStatementReaderFrom(strings.NewReader(tt.script))
			sr.EnablePostgresQuoting(tt.postgres)
			got := readAll(t, sr)

			if len(got) != len(tt.want) {
				t.Fatalf("got %d statements %q, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("statement %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSQLStatementReaderDelimiterReverts(t *testing.T) {
	t.Parallel()

	sr := NewSQLStatementReaderFrom(strings.NewReader("DELIMITER $$\nSELECT 1$$\nDELIMITER ;\nSELECT 2;\n"))
	readAll(t, sr)

	if got := sr.Delimiter(); got != DefaultDelimiter {
		t.Errorf("Delimiter() = %q, want %q", got, DefaultDelimiter)
	}
}

func TestSQLStatementReaderStartLine(t *testing.T) {
	t.Parallel()

	sr := NewSQLStatementReaderFrom(strings.NewReader("-- c\n\nSELECT\n 1;\nSELECT 2;\n"))

	_, line, err := sr.ReadStatement()
	if err != nil {
		t.Fatalf("ReadStatement() error = %v", err)
	}
	if line != 3 {
		t.Errorf("first statement line = %d, want 3", line)
	}

	_, line, err = sr.ReadStatement()
	if err != nil {
		t.Fatalf("ReadStatement() error = %v", err)
	}
	if line != 5 {
		t.Errorf("second statement line = %d, want 5", line)
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	t.Parallel()

	for _, c := range []CompressionType{CompressionNone, CompressionGzip, CompressionXZ, CompressionZstd} {
		c := c
		t.Run(string(c)+"_roundtrip", func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "schema.sql"+c.Extension())
			w, err := NewBufferedWriter(path, DetectCompression(path), 0)
			if err != nil {
				t.Fatalf("NewBufferedWriter() error = %v", err)
			}
			script := "SELECT 1;\nSELECT 2;\n"
			if _, err := w.WriteString(script); err != nil {
				t.Fatalf("WriteString() error = %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			if w.Written() != int64(len(script)) {
				t.Errorf("Written() = %d, want %d", w.Written(), len(script))
			}

			var read, total int64
			sr, err := NewSQLStatementReader(path, func(r, n int64) { read, total = r, n })
			if err != nil {
				t.Fatalf("NewSQLStatementReader() error = %v", err)
			}
			defer sr.Close()

			got := readAll(t, sr)
			if len(got) != 2 || got[0] != "SELECT 1" || got[1] != "SELECT 2" {
				t.Errorf("statements = %q", got)
			}

			size, err := GetFileSize(path)
			if err != nil {
				t.Fatal(err)
			}
			if total != size || read != size {
				t.Errorf("progress = %d/%d, want %d/%d", read, total, size, size)
			}
		})
	}
}

func TestRecommendedBufferSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		size int64
		want int
	}{
		{0, SmallBufferSize},
		{512 * 1024, SmallBufferSize},
		{10 * 1024 * 1024, DefaultBufferSize},
		{200 * 1024 * 1024, LargeBufferSize},
	}
	for _, tt := range tests {
		if got := RecommendedBufferSize(tt.size); got != tt.want {
			t.Errorf("RecommendedBufferSize(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestParseCompression(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    CompressionType
		wantErr bool
	}{
		{"", CompressionNone, false},
		{"gz", CompressionGzip, false},
		{"XZ", CompressionXZ, false},
		{"zst", CompressionZstd, false},
		{"bzip2", CompressionNone, true},
	}

	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCompression(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCompression(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := TrimExtension("data.json.zst"); got != "data.json" {
		t.Errorf("TrimExtension() = %q", got)
	}
}
