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
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/blubskye/nukepave/internal/archive"
	"github.com/blubskye/nukepave/internal/graph"
)

func newMockMariaDB(t *testing.T) (*Connection, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	return &Connection{
		DB:     mockDB,
		Driver: &MariaDBDriver{},
		Config: ConnectionConfig{Type: DatabaseTypeMariaDB, Database: "shop"},
	}, mock
}

var columnHeader = []string{"COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_KEY",
	"COLUMN_DEFAULT", "EXTRA", "generated", "auto_inc", "identity"}

func TestMariaDBRestoreStatements(t *testing.T) {
	t.Parallel()
	c, mock := newMockMariaDB(t)

	dir := writeBackup(t, map[string][]map[string]interface{}{
		"items": {
			{"id": 1, "name": "a"},
			{"id": 7, "name": "b"},
		},
	}, nil, []graph.Edge{})

	mock.ExpectExec(regexp.QuoteMeta("SET FOREIGN_KEY_CHECKS = 0")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.TABLES")).
		WithArgs("items").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.COLUMNS")).
		WithArgs("items").
		WillReturnRows(sqlmock.NewRows(columnHeader).
			AddRow("id", "int", "int(11)", "NO", "PRI", nil, "auto_increment", 0, 1, 0).
			AddRow("name", "varchar", "varchar(50)", "YES", "", nil, "", 0, 0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `items`")).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `items` (`id`, `name`) VALUES (?, ?), (?, ?)")).
		WithArgs(int64(1), "a", int64(7), "b").
		WillReturnResult(sqlmock.NewResult(7, 2))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(`id`) FROM `items`")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE `items` AUTO_INCREMENT = 8")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SET FOREIGN_KEY_CHECKS = 1")).WillReturnResult(sqlmock.NewResult(0, 0))

	res, err := c.RestoreData(context.Background(), RestoreOptions{DataDir: dir})
	if err != nil {
		t.Fatalf("RestoreData: %v", err)
	}
	tr := tableResult(t, res, "items")
	if tr.Status != StatusRestored || tr.Inserted != 2 {
		t.Errorf("status %s inserted %d", tr.Status, tr.Inserted)
	}
	if tr.AutoIncrementReset != 8 {
		t.Errorf("AutoIncrementReset = %d, want 8", tr.AutoIncrementReset)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMariaDBForeignKeysReenabledAfterFailure(t *testing.T) {
	t.Parallel()
	c, mock := newMockMariaDB(t)

	dir := writeBackup(t, map[string][]map[string]interface{}{
		"items": {{"id": 1}},
	}, nil, nil)

	mock.ExpectExec(regexp.QuoteMeta("SET FOREIGN_KEY_CHECKS = 0")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.TABLES")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectExec(regexp.QuoteMeta("SET FOREIGN_KEY_CHECKS = 1")).WillReturnResult(sqlmock.NewResult(0, 0))

	res, err := c.RestoreData(context.Background(), RestoreOptions{DataDir: dir})
	if err != nil {
		t.Fatalf("RestoreData: %v", err)
	}
	if tr := tableResult(t, res, "items"); tr.Status != StatusFailed {
		t.Errorf("status = %s, want failed", tr.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMariaDBForeignKeysReenabledAfterCancel(t *testing.T) {
	t.Parallel()
	c, mock := newMockMariaDB(t)

	dir := writeBackup(t, map[string][]map[string]interface{}{
		"items": {{"id": 1}},
	}, nil, nil)

	mock.ExpectExec(regexp.QuoteMeta("SET FOREIGN_KEY_CHECKS = 0")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.TABLES")).
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("SET FOREIGN_KEY_CHECKS = 1")).WillReturnResult(sqlmock.NewResult(0, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.RestoreData(ctx, RestoreOptions{DataDir: dir})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMariaDBBatchFallback(t *testing.T) {
	t.Parallel()
	c, mock := newMockMariaDB(t)

	cols := []ColumnDescriptor{{Name: "id", DataType: "int"}, {Name: "name", DataType: "varchar"}}
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `items` (`id`, `name`) VALUES (?, ?), (?, ?), (?, ?)")).
		WillReturnError(errors.New("Duplicate entry"))
	mock.ExpectRollback()
	single := regexp.QuoteMeta("INSERT INTO `items` (`id`, `name`) VALUES (?, ?)")
	mock.ExpectExec(single).WithArgs(int64(1), "a").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(single).WithArgs(int64(1), "dup").WillReturnError(errors.New("Duplicate entry"))
	mock.ExpectExec(single).WithArgs(int64(2), "b").WillReturnResult(sqlmock.NewResult(2, 1))

	ctx := context.Background()
	conn, err := c.DB.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	loader := c.newBatchLoader(conn, "items", cols, 10)
	loader.add(0, []interface{}{int64(1), "a"})
	loader.add(1, []interface{}{int64(1), "dup"})
	loader.add(2, []interface{}{int64(2), "b"})

	inserted, rowErrs := loader.flush(ctx)
	if inserted != 2 {
		t.Errorf("inserted = %d, want 2", inserted)
	}
	if len(rowErrs) != 1 || rowErrs[0].Index != 1 {
		t.Errorf("row errors = %v, want one at index 1", rowErrs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestBatchSizeCappedByPlaceholders(t *testing.T) {
	t.Parallel()

	c := &Connection{Driver: &SQLiteDriver{}}
	cols := make([]ColumnDescriptor, 100)
	for i := range cols {
		cols[i] = ColumnDescriptor{Name: "c" + string(rune('a'+i%26)), DataType: "text"}
	}
	loader := c.newBatchLoader(nil, "wide", cols, DefaultBatchSize)
	if loader.size != 327 {
		t.Errorf("batch size = %d, want 327", loader.size)
	}
}

func TestPostgresInsertStatement(t *testing.T) {
	t.Parallel()

	c := &Connection{Driver: &PostgresDriver{}}
	cols := []ColumnDescriptor{{Name: "id", DataType: "integer", Identity: true}, {Name: "name", DataType: "text"}}
	loader := c.newBatchLoader(nil, "items", cols, 10)

	want := `INSERT INTO "items" ("id", "name") OVERRIDING SYSTEM VALUE VALUES ($1, $2), ($3, $4)`
	if got := loader.insertStatement(2); got != want {
		t.Errorf("insertStatement =\n%s\nwant\n%s", got, want)
	}
}

func TestDriverRestoreStatements(t *testing.T) {
	t.Parallel()

	tests := []struct {
		driver  Driver
		disable string
		enable  string
		reset   string
	}{
		{&MariaDBDriver{}, "SET FOREIGN_KEY_CHECKS = 0", "SET FOREIGN_KEY_CHECKS = 1",
			"ALTER TABLE `t` AUTO_INCREMENT = 42"},
		{&PostgresDriver{}, "SET session_replication_role = replica", "SET session_replication_role = DEFAULT",
			`SELECT setval(pg_get_serial_sequence('"t"', 'id'), 42, false)`},
		{&SQLiteDriver{}, "PRAGMA foreign_keys = OFF", "PRAGMA foreign_keys = ON",
			"UPDATE sqlite_sequence SET seq = 41 WHERE name = 't'"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.driver.Type()), func(t *testing.T) {
			t.Parallel()
			if got := tt.driver.DisableForeignKeysSQL(); got != tt.disable {
				t.Errorf("disable = %q, want %q", got, tt.disable)
			}
			if got := tt.driver.EnableForeignKeysSQL(); got != tt.enable {
				t.Errorf("enable = %q, want %q", got, tt.enable)
			}
			if got := tt.driver.ResetAutoIncrementQuery("t", "id", 42); got != tt.reset {
				t.Errorf("reset = %q, want %q", got, tt.reset)
			}
		})
	}
}

func TestManifestMissingIsReported(t *testing.T) {
	t.Parallel()
	c, mock := newMockMariaDB(t)

	_, err := c.RestoreData(context.Background(), RestoreOptions{DataDir: t.TempDir()})
	if !errors.Is(err, archive.ErrNoManifest) {
		t.Fatalf("err = %v, want ErrNoManifest", err)
	}
	// nothing touched the database
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
