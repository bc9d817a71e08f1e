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
	"path/filepath"
	"testing"
)

// newSQLite opens a fresh SQLite database file in a temp dir. A file is
// used rather than :memory: because every pooled connection must see the
// same database.
func newSQLite(t *testing.T, name string) *Connection {
	t.Helper()
	c, err := Connect(context.Background(), ConnectionConfig{
		Type:     DatabaseTypeSQLite,
		Database: filepath.Join(t.TempDir(), name),
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func mustExec(t *testing.T, c *Connection, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		if _, err := c.DB.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

// snapshot returns every row of table as strings, ordered by the first column
func snapshot(t *testing.T, c *Connection, table string) [][]string {
	t.Helper()
	rows, err := c.DB.Query("SELECT * FROM " + c.QuoteIdentifier(table) + " ORDER BY 1")
	if err != nil {
		t.Fatalf("snapshot %s: %v", table, err)
	}
	defer rows.Close()

	cols, _ := rows.Columns()
	var out [][]string
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			t.Fatalf("snapshot scan %s: %v", table, err)
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			if v.Valid {
				row[i] = v.String
			} else {
				row[i] = "<null>"
			}
		}
		out = append(out, row)
	}
	return out
}

const shopSchema = `
CREATE TABLE customers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	email TEXT
);
CREATE TABLE orders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_id INTEGER NOT NULL REFERENCES customers(id),
	total REAL,
	qty INTEGER,
	total_x2 REAL GENERATED ALWAYS AS (total * 2) VIRTUAL,
	created_at DATETIME
);
CREATE INDEX idx_orders_customer ON orders(customer_id);
CREATE TABLE employees (
	id INTEGER PRIMARY KEY,
	name TEXT,
	manager_id INTEGER REFERENCES employees(id)
);
CREATE TABLE a (id INTEGER PRIMARY KEY, b_id INTEGER REFERENCES b(id));
CREATE TABLE b (id INTEGER PRIMARY KEY, a_id INTEGER REFERENCES a(id));
CREATE TABLE files (id INTEGER PRIMARY KEY, data BLOB);
CREATE TABLE audit (id INTEGER PRIMARY KEY, note TEXT);
CREATE VIEW big_orders AS SELECT id, total FROM orders WHERE total > 100;
CREATE TRIGGER customers_lower_email AFTER INSERT ON customers
BEGIN
	UPDATE customers SET email = lower(email) WHERE id = NEW.id;
END;
`

var shopTables = []string{"a", "audit", "b", "customers", "employees", "files", "orders"}

// newShop creates the shop schema and seeds it
func newShop(t *testing.T) *Connection {
	t.Helper()
	c := newSQLite(t, "shop.db")
	mustExec(t, c, shopSchema)
	mustExec(t, c,
		`INSERT INTO customers (id, name, email) VALUES (1, 'alice', 'alice@example.com'), (2, 'bob', NULL), (3, 'carol', 'carol@example.com')`,
		`INSERT INTO orders (id, customer_id, total, qty, created_at) VALUES
			(1, 1, 150.5, 2, '2024-05-01 10:00:00'),
			(2, 1, 20.0, 1, '2024-05-02 11:30:00'),
			(3, 3, 99.99, NULL, NULL)`,
		`INSERT INTO employees (id, name, manager_id) VALUES (1, 'boss', NULL), (2, 'mid', 1), (3, 'junior', 2)`,
		`INSERT INTO b (id, a_id) VALUES (1, NULL)`,
		`INSERT INTO a (id, b_id) VALUES (1, 1)`,
		`UPDATE b SET a_id = 1 WHERE id = 1`,
		`INSERT INTO files (id, data) VALUES (1, X'00FF10'), (2, NULL)`,
	)
	return c
}
