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
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/blubskye/nukepave/internal/logging"
)

// DefaultRetryTimeout bounds how long Connect keeps retrying the initial ping
const DefaultRetryTimeout = 15 * time.Second

// queryTimeout bounds each catalog query
var queryTimeout = 10 * time.Second

// Connection holds the database connection and configuration
type Connection struct {
	DB     *sql.DB
	Driver Driver
	Config ConnectionConfig
}

// ConnectionConfig holds the connection parameters
type ConnectionConfig struct {
	Type         DatabaseType
	Host         string
	Port         int
	User         string
	Password     string
	Database     string // database name, or the file path for SQLite
	Socket       string // Unix socket path (optional)
	RetryTimeout time.Duration
}

// queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Connect opens a pool for cfg and pings it, retrying transient failures
// with exponential backoff until cfg.RetryTimeout elapses.
func Connect(ctx context.Context, cfg ConnectionConfig) (*Connection, error) {
	cfg.Type = NormalizeDatabaseType(string(cfg.Type))
	driver, err := GetDriver(cfg.Type)
	if err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = driver.DefaultPort()
	}
	if cfg.Type == DatabaseTypeSQLite && cfg.Database == "" {
		return nil, fmt.Errorf("%w: sqlite needs a database file", ErrNoConnectionParams)
	}

	db, err := open(ctx, driver, cfg)
	if err != nil {
		return nil, err
	}

	return &Connection{
		DB:     db,
		Driver: driver,
		Config: cfg,
	}, nil
}

func open(ctx context.Context, driver Driver, cfg ConnectionConfig) (*sql.DB, error) {
	dsn := driver.DSN(cfg)
	if cfg.Type == DatabaseTypeSQLite {
		dsn += "&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open(driver.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = cfg.RetryTimeout
	if b.MaxElapsedTime == 0 {
		b.MaxElapsedTime = DefaultRetryTimeout
	}

	attempt := 0
	ping := func() error {
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		logging.Debug("Ping attempt %d failed: %v", attempt, err)
		return err
	}

	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// isPermanent reports errors a retry cannot fix, such as bad credentials
func isPermanent(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		// access denied, unknown database
		return me.Number == 1044 || me.Number == 1045 || me.Number == 1049
	}
	msg := err.Error()
	return strings.Contains(msg, "password authentication failed") ||
		strings.Contains(msg, "does not exist")
}

// Close closes the database connection
func (c *Connection) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// SwitchDatabase reopens the pool against another database so every pooled
// connection sees it.
func (c *Connection) SwitchDatabase(ctx context.Context, name string) error {
	if name == c.Config.Database {
		return nil
	}
	cfg := c.Config
	cfg.Database = name

	db, err := open(ctx, c.Driver, cfg)
	if err != nil {
		return fmt.Errorf("failed to use database %s: %w", name, err)
	}
	c.DB.Close()
	c.DB = db
	c.Config = cfg
	return nil
}

// DatabaseName returns the logical name of the connected database
func (c *Connection) DatabaseName() string {
	if c.Driver.Type() == DatabaseTypeSQLite {
		base := filepath.Base(c.Config.Database)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return c.Config.Database
}

// ServerVersion returns the server version string
func (c *Connection) ServerVersion(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var version string
	if err := c.DB.QueryRowContext(ctx, c.Driver.ServerVersionQuery()).Scan(&version); err != nil {
		return "", fmt.Errorf("failed to read server version: %w", err)
	}
	return version, nil
}

// QuoteIdentifier quotes an identifier for the connected dialect
func (c *Connection) QuoteIdentifier(name string) string {
	return c.Driver.QuoteIdentifier(name)
}
