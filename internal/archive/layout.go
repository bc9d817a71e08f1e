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

// Package archive defines the on-disk layout of schema files and data
// backup directories, and reads and writes their JSON artifacts.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blubskye/nukepave/internal/buffer"
)

const (
	// ManifestFile lists the database, timestamp and per-table row counts
	ManifestFile = "backup_metadata.json"
	// DependenciesFile holds the foreign key edge list
	DependenciesFile = "table_dependencies.json"
	// OrderFile caches a computed restoration order
	OrderFile = "table_order.json"

	// TimestampLayout is used in artifact names and the manifest
	TimestampLayout = "20060102_150405"

	SchemaPrefix = "schema_backup_"
	DataPrefix   = "data_backup_"
)

// Kind separates schema files from data directories
type Kind string

const (
	KindSchema Kind = "schema"
	KindData   Kind = "data"
)

// ColumnsFileName returns the column metadata file name for a table
func ColumnsFileName(table string) string {
	return table + "_columns.json"
}

// RowsFileName returns the row array file name for a table
func RowsFileName(table string, compression buffer.CompressionType) string {
	return table + ".json" + compression.Extension()
}

// FindRowsFile locates the rows file for a table in any supported compression
func FindRowsFile(dir, table string) (string, error) {
	for _, c := range []buffer.CompressionType{
		buffer.CompressionNone, buffer.CompressionGzip, buffer.CompressionZstd, buffer.CompressionXZ,
	} {
		path := filepath.Join(dir, RowsFileName(table, c))
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no rows file for table %s in %s: %w", table, dir, os.ErrNotExist)
}

// DataDirName returns data_backup_<db>_<YYYYMMDD_HHMMSS>
func DataDirName(database string, ts time.Time) string {
	return DataPrefix + database + "_" + ts.Format(TimestampLayout)
}

// SchemaFileName returns schema_backup_<db>_<YYYYMMDD_HHMMSS>.sql plus any compression suffix
func SchemaFileName(database string, ts time.Time, compression buffer.CompressionType) string {
	return SchemaPrefix + database + "_" + ts.Format(TimestampLayout) + ".sql" + compression.Extension()
}

// Artifact is a parsed schema file or data directory name
type Artifact struct {
	Kind      Kind
	Database  string
	Timestamp time.Time
}

var errNotArtifact = errors.New("not a backup artifact name")

// ParseArtifactName parses a schema file or data directory name.
// isDir selects which kind the name may be.
func ParseArtifactName(name string, isDir bool) (Artifact, error) {
	var kind Kind
	var rest string

	switch {
	case isDir && strings.HasPrefix(name, DataPrefix):
		kind = KindData
		rest = strings.TrimPrefix(name, DataPrefix)
	case !isDir && strings.HasPrefix(name, SchemaPrefix):
		kind = KindSchema
		rest = buffer.TrimExtension(strings.TrimPrefix(name, SchemaPrefix))
		if !strings.HasSuffix(rest, ".sql") {
			return Artifact{}, errNotArtifact
		}
		rest = strings.TrimSuffix(rest, ".sql")
	default:
		return Artifact{}, errNotArtifact
	}

	// <db>_YYYYMMDD_HHMMSS; the database name may itself contain underscores
	if len(rest) < len(TimestampLayout)+2 || rest[len(rest)-len(TimestampLayout)-1] != '_' {
		return Artifact{}, errNotArtifact
	}
	tsPart := rest[len(rest)-len(TimestampLayout):]
	ts, err := time.ParseInLocation(TimestampLayout, tsPart, time.Local)
	if err != nil {
		return Artifact{}, errNotArtifact
	}

	return Artifact{
		Kind:      kind,
		Database:  rest[:len(rest)-len(TimestampLayout)-1],
		Timestamp: ts,
	}, nil
}
