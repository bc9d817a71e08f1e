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
	"errors"
	"fmt"

	"github.com/blubskye/nukepave/internal/archive"
)

var (
	// ErrManifestNotFound means the data directory has no backup_metadata.json
	ErrManifestNotFound = archive.ErrNoManifest
	// ErrBackupNotFound means no schema file or data directory could be located
	ErrBackupNotFound = errors.New("no backup found")
	// ErrNoConnectionParams means there is not enough to connect with
	ErrNoConnectionParams = errors.New("missing connection parameters")
	// ErrTableNotFound means a table named in the backup does not exist in the target
	ErrTableNotFound = errors.New("table does not exist in target database")
	// ErrRowsFileMissing means a manifest table has no rows file
	ErrRowsFileMissing = errors.New("rows file missing")
)

// truncateSQL shortens a statement for log output
func truncateSQL(sql string) string {
	if len(sql) > 200 {
		return sql[:200] + "..."
	}
	return sql
}

// FormatSize formats bytes into human-readable size
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
