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
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/blubskye/nukepave/internal/graph"
)

// ErrNoManifest means a directory has no backup_metadata.json
var ErrNoManifest = errors.New("backup manifest not found")

// TableEntry is one table in the manifest
type TableEntry struct {
	Table    string `json:"table"`
	RowCount int64  `json:"row_count"`
	RowsFile string `json:"rows_file,omitempty"`
}

// Manifest describes a data backup directory
type Manifest struct {
	Database        string       `json:"database"`
	BackupTimestamp string       `json:"backup_timestamp"`
	Tables          []TableEntry `json:"tables"`

	RunID         string   `json:"run_id,omitempty"`
	ServerType    string   `json:"server_type,omitempty"`
	ServerVersion string   `json:"server_version,omitempty"`
	ToolVersion   string   `json:"tool_version,omitempty"`
	Compression   string   `json:"compression,omitempty"`
	Partial       bool     `json:"partial,omitempty"`
	FailedTables  []string `json:"failed_tables,omitempty"`
}

// TableNames returns the manifest tables in recorded order
func (m *Manifest) TableNames() []string {
	names := make([]string, len(m.Tables))
	for i, t := range m.Tables {
		names[i] = t.Table
	}
	return names
}

// Entry looks up a table
func (m *Manifest) Entry(table string) (TableEntry, bool) {
	for _, t := range m.Tables {
		if t.Table == table {
			return t, true
		}
	}
	return TableEntry{}, false
}

// ReadManifest loads backup_metadata.json from dir
func ReadManifest(dir string) (*Manifest, error) {
	var m Manifest
	if err := ReadJSONFile(filepath.Join(dir, ManifestFile), &m); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrNoManifest, dir)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return &m, nil
}

// WriteManifest writes backup_metadata.json; callers write it last
func WriteManifest(dir string, m *Manifest) error {
	if m.Tables == nil {
		m.Tables = []TableEntry{}
	}
	return WriteJSONFile(filepath.Join(dir, ManifestFile), m)
}

// ReadDependencies loads the edge list. found is false when the file is
// absent; a null file yields no edges.
func ReadDependencies(dir string) (edges []graph.Edge, found bool, err error) {
	err = ReadJSONFile(filepath.Join(dir, DependenciesFile), &edges)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, fmt.Errorf("failed to read dependencies: %w", err)
	}
	return edges, true, nil
}

// WriteDependencies writes the edge list, or null when there are none
func WriteDependencies(dir string, edges []graph.Edge) error {
	if len(edges) == 0 {
		edges = nil
	}
	return WriteJSONFile(filepath.Join(dir, DependenciesFile), edges)
}

// ReadOrder loads a cached restoration order. found is false when absent.
func ReadOrder(dir string) (order *graph.Order, found bool, err error) {
	var o graph.Order
	err = ReadJSONFile(filepath.Join(dir, OrderFile), &o)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, fmt.Errorf("failed to read cached order: %w", err)
	}
	return &o, true, nil
}

// WriteOrder caches a restoration order
func WriteOrder(dir string, order graph.Order) error {
	return WriteJSONFile(filepath.Join(dir, OrderFile), order)
}

// ReadJSONFile decodes a JSON file into v
func ReadJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON in %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteJSONFile writes v as indented JSON via a temp file and rename
func WriteJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
