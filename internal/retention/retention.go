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

// Package retention prunes old schema files and data backup directories,
// keeping the newest few of each kind.
package retention

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/blubskye/nukepave/internal/archive"
	"github.com/blubskye/nukepave/internal/logging"
)

// DefaultKeep is the number of backups of each kind kept by default
const DefaultKeep = 3

// ErrInvalidKeep is returned for a keep count below one
var ErrInvalidKeep = errors.New("keep must be at least 1")

// Entry is one backup artifact found in the directory
type Entry struct {
	archive.Artifact
	Name  string
	Path  string
	IsDir bool
	Size  int64
	// ModTime orders entries; the timestamp in the name is informational
	ModTime int64
}

// Policy controls a sweep
type Policy struct {
	Keep   int
	DryRun bool
}

// SweepFailure is an entry that could not be deleted
type SweepFailure struct {
	Entry Entry
	Err   error
}

func (f SweepFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Entry.Name, f.Err)
}

// Report is the outcome of a sweep
type Report struct {
	DryRun     bool
	Kept       []Entry
	Deleted    []Entry // would be deleted, on a dry run
	Failed     []SweepFailure
	FreedBytes int64
}

// Err aggregates the failed deletions
func (r *Report) Err() error {
	var result *multierror.Error
	for _, f := range r.Failed {
		result = multierror.Append(result, f)
	}
	return result.ErrorOrNil()
}

// Scan lists the backup artifacts directly inside dir
func Scan(dir string) ([]Entry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var entries []Entry
	for _, item := range items {
		artifact, err := archive.ParseArtifactName(item.Name(), item.IsDir())
		if err != nil {
			continue
		}
		info, err := item.Info()
		if err != nil {
			logging.Warn("Skipping %s: %v", item.Name(), err)
			continue
		}

		path := filepath.Join(dir, item.Name())
		size := info.Size()
		if item.IsDir() {
			size = dirSize(path)
		}
		entries = append(entries, Entry{
			Artifact: artifact,
			Name:     item.Name(),
			Path:     path,
			IsDir:    item.IsDir(),
			Size:     size,
			ModTime:  info.ModTime().UnixNano(),
		})
	}
	return entries, nil
}

// newestFirst sorts by modification time, then by name, newest first
func newestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ModTime != entries[j].ModTime {
			return entries[i].ModTime > entries[j].ModTime
		}
		return entries[i].Name > entries[j].Name
	})
}

// Sweep keeps the newest p.Keep entries of each kind and deletes the rest.
// One failed deletion does not stop the sweep.
func Sweep(dir string, p Policy) (*Report, error) {
	if p.Keep < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidKeep, p.Keep)
	}

	entries, err := Scan(dir)
	if err != nil {
		return nil, err
	}

	byKind := map[archive.Kind][]Entry{}
	for _, e := range entries {
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}

	report := &Report{DryRun: p.DryRun}
	for _, kind := range []archive.Kind{archive.KindSchema, archive.KindData} {
		group := byKind[kind]
		newestFirst(group)

		for i, e := range group {
			if i < p.Keep {
				report.Kept = append(report.Kept, e)
				continue
			}

			if p.DryRun {
				logging.Info("Would delete %s backup %s (%d bytes)", kind, e.Name, e.Size)
				report.Deleted = append(report.Deleted, e)
				report.FreedBytes += e.Size
				continue
			}

			if err := removeWithRetry(e.Path); err != nil {
				logging.Error("Failed to delete %s: %v", e.Name, err)
				report.Failed = append(report.Failed, SweepFailure{Entry: e, Err: err})
				continue
			}
			logging.Info("Deleted %s backup %s", kind, e.Name)
			report.Deleted = append(report.Deleted, e)
			report.FreedBytes += e.Size
		}
	}
	return report, nil
}

// Latest returns the newest schema file and data directory, either of
// which may be nil
func Latest(dir string) (schema, data *Entry, err error) {
	entries, err := Scan(dir)
	if err != nil {
		return nil, nil, err
	}
	newestFirst(entries)
	for i := range entries {
		e := entries[i]
		switch {
		case e.Kind == archive.KindSchema && schema == nil:
			schema = &e
		case e.Kind == archive.KindData && data == nil:
			data = &e
		}
	}
	return schema, data, nil
}

// removeWithRetry deletes path. If that fails it clears read-only bits on
// everything under it and tries once more.
func removeWithRetry(path string) error {
	err := os.RemoveAll(path)
	if err == nil {
		return nil
	}
	logging.Debug("Removing %s failed (%v); clearing read-only bits and retrying", path, err)

	filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		mode := os.FileMode(0600)
		if d.IsDir() {
			mode = 0700
		}
		os.Chmod(p, mode)
		return nil
	})

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", filepath.Base(path), err)
	}
	return nil
}

// dirSize sums the sizes of the regular files under path
func dirSize(path string) int64 {
	var total int64
	filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}
