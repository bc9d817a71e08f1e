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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/blubskye/nukepave/internal/buffer"
)

// RowWriter streams row objects into a JSON array file. Keys keep the
// column order they are given in.
type RowWriter struct {
	path  string
	w     *buffer.BufferedWriter
	count int64
}

// CreateRowWriter opens path and writes the array opening bracket
func CreateRowWriter(path string, compression buffer.CompressionType) (*RowWriter, error) {
	w, err := buffer.NewBufferedWriter(path, compression, buffer.DefaultBufferSize)
	if err != nil {
		return nil, err
	}
	if _, err := w.WriteString("["); err != nil {
		w.Close()
		return nil, err
	}
	return &RowWriter{path: path, w: w}, nil
}

// WriteRow appends one object. values must already be JSON-encodable.
func (rw *RowWriter) WriteRow(columns []string, values []interface{}) error {
	if len(columns) != len(values) {
		return fmt.Errorf("row has %d values for %d columns", len(values), len(columns))
	}

	sep := "\n"
	if rw.count > 0 {
		sep = ",\n"
	}
	if _, err := rw.w.WriteString(sep + "{"); err != nil {
		return err
	}
	for i, col := range columns {
		key, err := json.Marshal(col)
		if err != nil {
			return err
		}
		val, err := json.Marshal(values[i])
		if err != nil {
			return fmt.Errorf("failed to encode column %s: %w", col, err)
		}
		if i > 0 {
			rw.w.WriteString(",")
		}
		rw.w.Write(key)
		rw.w.WriteString(":")
		if _, err := rw.w.Write(val); err != nil {
			return err
		}
	}
	if _, err := rw.w.WriteString("}"); err != nil {
		return err
	}
	rw.count++
	return nil
}

// Count returns the rows written so far
func (rw *RowWriter) Count() int64 {
	return rw.count
}

// Close terminates the array and flushes. An empty table yields [].
func (rw *RowWriter) Close() error {
	tail := "]\n"
	if rw.count > 0 {
		tail = "\n]\n"
	}
	if _, err := rw.w.WriteString(tail); err != nil {
		rw.w.Close()
		return err
	}
	return rw.w.Close()
}

// Abort closes and removes a partially written file
func (rw *RowWriter) Abort() {
	rw.w.Close()
	os.Remove(rw.path)
}

// RowDecodeError is a single malformed element. Reading can continue after it.
type RowDecodeError struct {
	Index int
	Err   error
}

func (e *RowDecodeError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

func (e *RowDecodeError) Unwrap() error {
	return e.Err
}

// RowReader streams row objects out of a JSON array file without loading
// the whole array. Numbers are kept as json.Number.
type RowReader struct {
	r     *buffer.BufferedReader
	dec   *json.Decoder
	index int
	done  bool
}

// OpenRowReader opens a rows file, decompressing by extension
func OpenRowReader(path string) (*RowReader, error) {
	r, err := buffer.NewBufferedReader(path, 0)
	if err != nil {
		return nil, err
	}
	return newRowReader(r)
}

func newRowReader(r *buffer.BufferedReader) (*RowReader, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		// a zero byte file is an empty table
		return &RowReader{r: r, dec: dec, done: true}, nil
	}
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("invalid rows file: %w", err)
	}
	if tok == nil {
		// null
		return &RowReader{r: r, dec: dec, done: true}, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		r.Close()
		return nil, fmt.Errorf("invalid rows file: expected array, got %v", tok)
	}
	return &RowReader{r: r, dec: dec}, nil
}

// Next returns the next row object, io.EOF at the end of the array, or a
// *RowDecodeError for an element that is not an object.
func (rr *RowReader) Next() (map[string]interface{}, error) {
	if rr.done || !rr.dec.More() {
		rr.done = true
		return nil, io.EOF
	}

	var raw json.RawMessage
	if err := rr.dec.Decode(&raw); err != nil {
		// the stream itself is broken; nothing after this can be read
		rr.done = true
		return nil, fmt.Errorf("failed to read row %d: %w", rr.index, err)
	}
	idx := rr.index
	rr.index++

	var row map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	if err := d.Decode(&row); err != nil || row == nil {
		if err == nil {
			err = errors.New("row is not an object")
		}
		return nil, &RowDecodeError{Index: idx, Err: err}
	}
	return row, nil
}

// Index returns how many elements have been consumed
func (rr *RowReader) Index() int {
	return rr.index
}

// Close closes the underlying file
func (rr *RowReader) Close() error {
	return rr.r.Close()
}
