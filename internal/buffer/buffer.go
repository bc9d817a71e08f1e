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
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blubskye/nukepave/internal/logging"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Default buffer sizes for different operations
const (
	// SmallBufferSize for small files or quick operations (64KB)
	SmallBufferSize = 64 * 1024

	// DefaultBufferSize for typical backup files (1MB)
	DefaultBufferSize = 1024 * 1024

	// LargeBufferSize for large row files (8MB)
	LargeBufferSize = 8 * 1024 * 1024

	// SQLStatementBufferSize for reading SQL statements (256KB)
	SQLStatementBufferSize = 256 * 1024
)

// CompressionType represents supported compression formats
type CompressionType string

const (
	CompressionNone CompressionType = ""
	CompressionGzip CompressionType = "gzip"
	CompressionXZ   CompressionType = "xz"
	CompressionZstd CompressionType = "zstd"
)

// DetectCompression detects compression type from filename
func DetectCompression(filename string) CompressionType {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".gz") || strings.HasSuffix(lower, ".gzip"):
		return CompressionGzip
	case strings.HasSuffix(lower, ".xz"):
		return CompressionXZ
	case strings.HasSuffix(lower, ".zst") || strings.HasSuffix(lower, ".zstd"):
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// ParseCompression converts a user supplied name into a CompressionType
func ParseCompression(name string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "gzip", "gz":
		return CompressionGzip, nil
	case "xz":
		return CompressionXZ, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression: %s (use gzip, xz or zstd)", name)
	}
}

// Extension returns the filename suffix for a compression type
func (c CompressionType) Extension() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionXZ:
		return ".xz"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// TrimExtension strips a known compression suffix from a filename
func TrimExtension(filename string) string {
	lower := strings.ToLower(filename)
	for _, ext := range []string{".gzip", ".gz", ".xz", ".zstd", ".zst"} {
		if strings.HasSuffix(lower, ext) {
			return filename[:len(filename)-len(ext)]
		}
	}
	return filename
}

// BufferedReader wraps a file with buffering and optional decompression
type BufferedReader struct {
	file         *os.File
	decompressor io.ReadCloser
	reader       *bufio.Reader
}

// NewBufferedReader creates a new buffered reader with optional
// decompression. A bufferSize of 0 picks one from the file size.
func NewBufferedReader(path string, bufferSize int) (*BufferedReader, error) {
	return openBufferedReader(path, bufferSize, nil)
}

// NewProgressBufferedReader is NewBufferedReader reporting how many bytes
// of the file (compressed, as stored on disk) have been consumed
func NewProgressBufferedReader(path string, bufferSize int, onProgress func(read, total int64)) (*BufferedReader, error) {
	return openBufferedReader(path, bufferSize, onProgress)
}

func openBufferedReader(path string, bufferSize int, onProgress func(read, total int64)) (*BufferedReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	var size int64
	if info, err := file.Stat(); err == nil {
		size = info.Size()
	}
	if bufferSize <= 0 {
		bufferSize = RecommendedBufferSize(size)
	}

	logging.Trace("Opening file for reading: %s (buffer: %d bytes)", path, bufferSize)

	br := &BufferedReader{file: file}
	var reader io.Reader = file
	if onProgress != nil {
		reader = NewProgressReader(file, size, onProgress)
	}

	switch DetectCompression(path) {
	case CompressionGzip:
		gzr, err := gzip.NewReader(reader)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		br.decompressor = gzr
		reader = gzr

	case CompressionXZ:
		xzr, err := xz.NewReader(reader)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		// xz.Reader doesn't implement io.Closer
		br.decompressor = io.NopCloser(xzr)
		reader = xzr

	case CompressionZstd:
		zstdr, err := zstd.NewReader(reader)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		br.decompressor = zstdr.IOReadCloser()
		reader = br.decompressor
	}

	br.reader = bufio.NewReaderSize(reader, bufferSize)
	return br, nil
}

// Read implements io.Reader
func (br *BufferedReader) Read(p []byte) (n int, err error) {
	return br.reader.Read(p)
}

// Close closes all underlying readers
func (br *BufferedReader) Close() error {
	var errs []error

	if br.decompressor != nil {
		if err := br.decompressor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := br.file.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// BufferedWriter wraps a file with buffering and optional compression
type BufferedWriter struct {
	file       *os.File
	compressor io.WriteCloser
	writer     *bufio.Writer
	written    int64
}

// NewBufferedWriter creates a new buffered writer with optional compression
func NewBufferedWriter(path string, compression CompressionType, bufferSize int) (*BufferedWriter, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	logging.Trace("Opening file for writing: %s (buffer: %d bytes, compression: %s)", path, bufferSize, compression)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	bw := &BufferedWriter{file: file}
	var writer io.Writer = file

	switch compression {
	case CompressionGzip:
		gzw, err := gzip.NewWriterLevel(file, gzip.BestSpeed)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		bw.compressor = gzw
		writer = gzw

	case CompressionXZ:
		xzw, err := xz.NewWriter(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		bw.compressor = xzw
		writer = xzw

	case CompressionZstd:
		zstdw, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		bw.compressor = zstdw
		writer = zstdw
	}

	bw.writer = bufio.NewWriterSize(writer, bufferSize)
	return bw, nil
}

// Write implements io.Writer
func (bw *BufferedWriter) Write(p []byte) (n int, err error) {
	n, err = bw.writer.Write(p)
	bw.written += int64(n)
	return n, err
}

// WriteString writes a string to the buffer
func (bw *BufferedWriter) WriteString(s string) (n int, err error) {
	n, err = bw.writer.WriteString(s)
	bw.written += int64(n)
	return n, err
}

// Written returns the number of uncompressed bytes written so far
func (bw *BufferedWriter) Written() int64 {
	return bw.written
}

// Close flushes and closes all underlying writers
func (bw *BufferedWriter) Close() error {
	var errs []error

	if err := bw.writer.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush error: %w", err))
	}
	if bw.compressor != nil {
		if err := bw.compressor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("compressor close error: %w", err))
		}
	}
	if err := bw.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("file close error: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// ProgressReader counts the bytes pulled through it. It is driven by a
// single reader goroutine.
type ProgressReader struct {
	reader     io.Reader
	total      int64
	read       int64
	onProgress func(read, total int64)
}

// NewProgressReader wraps reader; total is the expected size, 0 if unknown
func NewProgressReader(reader io.Reader, total int64, onProgress func(read, total int64)) *ProgressReader {
	return &ProgressReader{reader: reader, total: total, onProgress: onProgress}
}

// Read implements io.Reader
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		if pr.onProgress != nil {
			pr.onProgress(pr.read, pr.total)
		}
	}
	return n, err
}

// RecommendedBufferSize picks a read buffer for a file of fileSize bytes
func RecommendedBufferSize(fileSize int64) int {
	switch {
	case fileSize < 1024*1024:
		return SmallBufferSize
	case fileSize < 100*1024*1024:
		return DefaultBufferSize
	default:
		return LargeBufferSize
	}
}

// GetFileSize returns the size of a file
func GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
