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
	"fmt"
	"io"
	"strings"

	"github.com/blubskye/nukepave/internal/logging"
)

// DefaultDelimiter terminates statements until a DELIMITER line changes it
const DefaultDelimiter = ";"

// SQLStatementReader splits a SQL script into statements. It understands
// comments, multi-line statements, quoted strings and DELIMITER changes
// used around procedural blocks.
type SQLStatementReader struct {
	reader     *bufio.Reader
	closer     io.Closer
	buffer     strings.Builder
	delimiter  string
	lineNumber int
	pending    string
	hasPending bool
	postgres   bool
	scan       scanState
}

type scanState struct {
	quote     byte
	backslash bool
	escaped   bool
	dollarTag string
	comment   bool
	keep      bool
}

func (s *scanState) quoted() bool {
	return s.quote != 0 || s.dollarTag != ""
}

func (s *scanState) open() bool {
	return s.quoted() || s.comment
}

// NewSQLStatementReader opens a (possibly compressed) script file.
// onProgress, if set, receives the bytes of the file consumed so far.
func NewSQLStatementReader(path string, onProgress func(read, total int64)) (*SQLStatementReader, error) {
	reader, err := openBufferedReader(path, 0, onProgress)
	if err != nil {
		return nil, err
	}
	sr := NewSQLStatementReaderFrom(reader)
	sr.closer = reader
	return sr, nil
}

// NewSQLStatementReaderFrom reads statements from an arbitrary reader
func NewSQLStatementReaderFrom(r io.Reader) *SQLStatementReader {
	return &SQLStatementReader{
		reader:    bufio.NewReaderSize(r, SQLStatementBufferSize),
		delimiter: DefaultDelimiter,
	}
}

// SetDelimiter sets the statement delimiter
func (sr *SQLStatementReader) SetDelimiter(d string) {
	sr.delimiter = d
}

// Delimiter returns the delimiter currently in effect
func (sr *SQLStatementReader) Delimiter() string {
	return sr.delimiter
}

// EnablePostgresQuoting switches to PostgreSQL lexing: $tag$ ... $tag$
// bodies are quoted and a backslash only escapes inside E'...' literals
func (sr *SQLStatementReader) EnablePostgresQuoting(enable bool) {
	sr.postgres = enable
}

// LineNumber returns the current line number
func (sr *SQLStatementReader) LineNumber() int {
	return sr.lineNumber
}

// Close closes the underlying file, if any
func (sr *SQLStatementReader) Close() error {
	if sr.closer != nil {
		return sr.closer.Close()
	}
	return nil
}

func (sr *SQLStatementReader) nextLine() (string, error) {
	if sr.hasPending {
		sr.hasPending = false
		return sr.pending, nil
	}

	line, err := sr.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	if err == io.EOF && line == "" {
		return "", io.EOF
	}
	sr.lineNumber++
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadStatement reads the next complete statement without its delimiter.
// Returns the statement, the line number where it started, and any error.
// io.EOF is returned once the script is exhausted.
func (sr *SQLStatementReader) ReadStatement() (string, int, error) {
	sr.buffer.Reset()
	sr.scan = scanState{}
	startLine := 0

	for {
		line, err := sr.nextLine()
		if err == io.EOF {
			content := strings.TrimSpace(sr.buffer.String())
			if content != "" {
				return content, startLine, nil
			}
			return "", 0, io.EOF
		}
		if err != nil {
			return "", 0, fmt.Errorf("failed to read script: %w", err)
		}

		if !sr.scan.open() {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || isCommentLine(trimmed) {
				continue
			}
			if sr.buffer.Len() == 0 {
				if d, ok := parseDelimiterCommand(trimmed); ok {
					sr.delimiter = d
					logging.Trace("SQL delimiter changed to: %s (line %d)", d, sr.lineNumber)
					continue
				}
			}
		}

		quoted := sr.scan.quoted()
		kept, done, rest := sr.scanLine(line)
		if quoted || strings.TrimSpace(kept) != "" {
			if sr.buffer.Len() == 0 {
				startLine = sr.lineNumber
			} else {
				sr.buffer.WriteByte('\n')
			}
			sr.buffer.WriteString(kept)
		}
		if !done {
			continue
		}

		if strings.TrimSpace(rest) != "" {
			sr.pending = rest
			sr.hasPending = true
		}

		stmt := strings.TrimSpace(sr.buffer.String())
		if stmt == "" {
			sr.buffer.Reset()
			continue
		}
		return stmt, startLine, nil
	}
}

// scanLine walks one physical line updating quote and comment state. It
// returns the statement text the line contributes, whether a delimiter
// outside quotes and comments ended the statement, and the text after that
// delimiter. Trailing "-- " comments and plain /* */ comments are dropped;
// /*! and /*+ comments carry server directives and are kept.
func (sr *SQLStatementReader) scanLine(line string) (string, bool, string) {
	st := &sr.scan
	var kept strings.Builder
	i := 0
	for i < len(line) {
		c := line[i]

		switch {
		case st.comment:
			if strings.HasPrefix(line[i:], "*/") {
				if st.keep {
					kept.WriteString("*/")
				} else {
					kept.WriteByte(' ')
				}
				st.comment = false
				st.keep = false
				i += 2
				continue
			}
			if st.keep {
				kept.WriteByte(c)
			}

		case st.dollarTag != "":
			if strings.HasPrefix(line[i:], st.dollarTag) {
				kept.WriteString(st.dollarTag)
				i += len(st.dollarTag)
				st.dollarTag = ""
				continue
			}
			kept.WriteByte(c)

		case st.quote != 0:
			switch {
			case st.escaped:
				st.escaped = false
			case c == '\\' && st.backslash:
				st.escaped = true
			case c == st.quote:
				st.quote = 0
			}
			kept.WriteByte(c)

		default:
			if strings.HasPrefix(line[i:], sr.delimiter) {
				return kept.String(), true, line[i+len(sr.delimiter):]
			}
			if strings.HasPrefix(line[i:], "-- ") || line[i:] == "--" {
				return kept.String(), false, ""
			}
			if strings.HasPrefix(line[i:], "/*") {
				st.comment = true
				st.keep = len(line) > i+2 && (line[i+2] == '!' || line[i+2] == '+')
				if st.keep {
					kept.WriteString("/*")
				}
				i += 2
				continue
			}
			switch c {
			case '\'', '"', '`':
				st.quote = c
				st.backslash = c != '`' && (!sr.postgres || (c == '\'' && escapeString(line, i)))
			case '$':
				if sr.postgres {
					if tag := dollarTag(line[i:]); tag != "" {
						st.dollarTag = tag
						kept.WriteString(tag)
						i += len(tag)
						continue
					}
				}
			}
			kept.WriteByte(c)
		}
		i++
	}
	return kept.String(), false, ""
}

// escapeString reports whether the quote at i opens a PostgreSQL E'...'
// literal, the only place its backslashes escape
func escapeString(line string, i int) bool {
	if i == 0 || (line[i-1] != 'E' && line[i-1] != 'e') {
		return false
	}
	return i == 1 || !isIdentByte(line[i-2])
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isCommentLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "-- ") || trimmed == "--" || strings.HasPrefix(trimmed, "#")
}

// parseDelimiterCommand recognises the client-side "DELIMITER x" directive
func parseDelimiterCommand(trimmed string) (string, bool) {
	if len(trimmed) < len("DELIMITER ") || !strings.EqualFold(trimmed[:len("DELIMITER ")], "DELIMITER ") {
		return "", false
	}
	fields := strings.Fields(trimmed[len("DELIMITER "):])
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// dollarTag returns the $tag$ opening s, or "" if s does not start one
func dollarTag(s string) string {
	if len(s) < 2 || s[0] != '$' {
		return ""
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '$':
			return s[:i+1]
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case c >= '0' && c <= '9' && i > 1:
		default:
			return ""
		}
	}
	return ""
}
