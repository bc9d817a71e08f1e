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

// Package logging wraps a zerolog logger behind the printf-style helpers used
// throughout nukepave.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents the logging level
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "unknown"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelError:
		return zerolog.ErrorLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelTrace:
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config holds logging configuration
type Config struct {
	// Level is one of trace, debug, info, warn, error
	Level string
	// Format is console or json
	Format    string
	Caller    bool
	Timestamp bool
	Output    io.Writer
}

// DefaultConfig returns console logging at info level on stderr
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "console",
		Timestamp: true,
		Output:    os.Stderr,
	}
}

var (
	mu      sync.RWMutex
	log     zerolog.Logger
	current Config
	logFile *os.File
)

func init() {
	initLogger(DefaultConfig())
}

// Init configures the global logger. Safe to call more than once.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	initLogger(cfg)
}

func initLogger(cfg Config) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "console"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	current = cfg

	zerolog.SetGlobalLevel(parseLevel(cfg.Level).zerolog())
	zerolog.TimeFieldFormat = time.RFC3339

	output := cfg.Output
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: "15:04:05",
		}
	}

	l := zerolog.New(output)
	if cfg.Timestamp {
		l = l.With().Timestamp().Logger()
	}
	if cfg.Caller {
		l = l.With().CallerWithSkipFrameCount(4).Logger()
	}
	log = l
}

func parseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "error":
		return LevelError
	case "warn", "warning":
		return LevelWarn
	case "debug":
		return LevelDebug
	case "trace":
		return LevelTrace
	default:
		return LevelInfo
	}
}

// SetLevelFromString sets the logging level from a string
func SetLevelFromString(level string) error {
	switch strings.ToLower(level) {
	case "error", "warn", "warning", "info", "debug", "trace":
	default:
		return fmt.Errorf("unknown log level: %s", level)
	}
	mu.Lock()
	defer mu.Unlock()
	cfg := current
	cfg.Level = level
	initLogger(cfg)
	return nil
}

// SetLogFile tees log output into a file
func SetLogFile(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	logFile = f

	cfg := current
	cfg.Output = io.MultiWriter(os.Stderr, f)
	initLogger(cfg)
	return nil
}

// Close closes the log file if one is open
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// Logger returns the underlying zerolog logger
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// With returns a context for building a child logger with fields
//
//	runLog := logging.With().Str("run_id", id).Logger()
func With() zerolog.Context {
	mu.RLock()
	defer mu.RUnlock()
	return log.With()
}

func emit(level Level, format string, args ...interface{}) {
	mu.RLock()
	l := log
	mu.RUnlock()

	ev := l.WithLevel(level.zerolog())
	if ev == nil {
		return
	}
	if len(args) > 0 {
		ev.Msgf(format, args...)
		return
	}
	ev.Msg(format)
}

// Error logs an error message
func Error(format string, args ...interface{}) { emit(LevelError, format, args...) }

// Warn logs a warning message
func Warn(format string, args ...interface{}) { emit(LevelWarn, format, args...) }

// Info logs an info message
func Info(format string, args ...interface{}) { emit(LevelInfo, format, args...) }

// Debug logs a debug message
func Debug(format string, args ...interface{}) { emit(LevelDebug, format, args...) }

// Trace logs a trace message
func Trace(format string, args ...interface{}) { emit(LevelTrace, format, args...) }

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return zerolog.GlobalLevel() <= zerolog.DebugLevel
}

// Redirect sends log output to w, and to the log file if one is open,
// until the returned function is called
func Redirect(w io.Writer) (restore func()) {
	mu.Lock()
	defer mu.Unlock()

	prev := current
	cfg := current
	cfg.Output = w
	if logFile != nil {
		cfg.Output = io.MultiWriter(w, logFile)
	}
	initLogger(cfg)

	return func() {
		mu.Lock()
		defer mu.Unlock()
		initLogger(prev)
	}
}
