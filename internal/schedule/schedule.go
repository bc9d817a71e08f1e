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

// Package schedule runs backups on a cron schedule
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/blubskye/nukepave/internal/logging"
)

// Job is one scheduled run
type Job func(ctx context.Context) error

// IntervalOptions returns the named intervals accepted besides cron expressions
func IntervalOptions() []string {
	return []string{"hourly", "daily", "weekly", "monthly"}
}

// ParseSpec validates a cron expression or a named interval and returns
// the cron expression to schedule
func ParseSpec(spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	switch strings.ToLower(spec) {
	case "":
		return "", fmt.Errorf("empty schedule")
	case "hourly", "daily", "weekly", "monthly":
		spec = "@" + strings.ToLower(spec)
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return "", fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return spec, nil
}

// Runner runs a job on a schedule. Runs never overlap: a run that is due
// while the previous one is still going is skipped.
type Runner struct {
	spec string
	job  Job
	runs atomic.Int64
	fail atomic.Int64
}

// NewRunner validates spec and returns a runner for job
func NewRunner(spec string, job Job) (*Runner, error) {
	parsed, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	return &Runner{spec: parsed, job: job}, nil
}

// Runs returns how many runs started and how many failed
func (r *Runner) Runs() (total, failed int64) {
	return r.runs.Load(), r.fail.Load()
}

// Run blocks until ctx is cancelled, then waits for a running job to finish
func (r *Runner) Run(ctx context.Context) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	id, err := c.AddFunc(r.spec, func() {
		n := r.runs.Add(1)
		start := time.Now()
		logging.Info("Scheduled run %d starting", n)
		if err := r.job(ctx); err != nil {
			r.fail.Add(1)
			logging.Error("Scheduled run %d failed: %v", n, err)
			return
		}
		logging.Info("Scheduled run %d finished in %v", n, time.Since(start).Round(time.Millisecond))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}

	c.Start()
	logging.Info("Scheduler started (%s), next run at %s", r.spec, c.Entry(id).Next.Format(time.RFC3339))

	<-ctx.Done()
	logging.Info("Scheduler stopping")
	<-c.Stop().Done()
	return nil
}

// cronLogger forwards cron's key/value logs to zerolog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l := logging.Logger()
	l.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l := logging.Logger()
	l.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
