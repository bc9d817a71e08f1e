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

// Package metrics records backup, restore and sweep outcomes as Prometheus
// metrics and writes them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blubskye/nukepave/internal/db"
	"github.com/blubskye/nukepave/internal/retention"
)

// Recorder owns a registry so one process run writes only its own series
type Recorder struct {
	registry *prometheus.Registry

	restoreTables   *prometheus.GaugeVec
	restoreRows     *prometheus.GaugeVec
	restoreDuration prometheus.Gauge
	restoreLast     prometheus.Gauge

	backupTables   prometheus.Gauge
	backupRows     prometheus.Gauge
	backupFailed   prometheus.Gauge
	backupDuration prometheus.Gauge
	backupLast     prometheus.Gauge

	sweepDeleted *prometheus.GaugeVec
	sweepFreed   prometheus.Gauge
	sweepFailed  prometheus.Gauge
}

// New creates a recorder with all metrics registered
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,

		restoreTables: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nukepave_restore_tables",
			Help: "Tables in the last restore by outcome",
		}, []string{"status"}),
		restoreRows: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nukepave_restore_rows",
			Help: "Rows in the last restore by outcome",
		}, []string{"outcome"}),
		restoreDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "nukepave_restore_duration_seconds",
			Help: "Duration of the last restore",
		}),
		restoreLast: f.NewGauge(prometheus.GaugeOpts{
			Name: "nukepave_restore_last_run_timestamp_seconds",
			Help: "Unix time the last restore finished",
		}),

		backupTables: f.NewGauge(prometheus.GaugeOpts{
			Name: "nukepave_backup_tables",
			Help: "Tables exported by the last backup",
		}),
		backupRows: f.NewGauge(prometheus.GaugeOpts{
			Name: "nukepave_backup_rows",
			Help: "Rows exported by the last backup",
		}),
		backupFailed: f.NewGauge(prometheus.GaugeOpts{
			Name: "nukepave_backup_failed_tables",
			Help: "Tables the last backup could not export",
		}),
		backupDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "nukepave_backup_duration_seconds",
			Help: "Duration of the last backup",
		}),
		backupLast: f.NewGauge(prometheus.GaugeOpts{
			Name: "nukepave_backup_last_success_timestamp_seconds",
			Help: "Unix time of the last backup without failed tables",
		}),

		sweepDeleted: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nukepave_retention_deleted",
			Help: "Backups deleted by the last sweep",
		}, []string{"kind"}),
		sweepFreed: f.NewGauge(prometheus.GaugeOpts{
			Name: "nukepave_retention_freed_bytes",
			Help: "Bytes freed by the last sweep",
		}),
		sweepFailed: f.NewGauge(prometheus.GaugeOpts{
			Name: "nukepave_retention_failed",
			Help: "Deletions that failed in the last sweep",
		}),
	}
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordRestore records a data restore
func (r *Recorder) RecordRestore(res *db.RestoreResult) {
	if res == nil {
		return
	}
	counts := map[db.TableStatus]int{}
	for _, t := range res.Tables {
		counts[t.Status]++
	}
	for _, s := range []db.TableStatus{db.StatusRestored, db.StatusPartial, db.StatusFailed, db.StatusEmpty, db.StatusSkipped} {
		r.restoreTables.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
	r.restoreRows.WithLabelValues("inserted").Set(float64(res.TotalInserted()))
	r.restoreRows.WithLabelValues("failed").Set(float64(res.TotalFailed()))
	r.restoreDuration.Set(res.Duration.Seconds())
	r.restoreLast.Set(float64(time.Now().Unix()))
}

// RecordBackup records a data export
func (r *Recorder) RecordBackup(stats *db.DataExportStats) {
	if stats == nil {
		return
	}
	r.backupTables.Set(float64(stats.Tables))
	r.backupRows.Set(float64(stats.Rows))
	r.backupFailed.Set(float64(len(stats.FailedTables)))
	r.backupDuration.Set(stats.Duration.Seconds())
	if len(stats.FailedTables) == 0 {
		r.backupLast.Set(float64(time.Now().Unix()))
	}
}

// RecordSweep records a retention sweep
func (r *Recorder) RecordSweep(report *retention.Report) {
	if report == nil {
		return
	}
	deleted := map[string]int{}
	for _, e := range report.Deleted {
		deleted[string(e.Kind)]++
	}
	for _, kind := range []string{"schema", "data"} {
		r.sweepDeleted.WithLabelValues(kind).Set(float64(deleted[kind]))
	}
	r.sweepFreed.Set(float64(report.FreedBytes))
	r.sweepFailed.Set(float64(len(report.Failed)))
}

// WriteTextfile writes all metrics to path atomically
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
