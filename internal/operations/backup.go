package operations

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kebairia/dbsnap/internal/backup"
	"github.com/kebairia/dbsnap/internal/logger"
)

// Run performs one backup and returns how many tables were written. Failures
// are logged, never returned: a table that cannot be read or written is
// skipped and the run goes on. A run with zero tables is still complete.
func (o *Orchestrator) Run(ctx context.Context, mode backup.Mode) int {
	run := Run{ID: uuid.New(), Mode: mode, StartedAt: o.now()}
	log := o.log.With("run_id", run.ID.String(), "mode", string(mode))

	archive, err := CreateArchive(o.fs, o.outputDir, ArchiveName(run.StartedAt, mode, o.timestampFormat))
	if err != nil {
		log.Error("backup aborted", "error", err.Error())
		return 0
	}
	log.Info("backup started", "path", archive.Path)

	record := Metadata{
		RunID:     run.ID.String(),
		Mode:      string(mode),
		Archive:   archive.Path,
		StartedAt: run.StartedAt,
		Tables:    []TableRecord{},
	}

	var combined bytes.Buffer
	for _, table := range o.resolver.Resolve(ctx, mode) {
		record.Add(o.backupTable(ctx, log, archive, table, &combined))
	}

	if combined.Len() > 0 {
		if err := archive.WriteCombined(combined.Bytes()); err != nil {
			log.Error("combined statement file failed", "path", archive.Path, "error", err.Error())
		}
	}

	record.Complete(o.now())
	if err := record.Write(o.fs, archive.Path); err != nil {
		log.Warn("metadata write failed", "path", archive.Path, "error", err.Error())
	}

	log.Info("backup completed",
		"path", archive.Path,
		"tables", record.Succeeded,
		"failed", record.Failed,
		"duration", (time.Duration(record.DurationMS) * time.Millisecond).String(),
	)
	return record.Succeeded
}

// backupTable reads, serializes and writes one table, appending its statement
// to combined on success.
func (o *Orchestrator) backupTable(
	ctx context.Context,
	log logger.Logger,
	archive *Archive,
	table string,
	combined *bytes.Buffer,
) TableRecord {
	start := time.Now()
	rec := TableRecord{Name: table, Status: StatusFailed}
	fail := func(stage string, err error) TableRecord {
		rec.Error = err.Error()
		rec.DurationMS = time.Since(start).Milliseconds()
		log.Error("table backup failed", "table", table, "stage", stage, "error", rec.Error)
		return rec
	}

	if err := ValidateTableName(table); err != nil {
		return fail("validate", err)
	}
	rows, err := backup.ReadTable(ctx, o.querier, table)
	if err != nil {
		return fail("read", err)
	}
	doc, err := backup.Serialize(table, rows)
	if err != nil {
		return fail("serialize", err)
	}
	size, err := archive.WriteTable(table, doc)
	if err != nil {
		return fail("write", err)
	}

	fmt.Fprintf(combined, "-- Table: %s\n%s\n", table, doc.Statement)

	rec.Status = StatusSuccess
	rec.Rows = len(rows)
	rec.SizeBytes = size
	rec.DurationMS = time.Since(start).Milliseconds()
	log.Debug("table backup completed", "table", table, "rows", rec.Rows, "bytes", size)
	return rec
}
