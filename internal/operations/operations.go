package operations

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/kebairia/dbsnap/internal/backup"
	"github.com/kebairia/dbsnap/internal/config"
	"github.com/kebairia/dbsnap/internal/database"
	"github.com/kebairia/dbsnap/internal/logger"
)

// Run is one backup attempt. It is never persisted; its trace is the archive.
type Run struct {
	ID        uuid.UUID
	Mode      backup.Mode
	StartedAt time.Time
}

// Option lets you override default settings on an Orchestrator.
type Option func(*Orchestrator)

// Orchestrator drives backup runs. It is safe to call Run concurrently.
type Orchestrator struct {
	querier         database.Querier
	resolver        *backup.Resolver
	fs              afero.Fs
	outputDir       string
	tablesFile      string
	timestampFormat string
	now             func() time.Time
	log             logger.Logger
}

// NewOrchestrator returns an Orchestrator reading through q.
func NewOrchestrator(q database.Querier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		querier:         q,
		fs:              afero.NewOsFs(),
		outputDir:       "./backups",
		tablesFile:      "backup.conf",
		timestampFormat: DefaultTimestampFormat,
		now:             time.Now,
		log:             logger.Global(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.resolver = &backup.Resolver{
		Querier:    q,
		Fs:         o.fs,
		TablesFile: o.tablesFile,
		Logger:     o.log,
	}
	return o
}

// WithConfig applies the backup section of cfg.
func WithConfig(cfg config.BackupConfig) Option {
	return func(o *Orchestrator) {
		WithOutputDir(cfg.OutputDirectory)(o)
		WithTablesFile(cfg.TablesFile)(o)
		WithTimestampFormat(cfg.TimestampFormat)(o)
	}
}

// WithFs overrides the filesystem archives are written to.
func WithFs(fsys afero.Fs) Option {
	return func(o *Orchestrator) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

// WithOutputDir overrides the archive root.
func WithOutputDir(dir string) Option {
	return func(o *Orchestrator) {
		if dir != "" {
			o.outputDir = dir
		}
	}
}

// WithTablesFile overrides the allow-list used by partial runs.
func WithTablesFile(path string) Option {
	return func(o *Orchestrator) {
		if path != "" {
			o.tablesFile = path
		}
	}
}

// WithTimestampFormat overrides the archive name layout.
func WithTimestampFormat(format string) Option {
	return func(o *Orchestrator) {
		if format != "" {
			o.timestampFormat = format
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(log logger.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// OutputDir returns the archive root.
func (o *Orchestrator) OutputDir() string { return o.outputDir }

// Fs returns the filesystem archives are written to.
func (o *Orchestrator) Fs() afero.Fs { return o.fs }
