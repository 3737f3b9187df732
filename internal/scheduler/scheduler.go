package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kebairia/dbsnap/internal/backup"
	"github.com/kebairia/dbsnap/internal/logger"
)

const (
	DefaultDaily  = "0 3 * * *" // partial backup, every day at 03:00
	DefaultWeekly = "0 4 * * 0" // full backup, Sundays at 04:00
)

// Runner is the backup entry point driven by the scheduler.
type Runner interface {
	Run(ctx context.Context, mode backup.Mode) int
}

// Option lets you override default settings on a Scheduler.
type Option func(*Scheduler)

// Scheduler binds backup runs to recurring cron triggers. Jobs may overlap:
// a run still writing when the next trigger fires is not waited for.
type Scheduler struct {
	runner   Runner
	daily    string
	weekly   string
	location *time.Location
	log      logger.Logger
	cron     *cron.Cron
}

// New returns a Scheduler for runner. Call Start to register the triggers.
func New(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		daily:    DefaultDaily,
		weekly:   DefaultWeekly,
		location: time.Local,
		log:      logger.Global(),
	}
	for _, opt := range opts {
		opt(s)
	}
	cl := cronLogger{log: s.log}
	s.cron = cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	return s
}

// WithDaily overrides the partial backup schedule.
func WithDaily(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.daily = spec
		}
	}
}

// WithWeekly overrides the full backup schedule.
func WithWeekly(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.weekly = spec
		}
	}
}

// WithLocation sets the time zone schedules are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// RunInitial performs the synchronous full backup done at process start.
// A run that writes no table is reported as a warning, not an error.
func (s *Scheduler) RunInitial(ctx context.Context) int {
	s.log.Info("starting initial full backup")
	count := s.runner.Run(ctx, backup.ModeFull)
	if count > 0 {
		s.log.Info("initial backup completed", "tables", count)
	} else {
		s.log.Warn("initial backup produced no tables")
	}
	return count
}

// Start registers the daily and weekly triggers and starts the cron loop.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		spec string
		mode backup.Mode
	}{
		{"daily", s.daily, backup.ModePartial},
		{"weekly", s.weekly, backup.ModeFull},
	}
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, s.job(job.name, job.mode)); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", job.name, job.spec, err)
		}
	}
	s.cron.Start()
	s.log.Info("backup tasks scheduled",
		"daily", s.daily,
		"weekly", s.weekly,
		"location", s.location.String(),
	)
	return nil
}

// Stop halts the triggers and returns a context done once running jobs end.
// Jobs may still be writing when Stop returns.
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	s.log.Info("stopping backup scheduler")
	return ctx
}

// Entries exposes the registered cron entries.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

func (s *Scheduler) job(name string, mode backup.Mode) func() {
	return func() {
		s.log.Info("starting scheduled backup", "schedule", name, "mode", string(mode))
		count := s.runner.Run(context.Background(), mode)
		if count == 0 {
			s.log.Warn("scheduled backup produced no tables", "schedule", name, "mode", string(mode))
		}
	}
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err.Error())...)
}
