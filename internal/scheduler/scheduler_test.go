package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kebairia/dbsnap/internal/backup"
	"github.com/kebairia/dbsnap/internal/logger"
)

type recordingRunner struct {
	mu    sync.Mutex
	modes []backup.Mode
	count int
	panic bool
}

func (r *recordingRunner) Run(_ context.Context, mode backup.Mode) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes = append(r.modes, mode)
	if r.panic {
		panic("disk on fire")
	}
	return r.count
}

func (r *recordingRunner) recorded() []backup.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]backup.Mode(nil), r.modes...)
}

func observed() (logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return logger.FromZap(zap.New(core)), logs
}

func TestRunInitial_Success(t *testing.T) {
	runner := &recordingRunner{count: 12}
	log, logs := observed()
	s := New(runner, WithLogger(log))

	assert.Equal(t, 12, s.RunInitial(context.Background()))
	assert.Equal(t, []backup.Mode{backup.ModeFull}, runner.recorded())
	assert.Equal(t, 1, logs.FilterMessage("initial backup completed").Len())
}

func TestRunInitial_ZeroTablesIsAWarning(t *testing.T) {
	runner := &recordingRunner{}
	log, logs := observed()
	s := New(runner, WithLogger(log))

	assert.Equal(t, 0, s.RunInitial(context.Background()))
	warnings := logs.FilterMessage("initial backup produced no tables").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zap.WarnLevel, warnings[0].Level)
}

func TestStart_RegistersDailyPartialAndWeeklyFull(t *testing.T) {
	runner := &recordingRunner{count: 1}
	s := New(runner, WithLogger(logger.NewNop()), WithLocation(time.UTC))
	require.NoError(t, s.Start())
	defer s.Stop()

	entries := s.Entries()
	require.Len(t, entries, 2)

	for _, e := range entries {
		e.WrappedJob.Run()
	}
	assert.ElementsMatch(t, []backup.Mode{backup.ModePartial, backup.ModeFull}, runner.recorded())

	// Sunday 2024-06-02 is both a daily and a weekly day.
	var next []time.Time
	for _, e := range entries {
		next = append(next, e.Schedule.Next(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)))
	}
	assert.ElementsMatch(t, []time.Time{
		time.Date(2024, 6, 2, 3, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 2, 4, 0, 0, 0, time.UTC),
	}, next)
}

func TestStart_CustomSchedules(t *testing.T) {
	s := New(&recordingRunner{}, WithLogger(logger.NewNop()), WithLocation(time.UTC),
		WithDaily("30 1 * * *"), WithWeekly("0 5 * * 6"))
	require.NoError(t, s.Start())
	defer s.Stop()

	var next []time.Time
	for _, e := range s.Entries() {
		next = append(next, e.Schedule.Next(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)))
	}
	assert.ElementsMatch(t, []time.Time{
		time.Date(2024, 6, 3, 1, 30, 0, 0, time.UTC),
		time.Date(2024, 6, 8, 5, 0, 0, 0, time.UTC),
	}, next)
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := New(&recordingRunner{}, WithLogger(logger.NewNop()), WithWeekly("every sunday"))
	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weekly")
}

func TestJob_PanicIsRecovered(t *testing.T) {
	runner := &recordingRunner{panic: true}
	log, logs := observed()
	s := New(runner, WithLogger(log))
	require.NoError(t, s.Start())
	defer s.Stop()

	entries := s.Entries()
	require.NotEmpty(t, entries)
	assert.NotPanics(t, func() { entries[0].WrappedJob.Run() })
	assert.Equal(t, 1, logs.FilterMessage("panic").Len())
}

func TestStop_WaitsForRunningJob(t *testing.T) {
	release := make(chan struct{})
	runner := &blockingRunner{started: make(chan struct{}), release: release}
	log, logs := observed()
	s := New(runner, WithLogger(log), WithDaily("@every 1s"))
	require.NoError(t, s.Start())

	select {
	case <-runner.started:
	case <-time.After(3 * time.Second):
		t.Fatal("job was never triggered")
	}

	done := s.Stop().Done()
	assert.Equal(t, 1, logs.FilterMessage("stopping backup scheduler").Len())
	select {
	case <-done:
		t.Fatal("stop completed while a job was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not complete after the job finished")
	}
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *blockingRunner) Run(context.Context, backup.Mode) int {
	r.once.Do(func() { close(r.started) })
	<-r.release
	return 1
}
