package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/dynamic-splash/internal/config"
	"github.com/MimeLyc/dynamic-splash/internal/kvstore"
	"github.com/MimeLyc/dynamic-splash/pkg/icron"
	"github.com/MimeLyc/dynamic-splash/pkg/log"
)

type fakeSyncer struct {
	calls  atomic.Int32
	sweeps atomic.Int32
	err    error
	panics bool
	block  chan struct{}

	sweepAge time.Duration
}

func (f *fakeSyncer) Refresh(context.Context) error {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.panics {
		panic("provider exploded")
	}
	return f.err
}

func (f *fakeSyncer) SweepTemp(_ context.Context, olderThan time.Duration) (int, error) {
	f.sweeps.Add(1)
	f.sweepAge = olderThan
	return 2, nil
}

type startingSyncer struct {
	fakeSyncer
	starts atomic.Int32
}

func (s *startingSyncer) Start(context.Context) error {
	s.starts.Add(1)
	return errors.New("Config is outside time window")
}

func newCron() *cron.Cron {
	return cron.New(cron.WithParser(icron.Parser))
}

func newRunner(t *testing.T, s Syncer, opts ...Option) *Runner {
	t.Helper()
	opts = append([]Option{WithLogger(log.NewNopLogger())}, opts...)
	r, err := NewRunner(s, newCron(), "0 * * * *", opts...)
	require.NoError(t, err)
	return r
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(nil, newCron(), "0 * * * *")
	assert.True(t, IsErrorType(err, ErrConfig))

	_, err = NewRunner(&fakeSyncer{}, nil, "0 * * * *")
	assert.True(t, IsErrorType(err, ErrConfig))

	_, err = NewRunner(&fakeSyncer{}, newCron(), "every now and then")
	assert.True(t, IsErrorType(err, ErrSchedule))
	assert.Contains(t, err.Error(), "expr=every now and then")
}

func TestTrigger_RecordsSuccess(t *testing.T) {
	s := &fakeSyncer{}
	r := newRunner(t, s)

	_, ok := r.LastRun()
	assert.False(t, ok)

	run, err := r.Trigger(context.Background(), SourceManual)
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, run.Status)
	assert.Equal(t, SourceManual, run.Source)
	assert.Empty(t, run.Error)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))

	last, ok := r.LastRun()
	require.True(t, ok)
	assert.Equal(t, run, last)
}

func TestTrigger_RecordsFailure(t *testing.T) {
	s := &fakeSyncer{err: errors.New("Config array is empty")}
	r := newRunner(t, s)

	run, err := r.Trigger(context.Background(), SourceCron)
	require.Error(t, err)
	assert.Equal(t, RunFailed, run.Status)
	assert.Equal(t, "Config array is empty", run.Error)
}

func TestTrigger_MountUsesStartupPath(t *testing.T) {
	s := &startingSyncer{}
	r := newRunner(t, s)

	run, err := r.Trigger(context.Background(), SourceMount)
	require.Error(t, err)
	assert.Equal(t, SourceMount, run.Source)
	assert.Equal(t, RunFailed, run.Status)
	assert.Equal(t, "Config is outside time window", run.Error)
	assert.Equal(t, int32(1), s.starts.Load())
	assert.Zero(t, s.calls.Load())

	_, err = r.Trigger(context.Background(), SourceManual)
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.calls.Load())

	// syncers without a startup path refresh on mount
	plain := &fakeSyncer{}
	_, err = newRunner(t, plain).Trigger(context.Background(), SourceMount)
	require.NoError(t, err)
	assert.Equal(t, int32(1), plain.calls.Load())
}

func TestTrigger_PanicBecomesUnknownError(t *testing.T) {
	r := newRunner(t, &fakeSyncer{panics: true})

	run, err := r.Trigger(context.Background(), SourceManual)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrUnknown))
	assert.Contains(t, run.Error, "provider exploded")
}

func TestTrigger_OverlappingCallsShareOneRun(t *testing.T) {
	s := &fakeSyncer{block: make(chan struct{})}
	r := newRunner(t, s)

	var wg sync.WaitGroup
	results := make([]int64, 2)
	start := func(i int) {
		defer wg.Done()
		run, err := r.Trigger(context.Background(), SourceManual)
		assert.NoError(t, err)
		results[i] = run.ID
	}

	wg.Add(1)
	go start(0)
	require.Eventually(t, func() bool { return s.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	wg.Add(1)
	go start(1)
	time.Sleep(50 * time.Millisecond)
	close(s.block)
	wg.Wait()

	assert.Equal(t, int32(1), s.calls.Load())
	assert.Equal(t, results[0], results[1])

	runs, err := r.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRecentRuns_MemoryHistoryIsBounded(t *testing.T) {
	r := newRunner(t, &fakeSyncer{}, WithHistoryLimit(3))
	for range 5 {
		_, err := r.Trigger(context.Background(), SourceManual)
		require.NoError(t, err)
	}

	runs, err := r.RecentRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, int64(5), runs[0].ID)
	assert.Equal(t, int64(3), runs[2].ID)
}

func TestRecentRuns_PersistedInSQLite(t *testing.T) {
	db, err := kvstore.NewSQLite(filepath.Join(t.TempDir(), "splash.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := &fakeSyncer{}
	r := newRunner(t, s, WithRunStore(db))
	_, err = r.Trigger(context.Background(), SourceManual)
	require.NoError(t, err)
	s.err = errors.New("Download failed with status 404")
	_, err = r.Trigger(context.Background(), SourceCron)
	require.Error(t, err)

	runs, err := r.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, SourceCron, runs[0].Source)
	assert.Equal(t, RunFailed, runs[0].Status)
	assert.Equal(t, "Download failed with status 404", runs[0].Error)
	assert.Equal(t, SourceManual, runs[1].Source)
}

func TestTrigger_UsesStoredRunIDsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "splash.db")
	db, err := kvstore.NewSQLite(path)
	require.NoError(t, err)

	first := newRunner(t, &fakeSyncer{}, WithRunStore(db))
	for range 2 {
		_, err := first.Trigger(context.Background(), SourceManual)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	db, err = kvstore.NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	second := newRunner(t, &fakeSyncer{}, WithRunStore(db))
	run, err := second.Trigger(context.Background(), SourceCron)
	require.NoError(t, err)
	assert.Equal(t, int64(3), run.ID)

	last, ok := second.LastRun()
	require.True(t, ok)
	runs, err := second.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runs[0].ID, last.ID)
}

func TestSchedule_RegistersJobs(t *testing.T) {
	engine := newCron()
	r, err := NewRunner(&fakeSyncer{}, engine, "0 * * * *",
		WithLogger(log.NewNopLogger()), WithTempMaxAge(time.Hour))
	require.NoError(t, err)

	require.NoError(t, r.Schedule(context.Background()))
	assert.Len(t, engine.Entries(), 2)

	require.NoError(t, r.Reschedule("*/10 * * * *"))
	assert.Len(t, engine.Entries(), 2)
	assert.Equal(t, "*/10 * * * *", r.RuntimeSettings().CronExpr)

	err = r.Reschedule("bad cron")
	assert.True(t, IsErrorType(err, ErrSchedule))
	assert.Equal(t, "*/10 * * * *", r.RuntimeSettings().CronExpr)
	assert.Len(t, engine.Entries(), 2)
}

func TestSetPaused_RemovesAndRestoresRefreshJob(t *testing.T) {
	engine := newCron()
	r, err := NewRunner(&fakeSyncer{}, engine, "0 * * * *", WithLogger(log.NewNopLogger()))
	require.NoError(t, err)
	require.NoError(t, r.Schedule(context.Background()))
	require.Len(t, engine.Entries(), 1)

	now := time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)
	info := r.NextRefresh(now)
	require.NotNil(t, info)
	assert.Equal(t, time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC), info.Next)

	require.NoError(t, r.SetPaused(true))
	assert.Empty(t, engine.Entries())
	assert.Nil(t, r.NextRefresh(now))

	_, err = r.Trigger(context.Background(), SourceManual)
	assert.NoError(t, err)

	require.NoError(t, r.SetPaused(false))
	assert.Len(t, engine.Entries(), 1)
}

func TestSchedule_StartsPaused(t *testing.T) {
	engine := newCron()
	r, err := NewRunner(&fakeSyncer{}, engine, "0 * * * *",
		WithLogger(log.NewNopLogger()), WithPaused(true))
	require.NoError(t, err)

	require.NoError(t, r.Schedule(context.Background()))
	assert.Empty(t, engine.Entries())
	assert.True(t, r.RuntimeSettings().Paused)
}

func TestApplyRuntimeSettings_ReschedulesAndPauses(t *testing.T) {
	engine := newCron()
	r, err := NewRunner(&fakeSyncer{}, engine, "0 0 * * *", WithLogger(log.NewNopLogger()))
	require.NoError(t, err)
	require.NoError(t, r.Schedule(context.Background()))

	require.NoError(t, r.ApplyRuntimeSettings(config.RuntimeSettings{CronExpr: "*/10 * * * *"}))
	assert.Equal(t, config.RuntimeSettings{CronExpr: "*/10 * * * *"}, r.RuntimeSettings())
	require.Len(t, engine.Entries(), 1)

	require.NoError(t, r.ApplyRuntimeSettings(config.RuntimeSettings{CronExpr: "*/10 * * * *", Paused: true}))
	assert.Empty(t, engine.Entries())

	err = r.ApplyRuntimeSettings(config.RuntimeSettings{CronExpr: ""})
	assert.True(t, IsErrorType(err, ErrConfig))
}

func TestSchedule_CronRunsTrigger(t *testing.T) {
	s := &fakeSyncer{}
	engine := newCron()
	r, err := NewRunner(s, engine, "@every 1s", WithLogger(log.NewNopLogger()))
	require.NoError(t, err)
	require.NoError(t, r.Schedule(context.Background()))

	engine.Start()
	defer engine.Stop()

	require.Eventually(t, func() bool { return s.calls.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		last, ok := r.LastRun()
		return ok && last.Source == SourceCron
	}, time.Second, 10*time.Millisecond)
}

func TestSweep(t *testing.T) {
	s := &fakeSyncer{}

	r := newRunner(t, s)
	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, s.sweeps.Load())

	r = newRunner(t, s, WithTempMaxAge(6*time.Hour))
	n, err = r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 6*time.Hour, s.sweepAge)
}

func TestWatch_TriggersOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "splash.json")
	other := filepath.Join(dir, "other.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))

	s := &fakeSyncer{}
	r := newRunner(t, s, WithDebounce(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, path) }()

	// unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(other, []byte(`x`), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, s.calls.Load())

	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(`[]`), 0o644)
		return s.calls.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	last, ok := r.LastRun()
	require.True(t, ok)
	assert.Equal(t, SourceWatch, last.Source)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	r := newRunner(t, &fakeSyncer{})
	err := r.Watch(context.Background(), filepath.Join(t.TempDir(), "missing", "splash.json"))
	assert.True(t, IsErrorType(err, ErrWatch))
}
