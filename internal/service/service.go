package service

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/dynamic-splash/internal/config"
	"github.com/MimeLyc/dynamic-splash/internal/kvstore"
	"github.com/MimeLyc/dynamic-splash/internal/splash"
	"github.com/MimeLyc/dynamic-splash/pkg/icron"
	"github.com/MimeLyc/dynamic-splash/pkg/log"
)

// Run sources.
const (
	SourceMount  = "mount"
	SourceCron   = "cron"
	SourceManual = "manual"
	SourceWatch  = "watch"
)

// Run statuses.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

const (
	defaultHistoryLimit = 50
	defaultDebounce     = 200 * time.Millisecond
	sweepSpec           = "@every 1h"
)

// Syncer is the work one run performs. *manager.Manager implements it.
type Syncer interface {
	Refresh(ctx context.Context) error
	SweepTemp(ctx context.Context, olderThan time.Duration) (int, error)
}

// starter is implemented by syncers with a distinct startup path.
// *manager.Manager implements it with Start.
type starter interface {
	Start(ctx context.Context) error
}

// RunStore persists run history. *kvstore.SQLite implements it.
type RunStore interface {
	RecordRun(ctx context.Context, run kvstore.Run) (int64, error)
	RecentRuns(ctx context.Context, limit int) ([]kvstore.Run, error)
	PruneRuns(ctx context.Context, keep int) (int64, error)
}

type Option func(*Runner)

func WithRunStore(store RunStore) Option {
	return func(r *Runner) {
		r.runs = store
	}
}

func WithLogger(l splash.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTempMaxAge enables the hourly sweep of temp downloads older than age.
func WithTempMaxAge(age time.Duration) Option {
	return func(r *Runner) {
		r.tempMaxAge = age
	}
}

func WithHistoryLimit(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}

func WithDebounce(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.debounce = d
		}
	}
}

func WithPaused(paused bool) Option {
	return func(r *Runner) {
		r.paused = paused
	}
}

// Runner drives a Syncer from a cron schedule, manual triggers and file
// changes. Overlapping triggers share one run.
type Runner struct {
	syncer Syncer
	cron   *cron.Cron
	runs   RunStore
	log    splash.Logger
	now    func() time.Time

	tempMaxAge   time.Duration
	historyLimit int
	debounce     time.Duration

	group singleflight.Group

	mu        sync.Mutex
	baseCtx   context.Context
	cronExpr  string
	paused    bool
	scheduled bool
	entryID   cron.EntryID
	nextID    int64
	history   []kvstore.Run
}

func NewRunner(syncer Syncer, cronEngine *cron.Cron, cronExpr string, opts ...Option) (*Runner, error) {
	if syncer == nil {
		return nil, NewError(ErrConfig, "syncer is required")
	}
	if cronEngine == nil {
		return nil, NewError(ErrConfig, "cron engine is required")
	}
	if _, err := icron.Parse(cronExpr); err != nil {
		return nil, WrapError(err, ErrSchedule, "invalid cron expression").WithContext("expr", cronExpr)
	}

	r := &Runner{
		syncer:       syncer,
		cron:         cronEngine,
		log:          log.GetLogger(),
		now:          time.Now,
		historyLimit: defaultHistoryLimit,
		debounce:     defaultDebounce,
		cronExpr:     cronExpr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Schedule registers the refresh job, unless paused, and the temp sweep.
// Jobs triggered by cron run under ctx.
func (r *Runner) Schedule(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.baseCtx = ctx
	r.scheduled = true
	r.log.Info("Scheduling splash refresh with %q (paused: %t)", r.cronExpr, r.paused)

	if !r.paused {
		if err := r.addSyncEntryLocked(r.cronExpr); err != nil {
			return err
		}
	}
	if r.tempMaxAge > 0 {
		_, err := r.cron.AddFunc(sweepSpec, func() {
			if _, err := r.Sweep(ctx); err != nil {
				r.log.Warn("Sweep temp downloads failed: %v", err)
			}
		})
		if err != nil {
			return WrapError(err, ErrSchedule, "schedule temp sweep")
		}
	}
	return nil
}

func (r *Runner) addSyncEntryLocked(expr string) error {
	ctx := r.baseCtx
	id, err := r.cron.AddFunc(expr, func() {
		if _, err := r.Trigger(ctx, SourceCron); err != nil {
			r.log.Debug("Scheduled refresh failed: %v", err)
		}
	})
	if err != nil {
		return WrapError(err, ErrSchedule, "invalid cron expression").WithContext("expr", expr)
	}
	r.entryID = id
	return nil
}

func (r *Runner) removeSyncEntryLocked() {
	if r.entryID != 0 {
		r.cron.Remove(r.entryID)
		r.entryID = 0
	}
}

// Reschedule replaces the refresh schedule. On error the previous schedule
// stays in place.
func (r *Runner) Reschedule(expr string) error {
	if _, err := icron.Parse(expr); err != nil {
		return WrapError(err, ErrSchedule, "invalid cron expression").WithContext("expr", expr)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduled && !r.paused {
		r.removeSyncEntryLocked()
		if err := r.addSyncEntryLocked(expr); err != nil {
			return err
		}
	}
	r.log.Info("Splash refresh rescheduled from %q to %q", r.cronExpr, expr)
	r.cronExpr = expr
	return nil
}

// SetPaused stops or resumes scheduled refreshes. Manual and watch triggers
// keep working while paused.
func (r *Runner) SetPaused(paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused == paused {
		return nil
	}
	r.paused = paused
	if !r.scheduled {
		return nil
	}
	if paused {
		r.removeSyncEntryLocked()
		r.log.Info("Scheduled splash refresh paused")
		return nil
	}
	r.log.Info("Scheduled splash refresh resumed")
	return r.addSyncEntryLocked(r.cronExpr)
}

func (r *Runner) ApplyRuntimeSettings(settings config.RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return WrapError(err, ErrConfig, "invalid runtime settings")
	}
	if err := r.Reschedule(settings.CronExpr); err != nil {
		return err
	}
	return r.SetPaused(settings.Paused)
}

func (r *Runner) RuntimeSettings() config.RuntimeSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return config.RuntimeSettings{CronExpr: r.cronExpr, Paused: r.paused}
}

// Trigger runs one refresh now. A trigger arriving while a run is in flight
// joins it and gets the same result. SourceMount runs the syncer's startup
// path when it has one.
func (r *Runner) Trigger(ctx context.Context, source string) (kvstore.Run, error) {
	v, err, shared := r.group.Do("sync", func() (any, error) {
		return r.run(ctx, source)
	})
	if shared {
		r.log.Debug("Refresh trigger from %s joined an in-flight run", source)
	}
	run, _ := v.(kvstore.Run)
	return run, err
}

func (r *Runner) run(ctx context.Context, source string) (kvstore.Run, error) {
	run := kvstore.Run{Source: source, StartedAt: r.now()}
	r.log.Info("Splash refresh started (%s)", source)

	err := SafeExecute(func() error {
		if st, ok := r.syncer.(starter); ok && source == SourceMount {
			return st.Start(ctx)
		}
		return r.syncer.Refresh(ctx)
	})
	run.FinishedAt = r.now()
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		r.log.Error("Splash refresh failed (%s): %v\n advice: %s", source, err, Advice(err))
	} else {
		run.Status = RunSucceeded
		r.log.Info("Splash refresh finished (%s) in %s", source, run.FinishedAt.Sub(run.StartedAt))
	}

	run.ID = r.persist(ctx, run)
	run = r.remember(run)
	return run, err
}

// remember adds run to the in-memory history. Runs without a stored id get
// the next local one.
func (r *Runner) remember(run kvstore.Run) kvstore.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run.ID == 0 {
		r.nextID++
		run.ID = r.nextID
	} else {
		r.nextID = max(r.nextID, run.ID)
	}
	r.history = append([]kvstore.Run{run}, r.history...)
	if len(r.history) > r.historyLimit {
		r.history = r.history[:r.historyLimit]
	}
	return run
}

// persist records run in the run store and returns the stored id, or 0
// when there is no store or the write failed.
func (r *Runner) persist(ctx context.Context, run kvstore.Run) int64 {
	if r.runs == nil {
		return 0
	}
	ctx = context.WithoutCancel(ctx)
	id, err := r.runs.RecordRun(ctx, run)
	if err != nil {
		r.log.Warn("%v", WrapError(err, ErrStorage, "record run"))
		return 0
	}
	if _, err := r.runs.PruneRuns(ctx, r.historyLimit); err != nil {
		r.log.Warn("%v", WrapError(err, ErrStorage, "prune runs"))
	}
	return id
}

func (r *Runner) LastRun() (kvstore.Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return kvstore.Run{}, false
	}
	return r.history[0], true
}

// RecentRuns returns up to limit runs, newest first, from the run store when
// one is configured.
func (r *Runner) RecentRuns(ctx context.Context, limit int) ([]kvstore.Run, error) {
	if limit <= 0 || limit > r.historyLimit {
		limit = r.historyLimit
	}
	if r.runs != nil {
		runs, err := r.runs.RecentRuns(ctx, limit)
		if err != nil {
			return nil, WrapError(err, ErrStorage, "load runs")
		}
		return runs, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	n := min(limit, len(r.history))
	return append([]kvstore.Run(nil), r.history[:n]...), nil
}

// NextRefresh reports the schedule around now. It returns nil while paused.
func (r *Runner) NextRefresh(now time.Time) *icron.TriggerInfo {
	r.mu.Lock()
	expr, paused := r.cronExpr, r.paused
	r.mu.Unlock()
	if paused {
		return nil
	}
	info, err := icron.GetTriggerInfo(expr, now)
	if err != nil {
		return nil
	}
	return info
}

// Sweep removes temp downloads older than the configured max age.
func (r *Runner) Sweep(ctx context.Context) (int, error) {
	if r.tempMaxAge <= 0 {
		return 0, nil
	}
	n, err := r.syncer.SweepTemp(ctx, r.tempMaxAge)
	if err != nil {
		return n, WrapError(err, ErrStorage, "sweep temp downloads")
	}
	if n > 0 {
		r.log.Info("Removed %d stale temp downloads", n)
	}
	return n, nil
}

// Watch triggers a refresh whenever the file at path is written, created or
// renamed, after the events settle. It blocks until ctx is done.
func (r *Runner) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapError(err, ErrWatch, "create watcher")
	}
	defer func() {
		_ = watcher.Close()
	}()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return WrapError(err, ErrWatch, "watch config directory").WithContext("path", target)
	}
	r.log.Info("Watching %s for changes", target)

	var (
		pending     bool
		pendingFrom time.Time
	)
	ticker := time.NewTicker(r.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if pending && time.Since(pendingFrom) >= r.debounce {
				pending = false
				if _, err := r.Trigger(ctx, SourceWatch); err != nil {
					r.log.Debug("Refresh after file change failed: %v", err)
				}
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = true
				pendingFrom = time.Now()
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("Config file watcher error: %v", watchErr)
		}
	}
}
