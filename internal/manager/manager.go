// Package manager is the public façade over the sync engine: it owns one
// metadata store, asset cache and overlay controller per instance.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MimeLyc/dynamic-splash/internal/assetcache"
	"github.com/MimeLyc/dynamic-splash/internal/metastore"
	"github.com/MimeLyc/dynamic-splash/internal/overlay"
	"github.com/MimeLyc/dynamic-splash/internal/splash"
	"github.com/MimeLyc/dynamic-splash/internal/syncer"
)

var (
	ErrProviderRequired   = errors.New("config provider is required")
	ErrFileSystemRequired = errors.New("filesystem is required")
)

// Deps are the collaborators of one manager. KV may implement any subset of
// the kvstore capability interfaces; a nil Overlay resolves to an
// unavailable controller.
type Deps struct {
	KV      any
	FS      assetcache.FileSystem
	Overlay overlay.Handle
	Clock   func() time.Time
	Rand    func() float64
}

type Manager struct {
	opts    splash.Options
	store   *metastore.Store
	cache   *assetcache.Cache
	engine  *syncer.Engine
	overlay overlay.Controller
	now     func() time.Time
	log     splash.Logger
}

// New builds an owned manager instance. Priming of persisted metadata starts
// immediately.
func New(opts splash.Options, deps Deps) (*Manager, error) {
	if opts.Provider == nil {
		return nil, ErrProviderRequired
	}
	if deps.FS == nil {
		return nil, ErrFileSystemRequired
	}
	if !opts.Location().Valid() {
		return nil, fmt.Errorf("invalid file location %q", opts.FileLocation)
	}

	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Log()
	ctrl := overlay.Resolve(deps.Overlay)
	if !ctrl.IsAvailable() {
		logger.Warn("[DynamicSplash] native overlay unavailable; show/hide are no-ops")
	}

	store := metastore.New(context.Background(), deps.KV,
		metastore.WithKey(opts.Key()),
		metastore.WithLogger(logger),
		metastore.WithKeyBinder(ctrl),
	)
	cache := assetcache.New(deps.FS, opts.Location(),
		assetcache.WithClock(now),
		assetcache.WithLogger(logger),
	)
	engine := syncer.New(opts, store, cache,
		syncer.WithClock(now),
		syncer.WithRand(deps.Rand),
		syncer.WithOverlay(ctrl),
	)

	return &Manager{
		opts:    opts,
		store:   store,
		cache:   cache,
		engine:  engine,
		overlay: ctrl,
		now:     now,
		log:     logger,
	}, nil
}

// Mount waits for stored metadata (bounded by StorageReadyTimeout), then
// processes InitialConfig when set or runs a background update. It never
// fails; problems are logged.
func (m *Manager) Mount(ctx context.Context) {
	_ = m.Start(ctx)
}

// Start is Mount that also returns the failure it logged, so a caller can
// record the outcome.
func (m *Manager) Start(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mount panicked: %v", r)
			m.log.Error("[DynamicSplash] %v", err)
		}
	}()

	if !m.store.Ready(ctx, m.opts.StorageReadyTimeout) {
		m.log.Info("[DynamicSplash] mounting before stored metadata finished loading")
	}

	if m.opts.InitialConfig != nil {
		m.log.Info("[DynamicSplash] processing initial config")
		if err := m.engine.ProcessSplashConfig(ctx, *m.opts.InitialConfig); err != nil {
			m.log.Error("[DynamicSplash] initial config failed: %v", err)
			return err
		}
		return nil
	}

	m.log.Info("[DynamicSplash] starting background update")
	return m.engine.Update(ctx)
}

// Refresh runs one provider update outside of mount. The error is the one
// recorded as ERROR metadata, if any.
func (m *Manager) Refresh(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
			m.log.Error("[DynamicSplash] %v", err)
		}
	}()
	return m.engine.Update(ctx)
}

func (m *Manager) Hide(ctx context.Context) {
	m.log.Info("[DynamicSplash] hide requested")
	if err := m.overlay.Hide(ctx); err != nil {
		m.log.Warn("[DynamicSplash] hide failed: %v", err)
	}
}

func (m *Manager) IsVisible(ctx context.Context) bool {
	showing, err := m.overlay.IsShowing(ctx)
	if err != nil {
		m.log.Debug("[DynamicSplash] isShowing failed: %v", err)
		return false
	}
	return showing
}

func (m *Manager) Meta() splash.StoredMeta {
	return m.store.Meta()
}

// Plan reports what a launch at now would display.
func (m *Manager) Plan(ctx context.Context, now time.Time) splash.DisplayPlan {
	return splash.PlanFor(m.store.Meta(), now, func(path string) bool {
		return m.cache.Exists(ctx, path)
	})
}

// Clear removes the committed image, if any, and resets the metadata.
func (m *Manager) Clear(ctx context.Context) metastore.PersistResult {
	if path := m.store.Meta().LocalPath; path != "" {
		m.cache.Delete(ctx, path)
	}
	return m.store.Clear()
}

func (m *Manager) SweepTemp(ctx context.Context, olderThan time.Duration) (int, error) {
	return m.cache.SweepTemp(ctx, olderThan)
}

func (m *Manager) StorageKey() string {
	return m.store.Key()
}

// StorageState is the metadata loader state: "uninitialized", "loading" or
// "ready".
func (m *Manager) StorageState() string {
	return m.store.LoadState()
}

func (m *Manager) OverlayAvailable() bool {
	return m.overlay.IsAvailable()
}
