package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/MimeLyc/dynamic-splash/internal/assetcache"
	"github.com/MimeLyc/dynamic-splash/internal/config"
	"github.com/MimeLyc/dynamic-splash/internal/httpapi"
	"github.com/MimeLyc/dynamic-splash/internal/kvstore"
	"github.com/MimeLyc/dynamic-splash/internal/manager"
	"github.com/MimeLyc/dynamic-splash/internal/overlay"
	"github.com/MimeLyc/dynamic-splash/internal/service"
	"github.com/MimeLyc/dynamic-splash/pkg/icron"
	"github.com/MimeLyc/dynamic-splash/pkg/log"
	"github.com/robfig/cron/v3"
)

// app is the wiring shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	manager  *manager.Manager
	registry *manager.Registry
	overlay  *overlay.Headless
	runs     service.RunStore

	closers []func() error
}

// loadConfig reads the environment, then applies the saved runtime settings
// when the settings file exists.
func loadConfig(opts ...config.Option) (*config.Config, error) {
	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, err
	}

	settings, err := config.LoadRuntimeSettingsFile(cfg.SettingsPath())
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load runtime settings: %w", err)
	}
	return config.NewFromEnv(append(opts, config.WithRuntimeSettings(settings))...)
}

func newApp(cfg *config.Config) (*app, error) {
	log.InitLogger(log.ParseLevel(cfg.LogLevel))
	a := &app{
		cfg:      cfg,
		logger:   log.GetLogger(),
		registry: manager.NewRegistry(),
		overlay:  overlay.NewHeadless(),
	}

	kv, err := a.openKV()
	if err != nil {
		return nil, err
	}

	files := assetcache.NewOSFileSystem(
		assetcache.Dirs{Document: cfg.DocumentDir(), Caches: cfg.CachesDir()},
		&http.Client{Timeout: cfg.HTTPTimeout()},
		a.logger,
	)
	m, err := manager.New(cfg.SplashOptions(cfg.Provider(), a.logger), manager.Deps{
		KV:      kv,
		FS:      files,
		Overlay: a.overlay,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.registry.Register(httpapi.DefaultInstance, m); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.manager = m
	return a, nil
}

func (a *app) openKV() (any, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendSQLite:
		db, err := kvstore.NewSQLite(a.cfg.DBPath())
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.runs = db
		return db, nil
	case config.BackendBolt:
		db, err := kvstore.OpenBolt(a.cfg.BoltPath())
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		return db, nil
	default:
		return kvstore.NewMemory(), nil
	}
}

func (a *app) newRunner(cronEngine *cron.Cron) (*service.Runner, error) {
	opts := []service.Option{
		service.WithLogger(a.logger),
		service.WithTempMaxAge(a.cfg.Storage.TempMaxAge),
		service.WithPaused(a.cfg.Schedule.Paused),
	}
	if a.runs != nil {
		opts = append(opts, service.WithRunStore(a.runs))
	}
	return service.NewRunner(a.manager, cronEngine, a.cfg.Schedule.CronExpr, opts...)
}

func newCron() *cron.Cron {
	return cron.New(cron.WithParser(icron.Parser))
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
