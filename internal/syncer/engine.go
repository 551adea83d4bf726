// Package syncer turns a remote splash configuration into a cached local
// asset and a persisted metadata record.
package syncer

import (
	"context"
	"time"

	"github.com/MimeLyc/dynamic-splash/internal/metastore"
	"github.com/MimeLyc/dynamic-splash/internal/splash"
)

type MetaStore interface {
	Meta() splash.StoredMeta
	SetMeta(meta splash.StoredMeta) metastore.PersistResult
}

type AssetCache interface {
	DownloadImage(ctx context.Context, url, filename string) (string, error)
	CommitImage(ctx context.Context, tempPath, filename string) (string, error)
	Exists(ctx context.Context, path string) bool
}

type Shower interface {
	Show(ctx context.Context) error
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRand sets the source of uniform [0, 1) draws used for weighted
// selection.
func WithRand(rnd func() float64) Option {
	return func(e *Engine) {
		e.rnd = rnd
	}
}

func WithOverlay(s Shower) Option {
	return func(e *Engine) {
		e.overlay = s
	}
}

type Engine struct {
	opts    splash.Options
	store   MetaStore
	cache   AssetCache
	overlay Shower
	now     func() time.Time
	rnd     func() float64
	log     splash.Logger
}

func New(opts splash.Options, store MetaStore, cache AssetCache, options ...Option) *Engine {
	e := &Engine{
		opts:  opts,
		store: store,
		cache: cache,
		now:   time.Now,
		log:   opts.Log(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// PerformBackgroundUpdate fetches from the provider and processes the
// result. Every failure is recorded as ERROR metadata; nothing is returned
// to the caller.
func (e *Engine) PerformBackgroundUpdate(ctx context.Context) {
	_ = e.Update(ctx)
}

// Update behaves like PerformBackgroundUpdate and also returns the failure
// that was recorded.
func (e *Engine) Update(ctx context.Context) error {
	err := e.update(ctx)
	if err != nil {
		e.log.Error("[DynamicSplash] background update failed: %v", err)
		e.store.SetMeta(splash.ErrorMeta(err, e.now().UnixMilli()))
	}
	return err
}

func (e *Engine) update(ctx context.Context) error {
	if e.opts.Provider == nil {
		return ErrNoProvider
	}
	raw, err := e.opts.Provider.Fetch(ctx)
	if err != nil {
		return err
	}
	input, err := splash.ParseInput(raw)
	if err != nil {
		return err
	}
	return e.ProcessSplashConfig(ctx, input)
}

// ProcessSplashConfig resolves input to one config, makes sure its image is
// cached and writes a READY record. Errors are returned unmodified and
// leave the stored record untouched.
func (e *Engine) ProcessSplashConfig(ctx context.Context, input splash.Input) error {
	now := e.now()

	config, err := e.resolve(input, now)
	if err != nil {
		return err
	}

	localPath, err := e.ensureCached(ctx, config)
	if err != nil {
		return err
	}

	fade := e.fadeOptions()
	scale, err := normalizeScale(e.opts.Animation.Scale)
	if err != nil {
		return err
	}

	nowMs := now.UnixMilli()
	meta := splash.StoredMeta{
		Status:          splash.StatusReady,
		ImageName:       config.ImageName,
		StartAt:         config.StartAt,
		EndAt:           config.EndAt,
		ImageURL:        config.ImageURL,
		Alt:             config.Alt,
		LocalPath:       localPath,
		UpdatedAt:       nowMs,
		FetchedAt:       nowMs,
		BackgroundColor: config.BackgroundColor,
		ConfigVersion:   config.ConfigVersion,
		EnableFade:      fade.Enabled,
		FadeDurationMs:  fade.DurationMs,
		MinDurationMs:   positive(e.opts.MinDurationMs),
		MaxDurationMs:   positive(e.opts.MaxDurationMs),
	}
	if scale != nil {
		meta.ScaleStart = scale.StartScale
		meta.ScaleEnd = scale.EndScale
		meta.ScaleDurationMs = scale.DurationMs
		meta.ScaleEasing = scale.Easing
	}
	e.store.SetMeta(meta)
	e.log.Info("[DynamicSplash] splash %q (%s) ready at %s", config.ImageName, config.ConfigVersion, localPath)

	if e.opts.ShowOnUpdate && e.overlay != nil {
		if err := e.overlay.Show(ctx); err != nil {
			e.log.Warn("[DynamicSplash] show after update failed: %v", err)
		}
	}
	return nil
}

func (e *Engine) resolve(input splash.Input, now time.Time) (splash.SplashConfig, error) {
	configs := input.Configs()

	if input.IsList() {
		if len(configs) == 0 {
			return splash.SplashConfig{}, ErrEmptyConfigArray
		}
		eligible := splash.Eligible(configs, now)
		if len(eligible) == 0 {
			return splash.SplashConfig{}, ErrNoConfigInWindow
		}
		return splash.SelectByWeight(eligible, e.rnd)
	}

	if len(configs) == 0 {
		return splash.SplashConfig{}, splash.ErrInvalidSchema
	}
	config := configs[0]
	if !splash.IsWithinWindow(config.StartAt, config.EndAt, now) {
		return splash.SplashConfig{}, ErrOutsideWindow
	}
	return config, nil
}

func (e *Engine) ensureCached(ctx context.Context, config splash.SplashConfig) (string, error) {
	meta := e.store.Meta()
	if meta.Status == splash.StatusReady &&
		meta.ImageName == config.ImageName &&
		meta.ConfigVersion == config.ConfigVersion &&
		meta.ImageURL == config.ImageURL &&
		meta.LocalPath != "" &&
		e.cache.Exists(ctx, meta.LocalPath) {
		e.log.Debug("[DynamicSplash] %q already cached, skipping download", config.ImageName)
		return meta.LocalPath, nil
	}

	tempPath, err := e.cache.DownloadImage(ctx, config.ImageURL, config.ImageName)
	if err != nil {
		return "", err
	}
	return e.cache.CommitImage(ctx, tempPath, config.ImageName)
}

func (e *Engine) fadeOptions() splash.FadeOptions {
	if e.opts.Animation.Fade != nil {
		return *e.opts.Animation.Fade
	}
	return splash.FadeOptions{
		Enabled:    e.opts.EnableFade,
		DurationMs: e.opts.FadeDurationMs,
	}
}

// normalizeScale checks the all-or-nothing scale options. A nil result
// means no scale animation.
func normalizeScale(s *splash.ScaleOptions) (*splash.ScaleOptions, error) {
	if s == nil {
		return nil, nil
	}
	hasStart := s.StartScale != nil
	hasEnd := s.EndScale != nil
	if hasStart != hasEnd {
		return nil, &OptionsError{Field: "scale", Reason: "startScale and endScale must be provided together"}
	}
	if !hasStart {
		return nil, nil
	}
	if s.DurationMs == nil {
		return nil, &OptionsError{Field: "scale", Reason: "durationMs must be provided"}
	}
	if *s.DurationMs <= 0 {
		return nil, &OptionsError{Field: "scale", Reason: "durationMs must be > 0"}
	}
	return &splash.ScaleOptions{
		StartScale: s.StartScale,
		EndScale:   s.EndScale,
		DurationMs: s.DurationMs,
		Easing:     s.Easing,
	}, nil
}

func positive(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}
