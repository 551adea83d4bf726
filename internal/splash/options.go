package splash

import (
	"context"
	"time"

	"github.com/MimeLyc/dynamic-splash/pkg/log"
)

const DefaultStorageKey = "DYNAMIC_SPLASH_META_V1"

// FileLocation selects the base directory committed images live in.
type FileLocation string

const (
	// LocationDocument persists across restarts.
	LocationDocument FileLocation = "document"
	// LocationCache uses the OS-managed cache and may be evicted.
	LocationCache FileLocation = "cache"
)

func (l FileLocation) Valid() bool {
	return l == LocationDocument || l == LocationCache
}

// Logger is the printf-style logging hook used across the engine.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

var _ Logger = (*log.Logger)(nil)

// Provider produces the raw JSON for one config or an array of configs.
// Any transport is the caller's concern.
type Provider interface {
	Fetch(ctx context.Context) ([]byte, error)
}

type ProviderFunc func(ctx context.Context) ([]byte, error)

func (f ProviderFunc) Fetch(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

type FadeOptions struct {
	Enabled    *bool
	DurationMs *int64
}

// ScaleOptions configures the show animation. StartScale and EndScale must
// be set together, and then DurationMs is required.
type ScaleOptions struct {
	StartScale *float64
	EndScale   *float64
	DurationMs *int64
	Easing     Easing
}

type Animation struct {
	Fade  *FadeOptions
	Scale *ScaleOptions
}

// Options configures one manager instance and is not modified after
// construction.
type Options struct {
	// Provider is required.
	Provider Provider

	// MinDurationMs and MaxDurationMs are passed to the overlay; 0 means
	// no bound.
	MinDurationMs int64
	MaxDurationMs int64

	Animation Animation

	// Deprecated: use Animation.Fade.Enabled.
	EnableFade *bool
	// Deprecated: use Animation.Fade.DurationMs.
	FadeDurationMs *int64

	StorageKey   string
	FileLocation FileLocation

	// InitialConfig, when set, is processed on mount instead of calling
	// the provider.
	InitialConfig *Input

	Logger Logger

	// StorageReadyTimeout bounds how long mount waits for persisted
	// metadata to load. 0 waits until loading finishes.
	StorageReadyTimeout time.Duration

	// ShowOnUpdate shows the overlay right after a successful update.
	ShowOnUpdate bool
}

func (o Options) Key() string {
	if o.StorageKey == "" {
		return DefaultStorageKey
	}
	return o.StorageKey
}

func (o Options) Location() FileLocation {
	if o.FileLocation == "" {
		return LocationDocument
	}
	return o.FileLocation
}

func (o Options) Log() Logger {
	if o.Logger == nil {
		return log.GetLogger()
	}
	return o.Logger
}
