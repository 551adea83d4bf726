package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/dynamic-splash/internal/provider"
	"github.com/MimeLyc/dynamic-splash/internal/splash"
	"github.com/MimeLyc/dynamic-splash/pkg/icron"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the runner configuration, read from SPLASH_* environment
// variables. A .env file (SPLASH_ENV_FILE, default ".env") is loaded first
// when present; variables already set in the environment win.
//
// Source:
// - SPLASH_CONFIG_URL: remote splash config document
// - SPLASH_CONFIG_FILE: local JSON or YAML config document
// - SPLASH_HTTP_TIMEOUT_SEC: timeout for config and image requests (default: 30)
//
// Storage:
// - SPLASH_DATA_DIR: base directory (default: ./data)
// - SPLASH_CACHE_DIR: temp download directory (default: <data>/cache)
// - SPLASH_FILE_LOCATION: document | cache (default: document)
// - SPLASH_STORAGE_KEY: metadata key (default: DYNAMIC_SPLASH_META_V1)
// - SPLASH_KV_BACKEND: sqlite | bolt | memory (default: sqlite)
// - SPLASH_STORAGE_READY_TIMEOUT_MS: wait bound for stored metadata (default: 0, no bound)
// - SPLASH_TEMP_MAX_AGE: age after which temp downloads are swept (default: 24h)
//
// Display:
// - SPLASH_MIN_DURATION_MS, SPLASH_MAX_DURATION_MS (0: none)
// - SPLASH_FADE_ENABLED, SPLASH_FADE_DURATION_MS
// - SPLASH_SCALE_START, SPLASH_SCALE_END, SPLASH_SCALE_DURATION_MS, SPLASH_SCALE_EASING
// - SPLASH_SHOW_ON_UPDATE
//
// Runner:
// - SPLASH_CRON: refresh schedule (default: 0 * * * *)
// - SPLASH_HTTP_ADDR: API listen address (default: :8080)
// - SPLASH_FEED_DIR: directory served under /feed/ (optional)
// - SPLASH_LOG_LEVEL: debug | info | warn | error (default: info)
type Config struct {
	Source   SourceConfig
	Storage  StorageConfig
	Display  DisplayConfig
	Schedule ScheduleConfig
	HTTP     HTTPConfig

	LogLevel string `env:"SPLASH_LOG_LEVEL" envDefault:"info"`
}

type SourceConfig struct {
	ConfigURL      string `env:"SPLASH_CONFIG_URL"`
	ConfigFile     string `env:"SPLASH_CONFIG_FILE"`
	HTTPTimeoutSec int    `env:"SPLASH_HTTP_TIMEOUT_SEC" envDefault:"30"`
}

type StorageConfig struct {
	DataDir        string        `env:"SPLASH_DATA_DIR" envDefault:"./data"`
	CacheDir       string        `env:"SPLASH_CACHE_DIR"`
	FileLocation   string        `env:"SPLASH_FILE_LOCATION" envDefault:"document"`
	StorageKey     string        `env:"SPLASH_STORAGE_KEY" envDefault:"DYNAMIC_SPLASH_META_V1"`
	Backend        string        `env:"SPLASH_KV_BACKEND" envDefault:"sqlite"`
	ReadyTimeoutMs int64         `env:"SPLASH_STORAGE_READY_TIMEOUT_MS" envDefault:"0"`
	TempMaxAge     time.Duration `env:"SPLASH_TEMP_MAX_AGE" envDefault:"24h"`
}

// DisplayConfig carries the display options. Unset pointers mean "absent".
type DisplayConfig struct {
	MinDurationMs   int64    `env:"SPLASH_MIN_DURATION_MS" envDefault:"0"`
	MaxDurationMs   int64    `env:"SPLASH_MAX_DURATION_MS" envDefault:"0"`
	FadeEnabled     *bool    `env:"SPLASH_FADE_ENABLED"`
	FadeDurationMs  *int64   `env:"SPLASH_FADE_DURATION_MS"`
	ScaleStart      *float64 `env:"SPLASH_SCALE_START"`
	ScaleEnd        *float64 `env:"SPLASH_SCALE_END"`
	ScaleDurationMs *int64   `env:"SPLASH_SCALE_DURATION_MS"`
	ScaleEasing     string   `env:"SPLASH_SCALE_EASING"`
	ShowOnUpdate    bool     `env:"SPLASH_SHOW_ON_UPDATE" envDefault:"false"`
}

type ScheduleConfig struct {
	CronExpr string `env:"SPLASH_CRON" envDefault:"0 * * * *"`
	Paused   bool   `env:"SPLASH_PAUSED" envDefault:"false"`
}

type HTTPConfig struct {
	Addr    string `env:"SPLASH_HTTP_ADDR" envDefault:":8080"`
	FeedDir string `env:"SPLASH_FEED_DIR"`
}

const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Option is a function type for configuring Config
type Option func(*Config)

func WithDataDir(dir string) Option {
	return func(c *Config) {
		c.Storage.DataDir = dir
	}
}

func WithConfigURL(url string) Option {
	return func(c *Config) {
		c.Source.ConfigURL = url
		c.Source.ConfigFile = ""
	}
}

func WithConfigFile(path string) Option {
	return func(c *Config) {
		c.Source.ConfigFile = path
		c.Source.ConfigURL = ""
	}
}

func WithBackend(backend string) Option {
	return func(c *Config) {
		c.Storage.Backend = backend
	}
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadDotEnv() error {
	path := os.Getenv("SPLASH_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	hasURL := strings.TrimSpace(c.Source.ConfigURL) != ""
	hasFile := strings.TrimSpace(c.Source.ConfigFile) != ""
	switch {
	case !hasURL && !hasFile:
		return fmt.Errorf("SPLASH_CONFIG_URL or SPLASH_CONFIG_FILE is required")
	case hasURL && hasFile:
		return fmt.Errorf("SPLASH_CONFIG_URL and SPLASH_CONFIG_FILE are mutually exclusive")
	}
	if c.Source.HTTPTimeoutSec <= 0 {
		return fmt.Errorf("SPLASH_HTTP_TIMEOUT_SEC must be > 0")
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("SPLASH_DATA_DIR is required")
	}
	if !splash.FileLocation(c.Storage.FileLocation).Valid() {
		return fmt.Errorf("invalid SPLASH_FILE_LOCATION %q", c.Storage.FileLocation)
	}
	switch c.Storage.Backend {
	case BackendSQLite, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("invalid SPLASH_KV_BACKEND %q", c.Storage.Backend)
	}
	if c.Storage.ReadyTimeoutMs < 0 {
		return fmt.Errorf("SPLASH_STORAGE_READY_TIMEOUT_MS must be >= 0")
	}
	if c.Display.MinDurationMs < 0 || c.Display.MaxDurationMs < 0 {
		return fmt.Errorf("display durations must be >= 0")
	}
	switch splash.Easing(c.Display.ScaleEasing) {
	case "", splash.EasingLinear, splash.EasingEaseIn, splash.EasingEaseOut, splash.EasingEaseInOut:
	default:
		return fmt.Errorf("invalid SPLASH_SCALE_EASING %q", c.Display.ScaleEasing)
	}
	if _, err := icron.Parse(c.Schedule.CronExpr); err != nil {
		return fmt.Errorf("invalid SPLASH_CRON: %w", err)
	}
	return nil
}

func (c *Config) DocumentDir() string {
	return filepath.Join(c.Storage.DataDir, "splash")
}

func (c *Config) CachesDir() string {
	if c.Storage.CacheDir != "" {
		return c.Storage.CacheDir
	}
	return filepath.Join(c.Storage.DataDir, "cache")
}

func (c *Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, "splash.db")
}

func (c *Config) BoltPath() string {
	return filepath.Join(c.Storage.DataDir, "splash.bolt")
}

func (c *Config) SettingsPath() string {
	return filepath.Join(c.Storage.DataDir, "settings.json")
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Source.HTTPTimeoutSec) * time.Second
}

// Provider builds the config provider for the configured source.
func (c *Config) Provider() splash.Provider {
	if c.Source.ConfigURL != "" {
		return provider.NewHTTP(c.Source.ConfigURL, c.HTTPTimeout())
	}
	return provider.File{Path: c.Source.ConfigFile}
}

// SplashOptions maps the configuration onto manager options.
func (c *Config) SplashOptions(p splash.Provider, logger splash.Logger) splash.Options {
	opts := splash.Options{
		Provider:            p,
		MinDurationMs:       c.Display.MinDurationMs,
		MaxDurationMs:       c.Display.MaxDurationMs,
		StorageKey:          c.Storage.StorageKey,
		FileLocation:        splash.FileLocation(c.Storage.FileLocation),
		Logger:              logger,
		StorageReadyTimeout: time.Duration(c.Storage.ReadyTimeoutMs) * time.Millisecond,
		ShowOnUpdate:        c.Display.ShowOnUpdate,
	}
	d := c.Display
	if d.FadeEnabled != nil || d.FadeDurationMs != nil {
		opts.Animation.Fade = &splash.FadeOptions{
			Enabled:    d.FadeEnabled,
			DurationMs: d.FadeDurationMs,
		}
	}
	if d.ScaleStart != nil || d.ScaleEnd != nil || d.ScaleDurationMs != nil || d.ScaleEasing != "" {
		opts.Animation.Scale = &splash.ScaleOptions{
			StartScale: d.ScaleStart,
			EndScale:   d.ScaleEnd,
			DurationMs: d.ScaleDurationMs,
			Easing:     splash.Easing(d.ScaleEasing),
		}
	}
	return opts
}
