package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MimeLyc/dynamic-splash/pkg/icron"
)

// RuntimeSettings are the schedule settings that can be changed while the
// runner is up. They are saved next to the data and override the
// environment on the next start.
type RuntimeSettings struct {
	CronExpr string `json:"cron_expr"`
	Paused   bool   `json:"paused"`
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.CronExpr) == "" {
		return fmt.Errorf("cron_expr is required")
	}
	if _, err := icron.Parse(s.CronExpr); err != nil {
		return fmt.Errorf("invalid cron_expr: %w", err)
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		CronExpr: c.Schedule.CronExpr,
		Paused:   c.Schedule.Paused,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.CronExpr) != "" {
			c.Schedule.CronExpr = settings.CronExpr
		}
		c.Schedule.Paused = settings.Paused
	}
}

// LoadRuntimeSettingsFile reads saved settings. A missing file is returned
// as an fs.ErrNotExist error.
func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	f, err := os.Open(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	defer f.Close()

	var settings RuntimeSettings
	if err := json.NewDecoder(f).Decode(&settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file %s: %w", path, err)
	}
	return settings, nil
}

// WriteRuntimeSettingsFile validates and saves settings, replacing the file
// in one rename so a reader never sees a partial document.
func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) (err error) {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create settings temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err = enc.Encode(settings); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode settings: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// RuntimeSettingsStore serves the current settings and saves updates.
// Updates are serialized so the file always matches the cached value.
type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{path: path, current: initial}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}
	s.current = next
	return next, nil
}
