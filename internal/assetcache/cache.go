// Package assetcache downloads splash images to a temporary location and
// promotes them to a stable path under the configured base directory.
package assetcache

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/MimeLyc/dynamic-splash/internal/splash"
	"github.com/MimeLyc/dynamic-splash/pkg/file"
)

const tempPrefix = "splash_temp_"

// Dirs are the two base directories a FileSystem exposes.
type Dirs struct {
	Document string
	Caches   string
}

type DownloadResult struct {
	StatusCode   int
	BytesWritten int64
}

// FileSystem is the file primitive collaborator. DownloadFile reports the
// HTTP status; only 200 is success.
type FileSystem interface {
	Dirs() Dirs
	Exists(ctx context.Context, path string) (bool, error)
	Unlink(ctx context.Context, path string) error
	MoveFile(ctx context.Context, src, dst string) error
	DownloadFile(ctx context.Context, url, dst string) (DownloadResult, error)
}

type DownloadError struct {
	StatusCode int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("Download failed with status %d", e.StatusCode)
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(l splash.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

type Cache struct {
	fs       FileSystem
	location splash.FileLocation
	now      func() time.Time
	log      splash.Logger
}

func New(fs FileSystem, location splash.FileLocation, opts ...Option) *Cache {
	if !location.Valid() {
		location = splash.LocationDocument
	}
	c := &Cache{
		fs:       fs,
		location: location,
		now:      time.Now,
		log:      splash.Options{}.Log(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) baseDir() string {
	dirs := c.fs.Dirs()
	if c.location == splash.LocationCache {
		return dirs.Caches
	}
	return dirs.Document
}

// DownloadImage fetches url into a fresh temp file in the caches directory
// and returns its path.
func (c *Cache) DownloadImage(ctx context.Context, url, filename string) (string, error) {
	name, err := file.CleanName(filename)
	if err != nil {
		return "", fmt.Errorf("invalid image name: %w", err)
	}
	tempPath := filepath.Join(c.fs.Dirs().Caches, fmt.Sprintf("%s%d_%s", tempPrefix, c.now().UnixMilli(), name))

	c.safeUnlink(ctx, tempPath)

	res, err := c.fs.DownloadFile(ctx, url, tempPath)
	if err != nil {
		c.safeUnlink(ctx, tempPath)
		return "", err
	}
	if res.StatusCode != 200 {
		c.safeUnlink(ctx, tempPath)
		return "", &DownloadError{StatusCode: res.StatusCode}
	}
	return tempPath, nil
}

// CommitImage moves tempPath to <base>/<filename>, replacing any previous
// file there.
func (c *Cache) CommitImage(ctx context.Context, tempPath, filename string) (string, error) {
	name, err := file.CleanName(filename)
	if err != nil {
		return "", fmt.Errorf("invalid image name: %w", err)
	}
	dest := filepath.Join(c.baseDir(), name)

	c.safeUnlink(ctx, dest)

	if err := c.fs.MoveFile(ctx, tempPath, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (c *Cache) Exists(ctx context.Context, path string) bool {
	if path == "" {
		return false
	}
	ok, err := c.fs.Exists(ctx, path)
	if err != nil {
		c.log.Debug("[DynamicSplash] exists %s: %v", path, err)
		return false
	}
	return ok
}

// Delete removes path if present. Failures are logged only.
func (c *Cache) Delete(ctx context.Context, path string) {
	c.safeUnlink(ctx, path)
}

func (c *Cache) safeUnlink(ctx context.Context, path string) {
	if !c.Exists(ctx, path) {
		return
	}
	if err := c.fs.Unlink(ctx, path); err != nil {
		c.log.Debug("[DynamicSplash] unlink %s: %v", path, err)
	}
}

// SweepTemp removes temp downloads in the caches directory older than
// olderThan, left behind by interrupted runs. It returns how many were
// removed.
func (c *Cache) SweepTemp(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := file.FindOlderThan(c.fs.Dirs().Caches, tempPrefix, c.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("scan temp files: %w", err)
	}
	removed := 0
	for _, path := range stale {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := c.fs.Unlink(ctx, path); err != nil {
			c.log.Warn("[DynamicSplash] remove stale temp %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		c.log.Info("[DynamicSplash] removed %d stale temp file(s)", removed)
	}
	return removed, nil
}
