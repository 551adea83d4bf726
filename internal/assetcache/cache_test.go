package assetcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/dynamic-splash/internal/splash"
	"github.com/MimeLyc/dynamic-splash/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFS struct {
	mu    sync.Mutex
	dirs  Dirs
	files map[string]string

	status      int
	downloadErr error
	moveErr     error
	existsErr   error
	unlinkErr   error

	downloads []string
	unlinks   []string
	moves     [][2]string
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		dirs:   Dirs{Document: "/doc", Caches: "/cache"},
		files:  map[string]string{},
		status: 200,
	}
}

func (f *fakeFS) Dirs() Dirs { return f.dirs }

func (f *fakeFS) Exists(_ context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.files[path]
	return ok, nil
}

func (f *fakeFS) Unlink(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlinks = append(f.unlinks, path)
	if f.unlinkErr != nil {
		return f.unlinkErr
	}
	delete(f.files, path)
	return nil
}

func (f *fakeFS) MoveFile(_ context.Context, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moveErr != nil {
		return f.moveErr
	}
	body, ok := f.files[src]
	if !ok {
		return errors.New("source missing")
	}
	delete(f.files, src)
	f.files[dst] = body
	f.moves = append(f.moves, [2]string{src, dst})
	return nil
}

func (f *fakeFS) DownloadFile(_ context.Context, url, dst string) (DownloadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, url)
	if f.downloadErr != nil {
		return DownloadResult{}, f.downloadErr
	}
	// partial body is written even on failure statuses
	f.files[dst] = "body:" + url
	return DownloadResult{StatusCode: f.status, BytesWritten: int64(len(url))}, nil
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.UnixMilli(1700000000000) }
}

func newTestCache(fs FileSystem, loc splash.FileLocation) *Cache {
	return New(fs, loc, WithClock(fixedClock()), WithLogger(log.NewNopLogger()))
}

func TestDownloadImage_TempPathInCaches(t *testing.T) {
	fs := newFakeFS()
	c := newTestCache(fs, splash.LocationDocument)

	stale := "/cache/splash_temp_1700000000000_promo"
	fs.files[stale] = "old"

	path, err := c.DownloadImage(context.Background(), "https://x/promo.png", "promo")
	require.NoError(t, err)
	assert.Equal(t, stale, path)
	assert.Equal(t, "body:https://x/promo.png", fs.files[path])
	assert.Equal(t, []string{stale}, fs.unlinks)
}

func TestDownloadImage_BadStatus(t *testing.T) {
	fs := newFakeFS()
	fs.status = 404
	c := newTestCache(fs, splash.LocationDocument)

	_, err := c.DownloadImage(context.Background(), "https://x/a.png", "a")
	require.Error(t, err)
	assert.Equal(t, "Download failed with status 404", err.Error())

	var dErr *DownloadError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, 404, dErr.StatusCode)
	assert.Empty(t, fs.files, "partial temp file is removed")
}

func TestDownloadImage_TransportErrorPropagates(t *testing.T) {
	fs := newFakeFS()
	fs.downloadErr = errors.New("connection reset")
	c := newTestCache(fs, splash.LocationDocument)

	_, err := c.DownloadImage(context.Background(), "https://x/a.png", "a")
	assert.EqualError(t, err, "connection reset")
}

func TestDownloadImage_RejectsPathLikeNames(t *testing.T) {
	c := newTestCache(newFakeFS(), splash.LocationDocument)
	_, err := c.DownloadImage(context.Background(), "https://x/a.png", "../etc/passwd")
	assert.ErrorContains(t, err, "invalid image name")
}

func TestCommitImage_ByLocation(t *testing.T) {
	tests := []struct {
		loc  splash.FileLocation
		want string
	}{
		{loc: splash.LocationDocument, want: "/doc/promo"},
		{loc: splash.LocationCache, want: "/cache/promo"},
		{loc: "", want: "/doc/promo"},
	}
	for _, tt := range tests {
		t.Run(string(tt.loc), func(t *testing.T) {
			fs := newFakeFS()
			fs.files["/cache/tmp"] = "new"
			fs.files[tt.want] = "previous"
			c := newTestCache(fs, tt.loc)

			dest, err := c.CommitImage(context.Background(), "/cache/tmp", "promo")
			require.NoError(t, err)
			assert.Equal(t, tt.want, dest)
			assert.Equal(t, "new", fs.files[dest])
			_, tempLeft := fs.files["/cache/tmp"]
			assert.False(t, tempLeft)
		})
	}
}

func TestCommitImage_MoveErrorPropagates(t *testing.T) {
	fs := newFakeFS()
	fs.moveErr = errors.New("read-only file system")
	c := newTestCache(fs, splash.LocationDocument)

	_, err := c.CommitImage(context.Background(), "/cache/tmp", "promo")
	assert.EqualError(t, err, "read-only file system")
}

func TestExistsAndDelete_NeverFail(t *testing.T) {
	fs := newFakeFS()
	c := newTestCache(fs, splash.LocationDocument)
	ctx := context.Background()

	assert.False(t, c.Exists(ctx, ""))
	assert.False(t, c.Exists(ctx, "/doc/none"))
	c.Delete(ctx, "/doc/none")
	assert.Empty(t, fs.unlinks, "absent files are not unlinked")

	fs.files["/doc/a"] = "x"
	assert.True(t, c.Exists(ctx, "/doc/a"))

	fs.unlinkErr = errors.New("busy")
	assert.NotPanics(t, func() { c.Delete(ctx, "/doc/a") })

	fs.existsErr = errors.New("bridge down")
	assert.False(t, c.Exists(ctx, "/doc/a"))
}

func TestSweepTemp_RemovesOldTempFiles(t *testing.T) {
	caches := t.TempDir()
	osfs := NewOSFileSystem(Dirs{Document: t.TempDir(), Caches: caches}, nil, log.NewNopLogger())
	c := New(osfs, splash.LocationDocument, WithLogger(log.NewNopLogger()))

	old := filepath.Join(caches, "splash_temp_1_a")
	fresh := filepath.Join(caches, "splash_temp_2_b")
	keep := filepath.Join(caches, "other")
	for _, p := range []string{old, fresh, keep} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(keep, past, past))

	removed, err := c.SweepTemp(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, keep)
}
