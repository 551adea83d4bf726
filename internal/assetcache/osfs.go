package assetcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/MimeLyc/dynamic-splash/internal/splash"
	"github.com/dustin/go-humanize"
)

// OSFileSystem is the local-disk FileSystem. Downloads stream straight into
// the destination file.
type OSFileSystem struct {
	dirs   Dirs
	client *http.Client
	log    splash.Logger
}

func NewOSFileSystem(dirs Dirs, client *http.Client, logger splash.Logger) *OSFileSystem {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = splash.Options{}.Log()
	}
	return &OSFileSystem{dirs: dirs, client: client, log: logger}
}

func (f *OSFileSystem) Dirs() Dirs {
	return f.dirs
}

func (f *OSFileSystem) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (f *OSFileSystem) Unlink(_ context.Context, path string) error {
	return os.Remove(path)
}

func (f *OSFileSystem) MoveFile(_ context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}
	// rename fails across devices; fall back to copy + remove
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func (f *OSFileSystem) DownloadFile(ctx context.Context, url, dst string) (DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return DownloadResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return DownloadResult{StatusCode: resp.StatusCode}, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return DownloadResult{}, fmt.Errorf("create directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("create %s: %w", dst, err)
	}
	written, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return DownloadResult{StatusCode: resp.StatusCode, BytesWritten: written}, fmt.Errorf("write %s: %w", dst, err)
	}

	f.log.Debug("[DynamicSplash] downloaded %s (%s)", url, humanize.Bytes(uint64(written)))
	return DownloadResult{StatusCode: resp.StatusCode, BytesWritten: written}, nil
}
