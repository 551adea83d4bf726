package manager

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MimeLyc/dynamic-splash/internal/assetcache"
	"github.com/MimeLyc/dynamic-splash/internal/kvstore"
	"github.com/MimeLyc/dynamic-splash/internal/kvstore/kvstoretest"
	"github.com/MimeLyc/dynamic-splash/internal/splash"
	"github.com/MimeLyc/dynamic-splash/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type mockOverlay struct {
	mock.Mock
}

func (m *mockOverlay) Show(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockOverlay) Hide(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockOverlay) IsShowing(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockOverlay) SetStorageKey(key string) error {
	return m.Called(key).Error(0)
}

type fixture struct {
	srv  *httptest.Server
	deps Deps
	dirs assetcache.Dirs
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png"))
	}))
	t.Cleanup(srv.Close)

	dirs := assetcache.Dirs{Document: t.TempDir(), Caches: t.TempDir()}
	return fixture{
		srv:  srv,
		dirs: dirs,
		deps: Deps{
			KV:    kvstore.NewMemory(),
			FS:    assetcache.NewOSFileSystem(dirs, srv.Client(), log.NewNopLogger()),
			Clock: func() time.Time { return testNow },
		},
	}
}

func (f fixture) config(name string) splash.SplashConfig {
	return splash.SplashConfig{
		ImageName:     name,
		Alt:           "",
		StartAt:       "2025-06-01T00:00:00Z",
		EndAt:         "2025-06-30T00:00:00Z",
		ImageURL:      f.srv.URL + "/" + name + ".png",
		ConfigVersion: "v1",
	}
}

func countingProvider(calls *atomic.Int32, input splash.Input) splash.Provider {
	return splash.ProviderFunc(func(context.Context) ([]byte, error) {
		calls.Add(1)
		return input.MarshalJSON()
	})
}

func TestNew_RequiresCollaborators(t *testing.T) {
	f := newFixture(t)
	nop := log.NewNopLogger()

	_, err := New(splash.Options{Logger: nop}, f.deps)
	assert.ErrorIs(t, err, ErrProviderRequired)

	provider := splash.ProviderFunc(func(context.Context) ([]byte, error) { return nil, nil })
	_, err = New(splash.Options{Provider: provider, Logger: nop}, Deps{})
	assert.ErrorIs(t, err, ErrFileSystemRequired)

	_, err = New(splash.Options{Provider: provider, Logger: nop, FileLocation: "sdcard"}, f.deps)
	assert.ErrorContains(t, err, "invalid file location")
}

func TestMount_BackgroundUpdate(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	m, err := New(splash.Options{
		Provider: countingProvider(&calls, splash.List(f.config("promo"))),
		Logger:   log.NewNopLogger(),
	}, f.deps)
	require.NoError(t, err)

	m.Mount(context.Background())

	assert.Equal(t, int32(1), calls.Load())
	meta := m.Meta()
	require.Equal(t, splash.StatusReady, meta.Status, meta.LastError)
	assert.FileExists(t, meta.LocalPath)

	plan := m.Plan(context.Background(), testNow)
	assert.True(t, plan.Show)
	assert.Equal(t, meta.LocalPath, plan.LocalPath)
	assert.Equal(t, "ready", m.StorageState())
	assert.Equal(t, splash.DefaultStorageKey, m.StorageKey())
}

func TestMount_ProviderFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	m, err := New(splash.Options{
		Provider: splash.ProviderFunc(func(context.Context) ([]byte, error) {
			return nil, errors.New("Network error")
		}),
		Logger: log.NewNopLogger(),
	}, f.deps)
	require.NoError(t, err)

	m.Mount(context.Background())
	assert.Equal(t, splash.StatusError, m.Meta().Status)
	assert.Equal(t, "Network error", m.Meta().LastError)
	assert.False(t, m.Plan(context.Background(), testNow).Show)
}

func TestMount_InitialConfigBypassesProvider(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	initial := splash.Single(f.config("seed"))
	m, err := New(splash.Options{
		Provider:      countingProvider(&calls, splash.List()),
		InitialConfig: &initial,
		Logger:        log.NewNopLogger(),
	}, f.deps)
	require.NoError(t, err)

	m.Mount(context.Background())
	assert.Zero(t, calls.Load())
	assert.Equal(t, "seed", m.Meta().ImageName)
}

func TestMount_InitialConfigErrorIsOnlyLogged(t *testing.T) {
	f := newFixture(t)
	expired := f.config("old")
	expired.StartAt = "2020-01-01T00:00:00Z"
	expired.EndAt = "2020-02-01T00:00:00Z"
	initial := splash.Single(expired)

	var calls atomic.Int32
	m, err := New(splash.Options{
		Provider:      countingProvider(&calls, splash.List()),
		InitialConfig: &initial,
		Logger:        log.NewNopLogger(),
	}, f.deps)
	require.NoError(t, err)

	assert.NotPanics(t, func() { m.Mount(context.Background()) })
	assert.Equal(t, splash.StatusEmpty, m.Meta().Status)
	assert.Zero(t, calls.Load())
}

func TestMount_RecoversFromPanickingProvider(t *testing.T) {
	f := newFixture(t)
	m, err := New(splash.Options{
		Provider: splash.ProviderFunc(func(context.Context) ([]byte, error) {
			panic("boom")
		}),
		Logger: log.NewNopLogger(),
	}, f.deps)
	require.NoError(t, err)

	assert.NotPanics(t, func() { m.Mount(context.Background()) })
}

func TestMount_ProceedsWhenStorageIsSlow(t *testing.T) {
	f := newFixture(t)
	f.deps.KV = kvstoretest.NewAsync(kvstore.NewMemory(), 2*time.Second)

	var calls atomic.Int32
	m, err := New(splash.Options{
		Provider:            countingProvider(&calls, splash.Single(f.config("fast"))),
		StorageReadyTimeout: 20 * time.Millisecond,
		Logger:              log.NewNopLogger(),
	}, f.deps)
	require.NoError(t, err)

	start := time.Now()
	m.Mount(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "fast", m.Meta().ImageName)
	assert.Equal(t, "loading", m.StorageState())
}

func TestMount_ShowOnUpdateUsesOverlay(t *testing.T) {
	f := newFixture(t)
	ov := &mockOverlay{}
	ov.On("SetStorageKey", "CUSTOM_KEY").Return(nil).Once()
	ov.On("Show", mock.Anything).Return(nil).Once()
	f.deps.Overlay = ov

	var calls atomic.Int32
	m, err := New(splash.Options{
		Provider:     countingProvider(&calls, splash.Single(f.config("promo"))),
		StorageKey:   "CUSTOM_KEY",
		ShowOnUpdate: true,
		Logger:       log.NewNopLogger(),
	}, f.deps)
	require.NoError(t, err)
	assert.True(t, m.OverlayAvailable())

	m.Mount(context.Background())
	ov.AssertExpectations(t)
}

func TestHideAndIsVisible(t *testing.T) {
	f := newFixture(t)
	ov := &mockOverlay{}
	ov.On("SetStorageKey", mock.Anything).Return(nil)
	ov.On("Hide", mock.Anything).Return(errors.New("bridge gone")).Once()
	ov.On("IsShowing", mock.Anything).Return(true, nil).Once()
	ov.On("IsShowing", mock.Anything).Return(false, errors.New("bridge gone")).Once()
	f.deps.Overlay = ov

	m, err := New(splash.Options{
		Provider: splash.ProviderFunc(func(context.Context) ([]byte, error) { return nil, nil }),
		Logger:   log.NewNopLogger(),
	}, f.deps)
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() { m.Hide(ctx) })
	assert.True(t, m.IsVisible(ctx))
	assert.False(t, m.IsVisible(ctx))
	ov.AssertExpectations(t)
}

func TestUnavailableOverlay(t *testing.T) {
	f := newFixture(t)
	m, err := New(splash.Options{
		Provider: splash.ProviderFunc(func(context.Context) ([]byte, error) { return nil, nil }),
		Logger:   log.NewNopLogger(),
	}, f.deps)
	require.NoError(t, err)

	ctx := context.Background()
	assert.False(t, m.OverlayAvailable())
	assert.False(t, m.IsVisible(ctx))
	assert.NotPanics(t, func() { m.Hide(ctx) })
}

func TestClear_RemovesAssetAndMeta(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	m, err := New(splash.Options{
		Provider: countingProvider(&calls, splash.Single(f.config("promo"))),
		Logger:   log.NewNopLogger(),
	}, f.deps)
	require.NoError(t, err)

	ctx := context.Background()
	m.Mount(ctx)
	path := m.Meta().LocalPath
	require.FileExists(t, path)

	res := m.Clear(ctx)
	assert.True(t, res.OK)
	assert.NoFileExists(t, path)
	assert.Equal(t, splash.EmptyMeta(), m.Meta())
	assert.Equal(t, "status is EMPTY", m.Plan(ctx, testNow).Reason)
}

func TestRefresh_ReturnsFailure(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	m, err := New(splash.Options{
		Provider: countingProvider(&calls, splash.List()),
		Logger:   log.NewNopLogger(),
	}, f.deps)
	require.NoError(t, err)

	err = m.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Config array is empty", err.Error())
	assert.Equal(t, splash.StatusError, m.Meta().Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRefresh_RecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	m, err := New(splash.Options{
		Provider: splash.ProviderFunc(func(context.Context) ([]byte, error) { panic("boom") }),
		Logger:   log.NewNopLogger(),
	}, f.deps)
	require.NoError(t, err)

	err = m.Refresh(context.Background())
	assert.ErrorContains(t, err, "boom")
}

func TestStart_ReturnsMountOutcome(t *testing.T) {
	f := newFixture(t)
	expired := f.config("old")
	expired.StartAt = "2020-01-01T00:00:00Z"
	expired.EndAt = "2020-02-01T00:00:00Z"
	initial := splash.Single(expired)

	var calls atomic.Int32
	m, err := New(splash.Options{
		Provider:      countingProvider(&calls, splash.List()),
		InitialConfig: &initial,
		Logger:        log.NewNopLogger(),
	}, f.deps)
	require.NoError(t, err)

	err = m.Start(context.Background())
	assert.EqualError(t, err, "Config is outside time window")
	assert.Equal(t, splash.StatusEmpty, m.Meta().Status, "initial config failures are not recorded as metadata")
	assert.Zero(t, calls.Load())

	m, err = New(splash.Options{
		Provider: countingProvider(&calls, splash.List(f.config("promo"))),
		Logger:   log.NewNopLogger(),
	}, Deps{KV: kvstore.NewMemory(), FS: f.deps.FS, Clock: f.deps.Clock})
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, splash.StatusReady, m.Meta().Status)
}

func TestStart_RecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	m, err := New(splash.Options{
		Provider: splash.ProviderFunc(func(context.Context) ([]byte, error) { panic("boom") }),
		Logger:   log.NewNopLogger(),
	}, f.deps)
	require.NoError(t, err)

	err = m.Start(context.Background())
	assert.ErrorContains(t, err, "mount panicked: boom")
}
