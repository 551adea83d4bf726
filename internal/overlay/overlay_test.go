package overlay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockHandle struct {
	mock.Mock
}

func (m *mockHandle) Show(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockHandle) Hide(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockHandle) IsShowing(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockHandle) SetStorageKey(key string) error {
	return m.Called(key).Error(0)
}

func TestController_DelegatesWhenAvailable(t *testing.T) {
	ctx := context.Background()
	h := &mockHandle{}
	h.On("Show", ctx).Return(nil).Once()
	h.On("Hide", ctx).Return(errors.New("bridge gone")).Once()
	h.On("IsShowing", ctx).Return(true, nil).Once()
	h.On("SetStorageKey", "KEY").Return(nil).Once()

	c := Resolve(h)
	require.True(t, c.IsAvailable())
	assert.NoError(t, c.Show(ctx))
	assert.EqualError(t, c.Hide(ctx), "bridge gone")
	showing, err := c.IsShowing(ctx)
	require.NoError(t, err)
	assert.True(t, showing)
	assert.NoError(t, c.SetStorageKey("KEY"))

	h.AssertExpectations(t)
}

func TestController_UnavailableNeverCallsThrough(t *testing.T) {
	ctx := context.Background()
	for _, c := range []Controller{Unavailable(), Resolve(nil), {}} {
		assert.False(t, c.IsAvailable())
		assert.ErrorIs(t, c.Show(ctx), ErrUnavailable)
		assert.ErrorIs(t, c.Hide(ctx), ErrUnavailable)
		showing, err := c.IsShowing(ctx)
		assert.False(t, showing)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.ErrorIs(t, c.SetStorageKey("k"), ErrUnavailable)
	}
}

func TestHeadless_TracksVisibility(t *testing.T) {
	ctx := context.Background()
	h := NewHeadless()
	c := Available(h)

	require.NoError(t, c.SetStorageKey("DYNAMIC_SPLASH_META_V1"))
	require.NoError(t, c.Show(ctx))
	showing, err := c.IsShowing(ctx)
	require.NoError(t, err)
	assert.True(t, showing)

	require.NoError(t, c.Hide(ctx))
	showing, err = c.IsShowing(ctx)
	require.NoError(t, err)
	assert.False(t, showing)

	assert.Equal(t, "DYNAMIC_SPLASH_META_V1", h.boundKey())
}

func TestHeadless_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := NewHeadless()
	assert.ErrorIs(t, h.Show(ctx), context.Canceled)
	_, err := h.IsShowing(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
