// Package overlay wraps the native splash overlay behind a controller whose
// availability is decided once at construction.
package overlay

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("native overlay is not available")

// Handle is the native overlay bridge.
type Handle interface {
	Show(ctx context.Context) error
	Hide(ctx context.Context) error
	IsShowing(ctx context.Context) (bool, error)
	SetStorageKey(key string) error
}

// Controller is either Available(handle) or Unavailable. The zero value is
// Unavailable.
type Controller struct {
	handle Handle
}

func Available(h Handle) Controller {
	return Controller{handle: h}
}

func Unavailable() Controller {
	return Controller{}
}

// Resolve returns Available(h) when h is non-nil and Unavailable otherwise.
func Resolve(h Handle) Controller {
	if h == nil {
		return Unavailable()
	}
	return Available(h)
}

func (c Controller) IsAvailable() bool {
	return c.handle != nil
}

func (c Controller) Show(ctx context.Context) error {
	if c.handle == nil {
		return ErrUnavailable
	}
	return c.handle.Show(ctx)
}

func (c Controller) Hide(ctx context.Context) error {
	if c.handle == nil {
		return ErrUnavailable
	}
	return c.handle.Hide(ctx)
}

func (c Controller) IsShowing(ctx context.Context) (bool, error) {
	if c.handle == nil {
		return false, ErrUnavailable
	}
	return c.handle.IsShowing(ctx)
}

func (c Controller) SetStorageKey(key string) error {
	if c.handle == nil {
		return ErrUnavailable
	}
	return c.handle.SetStorageKey(key)
}
