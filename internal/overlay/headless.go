package overlay

import (
	"context"
	"sync"
)

// Headless is an in-process overlay for hosts without a screen. It tracks
// visibility and the configured storage key.
type Headless struct {
	mu         sync.Mutex
	showing    bool
	storageKey string
}

func NewHeadless() *Headless {
	return &Headless{}
}

func (h *Headless) Show(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.showing = true
	return nil
}

func (h *Headless) Hide(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.showing = false
	return nil
}

func (h *Headless) IsShowing(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.showing, nil
}

func (h *Headless) SetStorageKey(key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.storageKey = key
	return nil
}
