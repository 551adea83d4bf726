// Package kvstoretest provides key/value stores for tests of code that
// reads stored metadata.
package kvstoretest

import (
	"context"
	"time"

	"github.com/MimeLyc/dynamic-splash/internal/kvstore"
)

// Async exposes only the asynchronous read path of an underlying store, the
// way a bridge without synchronous access would. Delay is applied before
// every read.
type Async struct {
	inner kvstore.Store
	Delay time.Duration
}

func NewAsync(inner kvstore.Store, delay time.Duration) *Async {
	return &Async{inner: inner, Delay: delay}
}

func (a *Async) GetString(ctx context.Context, key string) (string, bool, error) {
	if a == nil || a.inner == nil {
		return "", false, kvstore.ErrNotConfigured
	}
	if a.Delay > 0 {
		timer := time.NewTimer(a.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-timer.C:
		}
	}
	return a.inner.GetStringSync(key)
}

func (a *Async) SetString(key, value string) error {
	if a == nil || a.inner == nil {
		return kvstore.ErrNotConfigured
	}
	return a.inner.SetString(key, value)
}

func (a *Async) Remove(key string) error {
	if a == nil || a.inner == nil {
		return kvstore.ErrNotConfigured
	}
	return a.inner.Remove(key)
}
