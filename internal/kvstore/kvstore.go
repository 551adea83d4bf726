// Package kvstore provides string key/value collaborators for the metadata
// store. Each backend exposes a subset of the capability interfaces below;
// consumers discover them by type assertion.
package kvstore

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("kv store is not configured")

// SyncReader reads a value without blocking on I/O the caller cannot bound.
type SyncReader interface {
	GetStringSync(key string) (string, bool, error)
}

type AsyncReader interface {
	GetString(ctx context.Context, key string) (string, bool, error)
}

type Writer interface {
	SetString(key, value string) error
}

type Remover interface {
	Remove(key string) error
}

// Store is the full capability set implemented by the concrete backends.
type Store interface {
	SyncReader
	Writer
	Remover
}
