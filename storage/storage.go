// Package storage defines the key/value backend the host state is committed to.
package storage

import "errors"

var (
	ErrNotFound = errors.New("key not found")
	ErrClosed   = errors.New("store is closed")
)

// KV is a byte-oriented key/value store. Get returns ErrNotFound for missing
// keys and a copy of the stored value otherwise.
type KV interface {
	Get(key []byte) ([]byte, error)
	NewBatch() Batch
	Close() error
}

// Batch collects writes that become visible atomically on Commit.
type Batch interface {
	Set(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}
