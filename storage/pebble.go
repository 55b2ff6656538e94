package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a pebble database at path. opts may be nil.
func OpenPebble(path string, opts *pebble.Options) (*Pebble, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &Pebble{db: db}, nil
}

func (p *Pebble) Get(key []byte) ([]byte, error) {
	if p.db == nil {
		return nil, ErrClosed
	}
	val, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (p *Pebble) NewBatch() Batch {
	return &pebbleBatch{db: p.db, batch: p.db.NewBatch()}
}

func (p *Pebble) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

type pebbleBatch struct {
	db    *pebble.DB
	batch *pebble.Batch
}

func (b *pebbleBatch) Set(key, value []byte) error {
	return b.batch.Set(key, value, nil)
}

func (b *pebbleBatch) Delete(key []byte) error {
	return b.batch.Delete(key, nil)
}

func (b *pebbleBatch) Commit() error {
	defer b.batch.Close()
	return b.batch.Commit(pebble.Sync)
}

// Logger is the structured logger PebbleLogger writes to.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// PebbleLogger routes pebble's printf-style logging to a structured logger.
// Set it as pebble.Options.Logger.
type PebbleLogger struct {
	Logger Logger
}

func (l PebbleLogger) Infof(format string, args ...interface{}) {
	l.Logger.Info(fmt.Sprintf(format, args...), "component", "pebble")
}

func (l PebbleLogger) Errorf(format string, args ...interface{}) {
	l.Logger.Error(fmt.Sprintf(format, args...), "component", "pebble")
}

// Fatalf logs and panics; pebble expects it not to return.
func (l PebbleLogger) Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.Logger.Error(msg, "component", "pebble")
	panic(msg)
}
