// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package watermark

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/safetybot/internal/logging"
)

// BadgerBackend stores watermarks in an embedded BadgerDB with synchronous
// writes, so a value is on disk once Save returns.
type BadgerBackend struct {
	db           *badger.DB
	closeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// OpenBadger opens (or creates) a BadgerDB at path.
func OpenBadger(path string) (*BadgerBackend, error) {
	if path == "" {
		return nil, errors.New("badger path is required")
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	// Watermarks are a handful of 8-byte values.
	opts.MemTableSize = 8 << 20
	opts.ValueLogFileSize = 16 << 20
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().Str("path", path).Msg("Watermark store opened")
	return &BadgerBackend{db: db, closeTimeout: 10 * time.Second}, nil
}

// Load implements Backend.
func (b *BadgerBackend) Load(_ context.Context, key string) (uint64, bool, error) {
	if b.isClosed() {
		return 0, false, ErrClosed
	}

	var (
		value uint64
		found bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt watermark for %s: %d bytes", key, len(val))
			}
			value = binary.BigEndian.Uint64(val)
			found = true
			return nil
		})
	})
	if err != nil {
		return 0, false, fmt.Errorf("badger load %s: %w", key, err)
	}
	return value, found, nil
}

// Save implements Backend.
func (b *BadgerBackend) Save(_ context.Context, key string, value uint64) error {
	if b.isClosed() {
		return ErrClosed
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), buf))
	})
	if err != nil {
		return fmt.Errorf("badger save %s: %w", key, err)
	}
	return nil
}

// Ping implements Backend.
func (b *BadgerBackend) Ping(_ context.Context) error {
	if b.isClosed() || b.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Close implements Backend. It gives up after closeTimeout.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- b.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Watermark store closed")
		return nil
	case <-time.After(b.closeTimeout):
		return fmt.Errorf("badgerdb close timeout after %v", b.closeTimeout)
	}
}

func (b *BadgerBackend) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
