package storage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/comparer"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/memdb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// KV is a readable and writable ordered key-value view.
type KV interface {
	Reader
	Put(key, value []byte) error
	Delete(key []byte) error
}

const (
	markDeleted byte = 0
	markWritten byte = 1
)

// Staged buffers writes on top of a Database. Reads observe the buffered
// writes; nothing reaches the base store until Commit. Discard drops the
// buffer. A Staged value is not safe for concurrent use.
type Staged struct {
	base   Database
	buffer *memdb.DB
}

// NewStaged returns an empty write buffer over base.
func NewStaged(base Database) *Staged {
	return &Staged{base: base, buffer: memdb.New(comparer.DefaultComparer, 0)}
}

// Get returns the buffered value when present, otherwise the base value.
func (s *Staged) Get(key []byte) ([]byte, error) {
	raw, err := s.buffer.Get(key)
	switch {
	case err == nil:
		if raw[0] == markDeleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), raw[1:]...), nil
	case errors.Is(err, memdb.ErrNotFound):
		return s.base.Get(key)
	default:
		return nil, err
	}
}

// Has reports whether key resolves to a value.
func (s *Staged) Has(key []byte) (bool, error) {
	_, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Put buffers a write.
func (s *Staged) Put(key, value []byte) error {
	marked := make([]byte, 1+len(value))
	marked[0] = markWritten
	copy(marked[1:], value)
	return s.buffer.Put(key, marked)
}

// Delete buffers a tombstone.
func (s *Staged) Delete(key []byte) error {
	return s.buffer.Put(key, []byte{markDeleted})
}

// NewIterator merges the base keys under prefix with the buffered writes.
// Tombstoned keys are skipped.
func (s *Staged) NewIterator(prefix []byte) iterator.Iterator {
	baseItems, err := collect(s.base.NewIterator(prefix))
	if err != nil {
		return iterator.NewEmptyIterator(err)
	}
	overlay, err := collect(s.buffer.NewIterator(util.BytesPrefix(prefix)))
	if err != nil {
		return iterator.NewEmptyIterator(err)
	}
	merged := make(entries, 0, len(baseItems)+len(overlay))
	i, j := 0, 0
	for i < len(baseItems) || j < len(overlay) {
		var cmp int
		switch {
		case i == len(baseItems):
			cmp = 1
		case j == len(overlay):
			cmp = -1
		default:
			cmp = bytes.Compare(baseItems[i].key, overlay[j].key)
		}
		if cmp < 0 {
			merged = append(merged, baseItems[i])
			i++
			continue
		}
		if cmp == 0 {
			i++
		}
		if overlay[j].value[0] == markWritten {
			merged = append(merged, entry{key: overlay[j].key, value: overlay[j].value[1:]})
		}
		j++
	}
	return newSnapshotIterator(merged)
}

// Pending returns the number of buffered writes and tombstones.
func (s *Staged) Pending() int {
	return s.buffer.Len()
}

// Commit flushes the buffer to the base store in a single batch and resets
// the buffer.
func (s *Staged) Commit() error {
	batch := new(leveldb.Batch)
	iter := s.buffer.NewIterator(nil)
	for iter.Next() {
		value := iter.Value()
		if value[0] == markDeleted {
			batch.Delete(iter.Key())
			continue
		}
		batch.Put(iter.Key(), value[1:])
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("storage: read staged writes: %w", err)
	}
	if err := s.base.Write(batch); err != nil {
		return fmt.Errorf("storage: commit staged writes: %w", err)
	}
	s.buffer.Reset()
	return nil
}

// Discard drops every buffered write.
func (s *Staged) Discard() {
	s.buffer.Reset()
}
