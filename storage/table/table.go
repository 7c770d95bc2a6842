// Package table implements a primary-keyed record table with secondary
// indexes over an ordered key-value view. Every index lives under its own key
// prefix and is maintained in the same write set as the record it points to.
package table

import (
	"bytes"
	"errors"
	"fmt"

	"cyberswap/storage"
)

var (
	// ErrExists is returned by Insert when the primary key is taken.
	ErrExists = errors.New("table: primary key exists")
	// ErrNotFound is returned when the primary key is absent.
	ErrNotFound = errors.New("table: record not found")
	// ErrIndexConflict is returned when a unique index key already points at
	// another record.
	ErrIndexConflict = errors.New("table: unique index conflict")
)

// Codec converts records to and from their stored form.
type Codec[T any] struct {
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

// Index derives a secondary key from a record. A nil key leaves the record
// out of the index.
type Index[T any] struct {
	name   string
	unique bool
	key    func(T) []byte
	prefix []byte
}

// Unique declares an index whose keys identify at most one record.
func Unique[T any](name string, key func(T) []byte) *Index[T] {
	return &Index[T]{name: name, unique: true, key: key}
}

// Multi declares an index whose keys may be shared by many records. Entries
// sort by index key then primary key.
func Multi[T any](name string, key func(T) []byte) *Index[T] {
	return &Index[T]{name: name, key: key}
}

// Table binds a record codec and its indexes to a key prefix.
type Table[T any] struct {
	pkPrefix []byte
	codec    Codec[T]
	indexes  []*Index[T]
}

// New constructs a table rooted at prefix. Indexes are bound to the table and
// must not be shared between tables.
func New[T any](prefix string, codec Codec[T], indexes ...*Index[T]) *Table[T] {
	t := &Table[T]{pkPrefix: join([]byte(prefix), []byte("pk/")), codec: codec}
	for _, idx := range indexes {
		idx.prefix = join([]byte(prefix), []byte(idx.name+"/"))
		t.indexes = append(t.indexes, idx)
	}
	return t
}

func join(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func (t *Table[T]) primaryKey(pk []byte) []byte { return join(t.pkPrefix, pk) }

func (idx *Index[T]) entryKey(key, pk []byte) []byte {
	if idx.unique {
		return join(idx.prefix, key)
	}
	return join(idx.prefix, key, pk)
}

// Load returns the record stored under pk.
func (t *Table[T]) Load(kv storage.Reader, pk []byte) (T, bool, error) {
	var zero T
	raw, err := kv.Get(t.primaryKey(pk))
	if errors.Is(err, storage.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	value, err := t.codec.Decode(raw)
	if err != nil {
		return zero, false, fmt.Errorf("table: decode %x: %w", pk, err)
	}
	return value, true, nil
}

// Has reports whether pk is present.
func (t *Table[T]) Has(kv storage.Reader, pk []byte) (bool, error) {
	return kv.Has(t.primaryKey(pk))
}

// Insert stores a new record, failing when pk is already present.
func (t *Table[T]) Insert(kv storage.KV, pk []byte, value T) error {
	exists, err := t.Has(kv, pk)
	if err != nil {
		return err
	}
	if exists {
		return ErrExists
	}
	return t.write(kv, pk, value, nil)
}

// Save upserts a record, moving any index entries whose keys changed.
func (t *Table[T]) Save(kv storage.KV, pk []byte, value T) error {
	old, ok, err := t.Load(kv, pk)
	if err != nil {
		return err
	}
	if !ok {
		return t.write(kv, pk, value, nil)
	}
	return t.write(kv, pk, value, &old)
}

// Remove deletes the record and its index entries.
func (t *Table[T]) Remove(kv storage.KV, pk []byte) error {
	old, ok, err := t.Load(kv, pk)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	for _, idx := range t.indexes {
		if key := idx.key(old); key != nil {
			if err := kv.Delete(idx.entryKey(key, pk)); err != nil {
				return err
			}
		}
	}
	return kv.Delete(t.primaryKey(pk))
}

func (t *Table[T]) write(kv storage.KV, pk []byte, value T, old *T) error {
	// Check unique constraints before touching anything.
	for _, idx := range t.indexes {
		if !idx.unique {
			continue
		}
		key := idx.key(value)
		if key == nil {
			continue
		}
		current, err := kv.Get(idx.entryKey(key, pk))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if !bytes.Equal(current, pk) {
			return fmt.Errorf("%w: %s", ErrIndexConflict, idx.name)
		}
	}
	if old != nil {
		for _, idx := range t.indexes {
			if key := idx.key(*old); key != nil {
				if err := kv.Delete(idx.entryKey(key, pk)); err != nil {
					return err
				}
			}
		}
	}
	encoded, err := t.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("table: encode %x: %w", pk, err)
	}
	if err := kv.Put(t.primaryKey(pk), encoded); err != nil {
		return err
	}
	for _, idx := range t.indexes {
		if key := idx.key(value); key != nil {
			if err := kv.Put(idx.entryKey(key, pk), append([]byte(nil), pk...)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Scan visits records whose primary key starts with prefix in ascending key
// order until fn returns false.
func (t *Table[T]) Scan(kv storage.Reader, prefix []byte, fn func(pk []byte, value T) (bool, error)) error {
	iter := kv.NewIterator(t.primaryKey(prefix))
	defer iter.Release()
	for iter.Next() {
		pk := append([]byte(nil), iter.Key()[len(t.pkPrefix):]...)
		value, err := t.codec.Decode(iter.Value())
		if err != nil {
			return fmt.Errorf("table: decode %x: %w", pk, err)
		}
		more, err := fn(pk, value)
		if err != nil || !more {
			return err
		}
	}
	return iter.Error()
}

// Lookup resolves a unique index key to the record's primary key.
func (idx *Index[T]) Lookup(kv storage.Reader, key []byte) ([]byte, bool, error) {
	if !idx.unique {
		return nil, false, fmt.Errorf("table: index %s is not unique", idx.name)
	}
	pk, err := kv.Get(idx.entryKey(key, nil))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return pk, true, nil
}

// Each visits index entries whose key starts with prefix, ascending or
// descending, until fn returns false. fn receives the full stored entry key
// without the index prefix, and the record's primary key.
func (idx *Index[T]) Each(kv storage.Reader, prefix []byte, reverse bool, fn func(entry, pk []byte) (bool, error)) error {
	iter := kv.NewIterator(join(idx.prefix, prefix))
	defer iter.Release()
	step := iter.Next
	if reverse {
		if !iter.Last() {
			return iter.Error()
		}
		step = iter.Prev
		more, err := fn(append([]byte(nil), iter.Key()[len(idx.prefix):]...), append([]byte(nil), iter.Value()...))
		if err != nil || !more {
			return err
		}
	}
	for step() {
		more, err := fn(append([]byte(nil), iter.Key()[len(idx.prefix):]...), append([]byte(nil), iter.Value()...))
		if err != nil || !more {
			return err
		}
	}
	return iter.Error()
}
