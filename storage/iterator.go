package storage

import (
	"bytes"
	"sort"

	"github.com/syndtr/goleveldb/leveldb/iterator"
)

type entry struct {
	key   []byte
	value []byte
}

// entries is a sorted key/value snapshot exposed through goleveldb's array
// iterator.
type entries []entry

func (e entries) Len() int { return len(e) }

func (e entries) Search(key []byte) int {
	return sort.Search(len(e), func(i int) bool { return bytes.Compare(e[i].key, key) >= 0 })
}

func (e entries) Index(i int) (key, value []byte) { return e[i].key, e[i].value }

func newSnapshotIterator(items entries) iterator.Iterator {
	return iterator.NewArrayIterator(items)
}

// collect drains an iterator into a snapshot, copying keys and values.
func collect(iter iterator.Iterator) (entries, error) {
	defer iter.Release()
	var out entries
	for iter.Next() {
		out = append(out, entry{
			key:   append([]byte(nil), iter.Key()...),
			value: append([]byte(nil), iter.Value()...),
		})
	}
	return out, iter.Error()
}
