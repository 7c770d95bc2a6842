package storage

import (
	"bytes"
	"errors"
	"os"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("state")

// BoltDB stores state in a single bbolt bucket. Iterators are snapshots taken
// inside a read transaction.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens (creating when missing) the bbolt file at path.
func NewBoltDB(path string, options *bolt.Options) (*BoltDB, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, os.FileMode(0o600), options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltDB{db: db}, nil
}

// Get retrieves a copy of the value stored under key.
func (b *BoltDB) Get(key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get(key)
		if raw == nil {
			return ErrNotFound
		}
		value = append([]byte(nil), raw...)
		return nil
	})
	return value, err
}

// Has reports whether the key is present.
func (b *BoltDB) Has(key []byte) (bool, error) {
	_, err := b.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// NewIterator snapshots every key with the prefix.
func (b *BoltDB) NewIterator(prefix []byte) iterator.Iterator {
	var items entries
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			items = append(items, entry{
				key:   append([]byte(nil), k...),
				value: append([]byte(nil), v...),
			})
		}
		return nil
	})
	if err != nil {
		return iterator.NewEmptyIterator(err)
	}
	return newSnapshotIterator(items)
}

type boltReplay struct {
	bucket *bolt.Bucket
	err    error
}

func (r *boltReplay) Put(key, value []byte) {
	if r.err == nil {
		r.err = r.bucket.Put(key, value)
	}
}

func (r *boltReplay) Delete(key []byte) {
	if r.err == nil {
		r.err = r.bucket.Delete(key)
	}
}

// Write replays the batch inside one bbolt read-write transaction.
func (b *BoltDB) Write(batch *leveldb.Batch) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		replay := &boltReplay{bucket: tx.Bucket(boltBucket)}
		if err := batch.Replay(replay); err != nil {
			return err
		}
		return replay.err
	})
}

// Close releases the underlying bbolt handle.
func (b *BoltDB) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
