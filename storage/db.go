package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Reader is the read half of an ordered key-value store.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	// NewIterator walks every key with the given prefix in ascending order.
	NewIterator(prefix []byte) iterator.Iterator
}

// Database is a generic interface for an ordered key-value store. Writes are
// applied atomically through a batch so a failed invocation never leaves a
// partial state behind.
type Database interface {
	Reader
	Write(batch *leveldb.Batch) error
	Close() error
}

// --- In-Memory DB (for testing) ---

// NewMemDB returns a LevelDB instance backed by memory storage.
func NewMemDB() *LevelDB {
	db, err := leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	if err != nil {
		// Memory storage cannot fail to open.
		panic(fmt.Sprintf("storage: open memory db: %v", err))
	}
	return &LevelDB{db: db}
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Has reports whether the key is present.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

// NewIterator returns an iterator over the keys sharing prefix.
func (ldb *LevelDB) NewIterator(prefix []byte) iterator.Iterator {
	return ldb.db.NewIterator(util.BytesPrefix(prefix), nil)
}

// Write applies the batch atomically.
func (ldb *LevelDB) Write(batch *leveldb.Batch) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	return ldb.db.Write(batch, nil)
}

// Close closes the database connection.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}
