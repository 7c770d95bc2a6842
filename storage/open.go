package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"
)

// Open returns the database selected by backend, rooted at dir.
func Open(backend, dir string) (Database, error) {
	switch backend {
	case BackendMemory:
		return NewMemDB(), nil
	case BackendLevelDB, "":
		return NewLevelDB(filepath.Join(dir, "state"))
	case BackendBolt:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		return NewBoltDB(filepath.Join(dir, "state.bolt"), nil)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}
