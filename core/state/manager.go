package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"cyberswap/storage"
)

// Manager provides RLP-encoded key/value access and monotonic counters over
// a single invocation's write set.
type Manager struct {
	kv storage.KV
}

// NewManager wraps kv.
func NewManager(kv storage.KV) *Manager {
	return &Manager{kv: kv}
}

// Store exposes the underlying view for packages that index their own keys.
func (m *Manager) Store() storage.KV { return m.kv }

// KVPut encodes value with RLP and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.kv.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.kv.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes key. Deleting an absent key is not an error.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.kv.Delete(key)
}

// Counter returns the current value of a counter; unset counters read 0.
func (m *Manager) Counter(key []byte) (uint64, error) {
	var value uint64
	if _, err := m.KVGet(key, &value); err != nil {
		return 0, fmt.Errorf("counter %s: %w", key, err)
	}
	return value, nil
}

// NextCounter increments the counter and returns the new value. The first
// call returns 1, so 0 never names a record.
func (m *Manager) NextCounter(key []byte) (uint64, error) {
	current, err := m.Counter(key)
	if err != nil {
		return 0, err
	}
	if current == ^uint64(0) {
		return 0, fmt.Errorf("counter %s exhausted", key)
	}
	next := current + 1
	if err := m.KVPut(key, next); err != nil {
		return 0, err
	}
	return next, nil
}
