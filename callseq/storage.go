package callseq

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Storage persists the manifest blobs.
type Storage interface {
	SaveState(key string, blob []byte) error
	// LoadState returns false when the key is not stored.
	LoadState(key string) ([]byte, bool, error)
	DeleteState(key string) error
	// ListKeys returns the stored keys in ascending order.
	ListKeys() ([]string, error)
	Close()
}

// KeyPrefixStorage scopes a Storage to the keys starting with prefix, so several users can share one store. Keys are
// passed and listed without the prefix.
func KeyPrefixStorage(s Storage, prefix string) Storage {
	if prefix == "" {
		return s
	}
	return &scopedStorage{Storage: s, scope: prefix + ";"}
}

type scopedStorage struct {
	Storage
	scope string
}

func (s *scopedStorage) SaveState(key string, blob []byte) error {
	return s.Storage.SaveState(s.scope+key, blob)
}

func (s *scopedStorage) LoadState(key string) ([]byte, bool, error) {
	return s.Storage.LoadState(s.scope + key)
}

func (s *scopedStorage) DeleteState(key string) error {
	return s.Storage.DeleteState(s.scope + key)
}

func (s *scopedStorage) ListKeys() ([]string, error) {
	all, err := s.Storage.ListKeys()
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, k := range all {
		if key, ok := strings.CutPrefix(k, s.scope); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// memStorage keeps the manifest for a single run, used when no manifest directory is configured.
type memStorage struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemStorage returns a Storage held in memory.
func NewMemStorage() Storage {
	return &memStorage{blobs: make(map[string][]byte)}
}

func (m *memStorage) SaveState(key string, blob []byte) error {
	m.mu.Lock()
	m.blobs[key] = bytes.Clone(blob)
	m.mu.Unlock()
	return nil
}

func (m *memStorage) LoadState(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[key]
	return bytes.Clone(blob), ok, nil
}

func (m *memStorage) DeleteState(key string) error {
	m.mu.Lock()
	delete(m.blobs, key)
	m.mu.Unlock()
	return nil
}

func (m *memStorage) ListKeys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.blobs)), nil
}

func (m *memStorage) Close() {}

type badgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens the manifest database in dir, creating it when missing. Unlike the in-memory storage the
// content survives the process, so sites recorded while applying probes can annotate a later call tree view.
func NewBadgerStorage(dir string, maxMemMB int) (Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create manifest dir %s: %w", dir, err)
	}

	tableSize := int64(min(max(maxMemMB/4, 8), 64)) << 20
	// SaveState compresses the values itself
	db, err := badger.Open(badger.DefaultOptions(dir).
		WithCompression(options.None).
		WithBlockCacheSize(0).
		WithNumMemtables(2).
		WithMemTableSize(tableSize).
		WithBaseTableSize(tableSize).
		WithLoggingLevel(badger.ERROR).
		WithMetricsEnabled(false))
	if err != nil {
		return nil, fmt.Errorf("open manifest db %s: %w", dir, err)
	}
	return &badgerStorage{db: db}, nil
}

func (b *badgerStorage) SaveState(key string, blob []byte) error {
	value := ZstdCompress(nil, blob)
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (b *badgerStorage) LoadState(key string) (blob []byte, found bool, err error) {
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			blob, err = ZstdDecompress(nil, val)
			return err
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", key, err)
	}
	return blob, found, nil
}

func (b *badgerStorage) DeleteState(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *badgerStorage) ListKeys() ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()))
		}
		return nil
	})
	return keys, err
}

func (b *badgerStorage) Close() {
	_ = b.db.Close()
}
