package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

// ErrKeyNotFound is returned by Get when the key has never been written.
var ErrKeyNotFound = errors.New("key not found")

// Store is a namespaced view over a single badger database. Every key is
// stored as namespace+key so unrelated records (ledger, job registry) can
// share one data directory.
type Store struct {
	db *badger.DB
}

func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dataDir, "badger"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(namespace, key string) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(namespace + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	return value, err
}

// Set writes value under key in its own transaction. Badger commits the
// write atomically, so readers see either the old or the new value.
func (s *Store) Set(namespace, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(namespace+key), value)
	})
}

// SetIfAbsent writes value only when key does not exist yet. It reports
// whether the write happened.
func (s *Store) SetIfAbsent(namespace, key string, value []byte) (bool, error) {
	written := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(namespace + key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		written = true
		return txn.Set([]byte(namespace+key), value)
	})
	if err != nil {
		return false, err
	}
	return written, nil
}

// List returns keys under namespace+prefix with the namespace stripped.
// A limit <= 0 means no limit.
func (s *Store) List(namespace, prefix string, limit int) ([]string, error) {
	var keys []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		fullPrefix := []byte(namespace + prefix)
		for it.Seek(fullPrefix); it.ValidForPrefix(fullPrefix); it.Next() {
			if limit > 0 && len(keys) >= limit {
				break
			}
			key := string(it.Item().Key())
			keys = append(keys, key[len(namespace):])
		}

		return nil
	})

	return keys, err
}
