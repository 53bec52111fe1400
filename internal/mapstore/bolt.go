package mapstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/halcyonhealth/phiredact/internal/redact"
)

// mappingsBucket is the single bbolt bucket holding all mappings.
var mappingsBucket = []byte("mappings")

// BoltStore is a [Store] backed by a local bbolt file. Safe for concurrent
// use.
type BoltStore struct {
	db *bolt.DB
}

// Compile-time interface assertion.
var _ Store = (*BoltStore)(nil)

// OpenBolt opens (creating if necessary) the bbolt database at path. The
// open acquires a file lock; a second process opening the same file fails
// after a short timeout instead of blocking forever.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("mapstore: open %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(mappingsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("mapstore: create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Put stores the mapping under invocationID, JSON-encoded.
func (s *BoltStore) Put(ctx context.Context, invocationID string, mapping redact.Mapping) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("mapstore: encode mapping: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(mappingsBucket).Put([]byte(invocationID), data)
	})
	if err != nil {
		return fmt.Errorf("mapstore: put %q: %w", invocationID, err)
	}
	return nil
}

// Get retrieves the mapping stored under invocationID.
func (s *BoltStore) Get(ctx context.Context, invocationID string) (redact.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(mappingsBucket).Get([]byte(invocationID))
		if v != nil {
			// The slice is only valid inside the transaction.
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mapstore: get %q: %w", invocationID, err)
	}
	if data == nil {
		return nil, ErrNotFound
	}
	var mapping redact.Mapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("mapstore: decode mapping %q: %w", invocationID, err)
	}
	return mapping, nil
}

// Delete removes the mapping stored under invocationID, if any.
func (s *BoltStore) Delete(ctx context.Context, invocationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(mappingsBucket).Delete([]byte(invocationID))
	})
	if err != nil {
		return fmt.Errorf("mapstore: delete %q: %w", invocationID, err)
	}
	return nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
