package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var emergencyBucket = []byte("emergency")

// BoltCache is a durable emergency cache in a local bbolt file.
type BoltCache struct {
	db *bolt.DB
}

// OpenBoltCache opens (or creates) the cache file at path.
func OpenBoltCache(path string) (*BoltCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(emergencyBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create bucket: %w", err)
	}
	return &BoltCache{db: db}, nil
}

// Close closes the file.
func (b *BoltCache) Close() error {
	return b.db.Close()
}

// Get returns the value under key.
func (b *BoltCache) Get(_ context.Context, key string) (string, bool, error) {
	var (
		val string
		ok  bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(emergencyBucket).Get([]byte(key)); v != nil {
			val, ok = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("store: bolt get: %w", err)
	}
	return val, ok, nil
}

// Set stores value under key.
func (b *BoltCache) Set(_ context.Context, key, value string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(emergencyBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("store: bolt set: %w", err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (b *BoltCache) Remove(_ context.Context, key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(emergencyBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("store: bolt remove: %w", err)
	}
	return nil
}

// Keys lists the cached document ids.
func (b *BoltCache) Keys(_ context.Context) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(emergencyBucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: bolt keys: %w", err)
	}
	return keys, nil
}
