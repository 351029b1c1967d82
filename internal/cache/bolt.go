package cache

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"secops-dashboard/internal/models"
)

// BoltDB is an embedded cache file holding one bucket per provider.
type BoltDB struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the cache file at path.
func OpenBolt(path string) (*BoltDB, error) {
	opts := &bbolt.Options{
		Timeout:      time.Second,
		FreelistType: bbolt.FreelistArrayType,
	}
	db, err := bbolt.Open(path, 0o600, opts)
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}
	return &BoltDB{db: db}, nil
}

// Store returns the namespace's bucket, creating it when missing.
func (b *BoltDB) Store(namespace string) (*BoltStore, error) {
	name := []byte(namespace)
	err := b.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", namespace, err)
	}
	return &BoltStore{db: b.db, bucket: name, now: time.Now}, nil
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}

type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
	now    func() time.Time
}

var (
	_ Store  = (*BoltStore)(nil)
	_ Pruner = (*BoltStore)(nil)
)

func (s *BoltStore) Get(_ context.Context, key string) (models.CacheEntry, bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(s.bucket).Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("bolt get %s: %w", key, err)
	}
	if raw == nil {
		return models.CacheEntry{}, false, nil
	}
	entry, err := DecodeEnvelope(key, raw)
	if err != nil {
		return models.CacheEntry{}, false, err
	}
	return entry, true, nil
}

func (s *BoltStore) Put(_ context.Context, key string, value []byte) error {
	data, err := EncodeEnvelope(s.now(), value)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), data)
	})
}

func (s *BoltStore) Prune(_ context.Context, before time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			entry, err := DecodeEnvelope(string(k), v)
			if err != nil || entry.StoredAt.Before(before) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
