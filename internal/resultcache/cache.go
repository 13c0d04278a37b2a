// Package resultcache stores successful extractions keyed by document content in a bbolt file.
package resultcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hochfrequenz/docai-batch/internal/domain"
)

var bucketName = []byte("extractions")

type entry struct {
	StoredAt   time.Time          `json:"stored_at"`
	Extraction *domain.Extraction `json:"extraction"`
}

// Cache is a persistent extraction cache. bbolt serializes writers itself.
type Cache struct {
	path   string
	db     *bolt.DB
	maxAge time.Duration
}

// Open opens or creates the cache file. Entries older than maxAge are treated as misses; zero disables expiry.
func Open(path string, maxAge time.Duration) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for cache: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Cache{path: path, db: db, maxAge: maxAge}, nil
}

// Get returns the cached extraction for key
func (c *Cache) Get(key string) (*domain.Extraction, bool, error) {
	var e entry
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &e)
	})
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	if !found || e.Extraction == nil {
		return nil, false, nil
	}
	if c.maxAge > 0 && time.Since(e.StoredAt) > c.maxAge {
		return nil, false, nil
	}
	return e.Extraction, true, nil
}

// Put stores ext under key
func (c *Cache) Put(key string, ext *domain.Extraction) error {
	data, err := json.Marshal(entry{StoredAt: time.Now().UTC(), Extraction: ext})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), data)
	})
}

// Len returns the number of entries
func (c *Cache) Len() int {
	n := 0
	_ = c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketName).Stats().KeyN
		return nil
	})
	return n
}

// Clear removes all entries
func (c *Cache) Clear() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketName); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketName)
		return err
	})
}

// Close closes the cache file
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
