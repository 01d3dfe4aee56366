package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/strata/pkg/attributes"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names, one per attribute scope
	bucketNode    = []byte("node")
	bucketCluster = []byte("cluster")
)

// DBFile is the database file name inside the state directory.
const DBFile = "strata.db"

// Entry is one persisted attribute.
type Entry struct {
	Path  string
	Value any
}

// BoltStore persists the attribute override tier in BoltDB. It implements
// attributes.Backend.
type BoltStore struct {
	db *bolt.DB
}

var _ attributes.Backend = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the state database in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, DBFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketNode, bucketCluster} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *BoltStore) Path() string {
	return s.db.Path()
}

func bucketFor(scope attributes.Scope) ([]byte, error) {
	switch scope {
	case attributes.ScopeNode:
		return bucketNode, nil
	case attributes.ScopeCluster:
		return bucketCluster, nil
	}
	return nil, fmt.Errorf("unknown scope %q", scope)
}

// Save stores value under path, replacing anything previously stored at or
// below path, whether under its own key or inside an ancestor object.
func (s *BoltStore) Save(scope attributes.Scope, path string, value any) error {
	name, err := bucketFor(scope)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(name)
		if err := deleteDescendants(b, path); err != nil {
			return err
		}
		if err := pruneAncestors(b, path); err != nil {
			return err
		}
		return b.Put([]byte(path), data)
	})
}

// Delete removes path and everything below it, including the same path
// inside any stored ancestor object.
func (s *BoltStore) Delete(scope attributes.Scope, path string) error {
	name, err := bucketFor(scope)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(name)
		if err := deleteDescendants(b, path); err != nil {
			return err
		}
		if err := b.Delete([]byte(path)); err != nil {
			return err
		}
		return pruneAncestors(b, path)
	})
}

// Load rebuilds the nested attribute tree for scope. Keys are applied in
// byte order, so an ancestor object is laid down before the more specific
// keys below it.
func (s *BoltStore) Load(scope attributes.Scope) (map[string]any, error) {
	entries, err := s.List(scope)
	if err != nil {
		return nil, err
	}

	tree := map[string]any{}
	for _, e := range entries {
		setNested(tree, strings.Split(e.Path, "."), e.Value)
	}
	return tree, nil
}

// List returns every persisted key of scope in key order
func (s *BoltStore) List(scope attributes.Scope) ([]Entry, error) {
	name, err := bucketFor(scope)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(name)
		return b.ForEach(func(k, v []byte) error {
			var value any
			if err := json.Unmarshal(v, &value); err != nil {
				return fmt.Errorf("failed to decode %s: %w", k, err)
			}
			entries = append(entries, Entry{Path: string(k), Value: value})
			return nil
		})
	})
	return entries, err
}

func deleteDescendants(b *bolt.Bucket, path string) error {
	prefix := []byte(path + ".")
	c := b.Cursor()
	var doomed [][]byte
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		doomed = append(doomed, append([]byte(nil), k...))
	}
	for _, k := range doomed {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// pruneAncestors removes path from any stored ancestor object.
func pruneAncestors(b *bolt.Bucket, path string) error {
	segs := strings.Split(path, ".")
	for i := 1; i < len(segs); i++ {
		key := []byte(strings.Join(segs[:i], "."))
		raw := b.Get(key)
		if raw == nil {
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("failed to decode %s: %w", key, err)
		}
		obj, ok := value.(map[string]any)
		if !ok || !deleteNested(obj, segs[i:]) {
			continue
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return err
		}
		if err := b.Put(key, data); err != nil {
			return err
		}
	}
	return nil
}

func setNested(tree map[string]any, segs []string, value any) {
	cur := tree
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
}

func deleteNested(obj map[string]any, segs []string) bool {
	for _, seg := range segs[:len(segs)-1] {
		next, ok := obj[seg].(map[string]any)
		if !ok {
			return false
		}
		obj = next
	}
	leaf := segs[len(segs)-1]
	if _, ok := obj[leaf]; !ok {
		return false
	}
	delete(obj, leaf)
	return true
}
