package server

import (
	"fmt"

	bbolt "go.etcd.io/bbolt"
)

var bucketGlobals = []byte("globals")

// BoltStore persists global script variables across restarts. It
// implements interp.VarStore with write-through semantics: every plain
// global assignment lands in bbolt immediately and the whole bucket is
// replayed into the engine's global scope on startup.
type BoltStore struct {
	bolt *bbolt.DB
}

// OpenStore opens or creates the state file and ensures the bucket
// exists.
func OpenStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketGlobals)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create bucket: %w", err)
	}
	return &BoltStore{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *BoltStore) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying database.
func (s *BoltStore) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// LoadGlobals reads every persisted global variable.
func (s *BoltStore) LoadGlobals() (map[string]string, error) {
	out := make(map[string]string)
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGlobals).ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: load globals: %w", err)
	}
	return out, nil
}

// SaveGlobal writes one global variable.
func (s *BoltStore) SaveGlobal(name, value string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGlobals).Put([]byte(name), []byte(value))
	})
}

// DeleteGlobal removes one global variable.
func (s *BoltStore) DeleteGlobal(name string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGlobals).Delete([]byte(name))
	})
}
