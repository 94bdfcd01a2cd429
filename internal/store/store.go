package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/depotdump/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketOperations = []byte("operations")
	bucketOpIndex    = []byte("operation_index")
	bucketManifests  = []byte("manifests")
)

// HistoryStore implements domain.RunStore using BoltDB.
type HistoryStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects memory cache

	// Memory-only mode keeps everything here; otherwise it caches hot reads
	cache   map[string][]byte
	opOrder []string // Memory-only index keys, kept sorted
}

// NewHistoryStore opens (or creates) history.db under dataDir.
// An empty dataDir selects memory-only mode.
func NewHistoryStore(dataDir string) (*HistoryStore, error) {
	if dataDir == "" {
		return &HistoryStore{cache: make(map[string][]byte)}, nil
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, "history.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketOperations, bucketOpIndex, bucketManifests} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &HistoryStore{db: db, cache: make(map[string][]byte)}, nil
}

func (s *HistoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Generic helpers ===

func (s *HistoryStore) get(bucket []byte, key string, dest interface{}) (bool, error) {
	cacheKey := string(bucket) + ":" + key

	s.mu.RLock()
	if data, ok := s.cache[cacheKey]; ok {
		s.mu.RUnlock()
		return true, json.Unmarshal(data, dest)
	}
	s.mu.RUnlock()

	if s.db == nil {
		return false, nil
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil || data == nil {
		return false, err
	}

	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	return true, json.Unmarshal(data, dest)
}

func (s *HistoryStore) has(bucket []byte, key string) bool {
	cacheKey := string(bucket) + ":" + key

	s.mu.RLock()
	_, ok := s.cache[cacheKey]
	s.mu.RUnlock()
	if ok || s.db == nil {
		return ok
	}

	found := false
	s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucket); b != nil {
			found = b.Get([]byte(key)) != nil
		}
		return nil
	})
	return found
}

// === Operations ===

// opIndexKey orders operations by start time; the ID breaks ties
func opIndexKey(op *domain.Operation) string {
	return fmt.Sprintf("%020d:%s", op.StartTime.UnixNano(), op.ID)
}

// SaveOperation stores a finished result tree, replacing any prior copy with the same ID
func (s *HistoryStore) SaveOperation(op *domain.Operation) error {
	if op.ID == "" {
		return fmt.Errorf("operation has no id")
	}
	data, err := json.Marshal(op)
	if err != nil {
		return err
	}
	indexKey := opIndexKey(op)

	s.mu.Lock()
	s.cache[string(bucketOperations)+":"+op.ID] = data
	if s.db == nil {
		s.insertOrder(indexKey)
	}
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketOperations).Put([]byte(op.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketOpIndex).Put([]byte(indexKey), []byte(op.ID))
	})
}

// insertOrder adds an index key for memory-only mode. Caller holds s.mu.
func (s *HistoryStore) insertOrder(key string) {
	i := sort.SearchStrings(s.opOrder, key)
	if i < len(s.opOrder) && s.opOrder[i] == key {
		return
	}
	s.opOrder = append(s.opOrder, "")
	copy(s.opOrder[i+1:], s.opOrder[i:])
	s.opOrder[i] = key
}

// GetOperation returns the run with the given ID
func (s *HistoryStore) GetOperation(id string) (*domain.Operation, error) {
	var op domain.Operation
	ok, err := s.get(bucketOperations, id, &op)
	if err != nil {
		return nil, fmt.Errorf("failed to decode operation %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOperationNotFound, id)
	}
	return &op, nil
}

// ListOperations returns up to limit runs, newest first. limit <= 0 returns all.
func (s *HistoryStore) ListOperations(limit int) ([]*domain.Operation, error) {
	ids := s.recentIDs(limit)
	ops := make([]*domain.Operation, 0, len(ids))
	for _, id := range ids {
		op, err := s.GetOperation(id)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (s *HistoryStore) recentIDs(limit int) []string {
	var ids []string
	full := func() bool { return limit > 0 && len(ids) >= limit }

	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for i := len(s.opOrder) - 1; i >= 0 && !full(); i-- {
			_, id, _ := strings.Cut(s.opOrder[i], ":")
			ids = append(ids, id)
		}
		return ids
	}

	// Walk the time-ordered index backwards for newest first
	s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOpIndex).Cursor()
		for k, v := c.Last(); k != nil && !full(); k, v = c.Prev() {
			ids = append(ids, string(v))
		}
		return nil
	})
	return ids
}

// LatestOperation returns the most recent run
func (s *HistoryStore) LatestOperation() (*domain.Operation, error) {
	ops, err := s.ListOperations(1)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: no runs recorded", domain.ErrOperationNotFound)
	}
	return ops[0], nil
}

// === Manifests (hierarchical key: depot:{depotID}:manifest:{manifestID}) ===

func manifestKey(depotID uint32, manifestID uint64) string {
	return fmt.Sprintf("depot:%d:manifest:%d", depotID, manifestID)
}

// HasManifest reports whether a manifest was dumped by an earlier run
func (s *HistoryStore) HasManifest(depotID uint32, manifestID uint64) bool {
	return s.has(bucketManifests, manifestKey(depotID, manifestID))
}

// RecordManifest remembers a successfully dumped manifest
func (s *HistoryStore) RecordManifest(m *domain.ManifestResult) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	key := manifestKey(m.DepotID, m.ManifestID)

	s.mu.Lock()
	s.cache[string(bucketManifests)+":"+key] = data
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketManifests).Put([]byte(key), data)
	})
}
