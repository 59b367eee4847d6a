package client

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	queueBucket = "pending_actions"
	queueKey    = "actions"
)

// BoltQueueStore keeps the queue as one JSON list in a bbolt file
type BoltQueueStore struct {
	db *bolt.DB
}

func OpenBoltQueueStore(path string) (*BoltQueueStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open queue file: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(queueBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltQueueStore{db: db}, nil
}

func (s *BoltQueueStore) Load() ([]PendingAction, error) {
	var actions []PendingAction
	if err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(queueBucket))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(queueKey))
		if len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, &actions); err != nil {
			return fmt.Errorf("json unmarshal error, %w", err)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}
	return actions, nil
}

func (s *BoltQueueStore) Save(actions []PendingAction) error {
	raw, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("json marshal error, %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(queueBucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		return b.Put([]byte(queueKey), raw)
	})
}

func (s *BoltQueueStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("error close queue file: %w", err)
	}
	return nil
}

// MemoryQueueStore keeps the queue in process memory
type MemoryQueueStore struct {
	mu  sync.Mutex
	raw []byte
}

func NewMemoryQueueStore() *MemoryQueueStore {
	return &MemoryQueueStore{}
}

func (s *MemoryQueueStore) Load() ([]PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.raw) == 0 {
		return nil, nil
	}
	var actions []PendingAction
	if err := json.Unmarshal(s.raw, &actions); err != nil {
		return nil, fmt.Errorf("json unmarshal error, %w", err)
	}
	return actions, nil
}

func (s *MemoryQueueStore) Save(actions []PendingAction) error {
	raw, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("json marshal error, %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = raw
	return nil
}
