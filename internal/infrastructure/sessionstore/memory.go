package sessionstore

import (
	"context"
	"sync"
	"time"

	session "github.com/horizonpay/pricing-service/internal/domain/entity/session"
)

// MemoryStore is the single-process session store used in development and
// tests. Expiry mirrors the redis TTL semantics.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	txn       session.TransactionSession
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}}
}

func (s *MemoryStore) Create(_ context.Context, txn *session.TransactionSession, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[txn.ID] = memoryEntry{txn: *txn, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*session.TransactionSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}
	txn := entry.txn
	return &txn, nil
}

func (s *MemoryStore) Update(_ context.Context, txn *session.TransactionSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[txn.ID]
	if !ok {
		return ErrNotFound
	}
	entry.txn = *txn
	s.entries[txn.ID] = entry
	return nil
}
