package persistence

import (
	"context"
	"sync"

	"github.com/BaSui01/agentbus/types"
)

// MemoryStateStore is an in-memory implementation of StateStore.
// Suitable for development and testing.
type MemoryStateStore struct {
	records map[types.Key]*types.StateRecord
	mu      sync.RWMutex
	closed  bool
}

var _ StateStore = (*MemoryStateStore)(nil)

// NewMemoryStateStore creates a new in-memory state store
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		records: make(map[types.Key]*types.StateRecord),
	}
}

// Save upserts a record by its workflow key
func (s *MemoryStateStore) Save(ctx context.Context, record *types.StateRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.records[record.Key()] = record.Clone()
	return nil
}

// Load retrieves a record by workflow key
func (s *MemoryStateStore) Load(ctx context.Context, workflowID, workflowType string) (*types.StateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	record, ok := s.records[types.Key{WorkflowID: workflowID, WorkflowType: workflowType}]
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// ListNonTerminal returns every record whose step is not terminal
func (s *MemoryStateStore) ListNonTerminal(ctx context.Context) ([]*types.StateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	result := make([]*types.StateRecord, 0)
	for _, record := range s.records {
		if !record.IsTerminal() {
			result = append(result, record.Clone())
		}
	}
	return result, nil
}

// Ping checks if the store is healthy
func (s *MemoryStateStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close closes the store
func (s *MemoryStateStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
