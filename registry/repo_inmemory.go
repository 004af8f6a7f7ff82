package registry

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/coursekit/coursekit/internal/errors"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is an in-memory implementation of Store, used in tests and
// single-node development setups.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]SessionRecord // userID -> record
}

// NewInMemoryStore creates a new in-memory session record store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]SessionRecord),
	}
}

// Put creates or replaces the record for record.UserID
func (s *InMemoryStore) Put(ctx context.Context, record SessionRecord) error {
	if record.UserID == "" {
		return fmt.Errorf("userID is required")
	}
	if record.Token == "" {
		return fmt.Errorf("token is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.UserID] = record
	return nil
}

// Get retrieves the current record for a user
func (s *InMemoryStore) Get(ctx context.Context, userID string) (SessionRecord, error) {
	if userID == "" {
		return SessionRecord{}, fmt.Errorf("userID is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[userID]
	if !ok {
		return SessionRecord{}, apperrors.ErrRecordNotFound
	}
	return record, nil
}

// Delete removes the record for a user
func (s *InMemoryStore) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("userID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, userID) // Absent record is not an error
	return nil
}
