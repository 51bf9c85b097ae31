package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
)

// MemoryStore keeps drafts in process memory as encoded records
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, sessionID string, draft models.BookingDraft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}

	m.mu.Lock()
	m.drafts[Key(sessionID)] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (models.BookingDraft, error) {
	m.mu.RLock()
	data, ok := m.drafts[Key(sessionID)]
	m.mu.RUnlock()

	var draft models.BookingDraft
	if !ok {
		return draft, ErrNoDraft
	}
	if err := json.Unmarshal(data, &draft); err != nil {
		return draft, fmt.Errorf("failed to decode draft: %w", err)
	}
	return draft, nil
}

func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.drafts, Key(sessionID))
	m.mu.Unlock()
	return nil
}
