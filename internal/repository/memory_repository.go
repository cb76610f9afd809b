package repository

import (
	"CatalogAuth/internal/model"
	"context"
	"sync"
	"time"
)

// MemoryRepository is a process-local record store for development and tests.
// Expired entries are dropped lazily on access.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]model.RefreshRecord
	retired map[string]time.Time
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]model.RefreshRecord),
		retired: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *MemoryRepository) Create(_ context.Context, record model.RefreshRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.TokenID]; ok {
		return ErrRecordExists
	}
	m.records[record.TokenID] = record
	return nil
}

func (m *MemoryRepository) FindByTokenID(_ context.Context, tokenID string) (*model.RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record, ok := m.records[tokenID]; ok {
		return &record, nil
	}
	if until, ok := m.retired[tokenID]; ok {
		if until.After(m.now()) {
			return nil, ErrRecordRetired
		}
		delete(m.retired, tokenID)
	}
	return nil, ErrRecordNotFound
}

func (m *MemoryRepository) DeleteByTokenID(_ context.Context, tokenID string, retireUntil time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, existed := m.records[tokenID]
	delete(m.records, tokenID)
	if until, ok := m.retired[tokenID]; !ok || until.Before(retireUntil) {
		m.retired[tokenID] = retireUntil
	}
	return existed, nil
}

func (m *MemoryRepository) Replace(_ context.Context, oldTokenID string, record model.RefreshRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[oldTokenID]; !ok {
		return ErrRecordNotFound
	}
	if _, ok := m.records[record.TokenID]; ok {
		return ErrRecordExists
	}
	delete(m.records, oldTokenID)
	m.records[record.TokenID] = record
	m.retired[oldTokenID] = record.ExpiresAt
	return nil
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }

// Forget drops a record without retiring it, the way a store reset or an
// eviction race would.
func (m *MemoryRepository) Forget(tokenID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, tokenID)
}

// Put stores a record as-is, overwriting any existing one.
func (m *MemoryRepository) Put(record model.RefreshRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.TokenID] = record
}

func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
