package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raaihank/voice-sentinel/internal/biometric"
)

// MemoryStore is an in-memory SampleRepository for tests and local
// development. Appends are serialized by a mutex, giving the same
// atomic count semantics as the database-backed store.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	samples  map[string][]biometric.StoredSample
	statuses map[string]biometric.RegistrationStatus
}

// NewMemoryStore creates an empty in-memory repository.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		samples:  make(map[string][]biometric.StoredSample),
		statuses: make(map[string]biometric.RegistrationStatus),
	}
}

func (m *MemoryStore) GetSamples(_ context.Context, userID string) ([]biometric.StoredSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.samples[userID]
	out := make([]biometric.StoredSample, len(stored))
	copy(out, stored)
	return out, nil
}

func (m *MemoryStore) AppendSample(_ context.Context, userID string, sample biometric.StoredSample) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sample.ID = m.nextID
	m.nextID++
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = time.Now().UTC()
	}

	m.samples[userID] = append(m.samples[userID], sample)
	return len(m.samples[userID]), nil
}

func (m *MemoryStore) GetStatus(_ context.Context, userID string) (biometric.RegistrationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.statuses[userID], nil
}

func (m *MemoryStore) SetStatus(_ context.Context, userID string, update StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := m.statuses[userID]
	if update.Complete != nil {
		status.Complete = *update.Complete
	}
	if update.Confirmed != nil {
		status.Confirmed = *update.Confirmed
	}
	if update.Confidence != nil {
		status.Confidence = *update.Confidence
	}
	if update.CompletedAt != nil {
		status.CompletedAt = update.CompletedAt
	}
	m.statuses[userID] = status
	return nil
}

func (m *MemoryStore) DeleteSample(_ context.Context, userID string, sampleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.samples[userID]
	for i, sample := range stored {
		if sample.ID == sampleID {
			m.samples[userID] = append(stored[:i:i], stored[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: user %s sample %d", ErrSampleNotFound, userID, sampleID)
}

func (m *MemoryStore) Close() error {
	return nil
}
