package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/raaihank/voice-sentinel/internal/biometric"
)

func TestMemoryStoreAppendAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	count, err := s.AppendSample(ctx, "user-1", biometric.StoredSample{
		Embedding: biometric.Embedding{1, 0},
		Quality:   0.8,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected count 1, got %d", count)
	}

	count, err = s.AppendSample(ctx, "user-1", biometric.StoredSample{
		Embedding: biometric.Embedding{0, 1},
		Quality:   0.9,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}

	samples, err := s.GetSamples(ctx, "user-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(samples))
	}
	if samples[0].ID >= samples[1].ID {
		t.Error("Samples should be in insertion order")
	}
	if samples[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set on append")
	}

	other, err := s.GetSamples(ctx, "user-2")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Expected no samples for other user, got %d", len(other))
	}
}

func TestMemoryStoreConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	const writers = 10
	var wg sync.WaitGroup
	counts := make([]int, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			count, err := s.AppendSample(ctx, "user-1", biometric.StoredSample{
				Embedding: biometric.Embedding{1, 0},
				Quality:   0.8,
			})
			if err != nil {
				t.Errorf("Append failed: %v", err)
				return
			}
			counts[i] = count
		}(i)
	}
	wg.Wait()

	samples, err := s.GetSamples(ctx, "user-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(samples) != writers {
		t.Errorf("Expected %d samples, got %d", writers, len(samples))
	}

	// Every append must have seen a distinct count including its own write.
	seen := make(map[int]bool)
	for _, c := range counts {
		if seen[c] {
			t.Errorf("Duplicate count %d returned to concurrent appenders", c)
		}
		seen[c] = true
	}
}

func TestMemoryStoreStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	status, err := s.GetStatus(ctx, "user-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if status.Complete || status.Confirmed {
		t.Error("Unknown user should have zero status")
	}

	if err := s.SetStatus(ctx, "user-1", StatusUpdate{
		Complete:   Bool(true),
		Confidence: Float64(0.92),
	}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	status, err = s.GetStatus(ctx, "user-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !status.Complete {
		t.Error("Complete flag should be set")
	}
	if status.Confidence != 0.92 {
		t.Errorf("Expected confidence 0.92, got %g", status.Confidence)
	}
	if status.Confirmed {
		t.Error("Confirmed was not part of the update")
	}

	// Partial update leaves other fields alone.
	if err := s.SetStatus(ctx, "user-1", StatusUpdate{Confirmed: Bool(true)}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	status, _ = s.GetStatus(ctx, "user-1")
	if !status.Complete || !status.Confirmed {
		t.Error("Partial update should preserve previous fields")
	}
}

func TestMemoryStoreDeleteSample(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	count, _ := s.AppendSample(ctx, "user-1", biometric.StoredSample{Embedding: biometric.Embedding{1}, Quality: 0.8})
	if count != 1 {
		t.Fatalf("Expected count 1, got %d", count)
	}
	samples, _ := s.GetSamples(ctx, "user-1")

	if err := s.DeleteSample(ctx, "user-1", samples[0].ID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	remaining, _ := s.GetSamples(ctx, "user-1")
	if len(remaining) != 0 {
		t.Errorf("Expected no samples after delete, got %d", len(remaining))
	}

	err := s.DeleteSample(ctx, "user-1", 999)
	if !errors.Is(err, ErrSampleNotFound) {
		t.Errorf("Expected ErrSampleNotFound, got %v", err)
	}
}
