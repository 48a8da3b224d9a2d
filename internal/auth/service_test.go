package auth

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/raaihank/voice-sentinel/internal/biometric"
	"github.com/raaihank/voice-sentinel/internal/security"
	"github.com/raaihank/voice-sentinel/internal/store"
)

func testService(t *testing.T, limiter *security.AttemptLimiter) (*Service, *store.MemoryStore) {
	t.Helper()
	repo := store.NewMemoryStore()
	config := biometric.DefaultScorerConfig()
	config.ExpectedDimensions = 4
	scorer := biometric.NewScorer(config, zap.NewNop())
	return New(scorer, repo, limiter, zap.NewNop()), repo
}

func TestAuthenticateEnrolledUser(t *testing.T) {
	service, repo := testService(t, nil)
	ctx := context.Background()

	embedding := biometric.Embedding{0.5, 0.5, 0.5, 0.5}
	for i := 0; i < 3; i++ {
		if _, err := repo.AppendSample(ctx, "user-1", biometric.StoredSample{
			Embedding: embedding,
			Quality:   0.9,
		}); err != nil {
			t.Fatalf("Failed to seed sample: %v", err)
		}
	}

	decision, err := service.Authenticate(ctx, "user-1", embedding)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if decision.Result != biometric.ResultAuthenticated {
		t.Errorf("Expected authenticated, got %s", decision.Result)
	}
	if !decision.IsHighConfidence {
		t.Error("Identical probe should be high confidence")
	}
}

func TestAuthenticateUnknownUser(t *testing.T) {
	service, _ := testService(t, nil)

	decision, err := service.Authenticate(context.Background(), "ghost", biometric.Embedding{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("Missing enrollment must not be an error: %v", err)
	}
	if decision.Result != biometric.ResultInsufficientData {
		t.Errorf("Expected insufficient data, got %s", decision.Result)
	}
}

func TestAuthenticateThrottled(t *testing.T) {
	limiter := security.NewAttemptLimiter(security.LimiterConfig{
		Enabled:        true,
		AttemptsPerMin: 1,
		Burst:          1,
	})
	service, _ := testService(t, limiter)
	ctx := context.Background()

	if _, err := service.Authenticate(ctx, "user-1", biometric.Embedding{1, 0, 0, 0}); err != nil {
		t.Fatalf("First attempt should pass the limiter: %v", err)
	}

	_, err := service.Authenticate(ctx, "user-1", biometric.Embedding{1, 0, 0, 0})
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("Expected ErrThrottled, got %v", err)
	}
}
