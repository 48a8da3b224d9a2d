package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/voice-sentinel/internal/biometric"
	"github.com/raaihank/voice-sentinel/internal/security"
	"github.com/raaihank/voice-sentinel/internal/store"
)

// ErrThrottled is returned when a user exceeds the attempt budget. Callers
// should not reveal whether the identity exists.
var ErrThrottled = errors.New("too many authentication attempts")

// Service is the authentication entry point: it loads the enrolled samples,
// applies the per-user attempt limit, and delegates the decision to the
// scorer. The decision is advisory; policy enforcement is the caller's.
type Service struct {
	scorer  *biometric.Scorer
	repo    store.SampleRepository
	limiter *security.AttemptLimiter
	logger  *zap.Logger
}

// New creates an authentication service. limiter may be nil to disable
// throttling.
func New(scorer *biometric.Scorer, repo store.SampleRepository, limiter *security.AttemptLimiter, logger *zap.Logger) *Service {
	return &Service{
		scorer:  scorer,
		repo:    repo,
		limiter: limiter,
		logger:  logger,
	}
}

// Authenticate scores a probe embedding against the user's enrolled samples.
// A user with no usable samples gets an INSUFFICIENT_DATA decision, not an
// error; only infrastructure failures surface as errors.
func (s *Service) Authenticate(ctx context.Context, userID string, probe biometric.Embedding) (biometric.AuthenticationDecision, error) {
	if s.limiter != nil && !s.limiter.Allow(userID) {
		s.logger.Warn("Authentication attempt throttled",
			zap.String("user_id", userID))
		return biometric.AuthenticationDecision{}, ErrThrottled
	}

	samples, err := s.repo.GetSamples(ctx, userID)
	if err != nil {
		return biometric.AuthenticationDecision{}, fmt.Errorf("load enrolled samples: %w", err)
	}

	decision, err := s.scorer.Authenticate(probe, samples)
	if err != nil {
		return biometric.AuthenticationDecision{}, err
	}

	s.logger.Info("Authentication decision",
		zap.String("user_id", userID),
		zap.String("result", string(decision.Result)),
		zap.Float64("confidence_score", decision.ConfidenceScore),
		zap.Int("comparisons", len(decision.Comparisons)))

	return decision, nil
}
