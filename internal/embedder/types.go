package embedder

import (
	"context"
	"errors"
	"time"

	"github.com/raaihank/voice-sentinel/internal/biometric"
)

// Result is the output of embedding generation for one audio sample.
type Result struct {
	Embedding biometric.Embedding `json:"embedding"`
	Quality   float64             `json:"quality_score"`
	Duration  time.Duration       `json:"duration"`
}

// Generator produces a voice embedding and a quality score from raw audio.
// Implementations own their model resources; Close releases them.
type Generator interface {
	Generate(ctx context.Context, audio []byte, fileName string) (*Result, error)
	Close() error
}

// Config contains embedding generation settings.
type Config struct {
	Dimensions int     `yaml:"dimensions" mapstructure:"dimensions"`
	MinQuality float64 `yaml:"min_quality" mapstructure:"min_quality"`
	ModelPath  string  `yaml:"model_path" mapstructure:"model_path"`
}

// DefaultConfig returns the default embedding settings.
func DefaultConfig() Config {
	return Config{
		Dimensions: 256,
		MinQuality: 0.5,
	}
}

var (
	// ErrLowQuality marks audio whose quality score fell below the floor.
	// Callers treat this as a terminal rejection, not a retryable failure.
	ErrLowQuality = errors.New("audio quality below minimum")

	// ErrProcessingFailed marks audio the generator could not process.
	ErrProcessingFailed = errors.New("embedding generation failed")
)
