package embedder

import (
	"context"
)

// AudioBackend defines a pluggable backend for voice model inference.
// Implementations may use ONNX Runtime or other engines.
type AudioBackend interface {
	// EmbedAudio runs inference on a mono PCM waveform and returns an
	// embedding with length == the configured dimensions.
	EmbedAudio(ctx context.Context, samples []float32, sampleRate int) ([]float32, error)
	// IsReady returns whether the backend is initialized and ready.
	IsReady() bool
	// Close releases any native resources.
	Close() error
}

// NewAudioBackend creates a backend if supported by the current build.
// The default (no build tags) returns nil to avoid CGO dependencies.
// Implementations live in build-tagged files, e.g. backend_onnx.go and backend_stub.go
