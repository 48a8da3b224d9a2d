//go:build !onnx
// +build !onnx

package embedder

import (
	"go.uber.org/zap"
)

// Stub implementation used when the 'onnx' build tag is not set.
func NewAudioBackend(logger *zap.Logger, modelPath string, dimensions int) AudioBackend {
	return nil
}
