//go:build onnx
// +build onnx

package embedder

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// OnnxBackend implements AudioBackend using ONNX Runtime (via yalue/onnxruntime_go).
// The model is expected to take a [1, samples] float32 waveform plus a scalar
// sample rate and emit either a pooled [1, dims] embedding or frame-level
// [1, frames, dims] output that gets mean-pooled here.
type OnnxBackend struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	dimensions int
	logger     *zap.Logger
	ready      bool
	mu         sync.RWMutex
}

// NewAudioBackend initializes the ONNX Runtime backend. Requires build tag 'onnx'.
func NewAudioBackend(logger *zap.Logger, modelPath string, dimensions int) AudioBackend {
	// Allow user to provide shared library path via environment variable.
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		logger.Error("ONNX Runtime environment init failed", zap.Error(err))
		return nil
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		logger.Error("Failed to inspect ONNX model IO", zap.Error(err), zap.String("model", modelPath))
		return nil
	}
	if len(inputsInfo) == 0 || len(outputsInfo) == 0 {
		logger.Error("ONNX model reports no usable IO", zap.String("model", modelPath))
		return nil
	}

	inputNames := make([]string, 0, len(inputsInfo))
	for _, ii := range inputsInfo {
		inputNames = append(inputNames, ii.Name)
	}
	outputName := outputsInfo[0].Name

	sess, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputName}, nil)
	if err != nil {
		logger.Error("ONNX Runtime session creation failed", zap.Error(err), zap.String("model", modelPath))
		return nil
	}

	logger.Info("ONNX Runtime voice backend ready",
		zap.String("model", modelPath),
		zap.Strings("inputs", inputNames),
		zap.String("output", outputName),
		zap.Int("dimensions", dimensions))

	return &OnnxBackend{
		session:    sess,
		inputNames: inputNames,
		outputName: outputName,
		dimensions: dimensions,
		logger:     logger,
		ready:      true,
	}
}

// IsReady reports whether the backend is initialized.
func (b *OnnxBackend) IsReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready && b.session != nil
}

// Close releases session and environment resources.
func (b *OnnxBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.Destroy()
		b.session = nil
	}
	ort.DestroyEnvironment()
	b.ready = false
	return nil
}

// EmbedAudio runs inference on a mono waveform.
func (b *OnnxBackend) EmbedAudio(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	if !b.IsReady() {
		return nil, fmt.Errorf("onnx backend not ready")
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("empty waveform")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	waveShape := ort.NewShape(1, int64(len(samples)))
	waveTensor, err := ort.NewTensor[float32](waveShape, samples)
	if err != nil {
		return nil, fmt.Errorf("failed to create waveform tensor: %w", err)
	}
	defer waveTensor.Destroy()

	inputs := []ort.Value{waveTensor}
	if len(b.inputNames) > 1 {
		rateTensor, err := ort.NewTensor[float32](ort.NewShape(1), []float32{float32(sampleRate)})
		if err != nil {
			return nil, fmt.Errorf("failed to create sample rate tensor: %w", err)
		}
		defer rateTensor.Destroy()
		inputs = append(inputs, rateTensor)
	}

	outputs := make([]ort.Value, 1)
	if err := b.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	if len(outputs) == 0 || outputs[0] == nil {
		return nil, fmt.Errorf("onnx returned no outputs")
	}
	defer func() {
		if outputs[0] != nil {
			_ = outputs[0].Destroy()
		}
	}()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want float32 tensor)")
	}
	data := outTensor.GetData()
	outShape := outTensor.GetShape()

	switch len(outShape) {
	case 2:
		// [1, dims]
		dims := int(outShape[1])
		if dims != b.dimensions {
			return nil, fmt.Errorf("unexpected output dims %d (want %d)", dims, b.dimensions)
		}
		embedding := make([]float32, dims)
		copy(embedding, data[:dims])
		return embedding, nil
	case 3:
		// [1, frames, dims] -> mean pool over frames
		frames := int(outShape[1])
		dims := int(outShape[2])
		if dims != b.dimensions {
			return nil, fmt.Errorf("unexpected frame dims %d (want %d)", dims, b.dimensions)
		}
		if len(data) != frames*dims {
			return nil, fmt.Errorf("unexpected flat data length %d for shape %v", len(data), outShape)
		}
		pooled := make([]float32, dims)
		for f := 0; f < frames; f++ {
			offset := f * dims
			for d := 0; d < dims; d++ {
				pooled[d] += data[offset+d]
			}
		}
		inv := 1.0 / float32(frames)
		for d := 0; d < dims; d++ {
			pooled[d] *= inv
		}
		return pooled, nil
	default:
		return nil, fmt.Errorf("unsupported output shape %v", outShape)
	}
}
