package validate

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MinSizeBytes = 100
	return NewValidator(cfg, zap.NewNop())
}

// wavFile builds a minimal valid RIFF/WAVE payload padded with pseudo-random
// PCM data.
func wavFile(size int) []byte {
	data := make([]byte, size)
	copy(data[0:4], "RIFF")
	copy(data[8:12], "WAVE")
	binary.LittleEndian.PutUint16(data[22:24], 1)     // mono
	binary.LittleEndian.PutUint32(data[24:28], 16000) // sample rate
	binary.LittleEndian.PutUint16(data[34:36], 16)    // bit depth
	seed := byte(7)
	for i := 44; i < size; i++ {
		seed = seed*31 + 17
		data[i] = seed
	}
	return data
}

func TestValidateAcceptsGoodWav(t *testing.T) {
	v := newTestValidator(t)

	result := v.Validate(wavFile(4000), "sample.wav")
	if !result.IsValid {
		t.Fatalf("Expected valid, issues: %v", result.Issues)
	}
	if result.Properties["sample_rate"] != "16000" {
		t.Errorf("Expected parsed sample rate, got %q", result.Properties["sample_rate"])
	}
}

func TestValidateRejections(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name     string
		data     []byte
		fileName string
		wantIn   string
	}{
		{
			name:     "empty file",
			data:     nil,
			fileName: "sample.wav",
			wantIn:   "empty",
		},
		{
			name:     "too small",
			data:     wavFile(50),
			fileName: "sample.wav",
			wantIn:   "too small",
		},
		{
			name:     "unsupported format",
			data:     wavFile(4000),
			fileName: "sample.ogg",
			wantIn:   "unsupported format",
		},
		{
			name:     "missing extension",
			data:     wavFile(4000),
			fileName: "sample",
			wantIn:   "no file extension",
		},
		{
			name:     "header mismatch",
			data:     append([]byte("NOTAUDIO0000"), wavFile(4000)[12:]...),
			fileName: "sample.wav",
			wantIn:   "header",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.data, tt.fileName)
			if result.IsValid {
				t.Fatal("Expected invalid result")
			}
			found := false
			for _, issue := range result.Issues {
				if strings.Contains(issue, tt.wantIn) {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected issue containing %q, got %v", tt.wantIn, result.Issues)
			}
		})
	}
}

func TestValidateTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSizeBytes = 1024
	cfg.MinSizeBytes = 100
	v := NewValidator(cfg, zap.NewNop())

	result := v.Validate(wavFile(2048), "sample.wav")
	if result.IsValid {
		t.Fatal("Expected oversized file to be rejected")
	}
}

func TestValidateExecutableSignature(t *testing.T) {
	v := newTestValidator(t)

	data := wavFile(4000)
	copy(data[100:], []byte{0x7f, 'E', 'L', 'F'})

	result := v.Validate(data, "sample.wav")
	if result.IsValid {
		t.Fatal("Executable payload must be rejected")
	}
	found := false
	for _, issue := range result.Issues {
		if strings.Contains(issue, "executable signature") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected executable signature issue, got %v", result.Issues)
	}
}

func TestValidateScriptPattern(t *testing.T) {
	v := newTestValidator(t)

	data := wavFile(4000)
	copy(data[200:], []byte("<SCRIPT>alert(1)"))

	result := v.Validate(data, "sample.wav")
	if result.IsValid {
		t.Fatal("Script payload must be rejected")
	}
}

func TestValidateReportsAllIssues(t *testing.T) {
	v := newTestValidator(t)

	// Wrong format, bad header, and an executable signature all at once.
	data := make([]byte, 2000)
	copy(data, []byte{'M', 'Z'})

	result := v.Validate(data, "payload.exe")
	if result.IsValid {
		t.Fatal("Expected invalid result")
	}
	if len(result.Issues) < 2 {
		t.Errorf("Expected all failed checks reported, got %v", result.Issues)
	}
}

func TestValidateWarningsDoNotBlock(t *testing.T) {
	v := newTestValidator(t)

	data := wavFile(4000)
	binary.LittleEndian.PutUint32(data[24:28], 11025) // odd sample rate

	result := v.Validate(data, "sample.wav")
	if !result.IsValid {
		t.Fatalf("Warnings must not invalidate, issues: %v", result.Issues)
	}
	if len(result.Warnings) == 0 {
		t.Error("Expected a sample rate warning")
	}
}

func TestResultSummary(t *testing.T) {
	valid := Result{IsValid: true, Passed: []string{"size", "format"}}
	if !strings.Contains(valid.Summary(), "valid") {
		t.Errorf("Unexpected summary %q", valid.Summary())
	}

	invalid := Result{Issues: []string{"a", "b", "c"}}
	summary := invalid.Summary()
	if !strings.Contains(summary, "3 failed") {
		t.Errorf("Expected failure count in %q", summary)
	}
	if strings.Contains(summary, "c") && !bytes.Contains([]byte(summary), []byte("a; b")) {
		t.Errorf("Summary should show at most two issues: %q", summary)
	}
}
