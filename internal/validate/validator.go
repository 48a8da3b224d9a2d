package validate

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Config contains audio validation limits.
type Config struct {
	MaxSizeBytes     int64    `yaml:"max_size_bytes" mapstructure:"max_size_bytes"`
	MinSizeBytes     int64    `yaml:"min_size_bytes" mapstructure:"min_size_bytes"`
	SupportedFormats []string `yaml:"supported_formats" mapstructure:"supported_formats"`
}

// DefaultConfig returns the default validation limits.
func DefaultConfig() Config {
	return Config{
		MaxSizeBytes:     10 * 1024 * 1024,
		MinSizeBytes:     1000,
		SupportedFormats: []string{"wav", "mp3", "m4a", "flac"},
	}
}

// Result is the outcome of validating one audio upload. Issues holds the
// failed checks; Warnings are advisory and never block processing.
type Result struct {
	IsValid    bool              `json:"is_valid"`
	Passed     []string          `json:"validation_passed"`
	Issues     []string          `json:"validation_failed"`
	Warnings   []string          `json:"warnings"`
	Properties map[string]string `json:"audio_properties,omitempty"`
}

// Validator checks uploaded audio before it reaches the embedding generator.
// All checks run even after one fails, so a rejection reports every problem
// at once.
type Validator struct {
	config Config
	logger *zap.Logger
}

// NewValidator creates an audio validator.
func NewValidator(config Config, logger *zap.Logger) *Validator {
	return &Validator{config: config, logger: logger}
}

// Audio container signatures by extension. MP3 frames can start with ID3
// tags or a raw frame sync; M4A puts its ftyp box 4 bytes in.
var audioSignatures = map[string][][]byte{
	"wav":  {[]byte("RIFF"), []byte("WAVE")},
	"mp3":  {[]byte("ID3"), {0xff, 0xfb}, {0xff, 0xf3}, {0xff, 0xf2}},
	"flac": {[]byte("fLaC")},
	"m4a":  {[]byte("ftypM4A"), []byte("ftypisom"), []byte("ftypmp42")},
}

// Executable headers that must never appear in audio uploads.
var executableSignatures = [][]byte{
	{'M', 'Z'},            // Windows PE
	{0x7f, 'E', 'L', 'F'}, // Linux ELF
	{0xfe, 0xed, 0xfa},    // macOS Mach-O
}

var scriptPatterns = [][]byte{
	[]byte("<script"),
	[]byte("javascript:"),
	[]byte("eval("),
	[]byte("document."),
	[]byte("window."),
}

// Validate runs every check against the audio payload. fileName supplies the
// extension for format and header checks.
func (v *Validator) Validate(data []byte, fileName string) Result {
	result := Result{
		Passed:     []string{},
		Issues:     []string{},
		Warnings:   []string{},
		Properties: map[string]string{},
	}

	v.checkSize(data, &result)
	ext := v.checkFormat(fileName, &result)
	v.checkHeader(data, ext, &result)
	v.checkContent(data, &result)
	v.checkSecurity(data, fileName, &result)
	v.checkWavProperties(data, ext, &result)

	result.IsValid = len(result.Issues) == 0

	v.logger.Debug("Audio validation completed",
		zap.String("file_name", fileName),
		zap.Bool("is_valid", result.IsValid),
		zap.Int("passed", len(result.Passed)),
		zap.Int("failed", len(result.Issues)),
		zap.Int("warnings", len(result.Warnings)))

	return result
}

func (v *Validator) checkSize(data []byte, result *Result) {
	size := int64(len(data))
	switch {
	case size == 0:
		result.Issues = append(result.Issues, "file is empty")
	case size < v.config.MinSizeBytes:
		result.Issues = append(result.Issues,
			fmt.Sprintf("file too small: %d bytes (minimum %d)", size, v.config.MinSizeBytes))
	case size > v.config.MaxSizeBytes:
		result.Issues = append(result.Issues,
			fmt.Sprintf("file too large: %d bytes (maximum %d)", size, v.config.MaxSizeBytes))
	default:
		result.Passed = append(result.Passed, "size")
	}
}

func (v *Validator) checkFormat(fileName string, result *Result) string {
	ext := fileExtension(fileName)
	if ext == "" {
		result.Issues = append(result.Issues, "no file extension found")
		return ""
	}

	for _, format := range v.config.SupportedFormats {
		if strings.EqualFold(ext, format) {
			result.Passed = append(result.Passed, "format")
			return strings.ToLower(ext)
		}
	}

	result.Issues = append(result.Issues, fmt.Sprintf("unsupported format: %s", ext))
	return strings.ToLower(ext)
}

func (v *Validator) checkHeader(data []byte, ext string, result *Result) {
	if len(data) < 12 {
		result.Issues = append(result.Issues, "file too small for header validation")
		return
	}

	signatures, ok := audioSignatures[ext]
	if !ok {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no header validation available for %s", ext))
		return
	}

	header := data[:12]
	for _, sig := range signatures {
		if bytes.Contains(header, sig) {
			result.Passed = append(result.Passed, "header")
			return
		}
	}
	result.Issues = append(result.Issues,
		fmt.Sprintf("file header does not match expected %s format", ext))
}

func (v *Validator) checkContent(data []byte, result *Result) {
	if len(data) == 0 {
		return
	}

	if len(data) > 1000 {
		unique := make(map[byte]struct{})
		for _, b := range data[:1000] {
			unique[b] = struct{}{}
		}
		if len(unique) < 10 {
			result.Warnings = append(result.Warnings, "very low entropy, file may be corrupted")
		} else if len(unique) > 250 {
			result.Passed = append(result.Passed, "entropy")
		}
	}

	nullPct := float64(bytes.Count(data, []byte{0})) / float64(len(data)) * 100
	if nullPct > 50 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("high percentage of null bytes: %.1f%%", nullPct))
	}
}

func (v *Validator) checkSecurity(data []byte, fileName string, result *Result) {
	suspicious := false

	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	for _, sig := range executableSignatures {
		if bytes.Contains(head, sig) {
			result.Issues = append(result.Issues,
				fmt.Sprintf("executable signature found: %x", sig))
			suspicious = true
		}
	}

	scan := data
	if len(scan) > 2048 {
		scan = scan[:2048]
	}
	lower := bytes.ToLower(scan)
	for _, pattern := range scriptPatterns {
		if bytes.Contains(lower, pattern) {
			result.Issues = append(result.Issues,
				fmt.Sprintf("script pattern found: %s", pattern))
			suspicious = true
		}
	}

	if len(fileName) > 255 {
		result.Warnings = append(result.Warnings, "unusually long filename")
	}
	if strings.Count(fileName, ".") > 1 {
		result.Warnings = append(result.Warnings, "multiple file extensions")
	}

	if !suspicious {
		result.Passed = append(result.Passed, "security")
	}
}

// checkWavProperties parses the fixed portion of a RIFF/WAVE header and
// flags unusual audio parameters. Non-WAV formats are skipped.
func (v *Validator) checkWavProperties(data []byte, ext string, result *Result) {
	if ext != "wav" || len(data) <= 44 {
		return
	}
	if !bytes.Equal(data[:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		result.Warnings = append(result.Warnings, "invalid WAV header structure")
		return
	}

	channels := binary.LittleEndian.Uint16(data[22:24])
	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(data[34:36])

	if channels != 1 && channels != 2 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("unusual channel count: %d", channels))
	}
	switch sampleRate {
	case 8000, 16000, 22050, 44100, 48000:
	default:
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("unusual sample rate: %d Hz", sampleRate))
	}
	switch bitsPerSample {
	case 8, 16, 24, 32:
	default:
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("unusual bit depth: %d", bitsPerSample))
	}

	result.Properties["format"] = "wav"
	result.Properties["channels"] = fmt.Sprintf("%d", channels)
	result.Properties["sample_rate"] = fmt.Sprintf("%d", sampleRate)
	result.Properties["bits_per_sample"] = fmt.Sprintf("%d", bitsPerSample)
	result.Passed = append(result.Passed, "audio_properties")
}

// Summary renders a short human-readable line for logs and stage details.
func (r Result) Summary() string {
	if r.IsValid {
		return fmt.Sprintf("valid (%d checks passed)", len(r.Passed))
	}
	shown := r.Issues
	if len(shown) > 2 {
		shown = shown[:2]
	}
	return fmt.Sprintf("invalid (%d failed: %s)", len(r.Issues), strings.Join(shown, "; "))
}

func fileExtension(fileName string) string {
	idx := strings.LastIndex(fileName, ".")
	if idx < 0 || idx == len(fileName)-1 {
		return ""
	}
	return fileName[idx+1:]
}
