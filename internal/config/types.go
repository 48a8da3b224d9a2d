package config

import (
	"time"

	"github.com/raaihank/voice-sentinel/internal/audiostore"
	"github.com/raaihank/voice-sentinel/internal/biometric"
	"github.com/raaihank/voice-sentinel/internal/cache"
	"github.com/raaihank/voice-sentinel/internal/embedder"
	"github.com/raaihank/voice-sentinel/internal/notify"
	"github.com/raaihank/voice-sentinel/internal/pipeline"
	"github.com/raaihank/voice-sentinel/internal/security"
	"github.com/raaihank/voice-sentinel/internal/store"
	"github.com/raaihank/voice-sentinel/internal/validate"
)

// Config represents the main configuration structure
type Config struct {
	Server        ServerConfig             `yaml:"server" mapstructure:"server"`
	Logging       LoggingConfig            `yaml:"logging" mapstructure:"logging"`
	Database      store.Config             `yaml:"database" mapstructure:"database"`
	Cache         cache.Config             `yaml:"cache" mapstructure:"cache"`
	Audio         audiostore.S3Config      `yaml:"audio" mapstructure:"audio"`
	Validation    validate.Config          `yaml:"validation" mapstructure:"validation"`
	Embedder      embedder.Config          `yaml:"embedder" mapstructure:"embedder"`
	Pipeline      pipeline.Config          `yaml:"pipeline" mapstructure:"pipeline"`
	Scorer        biometric.ScorerConfig   `yaml:"scorer" mapstructure:"scorer"`
	Completion    biometric.AnalyzerConfig `yaml:"completion" mapstructure:"completion"`
	Notifications notify.HubConfig         `yaml:"notifications" mapstructure:"notifications"`
	Security      security.LimiterConfig   `yaml:"security" mapstructure:"security"`
	Worker        WorkerConfig             `yaml:"worker" mapstructure:"worker"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string            `yaml:"level" mapstructure:"level"`
	Format string            `yaml:"format" mapstructure:"format"` // json or console
	File   FileLoggingConfig `yaml:"file" mapstructure:"file"`
}

// FileLoggingConfig contains file logging configuration
type FileLoggingConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// WorkerConfig contains event worker configuration
type WorkerConfig struct {
	Enabled     bool `yaml:"enabled" mapstructure:"enabled"`
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: store.Config{
			DatabaseURL:     "postgres://localhost:5432/voicesentinel?sslmode=disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 1 * time.Minute,
		},
		Cache:      cache.DefaultConfig(),
		Audio:      audiostore.DefaultS3Config(),
		Validation: validate.DefaultConfig(),
		Embedder:   embedder.DefaultConfig(),
		Pipeline:   pipeline.DefaultConfig(),
		Scorer:     biometric.DefaultScorerConfig(),
		Completion: biometric.DefaultAnalyzerConfig(),
		Notifications: notify.HubConfig{
			BroadcastProgress:        true,
			BroadcastQualityWarnings: true,
			BroadcastCompletions:     true,
			BroadcastConnections:     true,
		},
		Security: security.DefaultLimiterConfig(),
		Worker: WorkerConfig{
			Enabled:     true,
			Concurrency: 4,
		},
	}
}
