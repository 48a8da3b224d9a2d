package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	config := GetDefaults()

	// Configure viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/voice-sentinel/")
	viper.AddConfigPath("$HOME/.voice-sentinel/")

	// Environment variable overrides
	viper.SetEnvPrefix("VOICESENTINEL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Use specific config file if provided
	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	// Read configuration
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Completion.RequiredSamples < 1 {
		return fmt.Errorf("invalid required samples: %d (must be at least 1)", config.Completion.RequiredSamples)
	}

	for name, v := range map[string]float64{
		"completion.min_quality_score":               config.Completion.MinQualityScore,
		"completion.min_average_quality":             config.Completion.MinAverageQuality,
		"completion.completion_confidence_threshold": config.Completion.CompletionConfidenceThreshold,
		"scorer.min_similarity_threshold":            config.Scorer.MinSimilarityThreshold,
		"scorer.authentication_threshold":            config.Scorer.AuthenticationThreshold,
		"scorer.high_confidence_threshold":           config.Scorer.HighConfidenceThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("invalid %s: %g (must be between 0 and 1)", name, v)
		}
	}

	if config.Embedder.Dimensions <= 0 {
		return fmt.Errorf("invalid embedder dimensions: %d", config.Embedder.Dimensions)
	}

	if config.Worker.Concurrency < 1 {
		return fmt.Errorf("invalid worker concurrency: %d (must be at least 1)", config.Worker.Concurrency)
	}

	return nil
}

// Watch starts watching the configuration file for changes
func Watch(config *Config, callback func(*Config)) error {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := &Config{}
		if err := viper.Unmarshal(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		if err := validateConfig(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		callback(newConfig)
	})

	return nil
}
