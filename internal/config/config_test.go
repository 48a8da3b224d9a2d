package config

import "testing"

func TestDefaultsAreValid(t *testing.T) {
	if err := validateConfig(GetDefaults()); err != nil {
		t.Fatalf("Default configuration must validate: %v", err)
	}
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero required samples", func(c *Config) { c.Completion.RequiredSamples = 0 }},
		{"threshold above one", func(c *Config) { c.Scorer.AuthenticationThreshold = 1.5 }},
		{"negative quality floor", func(c *Config) { c.Completion.MinQualityScore = -0.1 }},
		{"zero dimensions", func(c *Config) { c.Embedder.Dimensions = 0 }},
		{"zero worker concurrency", func(c *Config) { c.Worker.Concurrency = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
