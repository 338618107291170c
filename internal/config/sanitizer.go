package config

import (
	"encoding/json"
)

// ConfigSanitizer sanitizes sensitive configuration data for logging.
type ConfigSanitizer interface {
	// Sanitize removes or redacts sensitive fields.
	Sanitize(cfg *Config) *Config
}

// DefaultConfigSanitizer implements ConfigSanitizer.
type DefaultConfigSanitizer struct {
	redactionValue string
}

// NewDefaultConfigSanitizer creates a new DefaultConfigSanitizer.
func NewDefaultConfigSanitizer() ConfigSanitizer {
	return &DefaultConfigSanitizer{
		redactionValue: "***REDACTED***",
	}
}

// NewConfigSanitizer creates a ConfigSanitizer with a custom redaction value.
func NewConfigSanitizer(redactionValue string) ConfigSanitizer {
	return &DefaultConfigSanitizer{
		redactionValue: redactionValue,
	}
}

// Sanitize redacts credential-bearing fields from the configuration.
func (s *DefaultConfigSanitizer) Sanitize(cfg *Config) *Config {
	sanitized := s.deepCopy(cfg)

	sanitized.Queue.URL = s.sanitizeURL(sanitized.Queue.URL)
	sanitized.Cache.URL = s.sanitizeURL(sanitized.Cache.URL)
	sanitized.ConfigStore.URL = s.sanitizeURL(sanitized.ConfigStore.URL)

	return sanitized
}

// deepCopy creates a deep copy of Config using JSON serialization.
func (s *DefaultConfigSanitizer) deepCopy(cfg *Config) *Config {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}

	var configCopy Config
	if err := json.Unmarshal(configJSON, &configCopy); err != nil {
		return cfg
	}

	return &configCopy
}

// sanitizeURL redacts credentials embedded in a connection URL.
func (s *DefaultConfigSanitizer) sanitizeURL(url string) string {
	if url == "" {
		return url
	}

	// A full implementation would use url.Parse to redact only the userinfo
	// component; this conservatively redacts the whole value whenever it
	// could plausibly carry embedded credentials.
	return s.redactionValue
}
