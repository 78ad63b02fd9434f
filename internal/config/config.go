package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// explicitProbe detects settings whose zero value is meaningful
type explicitProbe struct {
	VirusTotal struct {
		PendingExpiryFlushes *int `yaml:"pendingExpiryFlushes"`
		CircuitBreaker       struct {
			Enabled *bool `yaml:"enabled"`
		} `yaml:"circuitBreaker"`
	} `yaml:"virustotal"`
}

// LoadDotEnv loads environment variables from path if it exists
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var probe explicitProbe
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if enabled := probe.VirusTotal.CircuitBreaker.Enabled; enabled != nil {
		cfg.VirusTotal.CircuitBreaker.Enabled = *enabled
	} else {
		cfg.VirusTotal.CircuitBreaker.Enabled = DefaultCircuitBreakerEnabled
	}
	if probe.VirusTotal.PendingExpiryFlushes == nil {
		cfg.VirusTotal.PendingExpiryFlushes = DefaultPendingExpiryFlushes
	}

	if key := os.Getenv(APIKeyEnv); key != "" {
		cfg.VirusTotal.Key = key
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.DebugTimeout == 0 {
		cfg.DebugTimeout = DefaultDebugTimeout
	}

	vt := &cfg.VirusTotal
	if vt.URL == "" {
		vt.URL = DefaultURL
	}
	if vt.ContentTypes == "" {
		vt.ContentTypes = DefaultContentTypes
	}
	if vt.QueriesPerMinute == 0 {
		vt.QueriesPerMinute = DefaultQueriesPerMinute
	}
	if vt.MaxOutstanding == 0 {
		vt.MaxOutstanding = DefaultMaxOutstanding
	}
	if vt.MaxPending == 0 {
		vt.MaxPending = DefaultPendingFactor * vt.MaxOutstanding
	}
	if vt.DataSources == "" {
		vt.DataSources = DefaultDataSources
	}
	if vt.RequestTimeout == 0 {
		vt.RequestTimeout = DefaultRequestTimeout
	}
	if vt.DuplicatePolicy == "" {
		vt.DuplicatePolicy = DefaultDuplicatePolicy
	}
	if vt.CircuitBreaker.FailureThreshold == 0 {
		vt.CircuitBreaker.FailureThreshold = DefaultCircuitFailureThreshold
	}
	if vt.CircuitBreaker.RecoveryTimeout == 0 {
		vt.CircuitBreaker.RecoveryTimeout = DefaultCircuitRecoveryTimeout
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return err
	}

	vt := &cfg.VirusTotal
	if len(vt.GetContentTypes()) == 0 {
		return errors.New("virustotal.contentTypes must list at least one content type")
	}

	if vt.MaxPending < vt.MaxOutstanding {
		return fmt.Errorf("virustotal.maxPending (%d) must be at least maxOutstanding (%d)", vt.MaxPending, vt.MaxOutstanding)
	}

	seen := make(map[string]bool)
	for _, name := range vt.GetDataSources() {
		if seen[name] {
			return fmt.Errorf("virustotal.dataSources: duplicate vendor '%s'", name)
		}
		seen[name] = true
	}

	return nil
}
