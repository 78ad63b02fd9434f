package config

import (
	"fmt"
	"strings"
	"time"
)

// DuplicatePolicy decides what happens when a key is submitted while already pending
type DuplicatePolicy string

const (
	// DuplicateFanout attaches the new caller to the pending key
	DuplicateFanout DuplicatePolicy = "fanout"
	// DuplicateReject turns the new caller away until the first resolves
	DuplicateReject DuplicatePolicy = "reject"
)

// Config represents the main configuration structure
type Config struct {
	Host         string           `yaml:"host" validate:"required"`
	Port         int              `yaml:"port" validate:"min=1,max=65535"`
	LogLevel     string           `yaml:"logLevel" validate:"oneof=debug info warn error"`
	DebugTimeout int              `yaml:"debugTimeout" validate:"gte=0"` // ms - bound for blocking HTTP lookups
	VirusTotal   VirusTotalConfig `yaml:"virustotal"`
}

// VirusTotalConfig configures the reputation lookup source
type VirusTotalConfig struct {
	Key                  string               `yaml:"key" validate:"required"`
	URL                  string               `yaml:"url" validate:"required,url"`
	ContentTypes         string               `yaml:"contentTypes" validate:"required"` // comma separated
	QueriesPerMinute     int                  `yaml:"queriesPerMinute" validate:"min=1,max=60000"`
	MaxOutstanding       int                  `yaml:"maxOutstanding" validate:"min=1"`
	MaxPending           int                  `yaml:"maxPending" validate:"gte=0"`
	DataSources          string               `yaml:"dataSources"` // comma separated vendor names, in report order
	RequestTimeout       int                  `yaml:"requestTimeout" validate:"gte=0"` // ms
	PendingExpiryFlushes int                  `yaml:"pendingExpiryFlushes" validate:"gte=0"`
	DuplicatePolicy      DuplicatePolicy      `yaml:"duplicatePolicy" validate:"oneof=fanout reject"`
	CircuitBreaker       CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// CircuitBreakerConfig configures the breaker in front of the remote service
type CircuitBreakerConfig struct {
	Enabled          bool `yaml:"enabled"`
	FailureThreshold int  `yaml:"failureThreshold" validate:"gte=0"`
	RecoveryTimeout  int  `yaml:"recoveryTimeout" validate:"gte=0"` // ms
}

// Default values
const (
	DefaultHost         = "localhost"
	DefaultPort         = 8081
	DefaultLogLevel     = "info"
	DefaultDebugTimeout = 120000 // ms

	DefaultURL                  = "https://www.virustotal.com/vtapi/v2/file/report"
	DefaultContentTypes         = "application/x-dosexec,application/vnd.ms-cab-compressed,application/pdf,application/x-shockwave-flash,application/x-java-applet,application/jar"
	DefaultQueriesPerMinute     = 3 // public API limit
	DefaultMaxOutstanding       = 25
	DefaultPendingFactor        = 4 // maxPending = factor * maxOutstanding
	DefaultDataSources          = "McAfee,Symantec,Microsoft,Kaspersky"
	DefaultRequestTimeout       = 10000 // ms
	DefaultPendingExpiryFlushes = 1
	DefaultDuplicatePolicy      = DuplicateFanout

	DefaultCircuitBreakerEnabled   = true
	DefaultCircuitFailureThreshold = 5
	DefaultCircuitRecoveryTimeout  = 60000 // ms

	// APIKeyEnv overrides virustotal.key when set
	APIKeyEnv = "VT_API_KEY"
)

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetDebugTimeoutDuration returns the debug lookup timeout as time.Duration
func (c *Config) GetDebugTimeoutDuration() time.Duration {
	return time.Duration(c.DebugTimeout) * time.Millisecond
}

// GetContentTypes returns the accepted content types
func (c *VirusTotalConfig) GetContentTypes() []string {
	return splitList(c.ContentTypes)
}

// GetDataSources returns the vendor names to report on, in configured order
func (c *VirusTotalConfig) GetDataSources() []string {
	return splitList(c.DataSources)
}

// GetFlushInterval returns the interval between batch queries
func (c *VirusTotalConfig) GetFlushInterval() time.Duration {
	return time.Duration(60000/c.QueriesPerMinute) * time.Millisecond
}

// GetRequestTimeoutDuration returns the remote request timeout as time.Duration
func (c *VirusTotalConfig) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetRecoveryTimeoutDuration returns breaker recovery timeout as time.Duration
func (c *CircuitBreakerConfig) GetRecoveryTimeoutDuration() time.Duration {
	return time.Duration(c.RecoveryTimeout) * time.Millisecond
}

// splitList splits a comma separated list, dropping blanks
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
