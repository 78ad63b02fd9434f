package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	cfg, err := Parse([]byte("virustotal:\n  key: secret\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, "secret", cfg.VirusTotal.Key)
	assert.Equal(t, DefaultURL, cfg.VirusTotal.URL)
	assert.Equal(t, DefaultQueriesPerMinute, cfg.VirusTotal.QueriesPerMinute)
	assert.Equal(t, DefaultMaxOutstanding, cfg.VirusTotal.MaxOutstanding)
	assert.Equal(t, DefaultPendingFactor*DefaultMaxOutstanding, cfg.VirusTotal.MaxPending)
	assert.Equal(t, DefaultPendingExpiryFlushes, cfg.VirusTotal.PendingExpiryFlushes)
	assert.Equal(t, DuplicateFanout, cfg.VirusTotal.DuplicatePolicy)
	assert.True(t, cfg.VirusTotal.CircuitBreaker.Enabled)
	assert.Equal(t, []string{"McAfee", "Symantec", "Microsoft", "Kaspersky"}, cfg.VirusTotal.GetDataSources())
	assert.Contains(t, cfg.VirusTotal.GetContentTypes(), "application/x-dosexec")
	assert.Equal(t, 20*time.Second, cfg.VirusTotal.GetFlushInterval())
	assert.Equal(t, "localhost:8081", cfg.Addr())
}

func TestParse_ExplicitZeroValues(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	cfg, err := Parse([]byte(`
virustotal:
  key: secret
  pendingExpiryFlushes: 0
  circuitBreaker:
    enabled: false
`))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.VirusTotal.PendingExpiryFlushes)
	assert.False(t, cfg.VirusTotal.CircuitBreaker.Enabled)
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	cfg, err := Parse([]byte(`
host: 0.0.0.0
port: 9000
logLevel: debug
virustotal:
  key: secret
  contentTypes: " application/pdf , application/jar ,"
  queriesPerMinute: 4
  maxOutstanding: 10
  maxPending: 12
  dataSources: Alpha,Beta
  duplicatePolicy: reject
`))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
	assert.Equal(t, []string{"application/pdf", "application/jar"}, cfg.VirusTotal.GetContentTypes())
	assert.Equal(t, 15*time.Second, cfg.VirusTotal.GetFlushInterval())
	assert.Equal(t, 12, cfg.VirusTotal.MaxPending)
	assert.Equal(t, []string{"Alpha", "Beta"}, cfg.VirusTotal.GetDataSources())
	assert.Equal(t, DuplicateReject, cfg.VirusTotal.DuplicatePolicy)
}

func TestParse_EnvKeyOverride(t *testing.T) {
	t.Setenv(APIKeyEnv, "from-env")

	cfg, err := Parse([]byte("virustotal:\n  key: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.VirusTotal.Key)
}

func TestParse_Invalid(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	cases := map[string]string{
		"missing key":        "virustotal:\n  url: https://example.com\n",
		"bad log level":      "logLevel: loud\nvirustotal:\n  key: k\n",
		"bad port":           "port: 70000\nvirustotal:\n  key: k\n",
		"bad policy":         "virustotal:\n  key: k\n  duplicatePolicy: drop\n",
		"pending too small":  "virustotal:\n  key: k\n  maxOutstanding: 10\n  maxPending: 5\n",
		"duplicate vendor":   "virustotal:\n  key: k\n  dataSources: A,B,A\n",
		"empty content list": "virustotal:\n  key: k\n  contentTypes: ' , '\n",
		"bad yaml":           "virustotal: [\n",
		"negative expiry":    "virustotal:\n  key: k\n  pendingExpiryFlushes: -1\n",
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("virustotal:\n  key: k\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "k", cfg.VirusTotal.Key)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	// godotenv never overrides variables that are already present
	t.Setenv(APIKeyEnv, "")
	require.NoError(t, os.Unsetenv(APIKeyEnv))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(APIKeyEnv+"=dotenv-key\n"), 0o600))
	require.NoError(t, LoadDotEnv(path))

	cfg, err := Parse([]byte("virustotal:\n  key: file\n"))
	require.NoError(t, err)
	assert.Equal(t, "dotenv-key", cfg.VirusTotal.Key)
}
