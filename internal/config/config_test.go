package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "goodrain.me", cfg.Registry.Local)
	assert.Equal(t, 2, cfg.Clone.Attempts)
	assert.Equal(t, 180*time.Second, cfg.Clone.TimeoutDuration())
	assert.Equal(t, 25*time.Second, cfg.ControlPlane.TimeoutDuration())
	assert.Equal(t, LockBackendMemory, cfg.Lock.Backend)
	assert.Equal(t, []string{"perl", "plugins/scripts/build.pl"}, cfg.Build.SlugCompiler)
}

func TestParseExpandsEnvironment(t *testing.T) {
	t.Setenv("BW_TEST_TOKEN", "s3cret")
	cfg, err := Parse([]byte(`
controlplane:
  base_url: http://region.local:8888
  token: ${BW_TEST_TOKEN}
registry:
  hub: hub.goodrain.com
  hub_enabled: true
`))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.ControlPlane.Token)
	assert.True(t, cfg.Registry.HubEnabled)
	assert.Equal(t, "docker", cfg.Build.DockerBin)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"lock backend":  "lock:\n  backend: etcd\n",
		"nats url":      "lock:\n  backend: nats\n",
		"consul addr":   "lock:\n  backend: consul\n",
		"clone timeout": "clone:\n  timeout: soon\n",
		"base url":      "controlplane:\n  base_url: not-a-url\n",
		"retry backoff": "controlplane:\n  retry:\n    backoff: random\n",
		"retry order":   "controlplane:\n  retry:\n    initial_delay: 10s\n    max_delay: 1s\n",
		"minio bucket":  "slug:\n  region:\n    enabled: true\n    type: minio\n    endpoint: s3.local\n",
		"fs root":       "slug:\n  market:\n    enabled: true\n",
		"logging level": "logging:\n  level: loud\n",
		"janitor":       "daemon:\n  janitor_interval: often\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration file not found")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clone:\n  attempts: 3\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Clone.Attempts)
}

func TestNormalizeRetryBackoff(t *testing.T) {
	assert.Equal(t, RetryBackoffExponential, NormalizeRetryBackoff(" Exponential "))
	assert.Equal(t, RetryBackoffMode(""), NormalizeRetryBackoff("jitter"))
}

func TestParseNormalizesEnumCase(t *testing.T) {
	cfg, err := Parse([]byte("lock:\n  backend: \" Memory \"\nlogging:\n  level: WARNING\n  format: JSON\n"))
	require.NoError(t, err)
	assert.Equal(t, LockBackendMemory, cfg.Lock.Backend)
	assert.Equal(t, LogLevelWarn, cfg.Logging.Level)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)
}

func TestParseReportsAllowedEnumValues(t *testing.T) {
	_, err := Parse([]byte("lock:\n  backend: etcd\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allowed: consul|memory|nats")
}
