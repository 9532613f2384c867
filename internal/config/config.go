package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// Config is the worker configuration. It is loaded once at process start and passed by
// reference into every component constructor.
type Config struct {
	Paths        PathsConfig        `yaml:"paths"`
	Clone        CloneConfig        `yaml:"clone"`
	Lock         LockConfig         `yaml:"lock"`
	Registry     RegistryConfig     `yaml:"registry"`
	Build        BuildConfig        `yaml:"build"`
	Slug         SlugConfig         `yaml:"slug"`
	ControlPlane ControlPlaneConfig `yaml:"controlplane"`
	EventLog     EventLogConfig     `yaml:"eventlog"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Daemon       DaemonConfig       `yaml:"daemon"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// PathsConfig holds the roots of the per-service workspace layout.
type PathsConfig struct {
	BuildRoot string `yaml:"build_root"` // <root>/<tenant>/{source,cache}/<service>
	SlugRoot  string `yaml:"slug_root"`  // <root>/<tenant>/slug/<service>
	LogRoot   string `yaml:"log_root"`   // <root>/<tenant>/<service>
}

// CloneConfig bounds the source fetch stage.
type CloneConfig struct {
	Timeout  string `yaml:"timeout"`
	Attempts int    `yaml:"attempts"`
	Username string `yaml:"username,omitempty"`
	Token    string `yaml:"token,omitempty"`
}

// TimeoutDuration parses Timeout, falling back to the default on error.
func (c CloneConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(c.Timeout, defaultCloneTimeout)
}

// LockConfig selects and configures the lock store backend.
type LockConfig struct {
	Backend      LockBackend `yaml:"backend"`
	NATSURL      string      `yaml:"nats_url,omitempty"`
	Bucket       string      `yaml:"bucket,omitempty"`
	ConsulAddr   string      `yaml:"consul_addr,omitempty"`
	ConsulPrefix string      `yaml:"consul_prefix,omitempty"`
}

// RegistryConfig describes the image tiers.
type RegistryConfig struct {
	Local         string `yaml:"local"`
	Mirror        string `yaml:"mirror,omitempty"`
	MirrorEnabled bool   `yaml:"mirror_enabled"`
	Hub           string `yaml:"hub,omitempty"`
	HubEnabled    bool   `yaml:"hub_enabled"`
	Namespace     string `yaml:"namespace,omitempty"`
	Insecure      bool   `yaml:"insecure"`
	Username      string `yaml:"username,omitempty"`
	Password      string `yaml:"password,omitempty"`
}

// BuildConfig configures the external build toolchain.
type BuildConfig struct {
	DockerBin    string   `yaml:"docker_bin"`
	SlugCompiler []string `yaml:"slug_compiler"`
	PushAttempts int      `yaml:"push_attempts"`
}

// SlugConfig configures slug publication. PublishRoot is the local region copy;
// Region and Market are the remote tiers compared by md5 sidecar.
type SlugConfig struct {
	PublishRoot string          `yaml:"publish_root"`
	Region      SlugStoreConfig `yaml:"region"`
	Market      SlugStoreConfig `yaml:"market"`
}

// SlugStoreConfig configures one remote slug tier.
type SlugStoreConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Type      SlugStoreType `yaml:"type"`
	Root      string        `yaml:"root,omitempty"`
	Endpoint  string        `yaml:"endpoint,omitempty"`
	AccessKey string        `yaml:"access_key,omitempty"`
	SecretKey string        `yaml:"secret_key,omitempty"`
	Bucket    string        `yaml:"bucket,omitempty"`
	Prefix    string        `yaml:"prefix,omitempty"`
	UseSSL    bool          `yaml:"use_ssl"`
}

// ControlPlaneConfig configures the region API client.
type ControlPlaneConfig struct {
	BaseURL string      `yaml:"base_url"`
	Token   string      `yaml:"token,omitempty"`
	Timeout string      `yaml:"timeout"`
	Retry   RetryConfig `yaml:"retry"`
}

// TimeoutDuration parses Timeout, falling back to the default on error.
func (c ControlPlaneConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(c.Timeout, defaultHTTPTimeout)
}

// RetryConfig is the serialized form of a retry.Policy.
type RetryConfig struct {
	Backoff      RetryBackoffMode `yaml:"backoff"`
	InitialDelay string           `yaml:"initial_delay"`
	MaxDelay     string           `yaml:"max_delay"`
	MaxRetries   int              `yaml:"max_retries"`
}

// EventLogConfig configures the per-event_id user log.
type EventLogConfig struct {
	DBPath        string `yaml:"db_path,omitempty"`
	NATSURL       string `yaml:"nats_url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Locale        string `yaml:"locale"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// DaemonConfig configures long-running task consumption.
type DaemonConfig struct {
	NATSURL           string `yaml:"nats_url,omitempty"`
	Subject           string `yaml:"subject"`
	QueueGroup        string `yaml:"queue_group"`
	HTTPListen        string `yaml:"http_listen,omitempty"`
	JanitorInterval   string `yaml:"janitor_interval"`
	ArtifactRetention string `yaml:"artifact_retention"`
	KeepVersions      int    `yaml:"keep_versions"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Load reads configPath, expands environment variables, applies defaults and validates.
// .env files are loaded first so they can feed the expansion.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError(fmt.Sprintf("configuration file not found: %s", configPath)).Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").Fatal().Build()
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to unmarshal config").Fatal().Build()
	}
	cfg.applyDefaults()
	cfg.normalizeEnums()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
