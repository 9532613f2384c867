package config

import "time"

const (
	defaultCloneTimeout = 180 * time.Second
	defaultHTTPTimeout  = 25 * time.Second
)

// Default returns a configuration populated with the worker's defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values only, so it is safe to call after unmarshalling.
func (c *Config) applyDefaults() {
	if c.Paths.BuildRoot == "" {
		c.Paths.BuildRoot = "/cache/build"
	}
	if c.Paths.SlugRoot == "" {
		c.Paths.SlugRoot = "/grdata/build/tenant"
	}
	if c.Paths.LogRoot == "" {
		c.Paths.LogRoot = "/grdata/logs"
	}

	if c.Clone.Timeout == "" {
		c.Clone.Timeout = defaultCloneTimeout.String()
	}
	if c.Clone.Attempts <= 0 {
		c.Clone.Attempts = 2
	}

	if c.Lock.Backend == "" {
		c.Lock.Backend = LockBackendMemory
	}
	if c.Lock.Bucket == "" {
		c.Lock.Bucket = "buildworker-locks"
	}
	if c.Lock.ConsulPrefix == "" {
		c.Lock.ConsulPrefix = "buildworker/locks"
	}

	if c.Registry.Local == "" {
		c.Registry.Local = "goodrain.me"
	}

	if c.Build.DockerBin == "" {
		c.Build.DockerBin = "docker"
	}
	if len(c.Build.SlugCompiler) == 0 {
		c.Build.SlugCompiler = []string{"perl", "plugins/scripts/build.pl"}
	}
	if c.Build.PushAttempts <= 0 {
		c.Build.PushAttempts = 2
	}

	if c.Slug.PublishRoot == "" {
		c.Slug.PublishRoot = "/grdata/build/publish"
	}
	for _, tier := range []*SlugStoreConfig{&c.Slug.Region, &c.Slug.Market} {
		if tier.Type == "" {
			tier.Type = SlugStoreFS
		}
	}

	if c.ControlPlane.Timeout == "" {
		c.ControlPlane.Timeout = defaultHTTPTimeout.String()
	}
	if c.ControlPlane.Retry.Backoff == "" {
		c.ControlPlane.Retry.Backoff = RetryBackoffFixed
	}
	if c.ControlPlane.Retry.InitialDelay == "" {
		c.ControlPlane.Retry.InitialDelay = "500ms"
	}
	if c.ControlPlane.Retry.MaxDelay == "" {
		c.ControlPlane.Retry.MaxDelay = "5s"
	}
	if c.ControlPlane.Retry.MaxRetries == 0 {
		c.ControlPlane.Retry.MaxRetries = 1
	}

	if c.EventLog.SubjectPrefix == "" {
		c.EventLog.SubjectPrefix = "buildworker.events"
	}
	if c.EventLog.Locale == "" {
		c.EventLog.Locale = "en"
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9106"
	}

	if c.Daemon.Subject == "" {
		c.Daemon.Subject = "buildworker.tasks"
	}
	if c.Daemon.QueueGroup == "" {
		c.Daemon.QueueGroup = "buildworker"
	}
	if c.Daemon.JanitorInterval == "" {
		c.Daemon.JanitorInterval = "1h"
	}
	if c.Daemon.ArtifactRetention == "" {
		c.Daemon.ArtifactRetention = "720h"
	}
	if c.Daemon.KeepVersions <= 0 {
		c.Daemon.KeepVersions = 5
	}

	if c.Logging.Level == "" {
		c.Logging.Level = LogLevelInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatText
	}
}
