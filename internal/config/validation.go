package config

import (
	"fmt"
	"net/url"
	"time"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// Validate checks cross-field invariants. It returns a CategoryConfig ClassifiedError.
func (c *Config) Validate() error {
	v := configurationValidator{config: c}
	for _, check := range []func() error{
		v.validateClone,
		v.validateLock,
		v.validateControlPlane,
		v.validateSlugTiers,
		v.validateDaemon,
		v.validateLogging,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

type configurationValidator struct {
	config *Config
}

func invalid(field, format string, args ...any) error {
	return errors.ConfigError(fmt.Sprintf(format, args...)).WithContext("field", field).Build()
}

func (cv configurationValidator) validateClone() error {
	if _, err := time.ParseDuration(cv.config.Clone.Timeout); err != nil {
		return invalid("clone.timeout", "invalid clone.timeout %q: %v", cv.config.Clone.Timeout, err)
	}
	if cv.config.Clone.Attempts < 1 {
		return invalid("clone.attempts", "clone.attempts must be >= 1")
	}
	return nil
}

func (cv configurationValidator) validateLock() error {
	l := cv.config.Lock
	if _, err := lockBackends.NormalizeWithError(string(l.Backend)); err != nil {
		return invalid("lock.backend", "invalid lock.backend: %v", err)
	}
	switch l.Backend {
	case LockBackendNATS:
		if l.NATSURL == "" {
			return invalid("lock.nats_url", "lock.nats_url is required for the nats backend")
		}
	case LockBackendConsul:
		if l.ConsulAddr == "" {
			return invalid("lock.consul_addr", "lock.consul_addr is required for the consul backend")
		}
	}
	return nil
}

func (cv configurationValidator) validateControlPlane() error {
	cp := cv.config.ControlPlane
	if cp.BaseURL != "" {
		u, err := url.Parse(cp.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("controlplane.base_url", "invalid controlplane.base_url: %q", cp.BaseURL)
		}
	}
	if _, err := retryBackoffs.NormalizeWithError(string(cp.Retry.Backoff)); err != nil {
		return invalid("controlplane.retry.backoff", "invalid retry backoff: %v", err)
	}
	initial, err := time.ParseDuration(cp.Retry.InitialDelay)
	if err != nil {
		return invalid("controlplane.retry.initial_delay", "invalid initial_delay: %v", err)
	}
	maxDelay, err := time.ParseDuration(cp.Retry.MaxDelay)
	if err != nil {
		return invalid("controlplane.retry.max_delay", "invalid max_delay: %v", err)
	}
	if maxDelay < initial {
		return invalid("controlplane.retry.max_delay", "max_delay (%s) must be >= initial_delay (%s)", cp.Retry.MaxDelay, cp.Retry.InitialDelay)
	}
	if cp.Retry.MaxRetries < 0 {
		return invalid("controlplane.retry.max_retries", "max_retries cannot be negative: %d", cp.Retry.MaxRetries)
	}
	return nil
}

func (cv configurationValidator) validateSlugTiers() error {
	tiers := map[string]SlugStoreConfig{"slug.region": cv.config.Slug.Region, "slug.market": cv.config.Slug.Market}
	for name, tier := range tiers {
		if !tier.Enabled {
			continue
		}
		switch tier.Type {
		case SlugStoreFS:
			if tier.Root == "" {
				return invalid(name+".root", "%s.root is required for the fs store", name)
			}
		case SlugStoreMinio:
			if tier.Endpoint == "" || tier.Bucket == "" {
				return invalid(name+".endpoint", "%s.endpoint and bucket are required for the minio store", name)
			}
		default:
			return invalid(name+".type", "invalid %s.type %q (allowed: %s)", name, tier.Type, slugStoreTypes.Allowed())
		}
	}
	return nil
}

func (cv configurationValidator) validateDaemon() error {
	d := cv.config.Daemon
	if _, err := time.ParseDuration(d.JanitorInterval); err != nil {
		return invalid("daemon.janitor_interval", "invalid daemon.janitor_interval: %v", err)
	}
	if _, err := time.ParseDuration(d.ArtifactRetention); err != nil {
		return invalid("daemon.artifact_retention", "invalid daemon.artifact_retention: %v", err)
	}
	return nil
}

func (cv configurationValidator) validateLogging() error {
	if _, err := logLevels.NormalizeWithError(string(cv.config.Logging.Level)); err != nil {
		return invalid("logging.level", "invalid logging.level: %v", err)
	}
	if _, err := logFormats.NormalizeWithError(string(cv.config.Logging.Format)); err != nil {
		return invalid("logging.format", "invalid logging.format: %v", err)
	}
	return nil
}
