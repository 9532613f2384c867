package config

import "git.home.luguber.info/inful/buildworker/internal/foundation/normalization"

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// LockBackend selects the lock store implementation.
type LockBackend string

const (
	LockBackendMemory LockBackend = "memory"
	LockBackendNATS   LockBackend = "nats"
	LockBackendConsul LockBackend = "consul"
)

// SlugStoreType selects a remote slug tier implementation.
type SlugStoreType string

const (
	SlugStoreFS    SlugStoreType = "fs"
	SlugStoreMinio SlugStoreType = "minio"
)

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var (
	retryBackoffs = normalization.NewNormalizer(map[string]RetryBackoffMode{
		"fixed": RetryBackoffFixed, "linear": RetryBackoffLinear, "exponential": RetryBackoffExponential,
	}, "")
	lockBackends = normalization.NewNormalizer(map[string]LockBackend{
		"memory": LockBackendMemory, "nats": LockBackendNATS, "consul": LockBackendConsul,
	}, "")
	slugStoreTypes = normalization.NewNormalizer(map[string]SlugStoreType{
		"fs": SlugStoreFS, "minio": SlugStoreMinio,
	}, "")
	logLevels = normalization.NewNormalizer(map[string]LogLevel{
		"debug": LogLevelDebug, "info": LogLevelInfo, "warn": LogLevelWarn, "warning": LogLevelWarn, "error": LogLevelError,
	}, "")
	logFormats = normalization.NewNormalizer(map[string]LogFormat{
		"json": LogFormatJSON, "text": LogFormatText,
	}, "")
)

// NormalizeRetryBackoff converts user input (case-insensitive) into a typed mode, returning empty string for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode { return retryBackoffs.Normalize(raw) }

// NormalizeLogLevel converts user input into a LogLevel, returning empty string for unknown.
func NormalizeLogLevel(raw string) LogLevel { return logLevels.Normalize(raw) }

// normalizeEnums folds case and whitespace of recognized enum values. Unknown
// values are kept verbatim so validation can report them.
func (c *Config) normalizeEnums() {
	c.ControlPlane.Retry.Backoff = keepUnknown(retryBackoffs, c.ControlPlane.Retry.Backoff)
	c.Lock.Backend = keepUnknown(lockBackends, c.Lock.Backend)
	c.Slug.Region.Type = keepUnknown(slugStoreTypes, c.Slug.Region.Type)
	c.Slug.Market.Type = keepUnknown(slugStoreTypes, c.Slug.Market.Type)
	c.Logging.Level = keepUnknown(logLevels, c.Logging.Level)
	c.Logging.Format = keepUnknown(logFormats, c.Logging.Format)
}

func keepUnknown[T ~string](n *normalization.Normalizer[T], v T) T {
	if out, err := n.NormalizeWithError(string(v)); err == nil {
		return out
	}
	return v
}
