package build

import (
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// Sentinel errors for build failures. Call sites wrap them with the underlying cause;
// errors.Is matches on category and message.
var (
	ErrDockerfile      = errors.BuildError("invalid Dockerfile").Build()
	ErrBuildCommand    = errors.BuildError("build command failed").Build()
	ErrPush            = errors.BuildError("image push failed").Build()
	ErrEmptyArtifact   = errors.BuildError("slug package is empty").Build()
	ErrMissingArtifact = errors.BuildError("slug package is missing").Build()
	ErrArtifactDigest  = errors.BuildError("slug package could not be hashed").Build()

	// ErrMetadataUpdate is logged, never returned from a builder.
	ErrMetadataUpdate = errors.ControlPlaneError("service metadata update failed").Build()
)

func wrap(sentinel *errors.ClassifiedError, cause error, kv ...any) error {
	b := errors.WrapError(cause, sentinel.Category(), sentinel.Message()).WithSeverity(sentinel.Severity())
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			b = b.WithContext(k, kv[i+1])
		}
	}
	return b.Build()
}
