package publish

import (
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

var (
	ErrImageMissing = errors.PublishError("image not found in source registry").Build()
	ErrTierDisabled = errors.PublishError("target tier is not enabled").Build()
	ErrRelay        = errors.PublishError("image relay failed").Build()
	ErrSlugCopy     = errors.PublishError("slug copy failed").Build()
	ErrSlugUpload   = errors.PublishError("slug upload failed").Build()
	ErrSlugMissing  = errors.PublishError("slug not available in any tier").Build()
	ErrImport       = errors.PublishError("image import failed").Build()
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
