package eventstore

import (
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

var (
	// ErrDatabaseOpenFailed indicates the SQLite database could not be opened.
	ErrDatabaseOpenFailed = errors.EventStoreError("could not open event store database").Build()

	// ErrInitializeSchemaFailed indicates the database schema could not be initialized.
	ErrInitializeSchemaFailed = errors.EventStoreError("failed to initialize event store schema").Build()

	// ErrEventAppendFailed indicates appending an entry failed.
	ErrEventAppendFailed = errors.EventStoreError("failed to append event to store").Build()

	// ErrEventQueryFailed indicates querying entries or versions failed.
	ErrEventQueryFailed = errors.EventStoreError("failed to query event store").Build()

	// ErrVersionWriteFailed indicates inserting, updating or deleting a version row failed.
	ErrVersionWriteFailed = errors.EventStoreError("failed to write version record").Build()
)

func wrap(sentinel *errors.ClassifiedError, err error) error {
	return errors.WrapError(err, sentinel.Category(), sentinel.Message()).Build()
}
