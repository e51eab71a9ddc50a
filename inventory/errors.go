package inventory

import "errors"

// Error classes shared by all handlers. Callers wrap them with context using
// fmt.Errorf("%w: ...") and classify with errors.Is.
var (
	// ErrInputFormat marks an upload that cannot be ingested at all
	// (unreadable object, empty object, missing or incomplete header).
	// It fails the ingestion invocation so the platform can redeliver it.
	ErrInputFormat = errors.New("input format error")

	// ErrRowValidation marks a single CSV row that was rejected. The row is
	// skipped and the rest of the upload is still ingested.
	ErrRowValidation = errors.New("row validation error")

	// ErrStoreAccess marks a failure talking to the inventory table.
	ErrStoreAccess = errors.New("store access error")

	// ErrEventShape marks a trigger payload that did not have the expected shape.
	ErrEventShape = errors.New("event shape error")
)
