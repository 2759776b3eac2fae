package core

import "errors"

var (
	// ErrDuplicateKey is returned when a single submission reuses a stored CURP.
	ErrDuplicateKey = errors.New("duplicate key: curp already registered")

	// ErrStorageUnavailable wraps failures of the record store as a whole.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrAttachmentUpload is returned when the document could not be stored.
	ErrAttachmentUpload = errors.New("attachment upload failed")

	// ErrEmptyBatch is returned by Import when no rows were received.
	ErrEmptyBatch = errors.New("empty import batch")

	// ErrNothingInserted is returned by Import when every row was rejected.
	ErrNothingInserted = errors.New("no importable records")

	// ErrInvalidCSV is returned when an uploaded file cannot be parsed as CSV.
	ErrInvalidCSV = errors.New("invalid csv file")

	// ErrUnsupportedPolicy is returned by stores asked for anything but InsertOnly.
	ErrUnsupportedPolicy = errors.New("unsupported upsert policy")
)
