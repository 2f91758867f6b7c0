package model

import "errors"

// Error kinds shared across layers. Callers match with errors.Is; the
// original cause stays attached through wrapping.
var (
	// ErrFileNotFound indicates path resolution failed for an index call.
	ErrFileNotFound = errors.New("file not found")

	// ErrUnsupportedFormat indicates the file extension has no parser.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrParseFailure indicates a format parser failed on a malformed document.
	ErrParseFailure = errors.New("parse failure")

	// ErrStorage indicates the persistence layer rejected a read or write.
	ErrStorage = errors.New("storage failure")
)
