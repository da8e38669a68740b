package ingest

import "errors"

var (
	// ErrMalformedEvent is returned when project, collection, or properties
	// is missing (or properties appears twice) in the input document.
	ErrMalformedEvent = errors.New("schemaflow: malformed event")
	// ErrListenerFailure marks a system-event listener error. Per §7 it is
	// logged and swallowed, never returned to the caller of Deserialize.
	ErrListenerFailure = errors.New("schemaflow: listener failure")
)
