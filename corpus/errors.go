package corpus

import "errors"

var (
	// ErrSourceNotFound is returned when a source ID does not exist.
	ErrSourceNotFound = errors.New("corpus: source not found")

	// ErrDuplicateSource is returned when a location is already registered.
	ErrDuplicateSource = errors.New("corpus: source location already registered")

	// ErrInvalidSource is returned for sources failing validation
	// (empty name, bad format/tag, blocked location).
	ErrInvalidSource = errors.New("corpus: invalid source")

	// ErrRunInProgress is returned by Run when an ingestion run is already
	// executing. Runs are strictly one at a time.
	ErrRunInProgress = errors.New("corpus: ingestion run already in progress")
)
