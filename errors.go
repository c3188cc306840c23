package logsight

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("logsight: not found")

	// ErrIngestionNotFound is returned when an ingestion ID does not exist.
	ErrIngestionNotFound = errors.New("logsight: ingestion not found")

	// ErrBlobMissing is returned when an ingestion has no stored text blob.
	ErrBlobMissing = errors.New("logsight: ingestion blob missing")

	// ErrAlreadyProcessed is returned when re-running processing on an
	// ingestion that is already processing or done.
	ErrAlreadyProcessed = errors.New("logsight: ingestion already processed")

	// ErrNotReady is returned when an operation requires a finished
	// ingestion, e.g. generating insights before events exist.
	ErrNotReady = errors.New("logsight: ingestion not done")

	// ErrInvalidScope is returned for an unknown insight scope or a scope
	// whose target fingerprint/finding does not exist.
	ErrInvalidScope = errors.New("logsight: invalid insight scope")

	// ErrValidation is returned for malformed request payloads.
	ErrValidation = errors.New("logsight: validation failed")

	// ErrUnauthorized is returned for missing or invalid credentials.
	ErrUnauthorized = errors.New("logsight: unauthorized")

	// ErrForbidden is returned when the caller is not a member of the
	// organization owning the requested resource.
	ErrForbidden = errors.New("logsight: forbidden")

	// ErrConflict is returned when a unique constraint would be violated,
	// e.g. registering an email twice.
	ErrConflict = errors.New("logsight: conflict")

	// ErrLLMUnavailable is returned when the LLM provider is unreachable.
	ErrLLMUnavailable = errors.New("logsight: LLM provider unavailable")

	// ErrLLMRequestFailed is returned when an LLM request fails.
	ErrLLMRequestFailed = errors.New("logsight: LLM request failed")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("logsight: store is closed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("logsight: invalid configuration")
)
