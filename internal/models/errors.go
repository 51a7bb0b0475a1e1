package models

import (
	"errors"
	"fmt"
)

// IngestReason classifies ingestion failures.
type IngestReason string

const (
	IngestNotFound          IngestReason = "not_found"
	IngestSourceUnavailable IngestReason = "source_unavailable"
	IngestInvalidRange      IngestReason = "invalid_range"
	IngestTimeout           IngestReason = "timeout"
)

// IngestionError reports a failure to fetch or normalize a series.
type IngestionError struct {
	Reason IngestReason
	Symbol string
	Err    error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingestion failed for %s (%s): %v", e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("ingestion failed for %s (%s)", e.Symbol, e.Reason)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient.
func (e *IngestionError) Retryable() bool {
	return e.Reason == IngestSourceUnavailable || e.Reason == IngestTimeout
}

// ParameterError reports an invalid indicator or chart parameter.
type ParameterError struct {
	Param string
	Msg   string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Msg)
}

// StorageError reports a failed read or write against a storage area.
// Storage failures are treated as transient: disks fill and unfill, network
// mounts flap.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed for %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Retryable decides whether err is worth retrying. Components never retry
// themselves; the orchestrator calls this to choose between backoff and
// terminal failure.
func Retryable(err error) bool {
	var ie *IngestionError
	if errors.As(err, &ie) {
		return ie.Retryable()
	}
	var pe *ParameterError
	if errors.As(err, &pe) {
		return false
	}
	var se *StorageError
	if errors.As(err, &se) {
		return true
	}
	return false
}

// ErrorKind returns the taxonomy label for err, for status reporting.
func ErrorKind(err error) string {
	var ie *IngestionError
	if errors.As(err, &ie) {
		return "ingestion_" + string(ie.Reason)
	}
	var pe *ParameterError
	if errors.As(err, &pe) {
		return "parameter"
	}
	var se *StorageError
	if errors.As(err, &se) {
		return "storage"
	}
	return "internal"
}
