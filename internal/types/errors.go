package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	// ErrQuotaExhausted signals the daily API-call ceiling has been hit.
	// It is a soft stop: discovery loops detect it with errors.Is and
	// terminate cleanly, preserving partial progress.
	ErrQuotaExhausted = errors.New("daily API call quota exhausted")

	// ErrNotFound is returned for HTTP 404; it is definitive and never retried.
	ErrNotFound = errors.New("page not found")

	// ErrDuplicateHash marks a record whose content fingerprint already
	// exists under a different URL. A designed outcome, not a failure.
	ErrDuplicateHash = errors.New("duplicate content hash")

	// ErrInvalidRecord marks a record that failed validation.
	ErrInvalidRecord = errors.New("record failed validation")

	// ErrNotMedicinePage marks a page that did not classify as a
	// medicine dictionary entry.
	ErrNotMedicinePage = errors.New("not a medicine dictionary page")

	// ErrEmptyRecord marks an extraction that yielded no fields beyond the URL.
	ErrEmptyRecord = errors.New("extraction yielded no fields")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	Location   string        // redirect target when following is disabled
	RetryAfter time.Duration // populated from Retry-After on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError wraps errors that occur during classification or extraction.
type ParseError struct {
	URL   string
	Phase string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (phase=%q): %v", e.URL, e.Phase, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors from the persistence gateway.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
