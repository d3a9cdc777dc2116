package model

import (
	"errors"
	"fmt"
)

// ─── Sentinel errors ─────────────────────────────────────────────────────────

var (
	// ErrNotFound is returned when a watch or listing id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the requester does not own the watch.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCriteria marks a malformed criterion.
	ErrInvalidCriteria = errors.New("invalid criteria")

	// ErrTransientScan marks a catalog failure in the middle of a scan.
	ErrTransientScan = errors.New("transient scan failure")

	// ErrConflict is returned when a watch changed between read and write.
	ErrConflict = errors.New("watch was modified concurrently")
)

// CriteriaError describes one malformed criterion.
type CriteriaError struct {
	Index  int
	Field  string
	Reason string
}

func (e *CriteriaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("criterion %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("criterion %d (%s): %s", e.Index, e.Field, e.Reason)
}

func (e *CriteriaError) Unwrap() error { return ErrInvalidCriteria }

// ScanError wraps a catalog error raised while paging through listings.
type ScanError struct {
	Page int
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("catalog scan failed at page %d: %v", e.Page, e.Err)
}

func (e *ScanError) Unwrap() []error { return []error{ErrTransientScan, e.Err} }

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
