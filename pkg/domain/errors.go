package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors returned at the command boundary. Concrete error types below
// unwrap to these so callers can branch with errors.Is.
var (
	ErrInvalidState       = errors.New("invalid state")
	ErrDuplicateRequest   = errors.New("duplicate request")
	ErrIncompatibleHostel = errors.New("incompatible hostel")
	ErrNotFound           = errors.New("not found")
	ErrStorageCorrupt     = errors.New("storage corrupt")
	ErrVersionConflict    = errors.New("version conflict")
	ErrValidation         = errors.New("validation failed")
	ErrAlreadyExists      = errors.New("already exists")
)

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Unwrap ties the error to ErrNotFound.
func (e NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidStateError is returned when an operation is attempted on a record in
// a state that does not permit it.
type InvalidStateError struct {
	Entity EntityType
	ID     string
	State  string
	Reason string
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("%s %s is in state %s", e.Entity, e.ID, e.State)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap ties the error to ErrInvalidState.
func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// DuplicateRequestError is returned when a student already has a request in flight.
type DuplicateRequestError struct {
	StudentID  string
	ExistingID string
	Status     RequestStatus
}

func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("student %s already has request %s in status %s", e.StudentID, e.ExistingID, e.Status)
}

// Unwrap ties the error to ErrDuplicateRequest.
func (e *DuplicateRequestError) Unwrap() error { return ErrDuplicateRequest }

// IncompatibleHostelError is returned when the gender gate refuses a hostel.
type IncompatibleHostelError struct {
	HostelID   string
	HostelType HostelType
	Gender     Gender
}

func (e *IncompatibleHostelError) Error() string {
	return fmt.Sprintf("hostel %s (%s) does not accept %s students", e.HostelID, e.HostelType, e.Gender)
}

// Unwrap ties the error to ErrIncompatibleHostel.
func (e *IncompatibleHostelError) Unwrap() error { return ErrIncompatibleHostel }

// QuarantinedBucket describes a persisted payload that failed to decode and was
// set aside instead of being loaded.
type QuarantinedBucket struct {
	Bucket  string
	Version int64
	Payload []byte
	Err     error
}

// StorageCorruptError lists buckets that were quarantined on load. A store
// returned alongside this error is usable; the listed buckets start empty.
type StorageCorruptError struct {
	Buckets []QuarantinedBucket
}

func (e *StorageCorruptError) Error() string {
	names := make([]string, 0, len(e.Buckets))
	for _, b := range e.Buckets {
		names = append(names, fmt.Sprintf("%s (%v)", b.Bucket, b.Err))
	}
	return "storage corrupt: quarantined " + strings.Join(names, ", ")
}

// Unwrap ties the error to ErrStorageCorrupt.
func (e *StorageCorruptError) Unwrap() error { return ErrStorageCorrupt }

// VersionConflictError is returned when a durable write lost a compare-and-swap
// race against another writer.
type VersionConflictError struct {
	Bucket   string
	Expected int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("bucket %s changed since version %d", e.Bucket, e.Expected)
}

// Unwrap ties the error to ErrVersionConflict.
func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }

// ValidationError carries field level problems with command input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, problem := range e.Fields {
		parts = append(parts, field+" "+problem)
	}
	if len(parts) == 0 {
		return ErrValidation.Error()
	}
	sort.Strings(parts)
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

// Unwrap ties the error to ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }
