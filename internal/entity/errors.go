package entity

import (
	"errors"
	"fmt"
)

// Domain errors for learner content states and related aggregates.
var (
	ErrInvalidQuality    = errors.New("quality must be between 1 and 5")
	ErrInvalidLearnerID  = errors.New("invalid learner ID")
	ErrInvalidContentID  = errors.New("invalid content ID")
	ErrInvalidLimit      = errors.New("invalid limit")
	ErrInvalidDifficulty = errors.New("difficulty must be between 1 and 10")
	ErrInvalidFilter     = errors.New("invalid filter")
	ErrInvalidReview     = errors.New("invalid review event")
	ErrInvalidPage       = errors.New("invalid page")
	ErrStateNotFound     = errors.New("learner content state not found")
	ErrDuplicateState    = errors.New("learner content state already exists")
	ErrConcurrentUpdate  = errors.New("concurrent update conflict")
)

// ValidationError reports input rejected before any storage access.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError wraps err as a validation failure on field.
func NewValidationError(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// NotFoundError reports an operation that addressed a record which does not exist.
type NotFoundError struct {
	Key StateKey
	Err error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Key)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// NewStateNotFound builds the not-found error for a learner-content pair.
func NewStateNotFound(key StateKey) error {
	return &NotFoundError{Key: key, Err: ErrStateNotFound}
}

// StorageError wraps a persistence failure, including timeouts and exhausted conflict retries.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err unless it is nil or already classified.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsStorage(err) || IsNotFound(err) || IsValidation(err) || errors.Is(err, ErrDuplicateState) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target) || errors.Is(err, ErrStateNotFound)
}

func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}
