package store

import (
	"errors"
	"fmt"
)

// Category classifies a store failure for retry and status mapping.
// Only Unavailable failures are worth retrying.
type Category string

const (
	Unavailable Category = "unavailable"
	Conflict    Category = "conflict"
	Invalid     Category = "invalid"
	Internal    Category = "internal"
)

// StoreError tags a failed operation with its category.
type StoreError struct {
	Category Category
	Op       string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s (%s): %s", e.Op, e.Category, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Failed wraps err as a StoreError of the given category, passing nil
// through unchanged.
func Failed(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Category: category, Op: op, Err: err}
}

// CategoryOf extracts the category of an error chain, defaulting to
// Internal for untagged errors.
func CategoryOf(err error) Category {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Category
	}
	return Internal
}

func IsUnavailable(err error) bool { return err != nil && CategoryOf(err) == Unavailable }
