package query

import "errors"

// ParseError marks query text that could not be turned into an AST,
// including unbalanced parentheses. Distinct from ValidationError so the
// API can report the two as different error codes.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError marks a query outside the configured limits or using
// unsupported fields, operators, or values.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
