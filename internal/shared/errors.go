package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidPeriod indicates a period label that cannot be parsed.
	ErrInvalidPeriod = errors.New("invalid period label")
)
