package model

import "errors"

var (
	// ErrInvalidConfig is returned when a Config violates a structural
	// invariant, such as hidden size not dividing evenly across heads.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidInput is returned for malformed forward-pass inputs:
	// empty or ragged batches, mismatched token/position shapes, or ids
	// outside the embedding tables.
	ErrInvalidInput = errors.New("invalid input")
)
