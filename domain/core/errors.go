package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Input errors
	ErrInputNotFound = errors.New("input not found")
	ErrEmptyMask     = errors.New("mask selects zero voxels")
	ErrGridMismatch  = errors.New("grid mismatch")
	ErrEmptySeries   = errors.New("empty time series")
	ErrInvalidInput  = errors.New("invalid input")

	// Computation errors
	ErrComputation      = errors.New("computation failed")
	ErrInsufficientData = errors.New("insufficient data for analysis")

	// Coordinate errors
	ErrMalformedCoordinate = errors.New("malformed coordinate")
)

// Error constructors with context
func NewInputNotFoundError(kind, ref string) error {
	return fmt.Errorf("%w: %s %q", ErrInputNotFound, kind, ref)
}

func NewEmptyMaskError(name string) error {
	return fmt.Errorf("%w: %s", ErrEmptyMask, name)
}

func NewGridMismatchError(what string, want, got interface{}) error {
	return fmt.Errorf("%w: %s expected %v, got %v", ErrGridMismatch, what, want, got)
}

func NewComputationError(reason string) error {
	return fmt.Errorf("%w: %s", ErrComputation, reason)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidInput, field, reason)
}

// Error checking helpers
func IsInputError(err error) bool {
	return errors.Is(err, ErrInputNotFound) ||
		errors.Is(err, ErrEmptyMask) ||
		errors.Is(err, ErrGridMismatch) ||
		errors.Is(err, ErrEmptySeries) ||
		errors.Is(err, ErrInvalidInput)
}

func IsComputationError(err error) bool {
	return errors.Is(err, ErrComputation)
}

func IsInsufficientData(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}
