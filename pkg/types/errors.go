package types

import "errors"

// Cast errors
var (
	// ErrUnknownType is returned when a type tag is not part of the closed set
	ErrUnknownType = errors.New("unknown property type")

	// ErrIncompatibleValue is returned when a value cannot be represented in the target type
	ErrIncompatibleValue = errors.New("incompatible value")

	// ErrOutOfRange is returned when a numeric value does not fit the target type
	ErrOutOfRange = errors.New("value out of range")

	// ErrNilValue is returned when a nil value is cast to a type that has no null
	ErrNilValue = errors.New("nil value")
)
