package schema

import "errors"

// Sentinel errors for the type-schema engine's failure modes. Callers
// use errors.Is to classify them.
var (
	// ErrMissingFieldElement is returned by Serialize when an Enum has no
	// active variant selected.
	ErrMissingFieldElement = errors.New("schema: missing field element")

	// ErrTypeMismatch is returned by FromJSONValue when the JSON shape does
	// not match the target Ty.
	ErrTypeMismatch = errors.New("schema: type mismatch")

	// ErrInvalidEnumOption is returned when an enum option index is out of
	// range during deserialize, or an unknown variant name is set.
	ErrInvalidEnumOption = errors.New("schema: invalid enum option")

	// ErrTruncatedInput is returned by Deserialize when fewer felts remain
	// than the schema requires.
	ErrTruncatedInput = errors.New("schema: truncated felt input")

	// ErrKindMismatch is a Fatal-class error: diffing two Ty
	// values of different kinds is a programmer error, not a data error.
	ErrKindMismatch = errors.New("schema: type-kind mismatch in diff")
)
