package typeddata

import "errors"

// Failure modes of the structured-data encoder.
var (
	ErrTypeNotFound  = errors.New("typeddata: type not found")
	ErrFieldNotFound = errors.New("typeddata: field not found")
	ErrInvalidEnum   = errors.New("typeddata: invalid enum")
	ErrInvalidValue  = errors.New("typeddata: invalid value")
	ErrInvalidDomain = errors.New("typeddata: invalid domain")
)
