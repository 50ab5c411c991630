package transform

import (
	"errors"
	"fmt"
)

// Error classes returned by the transformations. Test with errors.Is.
var (
	// ErrPrecondition reports wrong source cardinality, mismatched timestamp
	// modes or a missing required parameter
	ErrPrecondition = errors.New("transformation precondition failed")

	// ErrMalformedParameter reports a parameter or sample value that cannot be
	// read as the number the transformation needs
	ErrMalformedParameter = errors.New("malformed transformation parameter")

	// ErrUnsupported reports an unknown transformation name
	ErrUnsupported = errors.New("unsupported transformation")
)

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedParameter, fmt.Sprintf(format, args...))
}
