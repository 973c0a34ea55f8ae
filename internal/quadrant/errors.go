package quadrant

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned for blank task text. It is the only error
	// a router caller sees for a well-formed call.
	ErrEmptyInput = errors.New("input text is empty")

	// ErrProviderUnavailable means a provider failed to initialize or is not live.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderTimeout means a provider call exceeded its bound.
	ErrProviderTimeout = errors.New("provider timed out")

	// ErrParseFailure means model output matched none of the parse tiers.
	ErrParseFailure = errors.New("model output could not be parsed")

	// ErrResourceLoad means model weights could not be loaded.
	ErrResourceLoad = errors.New("model resource failed to load")
)

// InputError describes a request rejected before routing.
type InputError struct {
	Field string
	Err   error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// IsInputError reports whether err is (or wraps) an *InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
