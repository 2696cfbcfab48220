package delta

import (
	"github.com/cockroachdb/errors"
)

// Failure kinds surfaced by the library. Callers classify with errors.Is.
var (
	// ErrDuplicateKey marks an Add attempted while the key is active.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrAbsentKey marks an Update or Delete attempted for a key that is
	// not active.
	ErrAbsentKey = errors.New("absent key")

	// ErrInvalidPrecondition marks a violation of the lifetime algebra:
	// Added on a live token, or Updated/Deleted without a prior Added.
	// This is a producer bug, surfaced as a panic at the emission site.
	ErrInvalidPrecondition = errors.New("invalid precondition")

	// ErrUpstream marks an error propagated from an external push-stream.
	ErrUpstream = errors.New("upstream error")
)

// WrapUpstream marks err as an upstream failure: the result matches
// ErrUpstream under errors.Is (standard or cockroachdb) and unwraps to err,
// preserving the payload for errors.Is/errors.UnwrapAll inspection.
func WrapUpstream(err error) error {
	return &upstreamError{cause: err}
}

type upstreamError struct{ cause error }

func (e *upstreamError) Error() string        { return "upstream error: " + e.cause.Error() }
func (e *upstreamError) Unwrap() error        { return e.cause }
func (e *upstreamError) Is(target error) bool { return target == ErrUpstream }
