// Package errs defines the sentinel errors returned by the mpegg packages.
//
// Every error returned by a decoder or query wraps exactly one of these
// sentinels, so callers can classify failures with errors.Is.
package errs

import "errors"

// Structural errors are raised when the byte layout violates the container grammar.
var (
	ErrStructural        = errors.New("structural error")
	ErrMissingElement    = wrap(ErrStructural, "missing mandatory element")
	ErrUnexpectedElement = wrap(ErrStructural, "unexpected element")
	ErrInvalidKey        = wrap(ErrStructural, "invalid box key")
	ErrSizeMismatch      = errors.New("declared size does not match content")
	ErrUnknownVariant    = errors.New("unknown variant")
	ErrInvalidValue      = errors.New("invalid field value")
	ErrLimitExceeded     = errors.New("declared count exceeds available data")
	ErrDuplicateLabel    = errors.New("duplicate label identifier")
)

// Lookup misses. Querying an absent item is not a structural problem.
var (
	ErrDataClassNotFound    = errors.New("data class not found")
	ErrSequenceNotAvailable = errors.New("sequence not available")
	ErrDescriptorNotFound   = errors.New("descriptor not found")
	ErrAccessUnitNotFound   = errors.New("access unit not found")
	ErrBlockNotPresent      = errors.New("block not present")
)

// ErrUnsupportedPath is returned by code paths that are declared but not implemented.
var ErrUnsupportedPath = errors.New("unsupported code path")

// IsLookupMiss reports whether err signals a missing item rather than corruption.
func IsLookupMiss(err error) bool {
	return errors.Is(err, ErrDataClassNotFound) ||
		errors.Is(err, ErrSequenceNotAvailable) ||
		errors.Is(err, ErrDescriptorNotFound) ||
		errors.Is(err, ErrAccessUnitNotFound) ||
		errors.Is(err, ErrBlockNotPresent)
}

type kindError struct {
	parent error
	msg    string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.parent }

func wrap(parent error, msg string) error {
	return &kindError{parent: parent, msg: msg}
}
