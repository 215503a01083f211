package namespace

import (
	"errors"
	"fmt"
)

var (
	// ErrKindMismatch means a namespace or ref was not of the expected
	// kind. Seen while walking a chain it indicates a corrupt chain rather
	// than bad input.
	ErrKindMismatch = errors.New("namespace kind mismatch")

	// ErrMalformedFragment means a path fragment did not match
	// domain@user:repository.
	ErrMalformedFragment = errors.New("malformed path fragment")

	ErrNoParent     = errors.New("namespace ref has no parent")
	ErrChainTooDeep = errors.New("namespace ref chain too deep")
)

// MismatchError reports the expected and actual kind of a namespace.
type MismatchError struct {
	Expected Kind
	Actual   Kind
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", ErrKindMismatch, e.Expected, e.Actual)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrKindMismatch
}

// MalformedFragmentError carries the fragment that failed to parse.
type MalformedFragmentError struct {
	Fragment string
}

func (e *MalformedFragmentError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMalformedFragment, e.Fragment)
}

func (e *MalformedFragmentError) Is(target error) bool {
	return target == ErrMalformedFragment
}
