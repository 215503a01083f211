package object

import "errors"

var (
	ErrInvalidZlibData = errors.New("invalid zlib data")
	ErrNullNotFound    = errors.New("null character not found")
	ErrEncoding        = errors.New("header is not valid utf-8")
	ErrInvalidHeader   = errors.New("invalid header")
	ErrInvalidTypeName = errors.New("invalid type name")
	ErrLengthMismatch  = errors.New("length mismatch")

	// ErrCorruptObject is returned by Store.Read when the decoded object
	// does not hash to the id it was stored under.
	ErrCorruptObject = errors.New("corrupt object")
	ErrKindMismatch  = errors.New("object kind mismatch")
)
