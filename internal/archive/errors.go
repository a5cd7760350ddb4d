package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStoredType is returned when a stored node carries a type
	// tag the reader does not know. The concrete error is an
	// *UnknownStoredTypeError.
	ErrUnknownStoredType = errors.New("unknown stored type")

	// ErrMalformedRow is returned for dict rows that populate both key
	// columns or neither.
	ErrMalformedRow = errors.New("malformed dict row")

	// ErrMalformedList is returned when list elements are not numbered
	// index_0..index_n-1.
	ErrMalformedList = errors.New("malformed list")

	// ErrExportOnly is returned by Load for export formats, which cannot
	// be read back.
	ErrExportOnly = errors.New("format is write-only")
)

// UnknownStoredTypeError names the offending container path and tag.
type UnknownStoredTypeError struct {
	Path string
	Tag  any
}

func (e *UnknownStoredTypeError) Error() string {
	return fmt.Sprintf("unknown stored type %v at %s", e.Tag, e.Path)
}

func (e *UnknownStoredTypeError) Unwrap() error { return ErrUnknownStoredType }
