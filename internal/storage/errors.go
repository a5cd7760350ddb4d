package storage

import (
	"errors"
	"fmt"
	"log"
)

var (
	// ErrInvalidNodeName is returned for string names outside ^[a-zA-Z][a-zA-Z_]*$.
	ErrInvalidNodeName = errors.New("invalid node name")

	// ErrInvalidNode is returned when a path or node cannot be used at all.
	ErrInvalidNode = errors.New("invalid node")

	ErrNoSuchNode  = errors.New("no such node")
	ErrNoSuchGroup = errors.New("no such group")
	ErrNoSuchLeaf  = errors.New("no such leaf")

	// ErrUnknownDataType is returned when type dispatch finds no variant
	// for a value. The concrete error is an *UnknownDataTypeError.
	ErrUnknownDataType = errors.New("unknown data type")

	// ErrUnsupportedDictEntry is returned for mapping keys that are not
	// strings or floats, or values that are not numbers.
	ErrUnsupportedDictEntry = errors.New("unsupported dict entry")

	// ErrReservedAttribute is returned when a caller tries to set the
	// type tag attribute.
	ErrReservedAttribute = errors.New("reserved attribute")

	// ErrInvalidAttribute is returned for attribute values that are not
	// strings, integers, floats or bools.
	ErrInvalidAttribute = errors.New("invalid attribute value")
)

// UnknownDataTypeError carries the runtime type and a rendering of the
// value that could not be classified.
type UnknownDataTypeError struct {
	Type  string
	Value string
}

func (e *UnknownDataTypeError) Error() string {
	return fmt.Sprintf("unknown data type for type %s (%s)", e.Type, e.Value)
}

func (e *UnknownDataTypeError) Unwrap() error { return ErrUnknownDataType }

func unknownDataType(v any) error {
	repr := fmt.Sprintf("%v", v)
	if len(repr) > 80 {
		repr = repr[:77] + "..."
	}
	return &UnknownDataTypeError{Type: fmt.Sprintf("%T", v), Value: repr}
}

// InaccessibleGroupNodeWarning is reported when a group is named after one
// of the Group accessors. The group still works through path lookup.
type InaccessibleGroupNodeWarning struct {
	Name string
}

func (w *InaccessibleGroupNodeWarning) Error() string {
	return fmt.Sprintf("group node %q clashes with an accessor name; use path lookup to reach it", w.Name)
}

// WarningHandler receives non-fatal warnings. Replace it to collect or
// silence them.
var WarningHandler = func(err error) {
	log.Printf("hstore: warning: %v", err)
}
