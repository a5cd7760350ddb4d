// Package container is the on-disk format engine: a single-file
// hierarchical container of named groups, typed tables and dense arrays,
// each carrying string-keyed attributes.
//
// The file is a SQLite database:
//
//	meta(key, value)                       format, version, title
//	nodes(id, parent_id, name, kind)       one row per group/table/array; root is id 0
//	children(parent_id, bitmap)            roaring bitmap of child ids per group
//	attrs(node_id, key, vtype, value)      typed primitive attributes
//	arrays(node_id, dtype, shape, data)    raw little-endian buffers
//	tbl_<id>                               one SQL table per tabular node
//
// Child enumeration goes through the children bitmaps, so children come
// back in creation order. A handle holds an exclusive lock on the file
// until Close.
package container

import (
	"errors"
	"fmt"

	"github.com/agentic-research/hstore/internal/ndarray"
)

var (
	ErrNodeExists  = errors.New("node already exists")
	ErrNoSuchNode  = errors.New("no such container node")
	ErrWrongKind   = errors.New("wrong node kind")
	ErrBadColumn   = errors.New("invalid column")
	ErrNotHStore   = errors.New("not an hstore container")
	ErrLocked      = errors.New("container is locked by another process")
	ErrClosed      = errors.New("container is closed")
	ErrCorrupt     = errors.New("corrupt container")
	ErrBadAttrType = errors.New("unsupported attribute value")
)

const (
	formatName    = "hstore"
	formatVersion = "1"
)

// NodeID identifies a node within one container file.
type NodeID uint32

// RootID is the id of the root group.
const RootID NodeID = 0

// Kind is the native representation of a container node.
type Kind int

const (
	KindGroup Kind = iota
	KindTable
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindTable:
		return "table"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ColumnType is the storage class of a table column.
type ColumnType int

const (
	ColText ColumnType = iota
	ColReal
	ColInteger
)

func (c ColumnType) sql() string {
	switch c {
	case ColReal:
		return "REAL"
	case ColInteger:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func columnTypeFromSQL(s string) ColumnType {
	switch s {
	case "REAL":
		return ColReal
	case "INTEGER":
		return ColInteger
	default:
		return ColText
	}
}

// Column describes one table column. Every column accepts NULL.
type Column struct {
	Name string
	Type ColumnType
}

// Child is an entry returned by Reader.Children.
type Child struct {
	ID   NodeID
	Name string
	Kind Kind
}

// Writer is the write side of the container.
type Writer interface {
	Root() NodeID
	SetTitle(title string) error
	CreateGroup(parent NodeID, name string) (NodeID, error)
	CreateTable(parent NodeID, name string, cols []Column) (NodeID, error)
	AppendRows(table NodeID, rows [][]any) error
	CreateArray(parent NodeID, name string, arr *ndarray.Array) (NodeID, error)
	SetAttr(node NodeID, key string, value any) error
	Close() error
}

// Reader is the read side of the container.
type Reader interface {
	Root() NodeID
	Title() string
	Children(node NodeID) ([]Child, error)
	Attrs(node NodeID) (map[string]any, error)
	ReadTable(node NodeID) ([]Column, [][]any, error)
	ReadArray(node NodeID) (*ndarray.Array, error)
	Close() error
}
