package container

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/hstore/internal/ndarray"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE nodes (
	id INTEGER PRIMARY KEY,
	parent_id INTEGER,
	name TEXT NOT NULL,
	kind INTEGER NOT NULL,
	UNIQUE (parent_id, name)
);
CREATE TABLE children (
	parent_id INTEGER PRIMARY KEY,
	bitmap BLOB NOT NULL
);
CREATE TABLE attrs (
	node_id INTEGER NOT NULL,
	key TEXT NOT NULL,
	vtype TEXT NOT NULL,
	value,
	PRIMARY KEY (node_id, key)
) WITHOUT ROWID;
CREATE TABLE arrays (
	node_id INTEGER PRIMARY KEY,
	dtype TEXT NOT NULL,
	shape TEXT NOT NULL,
	data BLOB
);
`

var columnName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type nodeRec struct {
	parent NodeID
	name   string
	kind   Kind
}

// File is an open container. A File returned by Create is write-only; one
// returned by Open is read-only.
type File struct {
	path     string
	lock     *os.File
	db       *sql.DB
	tx       *sql.Tx
	writable bool
	closed   bool

	title  string
	nodes  map[NodeID]nodeRec
	kids   map[NodeID]*roaring.Bitmap
	nextID NodeID

	stmtNode *sql.Stmt
	stmtAttr *sql.Stmt
}

// Create truncates (or creates) the container at path and opens it for
// writing. All writes happen in one transaction committed by Close.
func Create(path string) (*File, error) {
	lock, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open container %s: %w", path, err)
	}
	if err := lockFile(lock); err != nil {
		_ = lock.Close()
		return nil, err
	}
	f := &File{
		path:     path,
		lock:     lock,
		writable: true,
		nodes:    map[NodeID]nodeRec{RootID: {kind: KindGroup}},
		kids:     make(map[NodeID]*roaring.Bitmap),
		nextID:   RootID + 1,
	}
	if err := f.initWrite(); err != nil {
		_ = f.release()
		return nil, err
	}
	return f, nil
}

func (f *File) initWrite() error {
	if err := f.lock.Truncate(0); err != nil {
		return fmt.Errorf("truncate %s: %w", f.path, err)
	}
	db, err := sql.Open("sqlite", f.path)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", f.path, err)
	}
	f.db = db
	db.SetMaxOpenConns(1)

	// The whole tree is written in one transaction; no journal file is
	// left next to the container.
	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		return err
	}
	if _, err := db.Exec("PRAGMA synchronous = OFF"); err != nil {
		return err
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	f.tx, err = db.Begin()
	if err != nil {
		return err
	}
	f.stmtNode, err = f.tx.Prepare(`INSERT INTO nodes (id, parent_id, name, kind) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	f.stmtAttr, err = f.tx.Prepare(`INSERT OR REPLACE INTO attrs (node_id, key, vtype, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}

	if _, err := f.tx.Exec(`INSERT INTO nodes (id, parent_id, name, kind) VALUES (?, NULL, '', ?)`, int64(RootID), int64(KindGroup)); err != nil {
		return fmt.Errorf("insert root: %w", err)
	}
	for k, v := range map[string]string{"format": formatName, "version": formatVersion, "title": ""} {
		if _, err := f.tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}
	return nil
}

// Open opens an existing container for reading.
func Open(path string) (*File, error) {
	lock, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open container %s: %w", path, err)
	}
	if err := lockFile(lock); err != nil {
		_ = lock.Close()
		return nil, err
	}
	f := &File{path: path, lock: lock, nodes: make(map[NodeID]nodeRec), kids: make(map[NodeID]*roaring.Bitmap)}
	if err := f.initRead(); err != nil {
		_ = f.release()
		return nil, err
	}
	return f, nil
}

func (f *File) initRead() error {
	db, err := sql.Open("sqlite", f.path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", f.path, err)
	}
	f.db = db

	var format string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'format'`).Scan(&format); err != nil || format != formatName {
		return fmt.Errorf("%w: %s", ErrNotHStore, f.path)
	}
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'title'`).Scan(&f.title); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read title: %w", err)
	}

	rows, err := db.Query(`SELECT id, parent_id, name, kind FROM nodes`)
	if err != nil {
		return fmt.Errorf("query nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			id     int64
			parent sql.NullInt64
			rec    nodeRec
		)
		if err := rows.Scan(&id, &parent, &rec.name, &rec.kind); err != nil {
			return fmt.Errorf("scan node: %w", err)
		}
		rec.parent = NodeID(parent.Int64)
		f.nodes[NodeID(id)] = rec
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if root, ok := f.nodes[RootID]; !ok || root.kind != KindGroup {
		return fmt.Errorf("%w: missing root group", ErrCorrupt)
	}

	brows, err := db.Query(`SELECT parent_id, bitmap FROM children`)
	if err != nil {
		return fmt.Errorf("query children: %w", err)
	}
	defer func() { _ = brows.Close() }()
	for brows.Next() {
		var (
			parent int64
			blob   []byte
		)
		if err := brows.Scan(&parent, &blob); err != nil {
			return fmt.Errorf("scan children: %w", err)
		}
		bm := roaring.New()
		if _, err := bm.ReadFrom(bytes.NewReader(blob)); err != nil {
			return fmt.Errorf("%w: children of %d: %v", ErrCorrupt, parent, err)
		}
		f.kids[NodeID(parent)] = bm
	}
	return brows.Err()
}

// Path returns the file the container was opened from.
func (f *File) Path() string { return f.path }

func (f *File) Root() NodeID { return RootID }

func (f *File) Title() string { return f.title }

// ---------------------------------------------------------------------------
// Write side
// ---------------------------------------------------------------------------

func (f *File) checkWritable() error {
	if f.closed {
		return ErrClosed
	}
	if !f.writable {
		return fmt.Errorf("%s is open read-only", f.path)
	}
	return nil
}

func (f *File) SetTitle(title string) error {
	if err := f.checkWritable(); err != nil {
		return err
	}
	if _, err := f.tx.Exec(`UPDATE meta SET value = ? WHERE key = 'title'`, title); err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	f.title = title
	return nil
}

func (f *File) addNode(parent NodeID, name string, kind Kind) (NodeID, error) {
	if err := f.checkWritable(); err != nil {
		return 0, err
	}
	p, ok := f.nodes[parent]
	if !ok {
		return 0, fmt.Errorf("%w: parent %d", ErrNoSuchNode, parent)
	}
	if p.kind != KindGroup {
		return 0, fmt.Errorf("%w: parent %d is a %s", ErrWrongKind, parent, p.kind)
	}
	if bm, ok := f.kids[parent]; ok {
		for _, id := range bm.ToArray() {
			if f.nodes[NodeID(id)].name == name {
				return 0, fmt.Errorf("%w: %q under %d", ErrNodeExists, name, parent)
			}
		}
	}

	id := f.nextID
	if _, err := f.stmtNode.Exec(int64(id), int64(parent), name, int64(kind)); err != nil {
		return 0, fmt.Errorf("insert node %q: %w", name, err)
	}
	f.nextID++
	f.nodes[id] = nodeRec{parent: parent, name: name, kind: kind}
	bm, ok := f.kids[parent]
	if !ok {
		bm = roaring.New()
		f.kids[parent] = bm
	}
	bm.Add(uint32(id))
	return id, nil
}

func (f *File) CreateGroup(parent NodeID, name string) (NodeID, error) {
	return f.addNode(parent, name, KindGroup)
}

func (f *File) CreateTable(parent NodeID, name string, cols []Column) (NodeID, error) {
	if len(cols) == 0 {
		return 0, fmt.Errorf("%w: table %q has no columns", ErrBadColumn, name)
	}
	defs := make([]string, len(cols))
	for i, c := range cols {
		if !columnName.MatchString(c.Name) {
			return 0, fmt.Errorf("%w: %q", ErrBadColumn, c.Name)
		}
		defs[i] = fmt.Sprintf("%q %s", c.Name, c.Type.sql())
	}
	id, err := f.addNode(parent, name, KindTable)
	if err != nil {
		return 0, err
	}
	if _, err := f.tx.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", tableName(id), strings.Join(defs, ", "))); err != nil {
		return 0, fmt.Errorf("create table %q: %w", name, err)
	}
	return id, nil
}

func (f *File) AppendRows(table NodeID, rows [][]any) error {
	if err := f.checkWritable(); err != nil {
		return err
	}
	if err := f.expectKind(table, KindTable); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	width := len(rows[0])
	marks := strings.TrimSuffix(strings.Repeat("?, ", width), ", ")
	stmt, err := f.tx.Prepare(fmt.Sprintf("INSERT INTO %s VALUES (%s)", tableName(table), marks))
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", tableName(table), err)
	}
	defer func() { _ = stmt.Close() }()
	for i, row := range rows {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrBadColumn, i, len(row), width)
		}
		if _, err := stmt.Exec(row...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return nil
}

func (f *File) CreateArray(parent NodeID, name string, arr *ndarray.Array) (NodeID, error) {
	data, err := arr.MarshalBinary()
	if err != nil {
		return 0, err
	}
	id, err := f.addNode(parent, name, KindArray)
	if err != nil {
		return 0, err
	}
	if _, err := f.tx.Exec(`INSERT INTO arrays (node_id, dtype, shape, data) VALUES (?, ?, ?, ?)`,
		int64(id), arr.DType().String(), formatShape(arr.Shape()), data); err != nil {
		return 0, fmt.Errorf("insert array %q: %w", name, err)
	}
	return id, nil
}

func (f *File) SetAttr(node NodeID, key string, value any) error {
	if err := f.checkWritable(); err != nil {
		return err
	}
	if _, ok := f.nodes[node]; !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchNode, node)
	}
	var vtype string
	switch v := value.(type) {
	case string:
		vtype = "string"
	case int64:
		vtype = "int"
	case float64:
		vtype = "float"
	case bool:
		vtype = "bool"
		if v {
			value = int64(1)
		} else {
			value = int64(0)
		}
	default:
		return fmt.Errorf("%w: %s=%T", ErrBadAttrType, key, value)
	}
	if _, err := f.stmtAttr.Exec(int64(node), key, vtype, value); err != nil {
		return fmt.Errorf("set attr %s on %d: %w", key, node, err)
	}
	return nil
}

// flushChildren persists the child bitmaps.
func (f *File) flushChildren() error {
	stmt, err := f.tx.Prepare(`INSERT OR REPLACE INTO children (parent_id, bitmap) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare children insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var buf bytes.Buffer
	for parent, bm := range f.kids {
		buf.Reset()
		bm.RunOptimize()
		if _, err := bm.WriteTo(&buf); err != nil {
			return fmt.Errorf("serialize children of %d: %w", parent, err)
		}
		if _, err := stmt.Exec(int64(parent), buf.Bytes()); err != nil {
			return fmt.Errorf("insert children of %d: %w", parent, err)
		}
	}
	return nil
}

// Close commits pending writes (write mode) and releases the file lock.
// The lock is released even when the commit fails.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	var err error
	if f.writable && f.tx != nil {
		err = f.flushChildren()
		if f.stmtNode != nil {
			_ = f.stmtNode.Close()
		}
		if f.stmtAttr != nil {
			_ = f.stmtAttr.Close()
		}
		if err == nil {
			err = f.tx.Commit()
		} else {
			_ = f.tx.Rollback()
		}
	}
	if rerr := f.release(); err == nil {
		err = rerr
	}
	return err
}

func (f *File) release() error {
	f.closed = true
	var err error
	if f.db != nil {
		err = f.db.Close()
	}
	if f.lock != nil {
		_ = unlockFile(f.lock)
		if cerr := f.lock.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ---------------------------------------------------------------------------
// Read side
// ---------------------------------------------------------------------------

func (f *File) expectKind(node NodeID, kind Kind) error {
	rec, ok := f.nodes[node]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchNode, node)
	}
	if rec.kind != kind {
		return fmt.Errorf("%w: node %d (%q) is a %s, not a %s", ErrWrongKind, node, rec.name, rec.kind, kind)
	}
	return nil
}

// Children lists the direct children of a group in creation order.
func (f *File) Children(node NodeID) ([]Child, error) {
	if f.closed {
		return nil, ErrClosed
	}
	if err := f.expectKind(node, KindGroup); err != nil {
		return nil, err
	}
	bm, ok := f.kids[node]
	if !ok {
		return nil, nil
	}
	out := make([]Child, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		id := NodeID(it.Next())
		rec, ok := f.nodes[id]
		if !ok || rec.parent != node {
			return nil, fmt.Errorf("%w: child %d of %d", ErrCorrupt, id, node)
		}
		out = append(out, Child{ID: id, Name: rec.name, Kind: rec.kind})
	}
	return out, nil
}

func (f *File) Attrs(node NodeID) (map[string]any, error) {
	if f.closed {
		return nil, ErrClosed
	}
	if _, ok := f.nodes[node]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchNode, node)
	}
	rows, err := f.query(`SELECT key, vtype, value FROM attrs WHERE node_id = ?`, int64(node))
	if err != nil {
		return nil, fmt.Errorf("query attrs of %d: %w", node, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]any)
	for rows.Next() {
		var (
			key, vtype string
			raw        any
		)
		if err := rows.Scan(&key, &vtype, &raw); err != nil {
			return nil, fmt.Errorf("scan attr: %w", err)
		}
		v, err := decodeAttr(vtype, raw)
		if err != nil {
			return nil, fmt.Errorf("attr %s of %d: %w", key, node, err)
		}
		out[key] = v
	}
	return out, rows.Err()
}

func decodeAttr(vtype string, raw any) (any, error) {
	switch vtype {
	case "string":
		switch s := raw.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case "int":
		if i, ok := raw.(int64); ok {
			return i, nil
		}
	case "float":
		switch x := raw.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		}
	case "bool":
		if i, ok := raw.(int64); ok {
			return i != 0, nil
		}
	}
	return nil, fmt.Errorf("%w: %s value %T", ErrCorrupt, vtype, raw)
}

// ReadTable returns the column schema and every row in insertion order.
// NULL cells are nil.
func (f *File) ReadTable(node NodeID) ([]Column, [][]any, error) {
	if f.closed {
		return nil, nil, ErrClosed
	}
	if err := f.expectKind(node, KindTable); err != nil {
		return nil, nil, err
	}

	info, err := f.query(fmt.Sprintf("PRAGMA table_info(%s)", tableName(node)))
	if err != nil {
		return nil, nil, fmt.Errorf("table info %d: %w", node, err)
	}
	var cols []Column
	for info.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    any
			pk      int
		)
		if err := info.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			_ = info.Close()
			return nil, nil, fmt.Errorf("scan table info: %w", err)
		}
		cols = append(cols, Column{Name: name, Type: columnTypeFromSQL(strings.ToUpper(ctype))})
	}
	_ = info.Close()
	if len(cols) == 0 {
		return nil, nil, fmt.Errorf("%w: table %d has no columns", ErrCorrupt, node)
	}

	rows, err := f.query(fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", tableName(node)))
	if err != nil {
		return nil, nil, fmt.Errorf("read table %d: %w", node, err)
	}
	defer func() { _ = rows.Close() }()

	var out [][]any
	for rows.Next() {
		row := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			}
		}
		out = append(out, row)
	}
	return cols, out, rows.Err()
}

func (f *File) ReadArray(node NodeID) (*ndarray.Array, error) {
	if f.closed {
		return nil, ErrClosed
	}
	if err := f.expectKind(node, KindArray); err != nil {
		return nil, err
	}
	var (
		dtypeName, shapeText string
		data                 []byte
	)
	err := f.queryRow(`SELECT dtype, shape, data FROM arrays WHERE node_id = ?`, int64(node)).Scan(&dtypeName, &shapeText, &data)
	if err != nil {
		return nil, fmt.Errorf("read array %d: %w", node, err)
	}
	dtype, err := ndarray.ParseDType(dtypeName)
	if err != nil {
		return nil, fmt.Errorf("%w: array %d: %v", ErrCorrupt, node, err)
	}
	shape, err := parseShape(shapeText)
	if err != nil {
		return nil, fmt.Errorf("%w: array %d: %v", ErrCorrupt, node, err)
	}
	return ndarray.UnmarshalArray(dtype, shape, data)
}

// query runs inside the write transaction when one is open; the pool has
// a single connection.
func (f *File) query(q string, args ...any) (*sql.Rows, error) {
	if f.tx != nil {
		return f.tx.Query(q, args...)
	}
	return f.db.Query(q, args...)
}

func (f *File) queryRow(q string, args ...any) *sql.Row {
	if f.tx != nil {
		return f.tx.QueryRow(q, args...)
	}
	return f.db.QueryRow(q, args...)
}

func tableName(id NodeID) string {
	return "tbl_" + strconv.FormatUint(uint64(id), 10)
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func parseShape(s string) ([]int, error) {
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	shape := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(p)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("bad shape %q", s)
		}
		shape[i] = d
	}
	return shape, nil
}

var (
	_ Writer = (*File)(nil)
	_ Reader = (*File)(nil)
)
