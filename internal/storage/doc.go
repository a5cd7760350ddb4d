// Package storage implements the in-memory hierarchical store.
//
// A store is a tree of nodes. Groups own named children; leaves hold
// values. The leaf set is closed:
//
//   - ArrayLeaf: a dense n-dimensional array (scalars are zero-dimensional
//     arrays)
//   - DictLeaf: a mapping from string or float keys to float values
//   - ListLeaf: an ordered sequence whose elements are themselves
//     dispatched nodes named index_0, index_1, ...
//
// Names are keycodec.Key values: strings matching ^[a-zA-Z][a-zA-Z_]*$,
// integers, floats or complex numbers.
//
// Values enter the tree through Classify, which maps a Go value onto one
// variant. Every insertion builds fresh nodes or deep-copies an existing
// subtree, so no node is ever shared between two parents.
//
//	d, _ := storage.New("Test", nil)
//	_ = d.Set("test", map[any]any{"dog": 3.2, 2.3: 1.5})
//	_ = d.Set(2.5, 3.6)
//	_ = d.SetLeaf("x/y/z", []float64{1, 2, 3}, true)
//	x, _ := d.Group("x")
//
// Groups with the auto_nodes attribute create missing path segments on
// access instead of failing with ErrNoSuchNode.
package storage
