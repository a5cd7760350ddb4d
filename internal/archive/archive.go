// Package archive is the serialization engine. It maps a store tree onto
// a container file and back, and routes export extensions to the export
// projection.
//
// Every stored node carries a "type" attribute naming its variant:
// storage, data_dict, data_array or data_list. Node names are the key
// codec encoding of the logical key.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentic-research/hstore/internal/container"
	"github.com/agentic-research/hstore/internal/export"
	"github.com/agentic-research/hstore/internal/storage"
	"github.com/go-git/go-billy/v5/osfs"
)

const arenaExt = ".arena"

// Store writes root to path. The extension picks the target:
// .json/.yaml/.yml write the export projection next to path, .arena packs
// a container into a double-buffered arena, anything else is a container
// file. A failed write may leave a partial file behind.
func Store(root *storage.Group, path string) error {
	switch {
	case export.IsFormat(path):
		dir, file := filepath.Split(path)
		if dir == "" {
			dir = "."
		}
		_, err := export.Write(osfs.New(dir), root, file, 0)
		return err
	case strings.EqualFold(filepath.Ext(path), arenaExt):
		return storeArena(root, path)
	}
	return storeContainer(root, path)
}

func storeContainer(root *storage.Group, path string) (err error) {
	w, err := container.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := Write(root, w); err != nil {
		return fmt.Errorf("store %s: %w", path, err)
	}
	return nil
}

func storeArena(root *storage.Group, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".hstore-*.db")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := storeContainer(root, tmpPath); err != nil {
		return err
	}
	if err := container.PackArena(tmpPath, path); err != nil {
		return fmt.Errorf("pack %s: %w", path, err)
	}
	return nil
}

// Load reads the tree stored at path, a container file or an .arena.
// Export formats cannot be loaded.
func Load(path string) (*storage.Group, error) {
	if export.IsFormat(path) {
		return nil, fmt.Errorf("%w: %s", ErrExportOnly, path)
	}
	if strings.EqualFold(filepath.Ext(path), arenaExt) {
		db, err := container.ExtractActiveDB(path)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", path, err)
		}
		defer func() { _ = os.Remove(db) }()
		return loadContainer(db)
	}
	return loadContainer(path)
}

func loadContainer(path string) (*storage.Group, error) {
	r, err := container.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	root, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return root, nil
}
