// Package config loads the hstore CLI configuration file.
//
// The file is HCL:
//
//	color      = "auto"   # auto, always or never
//	indent     = 2        # JSON/YAML output indent
//	auto_nodes = false    # auto_nodes on roots created by `hstore set`
//	verbose    = false
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

var ErrBadColor = errors.New(`color must be "auto", "always" or "never"`)

type Config struct {
	Color     string `hcl:"color,optional"`
	Indent    int    `hcl:"indent,optional"`
	AutoNodes bool   `hcl:"auto_nodes,optional"`
	Verbose   bool   `hcl:"verbose,optional"`
}

// Default is the configuration used when no file exists.
func Default() Config {
	return Config{Color: "auto", Indent: 2}
}

// DefaultPath is $HOME/.agentic-research/hstore/config.hcl.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}
	return filepath.Join(home, ".agentic-research", "hstore", "config.hcl"), nil
}

// Load reads the file at path over the defaults. When optional is set a
// missing file is not an error.
func Load(path string, optional bool) (Config, error) {
	src, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && optional {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, src)
}

// Parse decodes src; filename selects native HCL (.hcl) or HCL JSON
// (.json) syntax and is used in diagnostics.
func Parse(filename string, src []byte) (Config, error) {
	cfg := Default()
	if err := hclsimple.Decode(filename, src, nil, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", filename, err)
	}
	switch cfg.Color {
	case "":
		cfg.Color = "auto"
	case "auto", "always", "never":
	default:
		return Config{}, fmt.Errorf("%s: %w, got %q", filename, ErrBadColor, cfg.Color)
	}
	if cfg.Indent < 0 {
		return Config{}, fmt.Errorf("%s: indent must not be negative", filename)
	}
	return cfg, nil
}
