package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentic-research/hstore/internal/archive"
	"github.com/agentic-research/hstore/internal/config"
	"github.com/agentic-research/hstore/internal/storage"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	colorMode  string

	cfg = config.Default()
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default $HOME/.agentic-research/hstore/config.hcl)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "", "Colour output: auto, always or never")
}

var rootCmd = &cobra.Command{
	Use:           "hstore",
	Short:         "Inspect and edit hierarchical stores",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, optional := configPath, false
		if path == "" {
			var err error
			if path, err = config.DefaultPath(); err != nil {
				return err
			}
			optional = true
		}
		c, err := config.Load(path, optional)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("verbose") {
			c.Verbose = verbose
		}
		if colorMode != "" {
			c.Color = colorMode
		}
		cfg = c
		return applyColor(cmd, cfg.Color)
	},
}

func applyColor(cmd *cobra.Command, mode string) error {
	switch mode {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	case "auto", "":
		f, ok := cmd.OutOrStdout().(*os.File)
		color.NoColor = !ok || !isatty.IsTerminal(f.Fd())
	default:
		return fmt.Errorf("%w, got %q", config.ErrBadColor, mode)
	}
	return nil
}

// logf prints progress lines when verbose logging is on.
func logf(format string, args ...any) {
	if cfg.Verbose {
		log.Printf(format, args...)
	}
}

// loadStore loads the store at path, timing it for verbose output.
func loadStore(path string) (*storage.Group, error) {
	start := time.Now()
	root, err := archive.Load(path)
	if err != nil {
		return nil, err
	}
	logf("loaded %s in %s", path, time.Since(start))
	return root, nil
}

// openOrCreate loads path, or returns a fresh root named after the file
// when it does not exist yet.
func openOrCreate(path string) (*storage.Group, error) {
	root, err := loadStore(path)
	if err == nil {
		return root, nil
	}
	if _, serr := os.Stat(path); !errors.Is(serr, fs.ErrNotExist) {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	logf("creating new store %q at %s", name, path)
	return storage.New(name, storage.Attrs{storage.AutoNodesAttr: cfg.AutoNodes})
}

func saveStore(root *storage.Group, path string) error {
	start := time.Now()
	if err := archive.Store(root, path); err != nil {
		return err
	}
	logf("stored %s in %s", path, time.Since(start))
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
