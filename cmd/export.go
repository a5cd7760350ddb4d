package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/agentic-research/hstore/internal/export"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/ohler55/ojg/jp"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(exportCmd, queryCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [store] [dest.json|dest.yaml]",
	Short: "Write one JSON or YAML file per group",
	Long: `Flatten the store into one table per group and write each table to
<dest>.<root>.<group path>.<ext> next to dest.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := loadStore(args[0])
		if err != nil {
			return err
		}
		dir, file := filepath.Split(args[1])
		if dir == "" {
			dir = "."
		}
		written, err := export.Write(osfs.New(dir), root, file, cfg.Indent)
		if err != nil {
			return err
		}
		for _, name := range written {
			logf("wrote %s", filepath.Join(dir, name))
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %d tables\n", len(written))
		return err
	},
}

var queryCmd = &cobra.Command{
	Use:   "query [store] [jsonpath]",
	Short: "Evaluate a JSONPath against the plain form of a store",
	Example: `  hstore query run.hst '$.results.*.loss'
  hstore query run.hst '$..weights'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, err := jp.ParseString(args[1])
		if err != nil {
			return fmt.Errorf("parse jsonpath: %w", err)
		}
		root, err := loadStore(args[0])
		if err != nil {
			return err
		}
		results := x.Get(export.Plain(root))
		logf("%s matched %d values", args[1], len(results))
		return printDoc(cmd.OutOrStdout(), results, ".json")
	},
}
