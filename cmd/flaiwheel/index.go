package main

import (
	"github.com/spf13/cobra"

	"github.com/dl4rce/flaiwheel/internal/indexer"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "index [project]",
		Short: "Run an index pass",
		Long: `Run a diff-aware index pass over a project's docs tree: only changed files
are re-embedded and deleted files are removed. --full re-embeds everything.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			c, err := a.registry.Resolve(firstArg(args))
			if err != nil {
				return err
			}

			mode := indexer.ModeDiff
			if full {
				mode = indexer.ModeFull
			}
			summary, err := c.Index(ctx, mode)
			if summary != nil {
				if perr := printJSON(cmd.OutOrStdout(), summary); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Re-embed every document")
	return cmd
}

func newQualityCmd(opts *rootOptions) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "quality [project]",
		Short: "Report knowledge base quality",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter types.Category
			if category != "" {
				parsed, err := types.ParseCategory(category)
				if err != nil {
					return err
				}
				filter = parsed
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			c, err := a.registry.Resolve(firstArg(args))
			if err != nil {
				return err
			}
			report, err := c.QualityReport(ctx, filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only check documents of this category")
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
