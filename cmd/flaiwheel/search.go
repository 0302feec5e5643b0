package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dl4rce/flaiwheel/internal/searcher"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		projectName  string
		limit        int
		category     string
		mode         string
		minRelevance float64
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a project's documentation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := searcher.Request{
				Query:        strings.Join(args, " "),
				Limit:        limit,
				MinRelevance: minRelevance,
			}
			if mode != "" {
				parsed, err := searcher.ParseMode(mode)
				if err != nil {
					return err
				}
				req.Mode = parsed
			}
			if category != "" {
				parsed, err := types.ParseCategory(category)
				if err != nil {
					return fmt.Errorf("%w: %s", err, category)
				}
				req.Category = parsed
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			c, err := a.registry.Resolve(projectName)
			if err != nil {
				return err
			}
			resp, err := c.Search(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVarP(&projectName, "project", "p", "", "Project to search")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVar(&category, "category", "", "Only search documents of this category")
	cmd.Flags().StringVar(&mode, "mode", "", "Search mode: vector, keyword or hybrid (default from config)")
	cmd.Flags().Float64Var(&minRelevance, "min-relevance", 0, "Drop results below this relevance percent")

	return cmd
}
