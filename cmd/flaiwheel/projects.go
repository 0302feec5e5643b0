package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dl4rce/flaiwheel/internal/indexer"
	"github.com/dl4rce/flaiwheel/internal/project"
)

func newProjectsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage registered projects",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects with their index status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			statuses := make([]*project.Status, 0)
			for _, c := range a.registry.List() {
				st, err := c.Status(ctx)
				if err != nil {
					return fmt.Errorf("status of %s: %w", c.Name(), err)
				}
				statuses = append(statuses, st)
			}
			return printJSON(cmd.OutOrStdout(), statuses)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <docs_path>",
		Short: "Register a project and run its first index pass",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			c, err := a.registry.Add(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			summary, err := c.Index(ctx, indexer.ModeDiff)
			if err != nil {
				opts.logger.Warn("initial index failed", slog.String("project", c.Name()), slog.Any("error", err))
			}
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				*project.Status
				Summary *indexer.Summary `json:"summary,omitempty"`
			}{st, summary})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Unregister a project and delete its index",
		Long:  "Unregister a project and delete its index. The docs directory is not touched.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			if err := a.registry.Remove(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed project %s\n", args[0])
			return nil
		},
	})

	return cmd
}
