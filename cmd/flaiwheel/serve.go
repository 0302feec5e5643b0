package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dl4rce/flaiwheel/internal/mcp"
	"github.com/dl4rce/flaiwheel/internal/project"
	"github.com/dl4rce/flaiwheel/internal/storage"
	"github.com/dl4rce/flaiwheel/internal/syncer"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var watch, noSync bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Run the MCP server on stdin/stdout and keep every project in sync with
its docs tree in the background. Logs never go to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("watch") {
				opts.cfg.Sync.Watch = watch
			}
			return runServe(cmd, opts, !noSync)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Also react to filesystem events (overrides sync.watch)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Disable background sync loops")

	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions, sync bool) error {
	ctx := cmd.Context()
	logger := opts.logger

	logger.Info("Flaiwheel starting",
		slog.String("version", version),
		slog.String("build_mode", storage.BuildMode),
		slog.String("driver", storage.DriverName),
		slog.String("data_dir", opts.cfg.DataDir))

	a, err := openApp(ctx, opts.cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(ctx); err != nil {
			logger.Warn("shutdown incomplete", slog.Any("error", err))
		}
	}()

	var hooks mcp.Hooks
	if sync {
		manager := syncer.NewManager(syncer.ManagerConfig{
			Interval:   opts.cfg.Sync.Interval,
			Watch:      opts.cfg.Sync.Watch,
			Debounce:   opts.cfg.Sync.Debounce,
			Extensions: opts.cfg.Indexing.Extensions,
			Logger:     logger,
		})
		defer manager.StopAll()

		for _, c := range a.registry.List() {
			manager.Start(ctx, c)
		}
		hooks = mcp.Hooks{
			ProjectAdded:   func(c *project.Context) { manager.Start(ctx, c) },
			ProjectRemoved: manager.Stop,
		}
	}

	server := mcp.NewServer(a.registry, mcp.Options{
		Version: version,
		Logger:  logger,
		Hooks:   hooks,
	})
	err = server.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	logger.Info("Flaiwheel stopped")
	if err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
