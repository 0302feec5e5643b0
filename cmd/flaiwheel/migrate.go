package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/dl4rce/flaiwheel/internal/embedder"
	"github.com/dl4rce/flaiwheel/internal/migration"
)

const progressInterval = 2 * time.Second

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var (
		provider  string
		model     string
		dimension int
	)

	cmd := &cobra.Command{
		Use:   "migrate [project]",
		Short: "Re-embed a project with a different model",
		Long: `Build a shadow collection with the new embedding model while the current
one keeps serving, then swap it in. Interrupting the command cancels the
migration and leaves the current collection live.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if model == "" {
				return fmt.Errorf("--model is required")
			}
			if provider == "" || provider == "auto" {
				provider = embedder.DetectProvider()
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

			c, err := a.registry.Resolve(firstArg(args))
			if err != nil {
				return err
			}

			target := opts.cfg.EmbedderConfig()
			target.Provider = provider
			target.Model = model
			target.Dimension = dimension

			job, err := c.BeginMigration(ctx, target)
			if err != nil {
				return err
			}

			progress, err := waitMigration(ctx, cmd, job)
			if err != nil {
				if _, cerr := c.CancelMigration(job.ID()); cerr != nil {
					opts.logger.Warn("cancel failed", slog.String("job_id", job.ID()), slog.Any("error", cerr))
				}
				progress, _ = job.Wait(context.Background())
			}
			if perr := printJSON(cmd.OutOrStdout(), progress); perr != nil {
				return perr
			}
			if progress.Status != migration.StatusComplete {
				return fmt.Errorf("migration %s %s", progress.JobID, progress.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "auto", "Embedding provider: auto, local, openai or jina")
	cmd.Flags().StringVar(&model, "model", "", "Target embedding model")
	cmd.Flags().IntVar(&dimension, "dimension", 0, "Target vector dimension (default from provider)")

	return cmd
}

// waitMigration reports progress to stderr until the job finishes or ctx is
// done
func waitMigration(ctx context.Context, cmd *cobra.Command, job *migration.Job) (migration.Progress, error) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-job.Done():
			return job.Progress(), nil
		case <-ctx.Done():
			return job.Progress(), ctx.Err()
		case <-ticker.C:
			p := job.Progress()
			fmt.Fprintf(cmd.ErrOrStderr(), "migration %s: %d/%d files (%.1f%%)\n",
				p.JobID, p.FilesDone, p.FilesTotal, p.Percent)
		}
	}
}
