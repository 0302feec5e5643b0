package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dl4rce/flaiwheel/internal/classifier"
	"github.com/dl4rce/flaiwheel/internal/embedder"
)

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <dir>",
		Short: "Analyse a docs tree and print a cleanup plan",
		Long: `Classify every document under dir, detect duplicates and misplaced files,
and print the proposed actions as JSON. No file is modified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cls, err := classifier.New(opts.cfg.ClassifierConfig(), opts.logger)
			if err != nil {
				return err
			}

			pool := embedder.NewPool()
			defer func() { _ = pool.Close() }()
			emb, err := pool.Get(opts.cfg.EmbedderConfig())
			if err != nil {
				return fmt.Errorf("failed to initialize embedder: %w", err)
			}

			plan, err := cls.Bootstrap(cmd.Context(), emb, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), plan)
		},
	}
	return cmd
}
