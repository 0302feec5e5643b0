package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dl4rce/flaiwheel/internal/embedder"
)

const previewValues = 8

func newEmbedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "embed <text>",
		Short: "Embed a text with the configured provider",
		Long:  "Embed a text with the configured provider. Useful to check credentials and dimensions before indexing.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			emb, err := embedder.New(opts.cfg.EmbedderConfig())
			if err != nil {
				return fmt.Errorf("failed to initialize embedder: %w", err)
			}
			defer func() { _ = emb.Close() }()

			start := time.Now()
			res, err := emb.GenerateEmbedding(cmd.Context(), embedder.EmbeddingRequest{
				Text: strings.Join(args, " "),
			})
			if err != nil {
				return err
			}

			head := res.Vector
			if len(head) > previewValues {
				head = head[:previewValues]
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"provider":    res.Provider,
				"model":       res.Model,
				"dimension":   res.Dimension,
				"vector_head": head,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		},
	}
}
