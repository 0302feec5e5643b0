package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dl4rce/flaiwheel/internal/config"
	"github.com/dl4rce/flaiwheel/internal/logging"
)

// rootOptions carries the persistent flags and what PersistentPreRunE
// builds from them
type rootOptions struct {
	configPath string
	logLevel   string
	dataDir    string

	cfg       *config.Config
	logger    *slog.Logger
	closeLogs func()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "flaiwheel",
		Short: "Self-improving knowledge base for AI coding assistants",
		Long: `Flaiwheel indexes a project's documentation into a searchable vector store,
keeps it in sync with the docs tree, gates it on document quality and serves it
to AI coding assistants over the Model Context Protocol.

Run 'flaiwheel serve' as the MCP server command of your assistant.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: opts.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.closeLogs != nil {
				opts.closeLogs()
			}
		},
	}
	cmd.SetVersionTemplate("flaiwheel version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default <data-dir>/flaiwheel.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Directory holding the index database and locks")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newQualityCmd(opts))
	cmd.AddCommand(newClassifyCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newProjectsCmd(opts))
	cmd.AddCommand(newEmbedCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads the configuration and configures logging
func (o *rootOptions) setup(cmd *cobra.Command, _ []string) error {
	path := o.configPath
	if path == "" && o.dataDir != "" {
		candidate := filepath.Join(o.dataDir, config.DefaultFileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLogs, err := logging.Setup(logging.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(logger)

	o.cfg = cfg
	o.logger = logger
	o.closeLogs = closeLogs
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
