package mcp

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dl4rce/flaiwheel/internal/project"
)

const (
	// ServerName is the MCP server name
	ServerName = "flaiwheel"
	// DefaultVersion is reported when no build version is set
	DefaultVersion = "dev"
)

const instructions = `Flaiwheel is the project's knowledge base. Call search_docs before writing or changing code, ` +
	`and search with category "bugfix" when debugging to learn from earlier fixes. ` +
	`Call validate_doc before committing new documentation, and check_knowledge_quality to review the repository.`

// Hooks lets the host react to projects added or removed through the tools,
// for example to start or stop their sync loops
type Hooks struct {
	ProjectAdded   func(c *project.Context)
	ProjectRemoved func(name string)
}

// Options configures a Server
type Options struct {
	Version string
	Logger  *slog.Logger
	Hooks   Hooks
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	registry *project.Registry
	hooks    Hooks
	logger   *slog.Logger
}

// NewServer creates a new MCP server over the project registry
func NewServer(registry *project.Registry, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		opts.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	s := &Server{
		mcp:      mcpServer,
		registry: registry,
		hooks:    opts.Hooks,
		logger:   logger,
	}
	s.registerTools()
	return s
}

// Serve runs the MCP protocol over in and out until ctx is cancelled or the
// client disconnects
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("MCP server started", slog.String("transport", "stdio"))
	err := stdio.Listen(ctx, in, out)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// MCPServer exposes the underlying protocol server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	// Search and indexing
	s.mcp.AddTool(searchDocsTool(), s.handleSearchDocs)
	s.mcp.AddTool(reindexTool(), s.handleReindex)
	s.mcp.AddTool(getIndexStatusTool(), s.handleGetIndexStatus)

	// Quality
	s.mcp.AddTool(checkKnowledgeQualityTool(), s.handleCheckKnowledgeQuality)
	s.mcp.AddTool(validateDocTool(), s.handleValidateDoc)

	// Classification
	s.mcp.AddTool(classifyDocumentsTool(), s.handleClassifyDocuments)
	s.mcp.AddTool(analyzeKnowledgeRepoTool(), s.handleAnalyzeKnowledgeRepo)

	// Model migration
	s.mcp.AddTool(beginMigrationTool(), s.handleBeginMigration)
	s.mcp.AddTool(migrationStatusTool(), s.handleMigrationStatus)
	s.mcp.AddTool(cancelMigrationTool(), s.handleCancelMigration)

	// Projects
	s.mcp.AddTool(listProjectsTool(), s.handleListProjects)
	s.mcp.AddTool(addProjectTool(), s.handleAddProject)
	s.mcp.AddTool(removeProjectTool(), s.handleRemoveProject)
}
