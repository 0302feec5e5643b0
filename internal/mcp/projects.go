package mcp

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dl4rce/flaiwheel/internal/embedder"
	"github.com/dl4rce/flaiwheel/internal/indexer"
	"github.com/dl4rce/flaiwheel/internal/project"
)

const defaultHistory = 5

// handleBeginMigration handles the begin_migration tool invocation
func (s *Server) handleBeginMigration(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	model := strings.TrimSpace(getStringDefault(args, "model", ""))
	if model == "" {
		return invalidParam("model", "missing or empty"), nil
	}
	dimension := getIntDefault(args, "dimension", 0)
	if dimension < 0 {
		return invalidParam("dimension", "must be positive"), nil
	}

	c, errResult := s.resolve(args)
	if errResult != nil {
		return errResult, nil
	}

	job, err := c.BeginMigration(ctx, embedder.Config{
		Provider:  getStringDefault(args, "provider", "auto"),
		Model:     model,
		Dimension: dimension,
	})
	if err != nil {
		return toolError(err, map[string]interface{}{"project": c.Name()}), nil
	}

	response := map[string]interface{}{
		"project":   c.Name(),
		"migration": job.Progress(),
		"message":   "Migration started. Search keeps using the current model until the new index is complete.",
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMigrationStatus handles the migration_status tool invocation
func (s *Server) handleMigrationStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	limit := getIntDefault(args, "history", defaultHistory)
	if limit < 0 {
		return invalidParam("history", "must not be negative"), nil
	}
	c, errResult := s.resolve(args)
	if errResult != nil {
		return errResult, nil
	}

	status, err := c.MigrationStatus(ctx, limit)
	if err != nil {
		return toolError(err, map[string]interface{}{"project": c.Name()}), nil
	}

	response := struct {
		Project string `json:"project"`
		*project.MigrationStatus
	}{Project: c.Name(), MigrationStatus: status}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCancelMigration handles the cancel_migration tool invocation
func (s *Server) handleCancelMigration(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	c, errResult := s.resolve(args)
	if errResult != nil {
		return errResult, nil
	}

	progress, err := c.CancelMigration(strings.TrimSpace(getStringDefault(args, "job_id", "")))
	if err != nil {
		return toolError(err, map[string]interface{}{"project": c.Name()}), nil
	}

	response := map[string]interface{}{
		"project":   c.Name(),
		"migration": progress,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListProjects handles the list_projects tool invocation
func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contexts := s.registry.List()

	projects := make([]*project.Status, 0, len(contexts))
	for _, c := range contexts {
		status, err := c.Status(ctx)
		if err != nil {
			return toolError(err, map[string]interface{}{"project": c.Name()}), nil
		}
		projects = append(projects, status)
	}

	response := map[string]interface{}{
		"count":    len(projects),
		"projects": projects,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleAddProject handles the add_project tool invocation
func (s *Server) handleAddProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	name := strings.TrimSpace(getStringDefault(args, "name", ""))
	if name == "" {
		return invalidParam("name", "missing or empty"), nil
	}
	docsPath := getStringDefault(args, "docs_path", "")
	if err := validateDocsPath(docsPath); err != nil {
		return invalidParam("docs_path", err.Error()), nil
	}

	c, err := s.registry.Add(ctx, name, docsPath)
	if err != nil {
		return toolError(err, map[string]interface{}{"project": name}), nil
	}
	if s.hooks.ProjectAdded != nil {
		s.hooks.ProjectAdded(c)
	}

	response := map[string]interface{}{
		"project":   c.Name(),
		"docs_path": c.DocsRoot(),
	}

	summary, err := c.Index(ctx, indexer.ModeDiff)
	if err != nil {
		s.logger.Warn("initial index failed", slog.String("project", c.Name()), slog.Any("error", err))
		response["index_error"] = err.Error()
	} else {
		response["summary"] = summary
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRemoveProject handles the remove_project tool invocation
func (s *Server) handleRemoveProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	name := strings.TrimSpace(getStringDefault(args, "name", ""))
	if name == "" {
		return invalidParam("name", "missing or empty"), nil
	}
	if _, err := s.registry.Get(name); err != nil {
		return toolError(err, map[string]interface{}{"project": name}), nil
	}

	if s.hooks.ProjectRemoved != nil {
		s.hooks.ProjectRemoved(name)
	}
	if err := s.registry.Remove(ctx, name); err != nil {
		return toolError(err, map[string]interface{}{"project": name}), nil
	}

	response := map[string]interface{}{
		"project": name,
		"removed": true,
		"message": "Project removed. Documentation files were not touched.",
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}
