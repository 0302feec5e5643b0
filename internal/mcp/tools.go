package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dl4rce/flaiwheel/internal/classifier"
	"github.com/dl4rce/flaiwheel/internal/indexer"
	"github.com/dl4rce/flaiwheel/internal/project"
	"github.com/dl4rce/flaiwheel/internal/quality"
	"github.com/dl4rce/flaiwheel/internal/searcher"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

// handleSearchDocs handles the search_docs tool invocation
func (s *Server) handleSearchDocs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	if query == "" {
		return toolError(newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		}), nil), nil
	}

	limit := getIntDefault(args, "top_k", 0)
	if limit < 0 || limit > searcher.MaxLimit {
		return invalidParam("top_k", "must be between 1 and 100"), nil
	}

	mode, err := searcher.ParseMode(getStringDefault(args, "search_mode", ""))
	if err != nil {
		return invalidParam("search_mode", err.Error()), nil
	}

	category, errResult := getCategory(args, "category", "")
	if errResult != nil {
		return errResult, nil
	}

	c, errResult := s.resolve(args)
	if errResult != nil {
		return errResult, nil
	}

	resp, err := c.Search(ctx, searcher.Request{
		Query:        query,
		Limit:        limit,
		Category:     category,
		Mode:         mode,
		MinRelevance: getFloatDefault(args, "min_relevance", 0),
		UseCache:     true,
	})
	if err != nil {
		return toolError(err, map[string]interface{}{"project": c.Name()}), nil
	}

	response := map[string]interface{}{
		"project":       c.Name(),
		"search_mode":   resp.SearchMode,
		"total_results": resp.TotalResults,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
		"results":       resp.Results,
	}
	if !resp.Hit() {
		response["message"] = "No relevant documents found. Try a different or more specific query."
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleReindex handles the reindex tool invocation
func (s *Server) handleReindex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	c, errResult := s.resolve(args)
	if errResult != nil {
		return errResult, nil
	}

	mode := indexer.ModeDiff
	if getBoolDefault(args, "force", false) {
		mode = indexer.ModeFull
	}

	summary, err := c.Index(ctx, mode)
	if err != nil {
		return toolError(err, map[string]interface{}{"project": c.Name()}), nil
	}

	response := map[string]interface{}{
		"project": c.Name(),
		"summary": summary,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetIndexStatus handles the get_index_status tool invocation
func (s *Server) handleGetIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, errResult := s.resolve(arguments(request))
	if errResult != nil {
		return errResult, nil
	}

	status, err := c.Status(ctx)
	if err != nil {
		return toolError(err, map[string]interface{}{"project": c.Name()}), nil
	}
	return mcp.NewToolResultText(formatJSON(status)), nil
}

// handleCheckKnowledgeQuality handles the check_knowledge_quality tool invocation
func (s *Server) handleCheckKnowledgeQuality(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	category, errResult := getCategory(args, "category", "")
	if errResult != nil {
		return errResult, nil
	}
	c, errResult := s.resolve(args)
	if errResult != nil {
		return errResult, nil
	}

	report, err := c.QualityReport(ctx, category)
	if err != nil {
		return toolError(err, map[string]interface{}{"project": c.Name()}), nil
	}

	response := struct {
		Project string `json:"project"`
		*quality.Report
	}{Project: c.Name(), Report: report}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleValidateDoc handles the validate_doc tool invocation
func (s *Server) handleValidateDoc(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	content := getStringDefault(args, "content", "")
	if strings.TrimSpace(content) == "" {
		return invalidParam("content", "missing or empty"), nil
	}
	category, errResult := getCategory(args, "category", types.CategoryDocs)
	if errResult != nil {
		return errResult, nil
	}
	c, errResult := s.resolve(args)
	if errResult != nil {
		return errResult, nil
	}

	issues := c.CheckContent(content, category)
	if issues == nil {
		issues = []types.Issue{}
	}
	response := map[string]interface{}{
		"project":  c.Name(),
		"category": category,
		"valid":    len(issues) == 0,
		"issues":   issues,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleClassifyDocuments handles the classify_documents tool invocation
func (s *Server) handleClassifyDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	raw, ok := args["files"].([]interface{})
	if !ok || len(raw) == 0 {
		return invalidParam("files", "must be a non-empty array"), nil
	}
	inputs := make([]classifier.Input, 0, len(raw))
	for _, item := range raw {
		file, ok := item.(map[string]interface{})
		if !ok {
			return invalidParam("files", "every entry must be an object with a path"), nil
		}
		path := strings.TrimSpace(getStringDefault(file, "path", ""))
		if path == "" {
			return invalidParam("files", "every entry needs a path"), nil
		}
		inputs = append(inputs, classifier.Input{Path: path, Preview: getStringDefault(file, "content", "")})
	}

	c, errResult := s.resolve(args)
	if errResult != nil {
		return errResult, nil
	}

	verdicts, err := c.Classify(ctx, inputs)
	if err != nil {
		return toolError(err, map[string]interface{}{"project": c.Name()}), nil
	}

	response := map[string]interface{}{
		"project":  c.Name(),
		"verdicts": verdicts,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleAnalyzeKnowledgeRepo handles the analyze_knowledge_repo tool invocation
func (s *Server) handleAnalyzeKnowledgeRepo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, errResult := s.resolve(arguments(request))
	if errResult != nil {
		return errResult, nil
	}

	plan, err := c.Bootstrap(ctx)
	if err != nil {
		return toolError(err, map[string]interface{}{"project": c.Name()}), nil
	}

	response := struct {
		Project string `json:"project"`
		*classifier.Plan
	}{Project: c.Name(), Plan: plan}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// resolve selects the project named by the "project" argument
func (s *Server) resolve(args map[string]interface{}) (*project.Context, *mcp.CallToolResult) {
	name := strings.TrimSpace(getStringDefault(args, "project", ""))
	c, err := s.registry.Resolve(name)
	if err != nil {
		return nil, toolError(err, map[string]interface{}{"project": name})
	}
	return c, nil
}

// arguments returns the tool arguments; absent arguments are an empty map
func arguments(request mcp.CallToolRequest) map[string]interface{} {
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		return args
	}
	return map[string]interface{}{}
}

// getCategory parses an optional category argument
func getCategory(args map[string]interface{}, key string, defaultValue types.Category) (types.Category, *mcp.CallToolResult) {
	raw := strings.TrimSpace(getStringDefault(args, key, ""))
	if raw == "" {
		return defaultValue, nil
	}
	category, err := types.ParseCategory(raw)
	if err != nil {
		return "", invalidParam(key, "unknown category "+raw)
	}
	return category, nil
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
