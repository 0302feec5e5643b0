package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dl4rce/flaiwheel/internal/searcher"
)

var categoryEnum = []string{"architecture", "api", "bugfix", "best-practice", "setup", "changelog", "test", "readme", "docs"}

func projectProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Target project name (optional; defaults to the only project, or \"default\")",
	}
}

// searchDocsTool returns the tool definition for search_docs
func searchDocsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_docs",
		Description: "Search the project documentation. Returns the most relevant chunks with source, heading and relevance percent.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What you want to know (natural language, be specific)",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Number of results (1-100)",
					"default":     searcher.DefaultLimit,
					"minimum":     1,
					"maximum":     searcher.MaxLimit,
				},
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Only search documents of this category",
					"enum":        categoryEnum,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: vector (semantic), keyword (BM25) or hybrid (both, fused)",
					"enum":        []string{"hybrid", "vector", "keyword"},
				},
				"min_relevance": map[string]interface{}{
					"type":        "number",
					"description": "Drop results below this relevance percent (0-100)",
					"minimum":     0.0,
					"maximum":     100.0,
				},
				"project": projectProperty(),
			},
			Required: []string{"query"},
		},
	}
}

// reindexTool returns the tool definition for reindex
func reindexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reindex",
		Description: "Re-index the documentation. Diff-aware by default (only changed files); force rebuilds every embedding.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-embed all files regardless of changes",
					"default":     false,
				},
				"project": projectProperty(),
			},
		},
	}
}

// getIndexStatusTool returns the tool definition for get_index_status
func getIndexStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_index_status",
		Description: "Report the live collection, embedding model, chunk and source counts, migration state and health of a project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": projectProperty(),
			},
		},
	}
}

// checkKnowledgeQualityTool returns the tool definition for check_knowledge_quality
func checkKnowledgeQualityTool() mcp.Tool {
	return mcp.Tool{
		Name:        "check_knowledge_quality",
		Description: "Validate the knowledge base for structure and completeness. Returns a score (0-100) and the issues found.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Only check documents of this category",
					"enum":        categoryEnum,
				},
				"project": projectProperty(),
			},
		},
	}
}

// validateDocTool returns the tool definition for validate_doc
func validateDocTool() mcp.Tool {
	return mcp.Tool{
		Name:        "validate_doc",
		Description: "Validate a markdown document before committing it to the knowledge repo",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"content": map[string]interface{}{
					"type":        "string",
					"description": "The full markdown content to validate",
				},
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Target category of the document",
					"enum":        categoryEnum,
					"default":     "docs",
				},
				"project": projectProperty(),
			},
			Required: []string{"content"},
		},
	}
}

// classifyDocumentsTool returns the tool definition for classify_documents
func classifyDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "classify_documents",
		Description: "Classify documents into knowledge categories using path, keyword and embedding signals",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"files": map[string]interface{}{
					"type":        "array",
					"description": "Documents to classify",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"path": map[string]interface{}{
								"type":        "string",
								"description": "Relative path of the document",
							},
							"content": map[string]interface{}{
								"type":        "string",
								"description": "Document text or a preview of it",
							},
						},
						"required": []string{"path"},
					},
				},
				"project": projectProperty(),
			},
			Required: []string{"files"},
		},
	}
}

// analyzeKnowledgeRepoTool returns the tool definition for analyze_knowledge_repo
func analyzeKnowledgeRepoTool() mcp.Tool {
	return mcp.Tool{
		Name:        "analyze_knowledge_repo",
		Description: "Analyse the knowledge repository for structure, quality, duplicates and misplaced files. Read-only: returns proposed actions, never modifies files.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": projectProperty(),
			},
		},
	}
}

// beginMigrationTool returns the tool definition for begin_migration
func beginMigrationTool() mcp.Tool {
	return mcp.Tool{
		Name:        "begin_migration",
		Description: "Start re-embedding the project with another embedding model. Runs in the background; search keeps working on the old model until the swap.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"provider": map[string]interface{}{
					"type":        "string",
					"description": "Embedding provider",
					"enum":        []string{"auto", "local", "openai", "jina"},
					"default":     "auto",
				},
				"model": map[string]interface{}{
					"type":        "string",
					"description": "Embedding model name",
				},
				"dimension": map[string]interface{}{
					"type":        "integer",
					"description": "Vector dimension (optional; provider default when omitted)",
					"minimum":     1,
				},
				"project": projectProperty(),
			},
			Required: []string{"model"},
		},
	}
}

// migrationStatusTool returns the tool definition for migration_status
func migrationStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "migration_status",
		Description: "Report progress of the running migration and the recent migration history",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"history": map[string]interface{}{
					"type":        "integer",
					"description": "Number of past jobs to include",
					"default":     defaultHistory,
					"minimum":     0,
				},
				"project": projectProperty(),
			},
		},
	}
}

// cancelMigrationTool returns the tool definition for cancel_migration
func cancelMigrationTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cancel_migration",
		Description: "Cancel the running migration and discard its shadow collection. The live collection is untouched.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"job_id": map[string]interface{}{
					"type":        "string",
					"description": "Job to cancel (optional; any running job when omitted)",
				},
				"project": projectProperty(),
			},
		},
	}
}

// listProjectsTool returns the tool definition for list_projects
func listProjectsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_projects",
		Description: "List all registered projects with basic statistics",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// addProjectTool returns the tool definition for add_project
func addProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_project",
		Description: "Register a new project and run its initial index",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Project name (letters, digits, '-' and '_')",
				},
				"docs_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project's documentation directory",
				},
			},
			Required: []string{"name", "docs_path"},
		},
	}
}

// removeProjectTool returns the tool definition for remove_project
func removeProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "remove_project",
		Description: "Unregister a project and delete its index. The documentation files are not touched.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Project name",
				},
			},
			Required: []string{"name"},
		},
	}
}
