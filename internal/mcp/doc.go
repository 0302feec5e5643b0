// Package mcp implements the Model Context Protocol (MCP) server for Flaiwheel.
//
// The server exposes the knowledge engine of every registered project to AI
// coding assistants:
//   - search_docs: Search a project's documentation (vector, keyword or hybrid)
//   - reindex: Run a diff-aware or full index pass
//   - get_index_status: Collection, model, counters and health of a project
//   - check_knowledge_quality: Repository quality score and issues
//   - validate_doc: Check unsaved markdown against its category's rules
//   - classify_documents: Route documents into categories
//   - analyze_knowledge_repo: Read-only bootstrap plan for a messy docs tree
//   - begin_migration, migration_status, cancel_migration: Embedding model migration
//   - list_projects, add_project, remove_project: Project registry
//
// Every tool takes an optional "project" argument. When omitted, the only
// registered project is used, or "default" when there are several.
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// # Tool: search_docs
//
//	Request:
//	{
//	  "name": "search_docs",
//	  "arguments": {
//	    "query": "why did the payment webhook retry twice",
//	    "top_k": 5,
//	    "category": "bugfix",
//	    "search_mode": "hybrid"
//	  }
//	}
//
//	Response:
//	{
//	  "project": "default",
//	  "search_mode": "hybrid",
//	  "results": [
//	    {
//	      "chunk_id": "bugfix-log/webhooks.md#2",
//	      "rank": 1,
//	      "relevance_percent": 87.4,
//	      "source": "bugfix-log/webhooks.md",
//	      "heading": "Root Cause",
//	      "category": "bugfix",
//	      "text": "..."
//	    }
//	  ]
//	}
//
// # Tool: begin_migration
//
// Migration re-embeds every document into a shadow collection in the
// background and swaps it live when complete. Searches keep using the old
// collection until then.
//
//	Request:
//	{
//	  "name": "begin_migration",
//	  "arguments": {"provider": "openai", "model": "text-embedding-3-small"}
//	}
//
//	Response:
//	{
//	  "job_id": "2b1f...",
//	  "status": "running",
//	  "old_model": "local/minilm",
//	  "new_model": "openai/text-embedding-3-small",
//	  "files_total": 42
//	}
//
// # Error Handling
//
// Failures are returned as tool results with isError set and a JSON body:
//
//	{
//	  "code": -32002,
//	  "message": "indexing already in progress",
//	  "data": {"project": "default"}
//	}
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, provider)
//   - -32001: Project not found
//   - -32002: Indexing in progress
//   - -32003: Project not indexed
//   - -32004: Empty query
//   - -32005: Migration in progress
//   - -32006: No active migration
//
// # Logging
//
// The MCP server never writes logs to stdout, which is reserved for the
// protocol. Logs go to stderr or the configured log file.
package mcp
