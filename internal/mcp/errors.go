package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dl4rce/flaiwheel/internal/embedder"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams       = -32602 // Invalid method parameters
	ErrorCodeInternalError       = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound     = -32001 // No such project registered
	ErrorCodeIndexingInProgress  = -32002 // Another index pass is already running
	ErrorCodeNotIndexed          = -32003 // Project not indexed
	ErrorCodeEmptyQuery          = -32004 // Query parameter is empty
	ErrorCodeMigrationInProgress = -32005 // A migration is already running
	ErrorCodeNoActiveMigration   = -32006 // Nothing to cancel
)

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) *MCPError {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// errorCode maps a domain error to its MCP error code
func errorCode(err error) int {
	switch {
	case errors.Is(err, types.ErrProjectNotFound):
		return ErrorCodeProjectNotFound
	case errors.Is(err, types.ErrIndexInProgress):
		return ErrorCodeIndexingInProgress
	case errors.Is(err, types.ErrNotIndexed):
		return ErrorCodeNotIndexed
	case errors.Is(err, types.ErrEmptyQuery):
		return ErrorCodeEmptyQuery
	case errors.Is(err, types.ErrMigrationInProgress):
		return ErrorCodeMigrationInProgress
	case errors.Is(err, types.ErrNoActiveMigration):
		return ErrorCodeNoActiveMigration
	case errors.Is(err, types.ErrInvalidInput),
		errors.Is(err, types.ErrInvalidCategory),
		errors.Is(err, types.ErrProjectExists),
		errors.Is(err, types.ErrSameModel),
		errors.Is(err, embedder.ErrInvalidInput),
		errors.Is(err, embedder.ErrUnsupportedModel):
		return ErrorCodeInvalidParams
	default:
		return ErrorCodeInternalError
	}
}

// toolError renders err as an error tool result
func toolError(err error, data interface{}) *mcp.CallToolResult {
	var mcpErr *MCPError
	if !errors.As(err, &mcpErr) {
		mcpErr = newMCPError(errorCode(err), err.Error(), data)
	}
	return mcp.NewToolResultError(formatJSON(mcpErr))
}

// invalidParam reports a missing or malformed argument
func invalidParam(param, reason string) *mcp.CallToolResult {
	return toolError(newMCPError(ErrorCodeInvalidParams, "invalid "+param, map[string]interface{}{
		"param":  param,
		"reason": reason,
	}), nil)
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)

// validateDocsPath checks that a docs path is an existing readable directory
func validateDocsPath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}
