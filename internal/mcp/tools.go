package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/semantica-dev/codectx/internal/searcher"
	"github.com/semantica-dev/codectx/internal/vectorstore"
	"github.com/semantica-dev/codectx/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyQuery    = -32004 // Query text is empty
)

// handleFullIndex handles the full_index tool invocation. The rebuild runs
// in the background, but the run-lock reservation is synchronous, so the
// acknowledgement reflects whether the run was actually taken.
func (s *Server) handleFullIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accepted := s.scheduler.TriggerFull(s.background)

	response := map[string]interface{}{
		"accepted": accepted,
		"phase":    string(s.indexer.Phase()),
	}
	if !accepted {
		response["message"] = "an indexing run is already active; trigger dropped"
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleStatus handles the status tool invocation
func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.indexer.Status()
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read index status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"phase":       string(status.Phase),
		"file_count":  status.FileCount,
		"chunk_count": status.ChunkCount,
		"embedding": map[string]interface{}{
			"provider":  s.embedder.Provider(),
			"model":     s.embedder.Model(),
			"dimension": s.embedder.Dimension(),
		},
	}
	response["last_full_index"] = formatTime(status.LastFullIndex)
	response["last_incremental_index"] = formatTime(status.LastIncrementalIndex)
	if status.LastError != "" {
		response["last_error"] = status.LastError
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleQuery handles the query tool invocation
func (s *Server) handleQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	text, ok := args["text"].(string)
	if !ok || text == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "text parameter is required and cannot be empty", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	}

	topK := getIntDefault(args, "top_k", searcher.DefaultLimit)
	if topK < 1 || topK > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams,
			fmt.Sprintf("top_k must be between 1 and %d", searcher.MaxLimit), map[string]interface{}{
				"param": "top_k",
				"value": topK,
			})
	}

	var filters *vectorstore.Filters
	pathPrefix := getStringDefault(args, "path_prefix", "")
	language := getStringDefault(args, "language", "")
	kind := getStringDefault(args, "kind", "")
	if pathPrefix != "" || language != "" || kind != "" {
		filters = &vectorstore.Filters{
			PathPrefix: pathPrefix,
			Language:   types.Language(language),
			Kind:       types.ChunkKind(kind),
		}
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:    text,
		Limit:    topK,
		Filters:  filters,
		UseCache: true,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]interface{}{
			"chunk_id":   r.ChunkID,
			"path":       r.Path,
			"language":   string(r.Language),
			"kind":       string(r.Kind),
			"name":       r.Name,
			"start_line": r.StartLine,
			"end_line":   r.EndLine,
			"score":      r.Score,
			"text":       r.Text,
		})
	}

	response := map[string]interface{}{
		"results":       results,
		"total_results": resp.TotalResults,
		"duration_ms":   resp.Duration.Milliseconds(),
		"cache_hit":     resp.CacheHit,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// newMCPError creates an error with an MCP error code
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a response map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

func formatTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
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

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
