package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// fullIndexTool returns the tool definition for full_index
func fullIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "full_index",
		Description: "Rebuild the semantic index for the entire codebase. Returns immediately; indexing runs in the background.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// statusTool returns the tool definition for status
func statusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "status",
		Description: "Report the indexing pipeline phase, last index timestamps, file and chunk counts, and the last error if any.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// queryTool returns the tool definition for query
func queryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "query",
		Description: "Search the indexed codebase with a natural language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Natural language search query",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"path_prefix": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to files under this relative path prefix (e.g. 'internal/')",
				},
				"language": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one language",
					"enum":        []string{"python", "java", "cpp", "javascript", "typescript", "go", "generic"},
				},
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one chunk kind",
					"enum":        []string{"function", "method", "class", "module"},
				},
			},
			Required: []string{"text"},
		},
	}
}
