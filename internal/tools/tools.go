// Package tools exposes graph creation over MCP.
package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/repo-graphrag/internal/pipeline"
	"github.com/DeusData/repo-graphrag/internal/store"
	"github.com/DeusData/repo-graphrag/internal/watcher"
)

// DefaultStorage is used when a tool call names no storage.
const DefaultStorage = "storage"

// Server wraps the MCP server with tool handlers.
type Server struct {
	mcp     *mcp.Server
	router  *store.StoreRouter
	collab  *pipeline.Collaborators
	opts    pipeline.Options
	watcher *watcher.Watcher

	// runMu serializes runs per storage; a create and a watcher-triggered
	// re-run of the same storage must not overlap.
	runMu sync.Mutex
	runs  map[string]*sync.Mutex
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(r *store.StoreRouter, c *pipeline.Collaborators, opts pipeline.Options, version string) *Server {
	srv := &Server{
		router: r,
		collab: c,
		opts:   opts,
		runs:   make(map[string]*sync.Mutex),
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "repo-graphrag",
				Version: version,
			},
			nil,
		),
	}
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// SetWatcher makes successful graph_create calls register their read dir
// with w.
func (s *Server) SetWatcher(w *watcher.Watcher) {
	s.watcher = w
}

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "graph_create",
		Description: "Read documents and code from a directory and create or update a graph storage. Code is split along its syntax tree and every class, function and method becomes an entity; documents are chunked and their named concepts extracted. Unchanged files are skipped on re-runs.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"read_dir_path": {
					"type": "string",
					"description": "Directory to read"
				},
				"storage_name": {
					"type": "string",
					"description": "Storage to create or update (default: storage)"
				}
			},
			"required": ["read_dir_path"]
		}`),
	}, s.handleGraphCreate)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "graph_merge",
		Description: "Merge code entities that have not been merged yet into the document entities they are most similar to.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"storage_name": {
					"type": "string",
					"description": "Storage to merge (default: storage)"
				}
			}
		}`),
	}, s.handleGraphMerge)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "graph_status",
		Description: "Show document, chunk, entity and relationship counts for a storage, or for every storage when none is named.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"storage_name": {
					"type": "string",
					"description": "Storage to inspect (omit to list all)"
				}
			}
		}`),
	}, s.handleGraphStatus)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "graph_entity",
		Description: "Look up one entity by name and return its description, contributing file paths and relationships.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"storage_name": {
					"type": "string",
					"description": "Storage to search (default: storage)"
				},
				"name": {
					"type": "string",
					"description": "Entity name, e.g. 'app.py:Greeter' for code or 'Greeter' for a document concept"
				}
			},
			"required": ["name"]
		}`),
	}, s.handleGraphEntity)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "graph_delete",
		Description: "Delete a graph storage and everything in it. This action is irreversible.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"storage_name": {
					"type": "string",
					"description": "Storage to delete"
				}
			},
			"required": ["storage_name"]
		}`),
	}, s.handleGraphDelete)
}

// jsonResult marshals data to JSON and returns as tool result.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a tool result indicating an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// parseArgs unmarshals the raw JSON arguments into a map.
func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return m, nil
}

// getStringArg extracts a string argument from parsed args.
func getStringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// storageArg returns the storage_name argument or DefaultStorage.
func storageArg(args map[string]any) string {
	if name := getStringArg(args, "storage_name"); name != "" {
		return name
	}
	return DefaultStorage
}
