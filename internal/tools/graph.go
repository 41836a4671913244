package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/repo-graphrag/internal/pipeline"
	"github.com/DeusData/repo-graphrag/internal/store"
)

var errNoLLM = errors.New("no LLM provider configured (set GRAPH_CREATE_PROVIDER)")

// storageLock returns the mutex guarding runs on one storage.
func (s *Server) storageLock(name string) *sync.Mutex {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	mu, ok := s.runs[name]
	if !ok {
		mu = &sync.Mutex{}
		s.runs[name] = mu
	}
	return mu
}

// Create runs graph creation of readDir into the named storage. It is also
// the watcher's index function.
func (s *Server) Create(ctx context.Context, storageName, readDir string) (*pipeline.Result, error) {
	if s.collab == nil || s.collab.Summarizer == nil {
		return nil, errNoLLM
	}
	mu := s.storageLock(storageName)
	mu.Lock()
	defer mu.Unlock()

	st, err := s.router.ForStorage(storageName)
	if err != nil {
		return nil, err
	}
	p := pipeline.New(ctx, s.collab.Deps(st, s.router.StorageDir(storageName)), s.opts)
	return p.Run(readDir)
}

// Merge runs a standalone merge pass on the named storage.
func (s *Server) Merge(ctx context.Context, storageName string) (int, error) {
	if s.collab == nil {
		return 0, errNoLLM
	}
	mu := s.storageLock(storageName)
	mu.Lock()
	defer mu.Unlock()

	st, err := s.router.ForStorage(storageName)
	if err != nil {
		return 0, err
	}
	p := pipeline.New(ctx, s.collab.Deps(st, s.router.StorageDir(storageName)), s.opts)
	return p.MergeOnly()
}

func (s *Server) handleGraphCreate(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	readDir := getStringArg(args, "read_dir_path")
	if readDir == "" {
		return errResult("read_dir_path is required"), nil
	}
	absPath, err := filepath.Abs(readDir)
	if err != nil {
		return errResult(fmt.Sprintf("invalid path: %v", err)), nil
	}
	name := storageArg(args)
	if !store.ValidName(name) {
		return errResult(fmt.Sprintf("invalid storage name: %q", name)), nil
	}

	action := "created"
	if s.router.HasStorage(name) {
		action = "updated"
	}

	slog.Info("tool.graph_create", "storage", name, "read_dir", absPath)
	res, err := s.Create(ctx, name, absPath)
	if err != nil {
		slog.Error("tool.graph_create.err", "storage", name, "err", err)
		return errResult(fmt.Sprintf("An error occurred: %v", err)), nil
	}
	if s.watcher != nil {
		s.watcher.Watch(name, absPath)
	}

	return jsonResult(map[string]any{
		"action":        action,
		"read_dir":      absPath,
		"storage":       s.router.StorageDir(name),
		"run_id":        res.RunID,
		"docs":          res.Docs,
		"code":          res.Code,
		"unchanged":     res.Unchanged,
		"deleted":       res.Deleted,
		"delete_failed": res.DeleteFailed,
		"entities":      res.Entities,
		"relationships": res.Relations,
		"merges":        res.Merges,
		"elapsed":       res.Elapsed.String(),
	}), nil
}

func (s *Server) handleGraphMerge(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	name := storageArg(args)
	if !s.router.HasStorage(name) {
		return errResult(notFound(name)), nil
	}
	n, err := s.Merge(ctx, name)
	if err != nil {
		return errResult(fmt.Sprintf("An error occurred: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"storage": name,
		"merges":  n,
	}), nil
}

type storageStatus struct {
	Name string `json:"name"`
	store.Stats
}

func (s *Server) handleGraphStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	if name := getStringArg(args, "storage_name"); name != "" {
		if !s.router.HasStorage(name) {
			return errResult(notFound(name)), nil
		}
		st, err := s.status(ctx, name)
		if err != nil {
			return errResult(err.Error()), nil
		}
		return jsonResult(st), nil
	}

	infos, err := s.router.ListStorages()
	if err != nil {
		return errResult(fmt.Sprintf("list storages: %v", err)), nil
	}
	result := make([]storageStatus, 0, len(infos))
	for _, info := range infos {
		st, err := s.status(ctx, info.Name)
		if err != nil {
			slog.Warn("tool.graph_status", "storage", info.Name, "err", err)
			continue
		}
		result = append(result, st)
	}
	return jsonResult(result), nil
}

func (s *Server) status(ctx context.Context, name string) (storageStatus, error) {
	st, err := s.router.ForStorage(name)
	if err != nil {
		return storageStatus{}, err
	}
	stats, err := st.Stats(ctx)
	if err != nil {
		return storageStatus{}, fmt.Errorf("stats %s: %w", name, err)
	}
	return storageStatus{Name: name, Stats: stats}, nil
}

func (s *Server) handleGraphEntity(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	entityName := getStringArg(args, "name")
	if entityName == "" {
		return errResult("name is required"), nil
	}
	name := storageArg(args)
	if !s.router.HasStorage(name) {
		return errResult(notFound(name)), nil
	}
	st, err := s.router.ForStorage(name)
	if err != nil {
		return errResult(err.Error()), nil
	}

	e, err := st.GetNode(ctx, entityName)
	if err != nil {
		return errResult(err.Error()), nil
	}
	if e == nil {
		return errResult(fmt.Sprintf("entity not found: %s", entityName)), nil
	}
	rels, err := st.FindRelationships(ctx, entityName)
	if err != nil {
		return errResult(err.Error()), nil
	}

	type edge struct {
		Source      string `json:"source"`
		Target      string `json:"target"`
		Description string `json:"description"`
	}
	edges := make([]edge, 0, len(rels))
	for _, r := range rels {
		edges = append(edges, edge{Source: r.SrcID, Target: r.TgtID, Description: r.Description})
	}
	return jsonResult(map[string]any{
		"name":          e.Name,
		"type":          e.Type,
		"description":   e.Description,
		"file_paths":    e.Paths,
		"merged":        e.Merged(),
		"relationships": edges,
	}), nil
}

func (s *Server) handleGraphDelete(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	name := getStringArg(args, "storage_name")
	if name == "" {
		return errResult("storage_name is required"), nil
	}
	if !s.router.HasStorage(name) {
		return errResult(notFound(name)), nil
	}

	mu := s.storageLock(name)
	mu.Lock()
	defer mu.Unlock()

	if s.watcher != nil {
		s.watcher.Unwatch(name)
	}
	if err := s.router.DeleteStorage(name); err != nil {
		return errResult(fmt.Sprintf("delete failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"deleted": name,
		"status":  "ok",
	}), nil
}

func notFound(name string) string {
	return fmt.Sprintf("Error: graph storage not found.\nStorage name: %s", name)
}
