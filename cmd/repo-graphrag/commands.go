package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/repo-graphrag/internal/config"
	"github.com/DeusData/repo-graphrag/internal/pipeline"
	"github.com/DeusData/repo-graphrag/internal/store"
	"github.com/DeusData/repo-graphrag/internal/tools"
	"github.com/DeusData/repo-graphrag/internal/watcher"
)

var errUsage = errors.New("usage")

type app struct {
	cfg *config.Config
	out io.Writer
}

// storageArgs splits "<read_dir> [storage]" style arguments.
func storageArgs(args []string, needDir bool) (readDir, storage string, err error) {
	if needDir {
		if len(args) < 1 || len(args) > 2 {
			return "", "", fmt.Errorf("%w: expected <read_dir> [storage]", errUsage)
		}
		readDir, args = args[0], args[1:]
	} else if len(args) > 1 {
		return "", "", fmt.Errorf("%w: expected [storage]", errUsage)
	}
	storage = tools.DefaultStorage
	if len(args) == 1 {
		storage = args[0]
	}
	if !store.ValidName(storage) {
		return "", "", fmt.Errorf("%w: invalid storage name %q", errUsage, storage)
	}
	return readDir, storage, nil
}

// server wires the router, collaborators and tool server from config.
// withLLM=false is enough for merge and status.
func (a *app) server(withLLM bool) (*tools.Server, *store.StoreRouter, error) {
	router, err := store.NewRouter(a.cfg.EffectiveBaseDir())
	if err != nil {
		return nil, nil, fmt.Errorf("storage dir: %w", err)
	}
	collab, err := pipeline.NewCollaborators(a.cfg, withLLM)
	if err != nil {
		router.CloseAll()
		return nil, nil, err
	}
	return tools.NewServer(router, collab, pipeline.OptionsFromConfig(a.cfg), version), router, nil
}

func (a *app) create(ctx context.Context, args []string) error {
	readDir, storage, err := storageArgs(args, true)
	if err != nil {
		return err
	}
	srv, router, err := a.server(true)
	if err != nil {
		return err
	}
	defer router.CloseAll()

	existed := router.HasStorage(storage)
	res, err := srv.Create(ctx, storage, readDir)
	if res != nil {
		a.printResult(storage, router.StorageDir(storage), existed, res)
	}
	return err
}

func (a *app) merge(ctx context.Context, args []string) error {
	_, storage, err := storageArgs(args, false)
	if err != nil {
		return err
	}
	srv, router, err := a.server(false)
	if err != nil {
		return err
	}
	defer router.CloseAll()
	if !router.HasStorage(storage) {
		return fmt.Errorf("storage %q not found in %s", storage, router.Dir())
	}
	n, err := srv.Merge(ctx, storage)
	if err != nil {
		return err
	}
	successf(a.out, "Merged %d entities in %s", n, storage)
	return nil
}

func (a *app) watch(ctx context.Context, args []string) error {
	readDir, storage, err := storageArgs(args, true)
	if err != nil {
		return err
	}
	srv, router, err := a.server(true)
	if err != nil {
		return err
	}
	defer router.CloseAll()

	existed := router.HasStorage(storage)
	res, err := srv.Create(ctx, storage, readDir)
	if res != nil {
		a.printResult(storage, router.StorageDir(storage), existed, res)
	}
	if err != nil {
		return err
	}

	opts := pipeline.OptionsFromConfig(a.cfg)
	w := watcher.New(indexFunc(srv), &opts.Discover)
	w.Watch(storage, readDir)
	infof(a.out, "Watching %s (Ctrl+C to stop)", path(readDir))
	w.Run(ctx)
	return nil
}

func (a *app) status(ctx context.Context, args []string) error {
	_, storage, err := storageArgs(args, false)
	if err != nil {
		return err
	}
	router, err := store.NewRouter(a.cfg.EffectiveBaseDir())
	if err != nil {
		return fmt.Errorf("storage dir: %w", err)
	}
	defer router.CloseAll()

	names := []string{storage}
	if len(args) == 0 {
		infos, err := router.ListStorages()
		if err != nil {
			return err
		}
		names = names[:0]
		for _, info := range infos {
			names = append(names, info.Name)
		}
		if len(names) == 0 {
			infof(a.out, "No storages in %s", path(router.Dir()))
			return nil
		}
	} else if !router.HasStorage(storage) {
		return fmt.Errorf("storage %q not found in %s", storage, router.Dir())
	}

	for _, name := range names {
		st, err := router.ForStorage(name)
		if err != nil {
			return err
		}
		stats, err := st.Stats(ctx)
		if err != nil {
			return fmt.Errorf("stats %s: %w", name, err)
		}
		fmt.Fprintln(a.out, bold.Sprint(name), path(router.StorageDir(name)))
		row(a.out, "Documents", stats.Docs)
		row(a.out, "Chunks", stats.Chunks)
		row(a.out, "Entities", stats.Entities)
		row(a.out, "Relationships", stats.Relationships)
	}
	return nil
}

// serve runs the MCP server on stdio. Without an LLM provider the
// read-only and merge tools still work.
func (a *app) serve(ctx context.Context) error {
	srv, router, err := a.server(true)
	if err != nil {
		slog.Warn("serve.no_llm", "err", err)
		if srv, router, err = a.server(false); err != nil {
			return err
		}
	}
	defer router.CloseAll()

	opts := pipeline.OptionsFromConfig(a.cfg)
	w := watcher.New(indexFunc(srv), &opts.Discover)
	srv.SetWatcher(w)
	go w.Run(ctx)

	slog.Info("serve.start", "version", version, "storage_dir", router.Dir())
	if err := srv.MCPServer().Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

func indexFunc(srv *tools.Server) watcher.IndexFunc {
	return func(ctx context.Context, storage, readDir string) error {
		_, err := srv.Create(ctx, storage, readDir)
		return err
	}
}

func (a *app) printResult(storage, dir string, existed bool, res *pipeline.Result) {
	action := "Created"
	if existed {
		action = "Updated"
	}
	successf(a.out, "%s storage %s %s", action, bold.Sprint(storage), path(dir))
	row(a.out, "Files", res.Discovered)
	row(a.out, "Unchanged", res.Unchanged)
	row(a.out, "Deleted", res.Deleted)
	row(a.out, "Documents", res.Docs)
	row(a.out, "Code files", res.Code)
	row(a.out, "Chunks", res.Chunks)
	row(a.out, "Entities", res.Entities)
	row(a.out, "Relationships", res.Relations)
	row(a.out, "Merges", res.Merges)
	row(a.out, "Elapsed", res.Elapsed.Round(time.Millisecond))
	if len(res.DeleteFailed) > 0 {
		errorf(a.out, "%d deletions failed: %v", len(res.DeleteFailed), res.DeleteFailed)
	}
}
