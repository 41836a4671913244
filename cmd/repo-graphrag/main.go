package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/DeusData/repo-graphrag/internal/config"
	"github.com/DeusData/repo-graphrag/internal/metrics"
)

var version = "dev"

// globals are the flags shared by every command.
type globals struct {
	configDir   string
	storageDir  string
	logLevel    string
	logFormat   string
	metricsAddr string
	noColor     bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("repo-graphrag", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var g globals
	showVersion := fs.Bool("version", false, "Show version and exit")
	fs.StringVar(&g.configDir, "config", ".", "Directory holding .graphrag.yaml and .env")
	fs.StringVar(&g.storageDir, "storage-dir", "", "Base directory for storages (default: user cache dir)")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&g.logFormat, "log-format", "", "Log format: text or json")
	fs.StringVar(&g.metricsAddr, "metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
	fs.BoolVar(&g.noColor, "no-color", false, "Disable colored output")
	fs.Usage = func() {
		fmt.Fprint(stderr, `Usage: repo-graphrag [flags] <command> [args]

Commands:
  create <read_dir> [storage]   Create or update a graph storage from a directory
  merge [storage]               Merge unmerged code entities into document entities
  watch <read_dir> [storage]    Create, then re-run whenever the directory changes
  status [storage]              Show storage counts
  serve                         Run the MCP server on stdio

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, "repo-graphrag", version)
		return 0
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(g.configDir)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if g.logLevel != "" {
		cfg.Logging.Level = &g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.Format = &g.logFormat
	}
	if g.storageDir != "" {
		cfg.Storage.BaseDir = &g.storageDir
	}
	// stdout carries results (and the MCP protocol in serve mode)
	slog.SetDefault(newLogger(stderr, cfg.EffectiveLogLevel(), cfg.EffectiveLogFormat()))
	initColors(g.noColor)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if g.metricsAddr != "" {
		serveMetrics(ctx, g.metricsAddr)
	}

	a := &app{cfg: cfg, out: stdout}
	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "create":
		err = a.create(ctx, cmdArgs)
	case "merge":
		err = a.merge(ctx, cmdArgs)
	case "watch":
		err = a.watch(ctx, cmdArgs)
	case "status":
		err = a.status(ctx, cmdArgs)
	case "serve":
		err = a.serve(ctx)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		fs.Usage()
		return 2
	}
	if err != nil {
		errorf(stderr, "%v", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		slog.Info("metrics.http.start", "addr", addr, "path", "/metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics.http.error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}
