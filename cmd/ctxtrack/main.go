package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/ctxtrack-mcp/internal/analytics"
	"github.com/dshills/ctxtrack-mcp/internal/api"
	"github.com/dshills/ctxtrack-mcp/internal/broadcast"
	"github.com/dshills/ctxtrack-mcp/internal/cache"
	"github.com/dshills/ctxtrack-mcp/internal/config"
	"github.com/dshills/ctxtrack-mcp/internal/manager"
	"github.com/dshills/ctxtrack-mcp/internal/mcp"
	"github.com/dshills/ctxtrack-mcp/internal/search"
	"github.com/dshills/ctxtrack-mcp/internal/store"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const defaultConfigPath = "~/.ctxtrack/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("ctxtrack MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", store.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", store.DriverName)
		os.Exit(0)
	}

	configPath := os.Getenv("CTXTRACK_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	configPath, err := config.ExpandHome(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve config path: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("ctxtrack starting",
		zap.String("version", version),
		zap.String("backend", cfg.Storage.Backend),
		zap.String("build_mode", store.BuildMode),
		zap.String("driver", store.DriverName))

	st, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage backend", zap.Error(err))
	}

	c, err := cache.New(cache.Options{
		TTL:           cfg.Cache.TTL,
		SweepInterval: cfg.Cache.SweepInterval,
		MaxEntries:    cfg.Cache.MaxEntries,
	})
	if err != nil {
		logger.Fatal("failed to create cache", zap.Error(err))
	}

	bcast := broadcast.New(cfg.Broadcast.QueueSize, logger)
	mgr := manager.New(st, c, bcast, logger)
	defer func() { _ = mgr.Close() }()

	searcher := search.New(mgr.ListProjects, cfg.Search.DefaultLimit)
	an := analytics.New(mgr.ListProjects)

	httpServer, err := api.NewServer(mgr, searcher, an, logger, &api.Config{
		Host: cfg.HTTP.Host,
		Port: cfg.HTTP.Port,
	})
	if err != nil {
		logger.Fatal("failed to create http server", zap.Error(err))
	}

	mcpServer := mcp.NewServer(mgr, searcher, an, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	httpErr := make(chan error, 1)
	go func() { httpErr <- httpServer.Start() }()

	// Stdout is reserved for the MCP protocol; all logging goes to stderr.
	mcpErr := make(chan error, 1)
	go func() {
		logger.Info("mcp server ready, listening on stdio")
		mcpErr <- mcpServer.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-httpErr:
		if err != nil {
			logger.Error("http server error", zap.Error(err))
		}
	case err := <-mcpErr:
		if err != nil {
			logger.Error("mcp server error", zap.Error(err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openStore builds the configured backend. Transient backend failures are
// retried with exponential backoff before giving up.
func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	open := func() (store.Store, error) {
		switch cfg.Storage.Backend {
		case config.BackendFile:
			root, err := config.ExpandHome(cfg.Storage.FileRoot)
			if err != nil {
				return nil, err
			}
			return store.NewFileStore(root)
		default:
			dbPath, err := config.ExpandHome(cfg.Storage.SQLitePath)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
			return store.NewSQLiteStore(dbPath, store.SQLiteOptions{
				MaxConns:        cfg.Storage.MaxConns,
				CheckoutTimeout: cfg.Storage.CheckoutTimeout,
			})
		}
	}

	backoff := broadcast.Backoff{Initial: time.Second, Max: 10 * time.Second, MaxAttempts: 5}
	for {
		st, err := open()
		if err == nil {
			return st, nil
		}
		delay, retry := backoff.Next()
		if !retry {
			return nil, err
		}
		logger.Warn("storage backend not ready, retrying",
			zap.Duration("retry_in", delay), zap.Error(err))
		time.Sleep(delay)
	}
}

// newLogger builds a stderr-only zap logger at the configured level.
func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}
