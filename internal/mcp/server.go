package mcp

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/semantica-dev/codectx/internal/embedder"
	"github.com/semantica-dev/codectx/internal/indexer"
	"github.com/semantica-dev/codectx/internal/merkle"
	"github.com/semantica-dev/codectx/internal/scheduler"
	"github.com/semantica-dev/codectx/internal/searcher"
	"github.com/semantica-dev/codectx/internal/snapshot"
	"github.com/semantica-dev/codectx/internal/vectorstore"
)

const (
	// ServerName is the MCP server name
	ServerName = "codectx"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Config carries the server's startup settings.
type Config struct {
	// Root is the repository to index. Required, must be a directory.
	Root string

	// DataDir holds the vector database and the snapshot. Defaults to
	// ~/.codectx/<base name of Root>.
	DataDir string

	// Interval is the incremental indexing cadence. Zero applies the
	// scheduler default.
	Interval time.Duration
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp       *server.MCPServer
	store     vectorstore.Store
	embedder  embedder.Embedder
	indexer   *indexer.Indexer
	searcher  *searcher.Searcher
	scheduler *scheduler.Scheduler

	// background outlives individual tool calls so an async full_index
	// isn't canceled when its request returns.
	background context.Context
	cancel     context.CancelFunc
}

// NewServer creates a new MCP server instance
func NewServer(cfg Config) (*Server, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".codectx", filepath.Base(root))
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store, err := vectorstore.NewSQLiteStore(filepath.Join(dataDir, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("initialize vector store: %w", err)
	}

	// A misconfigured embedder must not keep the server from starting.
	// Runs against the unconfigured provider fail and land in status, and
	// the scheduler keeps retrying on its normal cadence, so fixing the
	// environment and restarting recovers without losing the index.
	emb, err := embedder.NewFromEnv()
	if err != nil {
		log.Printf("embedder configuration error: %v", err)
		emb = embedder.NewUnconfiguredProvider(err)
	}

	snapshots, err := snapshot.NewStore(dataDir)
	if err != nil {
		_ = store.Close()
		_ = emb.Close()
		return nil, fmt.Errorf("initialize snapshot store: %w", err)
	}

	idx := indexer.New(indexer.Config{
		Root:  root,
		Rules: merkle.DefaultRules(),
	}, emb, store, snapshots)

	srch := searcher.New(store, emb)

	sched := scheduler.New(idx,
		scheduler.WithInterval(cfg.Interval),
		scheduler.WithRunDone(srch.Invalidate))

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	background, cancel := context.WithCancel(context.Background())
	s := &Server{
		mcp:        mcpServer,
		store:      store,
		embedder:   emb,
		indexer:    idx,
		searcher:   srch,
		scheduler:  sched,
		background: background,
		cancel:     cancel,
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(fullIndexTool(), s.handleFullIndex)
	s.mcp.AddTool(statusTool(), s.handleStatus)
	s.mcp.AddTool(queryTool(), s.handleQuery)
}

// Serve starts the scheduler and the MCP server on stdio, blocking until
// ctx is canceled or stdin closes. Resources are released on return.
func (s *Server) Serve(ctx context.Context) error {
	defer s.Close()
	s.scheduler.Start(s.background)
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// Close stops the scheduler, waits for an in-flight run to commit, and
// releases the store and embedder.
func (s *Server) Close() {
	s.cancel()
	s.scheduler.Stop()
	_ = s.store.Close()
	_ = s.embedder.Close()
}
