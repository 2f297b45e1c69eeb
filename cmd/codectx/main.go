package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/semantica-dev/codectx/internal/mcp"
	"github.com/semantica-dev/codectx/internal/vectorstore"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	root := flag.String("root", "", "repository root to index (default: current directory or CODECTX_ROOT)")
	dataDir := flag.String("data-dir", "", "directory for the index database and snapshot (default: ~/.codectx/<repo> or CODECTX_DATA_DIR)")
	interval := flag.Duration("interval", 0, "incremental indexing cadence (default: 5m or CODECTX_INTERVAL)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("codectx MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", vectorstore.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", vectorstore.DriverName)
		os.Exit(0)
	}

	// Log startup info to stderr (stdout reserved for MCP protocol)
	log.SetOutput(os.Stderr)
	log.Printf("codectx MCP server v%s starting...", version)
	log.Printf("Build Mode: %s, Driver: %s", vectorstore.BuildMode, vectorstore.DriverName)

	cfg, err := resolveConfig(*root, *dataDir, *interval)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.Printf("Indexing root: %s", cfg.Root)

	server, err := mcp.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		log.Println("MCP server ready, listening on stdio...")
		errChan <- server.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("Server error: %v", err)
		}
	}

	log.Println("Server stopped")
}

// resolveConfig merges flags with the CODECTX_* environment, flags winning.
func resolveConfig(root, dataDir string, interval time.Duration) (mcp.Config, error) {
	if root == "" {
		root = os.Getenv("CODECTX_ROOT")
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return mcp.Config{}, fmt.Errorf("get working directory: %w", err)
		}
		root = wd
	}

	if dataDir == "" {
		dataDir = os.Getenv("CODECTX_DATA_DIR")
	}

	if interval == 0 {
		if raw := os.Getenv("CODECTX_INTERVAL"); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil {
				return mcp.Config{}, fmt.Errorf("parse CODECTX_INTERVAL: %w", err)
			}
			interval = parsed
		}
	}

	return mcp.Config{Root: root, DataDir: dataDir, Interval: interval}, nil
}
