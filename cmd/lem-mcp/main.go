// lem-mcp serves the assessment pipeline as MCP tools over stdio.
//
// Usage:
//
//	lem-mcp            # Start MCP server (stdio transport)
//	lem-mcp version    # Print the version
//
// Configuration is read the same way as the HTTP server (LEM_* variables,
// optional LEM_CONFIG file, .env). Logs go to stderr because stdout carries
// the MCP protocol.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/katarzynaochnikdu/LEM-V1/internal/adapters/mcptools"
	service "github.com/katarzynaochnikdu/LEM-V1/internal/app"
	"github.com/katarzynaochnikdu/LEM-V1/internal/config"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "1.0.0"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("lem-mcp v%s\n", Version)
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
			os.Exit(1)
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := logger.InitWithWriter(os.Stderr, cfg.LogFormat); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}

	svc := service.New(cfg, service.WithLogger(logger.Get()))
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}
	defer svc.Stop()

	// ServeStdio handles SIGINT/SIGTERM itself.
	return server.ServeStdio(mcptools.New(svc, Version))
}
