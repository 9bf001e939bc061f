// Framestack: stack-based frame memory MCP server.
//
// A universal MCP server that gives any AI coding tool a persistent,
// structured memory: work is organized as nested frames on a call stack,
// with a reviewed handoff protocol for moving frames between an individual
// stack and a shared team stack.
//
// Usage:
//
//	framestack serve     # Start MCP server (stdio transport)
//	framestack version   # Print the version
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/framestack/framestack/internal/config"
	fsserver "github.com/framestack/framestack/internal/server"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("framestack v%s\n", fsserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	s, cleanup, err := fsserver.New(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Graceful shutdown on interrupt: cleanup stops reminder timers and
	// closes the store before the process exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ServeStdio(s) }()

	select {
	case <-sigCh:
		return nil
	case err := <-errCh:
		return err
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Framestack v%s — stack-based frame memory MCP server

Usage:
  framestack serve     Start the MCP server (stdio transport)
  framestack version   Print the version

Configuration (environment):
  FRAMESTACK_DATA_DIR          Database location (default ~/.framestack)
  FRAMESTACK_ACTOR_ID          Local actor identity (default "local")
  FRAMESTACK_TEAM_STACK        Team stack name (default "team")
  FRAMESTACK_REMINDER_DELAY    Review reminder delay (default 4h)

Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "framestack": {
        "command": "framestack",
        "args": ["serve"]
      }
    }
  }
`, fsserver.Version)
}
