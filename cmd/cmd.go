// Package cmd provides the CLI commands for the RAG server.
//
// Commands:
//   - serve: HTTP API server (default when no command is given)
//   - migrate: apply pending database migrations and exit
//
// Both commands handle SIGINT/SIGTERM via context cancellation.
package cmd

import (
	"fmt"
	"os"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Execute is the main entry point for the ragserver CLI.
func Execute() error {
	cmd := "serve"
	if len(os.Args) >= 2 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "serve":
		return runServe()
	case "migrate":
		return runMigrate()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func runVersion() {
	fmt.Println("ragserver", Version)
}

func runHelp() {
	fmt.Println("ragserver - retrieval-augmented generation HTTP server")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ragserver [serve]    Start the HTTP API server (default)")
	fmt.Println("  ragserver migrate    Apply pending database migrations and exit")
	fmt.Println("  ragserver --version  Show version information")
	fmt.Println("  ragserver --help     Show this help")
	fmt.Println()
	fmt.Println("Configuration comes from ./config.yaml and RAG_-prefixed")
	fmt.Println("environment variables; DATABASE_URL overrides the postgres_*")
	fmt.Println("settings.")
}
