// ============================================================================
// Action Execution Engine - Main Entry Point
// ============================================================================
//
// File: cmd/actionengine/main.go
// Purpose: Application entry point and CLI initialization.
//
// Version Injection:
//   go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
//
// Usage:
//   ./actionengine run                   # start bus adapter, sweeper, HTTP API
//   ./actionengine enqueue -f trigger.json
//   ./actionengine status
//
// ============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/action-engine/internal/cli"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	root := cli.BuildCLI()
	root.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
