// Package main provides the entry point for the openclaw-memory CLI.
package main

import (
	"os"

	"github.com/openclaw/openclaw-memory/cmd/openclaw-memory/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
