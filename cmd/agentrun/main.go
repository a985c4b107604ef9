// Package main provides the entry point for the agentrun CLI.
package main

import (
	"fmt"
	"os"

	"github.com/agentrun-ai/agentrun/cmd/agentrun/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
