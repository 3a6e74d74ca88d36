// Package main is the promptarchitect binary: web UI server, terminal UI and one-shot CLI
// for the draft, evaluate and refine prompt pipeline.
package main

import (
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
