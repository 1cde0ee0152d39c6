// Package main provides the entry point for the routepipe CLI.
package main

import (
	"fmt"
	"os"

	"route-pipeline/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
