package main

import (
	"fmt"
	"os"

	"route-pipeline/internal/cli"
)

// @title Route Pipeline Status API
// @version 1.0
// @description Read-only view of collection runs and collectors, plus a trigger for new runs.
// @BasePath /api/v1
func main() {
	if err := cli.ExecuteArgs(append([]string{"serve"}, os.Args[1:]...)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
