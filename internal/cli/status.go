package cli

import (
	"errors"
	"fmt"

	"route-pipeline/internal/store"

	"github.com/spf13/cobra"
)

var (
	statusRunID string
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs and collector status",
	Example: `  routepipe status
  routepipe status --limit 5
  routepipe status --run 3f0c6c1e-...`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusRunID, "run", "", "show the full report of one run")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "number of runs to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if statusRunID != "" {
		rep, err := db.GetRun(ctx, statusRunID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("run %s not found", statusRunID)
		}
		if err != nil {
			return err
		}
		renderReport(out, rep)
		return nil
	}

	runs, err := db.ListRuns(ctx, statusLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	fmt.Fprintln(out, titleStyle.Render("Recent runs"))
	renderRuns(out, runs)

	statuses, err := db.CollectorStatuses(ctx)
	if err != nil {
		return fmt.Errorf("load collector status: %w", err)
	}
	fmt.Fprintln(out, titleStyle.Render("Collectors"))
	renderCollectors(out, orch.ListCollectors(), statuses)

	if n, err := db.CountRoutes(ctx); err == nil {
		fmt.Fprintf(out, "Stored routes: %d\n", n)
	}
	return nil
}
