package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"route-pipeline/internal/orchestrator"
	"route-pipeline/internal/report"

	"github.com/spf13/cobra"
)

var (
	collectSources []string
	collectList    bool
	collectOutput  string
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a collection over the configured collectors",
	Long: `Run every enabled collector once, or only those named with --source.
The report is printed as a table and can be exported with --output
(.json, .csv or .xlsx).`,
	Example: `  routepipe collect
  routepipe collect --source daily_files --source dispatch_api
  routepipe collect --output reports/latest.xlsx
  routepipe collect --list`,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().StringSliceVarP(&collectSources, "source", "s", nil, "collectors to run (default all enabled)")
	collectCmd.Flags().BoolVarP(&collectList, "list", "l", false, "list configured collectors and exit")
	collectCmd.Flags().StringVarP(&collectOutput, "output", "o", "", "export the report to a .json, .csv or .xlsx file")
}

func runCollect(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if collectList {
		statuses, err := db.CollectorStatuses(cmd.Context())
		if err != nil {
			return fmt.Errorf("load collector status: %w", err)
		}
		renderCollectors(out, orch.ListCollectors(), statuses)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := orch.Run(ctx, orchestrator.RunOptions{Sources: collectSources})
	if rep == nil {
		return err
	}
	renderReport(out, rep)

	if collectOutput != "" {
		if xerr := report.Export(rep, collectOutput); xerr != nil {
			return fmt.Errorf("export report: %w", xerr)
		}
		fmt.Fprintln(out, hintStyle.Render("Report written to "+collectOutput))
	}
	if err != nil {
		return err
	}
	if !rep.Succeeded() {
		return errRunFailed
	}
	return nil
}
