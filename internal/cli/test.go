package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Check that every enabled collector can reach its source",
	RunE: func(cmd *cobra.Command, args []string) error {
		results := orch.TestConnections(cmd.Context())

		rows := make([][]string, 0, len(results))
		failed := 0
		for _, r := range results {
			status, detail := "ok", ""
			switch {
			case r.Skipped:
				status, detail = "skipped", "disabled"
			case !r.OK:
				status, detail = "error", r.Error
				failed++
			}
			rows = append(rows, []string{r.Name, string(r.Type), status, r.Duration.Round(time.Millisecond).String(), detail})
		}
		renderTable(cmd.OutOrStdout(), []string{"COLLECTOR", "TYPE", "STATUS", "DURATION", "DETAIL"}, rows, 2)

		if failed > 0 {
			return fmt.Errorf("%d collector(s) failed the connection test", failed)
		}
		return nil
	},
}
