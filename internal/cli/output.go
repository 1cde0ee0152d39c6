package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"route-pipeline/internal/model"
	"route-pipeline/internal/orchestrator"
	"route-pipeline/internal/report"
	"route-pipeline/internal/store"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	colorSuccess = lipgloss.Color("#00D787")
	colorWarn    = lipgloss.Color("#FFAF00")
	colorError   = lipgloss.Color("#FF005F")
	colorHint    = lipgloss.Color("#6C6C6C")

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	hintStyle   = lipgloss.NewStyle().Foreground(colorHint).Italic(true)
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case string(model.StatusSuccess), "ok":
		return cellStyle.Foreground(colorSuccess)
	case string(model.StatusPartial), string(model.StatusSkipped):
		return cellStyle.Foreground(colorWarn)
	case string(model.StatusFailed), "error":
		return cellStyle.Foreground(colorError).Bold(true)
	}
	return cellStyle
}

// renderTable draws rows with the status column (statusCol, -1 for none) colored.
func renderTable(w io.Writer, headers []string, rows [][]string, statusCol int) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorHint)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == statusCol && row >= 0 && row < len(rows) {
				return statusStyle(rows[row][col])
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}

func renderReport(w io.Writer, r *model.RunReport) {
	fmt.Fprintf(w, "%s %s  %s\n", titleStyle.Render("Run"), r.RunID, statusStyle(string(r.Status)).Render(string(r.Status)))

	rows := make([][]string, 0, len(r.Results))
	for _, res := range r.Results {
		rows = append(rows, []string{
			res.CollectorName,
			string(res.CollectorType),
			string(res.Status),
			strconv.Itoa(res.RecordsFetched),
			strconv.Itoa(res.RecordsAccepted),
			strconv.Itoa(res.RecordsRejected),
			strconv.Itoa(res.DuplicatesSkipped),
			strconv.Itoa(res.Attempts),
			res.Duration.Round(time.Millisecond).String(),
		})
	}
	renderTable(w, []string{"COLLECTOR", "TYPE", "STATUS", "FETCHED", "ACCEPTED", "REJECTED", "DUPLICATES", "ATTEMPTS", "DURATION"}, rows, 2)

	s := report.Summarize(r, 5)
	fmt.Fprintf(w, "Collectors: %d ok, %d partial, %d failed, %d skipped\n",
		s.Totals.SuccessfulCollectors, s.Totals.PartialCollectors, s.Totals.FailedCollectors, s.Totals.SkippedCollectors)
	fmt.Fprintf(w, "Records: %d fetched, %d accepted (%.1f%%), %d rejected, %d duplicates\n",
		s.Totals.RecordsFetched, s.Totals.RecordsAccepted, s.SuccessPct, s.Totals.RecordsRejected, s.Totals.DuplicatesSkipped)
	fmt.Fprintf(w, "Duration: %s\n", r.Duration.Round(time.Millisecond))

	for _, e := range r.ConfigErrors {
		fmt.Fprintf(w, "%s %s: %s\n", statusStyle("failed").Render("config"), e.Origin, e.Message)
	}
	for _, res := range r.Results {
		if res.Status == model.StatusFailed && len(res.Errors) > 0 {
			fmt.Fprintf(w, "%s %s: %s\n", statusStyle("failed").Render("error"), res.CollectorName, res.LastError())
		}
	}
	if len(s.TopReasons) > 0 {
		fmt.Fprintln(w, titleStyle.Render("Top rejection reasons"))
		for _, reason := range s.TopReasons {
			fmt.Fprintf(w, "  %4d  %s\n", reason.Count, reason.Message)
		}
	}
}

func renderCollectors(w io.Writer, infos []orchestrator.CollectorInfo, statuses map[string]store.CollectorStatus) {
	rows := make([][]string, 0, len(infos))
	for _, c := range infos {
		enabled := "yes"
		if !c.Enabled {
			enabled = "no"
		}
		last, lastRun, total := "-", "-", "0"
		if st, ok := statuses[c.Name]; ok {
			last = string(st.Status)
			lastRun = st.FinishedAt.Local().Format("2006-01-02 15:04")
			total = strconv.Itoa(st.TotalAccepted)
		}
		rows = append(rows, []string{c.Name, string(c.Type), enabled, c.Validator, last, lastRun, total})
	}
	renderTable(w, []string{"COLLECTOR", "TYPE", "ENABLED", "VALIDATOR", "LAST STATUS", "LAST RUN", "TOTAL ACCEPTED"}, rows, 4)
}

func renderRuns(w io.Writer, runs []store.RunInfo) {
	if len(runs) == 0 {
		fmt.Fprintln(w, hintStyle.Render("No runs recorded yet."))
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			string(r.Status),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
		})
	}
	renderTable(w, []string{"RUN", "STATUS", "STARTED", "DURATION"}, rows, 1)
}
