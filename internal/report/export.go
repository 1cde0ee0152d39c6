package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"route-pipeline/internal/model"

	"github.com/xuri/excelize/v2"
)

var resultHeader = []string{
	"run_id", "collector", "type", "status",
	"fetched", "accepted", "rejected", "duplicates",
	"attempts", "retries", "errors", "warnings",
	"duration_ms", "last_error",
}

func resultRow(runID string, res model.CollectionResult) []string {
	return []string{
		runID,
		res.CollectorName,
		string(res.CollectorType),
		string(res.Status),
		strconv.Itoa(res.RecordsFetched),
		strconv.Itoa(res.RecordsAccepted),
		strconv.Itoa(res.RecordsRejected),
		strconv.Itoa(res.DuplicatesSkipped),
		strconv.Itoa(res.Attempts),
		strconv.Itoa(res.Retries),
		strconv.Itoa(len(res.Errors)),
		strconv.Itoa(len(res.Warnings)),
		strconv.FormatInt(res.Duration.Milliseconds(), 10),
		res.LastError(),
	}
}

// Export writes r to path. The extension picks the format: .json writes the
// full report, .csv and .xlsx one row per collector.
func Export(r *model.RunReport, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return exportJSON(r, path)
	case ".csv":
		return exportCSV(r, path)
	case ".xlsx":
		return exportXLSX(r, path)
	default:
		return fmt.Errorf("unsupported export format %q", filepath.Ext(path))
	}
}

func exportJSON(r *model.RunReport, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func exportCSV(r *model.RunReport, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create CSV file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(resultHeader); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, res := range r.Results {
		if err := w.Write(resultRow(r.RunID, res)); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func exportXLSX(r *model.RunReport, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Results"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}
	write := func(row int, values []string) error {
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		return nil
	}
	if err := write(1, resultHeader); err != nil {
		return fmt.Errorf("write sheet header: %w", err)
	}
	for i, res := range r.Results {
		if err := write(i+2, resultRow(r.RunID, res)); err != nil {
			return fmt.Errorf("write sheet row: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
