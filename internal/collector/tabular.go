package collector

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"route-pipeline/pkg/utils"

	"github.com/xuri/excelize/v2"
)

// containerKeys are the object keys that may hold a JSON record list.
var containerKeys = []string{"data", "records", "rows", "results", "routes"}

// parseTable reads rows from a CSV, JSON or XLSX payload chosen by file name.
func parseTable(name string, data []byte, delimiter string) ([]map[string]interface{}, error) {
	switch utils.GetFileType(name) {
	case "csv":
		return parseCSV(bytes.NewReader(data), delimiter)
	case "json":
		return parseJSON(data)
	case "excel":
		return parseXLSX(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported file type %q", name)
	}
}

func parseCSV(r io.Reader, delimiter string) ([]map[string]interface{}, error) {
	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true
	if delimiter != "" {
		if delimiter == `\t` {
			delimiter = "\t"
		}
		csvReader.Comma = []rune(delimiter)[0]
	}

	headers, err := csvReader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i, h := range headers {
		// trim whitespace, quotes and BOM
		h = strings.TrimSpace(strings.ReplaceAll(h, `"`, ""))
		headers[i] = strings.TrimPrefix(h, "\ufeff")
	}

	var rows []map[string]interface{}
	for line := 2; ; line++ {
		record, err := csvReader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, fmt.Errorf("CSV read error on line %d: %w", line, err)
		}
		rows = appendRow(rows, headers, record)
	}
}

func parseXLSX(r io.Reader) ([]map[string]interface{}, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	grid, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(grid) == 0 {
		return nil, nil
	}

	headers := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		headers[i] = strings.TrimSpace(h)
	}
	var rows []map[string]interface{}
	for _, record := range grid[1:] {
		rows = appendRow(rows, headers, record)
	}
	return rows, nil
}

// appendRow adds one row, skipping fully empty lines. NA cells become nil.
func appendRow(rows []map[string]interface{}, headers, record []string) []map[string]interface{} {
	row := make(map[string]interface{}, len(headers))
	empty := true
	for i, h := range headers {
		if h == "" {
			continue
		}
		if i >= len(record) || utils.IsNA(record[i]) {
			row[h] = nil
			continue
		}
		row[h] = strings.TrimSpace(record[i])
		empty = false
	}
	if empty {
		return rows
	}
	return append(rows, row)
}

var errUnexpectedJSON = errors.New("unexpected JSON structure")

// parseJSON accepts a list of objects, a single object, or an object holding a list.
func parseJSON(data []byte) ([]map[string]interface{}, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return jsonRows(raw)
}

func jsonRows(raw interface{}) ([]map[string]interface{}, error) {
	switch data := raw.(type) {
	case []interface{}:
		rows := make([]map[string]interface{}, 0, len(data))
		for i, item := range data {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: item %d is %T", errUnexpectedJSON, i, item)
			}
			rows = append(rows, m)
		}
		return rows, nil
	case map[string]interface{}:
		for _, key := range containerKeys {
			if list, ok := data[key].([]interface{}); ok {
				return jsonRows(list)
			}
		}
		return []map[string]interface{}{data}, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %T", errUnexpectedJSON, raw)
	}
}
