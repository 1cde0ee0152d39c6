package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"route-pipeline/internal/model"
	"route-pipeline/pkg/utils"
)

// ManualParams configures the manual entry collector.
type ManualParams struct {
	EntryFilePath      string `json:"entry_file_path" validate:"required"`
	TemplateFilePath   string `json:"template_file_path"`
	ProcessedDirectory string `json:"processed_directory"`
	AutoCreateTemplate bool   `json:"auto_create_template"`
	AllowedBatchSize   int    `json:"allowed_batch_size" validate:"gte=0"`
}

type manualCollector struct {
	base
	params    ManualParams
	processed *utils.OutputManager
}

func newManualCollector(b base, cfg model.CollectorConfig) (*manualCollector, error) {
	var p ManualParams
	if err := decodeParams(cfg, &p); err != nil {
		return nil, err
	}
	dir := filepath.Dir(p.EntryFilePath)
	if p.TemplateFilePath == "" {
		stem := strings.TrimSuffix(filepath.Base(p.EntryFilePath), filepath.Ext(p.EntryFilePath))
		p.TemplateFilePath = filepath.Join(dir, stem+"_template.json")
	}
	if p.ProcessedDirectory == "" {
		p.ProcessedDirectory = filepath.Join(dir, "processed")
	}
	if p.AllowedBatchSize == 0 {
		p.AllowedBatchSize = 100
	}
	return &manualCollector{base: b, params: p, processed: utils.NewOutputManager(p.ProcessedDirectory)}, nil
}

func (c *manualCollector) TestConnection(_ context.Context) error {
	dir := filepath.Dir(c.params.EntryFilePath)
	if _, err := os.Stat(dir); err != nil {
		return model.NewError(model.KindSourceUnavailable, c.op("entry directory"), err)
	}
	return nil
}

func (c *manualCollector) Fetch(ctx context.Context) (*FetchResult, error) {
	res := &FetchResult{}
	path := c.params.EntryFilePath

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		msg := "no manual entry file at " + path
		if c.params.AutoCreateTemplate {
			if err := c.writeTemplate(); err != nil {
				c.logger.Warn("could not create template", "path", c.params.TemplateFilePath, "error", err)
			} else {
				msg += "; template written to " + c.params.TemplateFilePath
			}
		}
		res.warn(model.KindSourceUnavailable, path, msg)
		return res, nil
	}
	if err != nil {
		return nil, model.NewError(model.KindSourceUnavailable, c.op("read"), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	routes, err := decodeManualEntry(data)
	if err != nil {
		return nil, model.NewError(model.KindMalformedInput, c.op(path), err)
	}
	if len(routes) > c.params.AllowedBatchSize {
		res.warn(model.KindMalformedInput, path, fmt.Sprintf("%d routes exceed allowed batch size %d", len(routes), c.params.AllowedBatchSize))
		c.logger.Warn("batch size exceeded", "path", path, "routes", len(routes), "allowed", c.params.AllowedBatchSize)
	}

	res.Origins = append(res.Origins, path)
	for _, r := range routes {
		res.Records = append(res.Records, model.RawRecord{Origin: path, Fields: r})
	}
	c.logger.Info("read manual entries", "path", path, "routes", len(routes))
	return res, nil
}

// decodeManualEntry accepts only {"routes": [...], "metadata": {...}}.
func decodeManualEntry(data []byte) ([]map[string]interface{}, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("entry file must be a JSON object: %w", err)
	}
	raw, ok := doc["routes"]
	if !ok {
		return nil, errors.New(`entry file has no "routes" list`)
	}
	var routes []map[string]interface{}
	if err := json.Unmarshal(raw, &routes); err != nil {
		return nil, fmt.Errorf(`"routes" must be a list of objects: %w`, err)
	}
	return routes, nil
}

func (c *manualCollector) writeTemplate() error {
	if _, err := os.Stat(c.params.TemplateFilePath); err == nil {
		return nil
	}
	tmpl := map[string]interface{}{
		"metadata": map[string]interface{}{
			"created_at":   c.now().UTC().Format("2006-01-02T15:04:05Z"),
			"instructions": "Add route objects to the routes list and save as " + filepath.Base(c.params.EntryFilePath),
			"required":     []string{model.FieldRouteID, model.FieldRouteDate},
		},
		"routes": []interface{}{},
		"example": map[string]interface{}{
			model.FieldRouteID:            "R-1001",
			model.FieldRouteDate:          "2024-01-15",
			model.FieldDriverName:         "Jane Doe",
			model.FieldVehicleID:          "TRK-12",
			model.FieldOriginAddress:      "100 Main St, Springfield",
			model.FieldDestinationAddress: "200 Oak Ave, Shelbyville",
			model.FieldTotalMiles:         125.5,
			model.FieldRevenue:            850.00,
			model.FieldStatus:             "completed",
		},
	}
	data, err := json.MarshalIndent(tmpl, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.params.TemplateFilePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(c.params.TemplateFilePath, data, 0644)
}

func (c *manualCollector) Acknowledge(_ context.Context, origins []string) error {
	var errs []error
	for _, path := range origins {
		dest, err := c.processed.Move(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.logger.Info("archived manual entry file", "file", path, "to", dest)
	}
	return errors.Join(errs...)
}
