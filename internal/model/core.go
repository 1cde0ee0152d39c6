package model

import (
	"encoding/json"
	"fmt"
)

// CollectorType names one of the supported source variants
type CollectorType string

const (
	CollectorFile   CollectorType = "file"
	CollectorAPI    CollectorType = "api"
	CollectorEmail  CollectorType = "email"
	CollectorManual CollectorType = "manual"
)

// CollectorConfig describes one configured source.
// Source-specific parameters stay in Params and are decoded by the collector variant.
type CollectorConfig struct {
	Name            string            `json:"name"`
	Type            CollectorType     `json:"type"`                       // file, api, email, manual
	Enabled         *bool             `json:"enabled,omitempty"`          // default true
	Validator       string            `json:"validator,omitempty"`        // rule set name, default route_data
	SkipDuplicates  *bool             `json:"skip_duplicates,omitempty"`  // default true
	ColumnMapping   map[string]string `json:"column_mapping,omitempty"`   // source column -> canonical field
	RequiredColumns []string          `json:"required_columns,omitempty"` // checked after mapping
	MaxRetries      *int              `json:"max_retries,omitempty"`      // overrides settings.retry.max_retries

	Params json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the raw object so variants can decode their own parameters.
func (c *CollectorConfig) UnmarshalJSON(data []byte) error {
	type plain CollectorConfig
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = CollectorConfig(p)
	c.Params = append(json.RawMessage(nil), data...)
	return nil
}

// IsEnabled reports whether the collector takes part in runs.
func (c CollectorConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SkipsDuplicates reports whether duplicate records are dropped.
func (c CollectorConfig) SkipsDuplicates() bool {
	return c.SkipDuplicates == nil || *c.SkipDuplicates
}

// DecodeParams decodes the source-specific parameters into v.
func (c CollectorConfig) DecodeParams(v interface{}) error {
	if len(c.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Params, v); err != nil {
		return NewError(KindConfiguration, "collector "+c.Name, fmt.Errorf("decode parameters: %w", err))
	}
	return nil
}
