// Package config loads the collection configuration document.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"route-pipeline/internal/model"
	"route-pipeline/pkg/utils"

	"github.com/go-playground/validator/v10"
)

// Duration reads either a number of seconds or a Go duration string.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(val * float64(time.Second))
	case string:
		parsed := utils.ParseDuration(val, -1)
		if parsed < 0 {
			return fmt.Errorf("invalid duration %q", val)
		}
		*d = Duration(parsed)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RetrySettings configures fetch retries for every collector.
type RetrySettings struct {
	MaxRetries     *int     `json:"max_retries" validate:"omitempty,gte=0,lte=20"`
	BaseDelay      Duration `json:"base_delay"`
	MaxDelay       Duration `json:"max_delay"`
	Jitter         Duration `json:"jitter"`
	AttemptTimeout Duration `json:"attempt_timeout"` // defaults to default_timeout
}

// Settings holds run-wide options.
type Settings struct {
	MaxConcurrentCollectors int               `json:"max_concurrent_collectors" validate:"gte=0,lte=64"` // default 4
	EnableValidation        *bool             `json:"enable_validation,omitempty"`                       // default true
	AutoSaveToDatabase      *bool             `json:"auto_save_to_database,omitempty"`                   // default true
	DefaultTimeout          Duration          `json:"default_timeout"`                                   // run wall clock, default 300s
	Retry                   RetrySettings     `json:"retry"`
	DatabasePath            string            `json:"database_path"`
	CustomPredicates        map[string]string `json:"custom_predicates,omitempty"` // name -> CEL expression
	Schedule                string            `json:"schedule,omitempty"`          // cron spec for watch
	LogLevel                string            `json:"log_level,omitempty"`
	LogFile                 string            `json:"log_file,omitempty"`
}

// ValidatorConfig is a named rule set.
type ValidatorConfig struct {
	Rules []model.ValidationRule `json:"rules" validate:"dive"`
}

// Config is the whole configuration document.
type Config struct {
	Collectors map[string]model.CollectorConfig `json:"collectors"`
	Validators map[string]ValidatorConfig       `json:"validators,omitempty" validate:"dive"`
	Settings   Settings                         `json:"settings"`

	Path string `json:"-"`
}

var validate = validator.New()

// Load reads and parses the document at path, then applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.NewError(model.KindConfiguration, "load "+path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, model.NewError(model.KindConfiguration, "parse config", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := validate.Struct(&cfg); err != nil {
		return nil, model.NewError(model.KindConfiguration, "validate config", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Collectors == nil {
		c.Collectors = make(map[string]model.CollectorConfig)
	}
	for name, cc := range c.Collectors {
		if cc.Name == "" {
			cc.Name = name
			c.Collectors[name] = cc
		}
	}
	s := &c.Settings
	if s.MaxConcurrentCollectors == 0 {
		s.MaxConcurrentCollectors = 4
	}
	if s.DefaultTimeout == 0 {
		s.DefaultTimeout = Duration(300 * time.Second)
	}
	if s.Retry.MaxRetries == nil {
		n := model.DefaultRetryPolicy.MaxRetries
		s.Retry.MaxRetries = &n
	}
	if s.Retry.BaseDelay == 0 {
		s.Retry.BaseDelay = Duration(model.DefaultRetryPolicy.BaseDelay)
	}
	if s.Retry.MaxDelay == 0 {
		s.Retry.MaxDelay = Duration(model.DefaultRetryPolicy.MaxDelay)
	}
	if s.Retry.AttemptTimeout == 0 {
		s.Retry.AttemptTimeout = s.DefaultTimeout
	}
	if s.DatabasePath == "" {
		s.DatabasePath = "routepipe.db"
	}
	if s.LogLevel == "" {
		s.LogLevel = "INFO"
	}
}

func (c *Config) applyEnv() {
	s := &c.Settings
	s.DatabasePath = getEnv("ROUTEPIPE_DATABASE_PATH", s.DatabasePath)
	s.LogLevel = getEnv("ROUTEPIPE_LOG_LEVEL", s.LogLevel)
	s.LogFile = getEnv("ROUTEPIPE_LOG_FILE", s.LogFile)
	if v := os.Getenv("ROUTEPIPE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxConcurrentCollectors = n
		}
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// ValidationEnabled reports settings.enable_validation, default true.
func (c *Config) ValidationEnabled() bool {
	return c.Settings.EnableValidation == nil || *c.Settings.EnableValidation
}

// AutoSave reports settings.auto_save_to_database, default true.
func (c *Config) AutoSave() bool {
	return c.Settings.AutoSaveToDatabase == nil || *c.Settings.AutoSaveToDatabase
}

// RetryPolicy returns the retry policy for a collector, honoring its max_retries override.
func (c *Config) RetryPolicy(cc model.CollectorConfig) model.RetryPolicy {
	r := c.Settings.Retry
	p := model.RetryPolicy{
		MaxRetries:     *r.MaxRetries,
		BaseDelay:      r.BaseDelay.Std(),
		MaxDelay:       r.MaxDelay.Std(),
		Jitter:         r.Jitter.Std(),
		AttemptTimeout: r.AttemptTimeout.Std(),
	}
	if cc.MaxRetries != nil && *cc.MaxRetries >= 0 {
		p.MaxRetries = *cc.MaxRetries
	}
	return p
}

// CollectorNames returns configured collector names in sorted order.
func (c *Config) CollectorNames() []string {
	names := make([]string, 0, len(c.Collectors))
	for name := range c.Collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LogLevel parses settings.log_level.
func (c *Config) LogLevel() slog.Level {
	return ParseLogLevel(c.Settings.LogLevel)
}

// ParseLogLevel maps level names onto slog levels, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
