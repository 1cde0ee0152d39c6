// Package collector implements the source variants that feed a collection run.
package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"route-pipeline/internal/model"

	"github.com/go-playground/validator/v10"
)

// Collector is the capability set every source variant provides.
type Collector interface {
	Name() string
	Type() model.CollectorType
	// TestConnection returns nil when the source is reachable.
	TestConnection(ctx context.Context) error
	// Fetch reads every pending record from the source.
	Fetch(ctx context.Context) (*FetchResult, error)
	// Acknowledge marks origins as consumed. Called only after downstream commit.
	Acknowledge(ctx context.Context, origins []string) error
}

// FetchResult is the outcome of one successful fetch.
type FetchResult struct {
	Records  []model.RawRecord
	Origins  []string            // every origin read, including ones that yielded no records
	Warnings []model.ErrorDetail // problems that did not fail the fetch
}

func (r *FetchResult) warn(kind model.ErrorKind, origin, msg string) {
	r.Warnings = append(r.Warnings, model.ErrorDetail{
		Kind:        kind,
		Message:     msg,
		Origin:      origin,
		RecordIndex: -1,
		Severity:    model.SeverityWarning,
		Timestamp:   time.Now().UTC(),
	})
}

// Options carries the shared dependencies of collector variants.
type Options struct {
	Logger *slog.Logger
	Dialer MailDialer       // email only; defaults to the IMAP dialer
	Now    func() time.Time // defaults to time.Now
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Dialer == nil {
		o.Dialer = DialIMAP
	}
	return o
}

var validate = validator.New()

// New builds the collector variant named by cfg.Type.
func New(cfg model.CollectorConfig, opts Options) (Collector, error) {
	opts = opts.withDefaults()
	if cfg.Name == "" {
		return nil, model.Errorf(model.KindConfiguration, "collector", "name is required")
	}
	b := base{
		name:   cfg.Name,
		typ:    cfg.Type,
		logger: opts.Logger.With("collector", cfg.Name, "type", string(cfg.Type)),
		now:    opts.Now,
	}

	switch cfg.Type {
	case model.CollectorFile:
		return newFileCollector(b, cfg)
	case model.CollectorAPI:
		return newAPICollector(b, cfg)
	case model.CollectorEmail:
		return newEmailCollector(b, cfg, opts.Dialer)
	case model.CollectorManual:
		return newManualCollector(b, cfg)
	default:
		return nil, model.Errorf(model.KindConfiguration, "collector "+cfg.Name, "unknown collector type %q", cfg.Type)
	}
}

// decodeParams decodes and validates the variant parameters.
func decodeParams(cfg model.CollectorConfig, v interface{}) error {
	if err := cfg.DecodeParams(v); err != nil {
		return err
	}
	if err := validate.Struct(v); err != nil {
		return model.NewError(model.KindConfiguration, "collector "+cfg.Name, fmt.Errorf("invalid parameters: %w", err))
	}
	return nil
}

type base struct {
	name   string
	typ    model.CollectorType
	logger *slog.Logger
	now    func() time.Time
}

func (b base) Name() string              { return b.name }
func (b base) Type() model.CollectorType { return b.typ }

func (b base) op(what string) string { return b.name + " " + what }
