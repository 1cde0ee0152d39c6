// Package orchestrator runs every configured collector once per run and
// assembles the run report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"route-pipeline/internal/collector"
	"route-pipeline/internal/config"
	"route-pipeline/internal/dedup"
	"route-pipeline/internal/metrics"
	"route-pipeline/internal/model"
	"route-pipeline/internal/normalize"
	"route-pipeline/internal/validation"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoRunnableCollectors fails a run in which nothing could be dispatched.
	ErrNoRunnableCollectors = errors.New("no runnable collectors")
	// ErrRunInProgress is returned when Run is called while another run is active.
	ErrRunInProgress = errors.New("a collection run is already in progress")
)

// Persister stores accepted records. The returned slice holds one error slot per record.
type Persister interface {
	Persist(ctx context.Context, collector string, recs []model.CanonicalRecord) []error
}

// RunStore keeps sealed run reports.
type RunStore interface {
	SaveRun(ctx context.Context, report *model.RunReport) error
}

// CollectorFactory builds a collector from its configuration.
type CollectorFactory func(cfg model.CollectorConfig, opts collector.Options) (collector.Collector, error)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithPersister(p Persister) Option {
	return func(o *Orchestrator) { o.persister = p }
}

func WithFingerprintStore(s dedup.FingerprintStore) Option {
	return func(o *Orchestrator) { o.fingerprints = s }
}

func WithRunStore(s RunStore) Option {
	return func(o *Orchestrator) { o.runs = s }
}

func WithMetrics(m *metrics.Handler) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithCollectorFactory replaces collector.New, mainly for tests.
func WithCollectorFactory(f CollectorFactory) Option {
	return func(o *Orchestrator) { o.factory = f }
}

// WithCollectorOptions sets the options handed to every collector.
func WithCollectorOptions(opts collector.Options) Option {
	return func(o *Orchestrator) { o.collectorOpts = opts }
}

// WithEngine supplies a validation engine with custom predicates already registered.
func WithEngine(e *validation.Engine) Option {
	return func(o *Orchestrator) { o.engine = e }
}

// WithShutdownGrace bounds how long a run waits for collectors after its deadline.
func WithShutdownGrace(d time.Duration) Option {
	return func(o *Orchestrator) { o.grace = d }
}

// Orchestrator owns the run state machine.
type Orchestrator struct {
	cfg           *config.Config
	logger        *slog.Logger
	engine        *validation.Engine
	ruleSets      map[string]*validation.RuleSet
	persister     Persister
	fingerprints  dedup.FingerprintStore
	runs          RunStore
	metrics       *metrics.Handler
	factory       CollectorFactory
	collectorOpts collector.Options
	grace         time.Duration
	now           func() time.Time

	mu    sync.Mutex
	state model.RunState
}

// New compiles every configured rule set and registers custom predicates.
// Unknown rule types and broken expressions fail here, before any run.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:     cfg,
		factory: collector.New,
		grace:   2 * time.Second,
		now:     time.Now,
		state:   model.StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	if o.engine == nil {
		o.engine = validation.NewEngine()
	}
	if o.collectorOpts.Logger == nil {
		o.collectorOpts.Logger = o.logger
	}

	if err := o.engine.RegisterExpressions(cfg.Settings.CustomPredicates); err != nil {
		return nil, err
	}

	o.ruleSets = make(map[string]*validation.RuleSet, len(cfg.Validators)+1)
	routeRules, err := o.engine.Compile(validation.RouteDataRules())
	if err != nil {
		return nil, fmt.Errorf("compile %s rules: %w", validation.RouteDataRuleSet, err)
	}
	o.ruleSets[validation.RouteDataRuleSet] = routeRules
	for name, vc := range cfg.Validators {
		rs, err := o.engine.Compile(vc.Rules)
		if err != nil {
			return nil, fmt.Errorf("compile validator %s: %w", name, err)
		}
		o.ruleSets[name] = rs
	}
	return o, nil
}

// State returns the current run state.
func (o *Orchestrator) State() model.RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Metrics returns the Prometheus handler the orchestrator records into.
func (o *Orchestrator) Metrics() *metrics.Handler { return o.metrics }

func (o *Orchestrator) transition(next model.RunState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.CanTransition(next) {
		o.logger.Warn("unexpected run state transition", "from", o.state, "to", next)
	}
	o.state = next
}

// begin moves a finished or fresh orchestrator into Dispatching.
func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Terminal() {
		o.state = model.StateIdle
	}
	if o.state != model.StateIdle {
		return ErrRunInProgress
	}
	o.state = model.StateDispatching
	return nil
}

// RunOptions narrows a run.
type RunOptions struct {
	RunID   string   // generated when empty
	Sources []string // collector names; empty means all configured collectors
}

// task is one dispatchable collector with everything resolved.
type task struct {
	cfg        model.CollectorConfig
	collector  collector.Collector
	rules      *validation.RuleSet
	normalizer *normalize.Normalizer
	policy     model.RetryPolicy
}

// Run executes one collection run and returns its sealed report. The report
// is returned even when the run failed; the error is non-nil only when no
// collector could be dispatched or another run is active.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*model.RunReport, error) {
	if err := o.begin(); err != nil {
		return nil, err
	}

	report := &model.RunReport{
		RunID:     opts.RunID,
		State:     model.StateDispatching,
		StartedAt: o.now().UTC(),
	}
	if report.RunID == "" {
		report.RunID = uuid.New().String()
	}
	logger := o.logger.With("run_id", report.RunID)
	logger.Info("collection run started")

	tracker := newResultTracker()
	tasks := o.dispatch(report, tracker, opts.Sources)
	if len(tasks) == 0 {
		o.transition(model.StateFailed)
		o.seal(ctx, report, tracker, model.StateFailed)
		logger.Error("collection run failed", "error", ErrNoRunnableCollectors, "config_errors", len(report.ConfigErrors))
		return report, ErrNoRunnableCollectors
	}

	o.transition(model.StateCollecting)
	report.State = model.StateCollecting

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.Settings.DefaultTimeout.Std())
	defer cancel()

	filter := dedup.NewFilter(o.fingerprints)
	if err := filter.Load(runCtx); err != nil {
		logger.Warn("starting with an empty fingerprint set", "error", err)
	}

	var g errgroup.Group
	g.SetLimit(o.cfg.Settings.MaxConcurrentCollectors)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, t := range tasks {
			g.Go(func() error {
				o.metrics.CollectorsInFlight.Inc()
				defer o.metrics.CollectorsInFlight.Dec()
				res := o.collect(runCtx, t, filter, logger)
				tracker.record(res)
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		select {
		case <-done:
		case <-time.After(o.grace):
			logger.Warn("collectors still running after the run deadline")
		}
	}

	o.transition(model.StateAggregating)
	report.State = model.StateAggregating
	at := o.now()
	for _, t := range tasks {
		if tracker.has(t.cfg.Name) {
			continue
		}
		res := newResult(t.cfg.Name, t.cfg.Type, report.StartedAt)
		failResult(&res, errorDetail(model.KindTimeout, "run deadline exceeded before the collector finished", at), at)
		tracker.record(res)
	}

	if err := filter.Flush(context.WithoutCancel(ctx)); err != nil {
		logger.Error("fingerprints not saved", "error", err)
	}

	o.transition(model.StateDone)
	o.seal(ctx, report, tracker, model.StateDone)
	logger.Info("collection run finished",
		"status", report.Status,
		"successful", report.Summary.SuccessfulCollectors,
		"partial", report.Summary.PartialCollectors,
		"failed", report.Summary.FailedCollectors,
		"accepted", report.Summary.RecordsAccepted,
		"rejected", report.Summary.RecordsRejected,
		"duration", report.Duration)
	return report, nil
}

// dispatch resolves the collectors of a run into tasks. Disabled collectors
// get a skipped result; configuration problems get a failed result and a
// config error, and never stop the other collectors.
func (o *Orchestrator) dispatch(report *model.RunReport, tracker *resultTracker, sources []string) []task {
	names := o.cfg.CollectorNames()
	if len(sources) > 0 {
		names = append([]string(nil), sources...)
		sort.Strings(names)
		names = slices.Compact(names)
	}

	var tasks []task
	at := o.now()
	for _, name := range names {
		cc, ok := o.cfg.Collectors[name]
		if !ok {
			o.configError(report, tracker, name, "", model.Errorf(model.KindConfiguration, "collector "+name, "not configured"), at)
			continue
		}
		if !cc.IsEnabled() {
			res := newResult(name, cc.Type, at)
			res.Status = model.StatusSkipped
			finish(&res, at)
			tracker.record(res)
			continue
		}
		c, err := o.factory(cc, o.collectorOpts)
		if err != nil {
			o.configError(report, tracker, name, cc.Type, err, at)
			continue
		}
		rules, err := o.rulesFor(cc)
		if err != nil {
			o.configError(report, tracker, name, cc.Type, err, at)
			continue
		}
		tasks = append(tasks, task{
			cfg:        cc,
			collector:  c,
			rules:      rules,
			normalizer: normalize.New(cc.ColumnMapping, cc.RequiredColumns),
			policy:     o.cfg.RetryPolicy(cc),
		})
	}
	return tasks
}

func (o *Orchestrator) configError(report *model.RunReport, tracker *resultTracker, name string, typ model.CollectorType, err error, at time.Time) {
	detail := errorDetail(model.KindOf(err), err.Error(), at)
	detail.Origin = name
	report.ConfigErrors = append(report.ConfigErrors, detail)
	res := newResult(name, typ, at)
	failResult(&res, detail, at)
	tracker.record(res)
	o.logger.Error("collector not runnable", "collector", name, "error", err)
}

func (o *Orchestrator) rulesFor(cc model.CollectorConfig) (*validation.RuleSet, error) {
	if !o.cfg.ValidationEnabled() {
		return validation.Passthrough, nil
	}
	name := cc.Validator
	if name == "" {
		name = validation.RouteDataRuleSet
	}
	rs, ok := o.ruleSets[name]
	if !ok {
		return nil, model.Errorf(model.KindConfiguration, "collector "+cc.Name, "unknown validator %q", name)
	}
	return rs, nil
}

// seal closes the report, records run metrics and saves it when a run store is set.
func (o *Orchestrator) seal(ctx context.Context, report *model.RunReport, tracker *resultTracker, state model.RunState) {
	report.Results = tracker.seal()
	report.State = state
	report.FinishedAt = o.now().UTC()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	report.Summary = summarize(report.Results, report.Duration)
	report.Status = model.StatusFailed
	if report.Succeeded() {
		report.Status = model.StatusSuccess
	}
	o.metrics.IncRun(string(report.Status), report.FinishedAt)

	if o.runs == nil {
		return
	}
	if err := o.runs.SaveRun(context.WithoutCancel(ctx), report); err != nil {
		o.logger.Error("run report not saved", "run_id", report.RunID, "error", err)
	}
}

// CollectorInfo describes one configured collector.
type CollectorInfo struct {
	Name           string              `json:"name"`
	Type           model.CollectorType `json:"type"`
	Enabled        bool                `json:"enabled"`
	Validator      string              `json:"validator"`
	SkipDuplicates bool                `json:"skip_duplicates"`
	MaxRetries     int                 `json:"max_retries"`
}

// ListCollectors returns the configured collectors sorted by name.
func (o *Orchestrator) ListCollectors() []CollectorInfo {
	out := make([]CollectorInfo, 0, len(o.cfg.Collectors))
	for _, name := range o.cfg.CollectorNames() {
		cc := o.cfg.Collectors[name]
		v := cc.Validator
		if v == "" {
			v = validation.RouteDataRuleSet
		}
		out = append(out, CollectorInfo{
			Name:           name,
			Type:           cc.Type,
			Enabled:        cc.IsEnabled(),
			Validator:      v,
			SkipDuplicates: cc.SkipsDuplicates(),
			MaxRetries:     o.cfg.RetryPolicy(cc).MaxRetries,
		})
	}
	return out
}

// ConnectionResult is the outcome of one connection test.
type ConnectionResult struct {
	Name     string              `json:"name"`
	Type     model.CollectorType `json:"type"`
	OK       bool                `json:"ok"`
	Skipped  bool                `json:"skipped"`
	Error    string              `json:"error,omitempty"`
	Duration time.Duration       `json:"duration"`
}

// TestConnections checks every enabled collector, bounded by max_concurrent_collectors.
func (o *Orchestrator) TestConnections(ctx context.Context) []ConnectionResult {
	names := o.cfg.CollectorNames()
	out := make([]ConnectionResult, len(names))

	var g errgroup.Group
	g.SetLimit(o.cfg.Settings.MaxConcurrentCollectors)
	for i, name := range names {
		i, cc := i, o.cfg.Collectors[name]
		out[i] = ConnectionResult{Name: name, Type: cc.Type}
		if !cc.IsEnabled() {
			out[i].Skipped = true
			continue
		}
		g.Go(func() error {
			start := o.now()
			err := o.testOne(ctx, cc)
			out[i].Duration = o.now().Sub(start)
			if err != nil {
				out[i].Error = err.Error()
				return nil
			}
			out[i].OK = true
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (o *Orchestrator) testOne(ctx context.Context, cc model.CollectorConfig) error {
	c, err := o.factory(cc, o.collectorOpts)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Settings.Retry.AttemptTimeout.Std())
	defer cancel()
	return c.TestConnection(ctx)
}
