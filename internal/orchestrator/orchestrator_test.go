package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"route-pipeline/internal/collector"
	"route-pipeline/internal/config"
	"route-pipeline/internal/dedup"
	"route-pipeline/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCollector struct {
	name  string
	fetch func(ctx context.Context, attempt int) (*collector.FetchResult, error)

	mu       sync.Mutex
	attempts int
	acked    []string
}

func (f *fakeCollector) Name() string                         { return f.name }
func (f *fakeCollector) Type() model.CollectorType            { return model.CollectorManual }
func (f *fakeCollector) TestConnection(context.Context) error { return nil }

func (f *fakeCollector) Fetch(ctx context.Context) (*collector.FetchResult, error) {
	f.mu.Lock()
	f.attempts++
	n := f.attempts
	f.mu.Unlock()
	return f.fetch(ctx, n)
}

func (f *fakeCollector) Acknowledge(_ context.Context, origins []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, origins...)
	return nil
}

func (f *fakeCollector) ackedOrigins() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

func records(origin string, fields ...map[string]interface{}) func(context.Context, int) (*collector.FetchResult, error) {
	return func(context.Context, int) (*collector.FetchResult, error) {
		fr := &collector.FetchResult{Origins: []string{origin}}
		for _, f := range fields {
			fr.Records = append(fr.Records, model.RawRecord{Origin: origin, Fields: f})
		}
		return fr, nil
	}
}

func route(id string, miles float64) map[string]interface{} {
	return map[string]interface{}{
		"route_id":    id,
		"route_date":  "2024-01-15",
		"driver_name": "Ann",
		"total_miles": miles,
	}
}

type fakePersister struct {
	mu   sync.Mutex
	fail bool
	got  []model.CanonicalRecord
}

func (p *fakePersister) Persist(_ context.Context, _ string, recs []model.CanonicalRecord) []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	errs := make([]error, len(recs))
	for i, rec := range recs {
		if p.fail {
			errs[i] = model.Errorf(model.KindPersistence, "routes", "disk full")
			continue
		}
		p.got = append(p.got, rec)
	}
	return errs
}

func newTestOrchestrator(t *testing.T, doc string, fakes map[string]*fakeCollector, opts ...Option) *Orchestrator {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	factory := func(cc model.CollectorConfig, o collector.Options) (collector.Collector, error) {
		if f, ok := fakes[cc.Name]; ok {
			return f, nil
		}
		return collector.New(cc, o)
	}
	opts = append([]Option{WithCollectorFactory(factory), WithShutdownGrace(100 * time.Millisecond)}, opts...)
	o, err := New(cfg, opts...)
	require.NoError(t, err)
	return o
}

func TestRunNeverExceedsConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	slow := func(context.Context, int) (*collector.FetchResult, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return &collector.FetchResult{}, nil
	}
	fakes := map[string]*fakeCollector{
		"a": {name: "a", fetch: slow},
		"b": {name: "b", fetch: slow},
		"c": {name: "c", fetch: slow},
	}
	o := newTestOrchestrator(t, `{
		"collectors": {"a": {"type": "manual"}, "b": {"type": "manual"}, "c": {"type": "manual"}},
		"settings": {"max_concurrent_collectors": 2}
	}`, fakes)

	report, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, 3, report.Summary.SuccessfulCollectors)
	assert.Equal(t, model.StateDone, o.State())
}

func TestRunRetriesRetryableFailures(t *testing.T) {
	fakes := map[string]*fakeCollector{
		"flaky": {name: "flaky", fetch: func(context.Context, int) (*collector.FetchResult, error) {
			return nil, model.Errorf(model.KindSourceUnavailable, "flaky", "connection refused")
		}},
	}
	o := newTestOrchestrator(t, `{
		"collectors": {"flaky": {"type": "manual"}},
		"settings": {"retry": {"max_retries": 3, "base_delay": "1ms", "jitter": 0}}
	}`, fakes)

	report, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	res, ok := report.Result("flaky")
	require.True(t, ok)
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 3, res.Retries)
	require.Len(t, res.BackoffDelays, 3)
	for i := 1; i < len(res.BackoffDelays); i++ {
		assert.Greater(t, res.BackoffDelays[i], res.BackoffDelays[i-1])
	}
	assert.Equal(t, model.KindSourceUnavailable, res.Errors[len(res.Errors)-1].Kind)
	assert.Equal(t, model.StatusFailed, report.Status)
}

func TestRunRecoversAfterTransientFailure(t *testing.T) {
	fakes := map[string]*fakeCollector{
		"api": {name: "api", fetch: func(ctx context.Context, attempt int) (*collector.FetchResult, error) {
			if attempt == 1 {
				return nil, model.Errorf(model.KindRateLimited, "api", "429")
			}
			return records("endpoint:routes", route("R1", 10))(ctx, attempt)
		}},
	}
	o := newTestOrchestrator(t, `{
		"collectors": {"api": {"type": "manual"}},
		"settings": {"retry": {"max_retries": 2, "base_delay": "1ms"}}
	}`, fakes)

	report, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	res, _ := report.Result("api")
	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, res.RecordsAccepted)
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, model.KindRateLimited, res.Warnings[0].Kind)
}

func TestRunIsolatesNonRetryableFailure(t *testing.T) {
	fakes := map[string]*fakeCollector{
		"auth": {name: "auth", fetch: func(context.Context, int) (*collector.FetchResult, error) {
			return nil, model.Errorf(model.KindAuth, "auth", "401")
		}},
		"good": {name: "good", fetch: records("file.csv", route("R1", 10))},
	}
	o := newTestOrchestrator(t, `{
		"collectors": {"auth": {"type": "manual"}, "good": {"type": "manual"}},
		"settings": {"retry": {"max_retries": 3, "base_delay": "1ms"}}
	}`, fakes)

	report, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	auth, _ := report.Result("auth")
	assert.Equal(t, model.StatusFailed, auth.Status)
	assert.Equal(t, 1, auth.Attempts)
	assert.Zero(t, auth.Retries)

	good, _ := report.Result("good")
	assert.Equal(t, model.StatusSuccess, good.Status)
	assert.Equal(t, []string{"file.csv"}, fakes["good"].ackedOrigins())
	assert.Equal(t, model.StatusSuccess, report.Status)
	assert.Equal(t, []string{"auth", "good"}, []string{report.Results[0].CollectorName, report.Results[1].CollectorName})
}

func TestRunSkipsDuplicatesAcrossRuns(t *testing.T) {
	fakes := map[string]*fakeCollector{
		"files": {name: "files", fetch: records("routes.csv", route("R1", 10))},
	}
	store := dedup.NewMemoryStore()
	o := newTestOrchestrator(t, `{"collectors": {"files": {"type": "manual"}}}`, fakes, WithFingerprintStore(store))

	first, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	res, _ := first.Result("files")
	assert.Equal(t, 1, res.RecordsAccepted)

	second, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	res, _ = second.Result("files")
	assert.Equal(t, 1, res.DuplicatesSkipped)
	assert.Zero(t, res.RecordsAccepted)
	assert.Equal(t, model.StatusSuccess, res.Status)
}

func TestRunPassesDuplicatesWhenNotSkipping(t *testing.T) {
	fakes := map[string]*fakeCollector{
		"files": {name: "files", fetch: records("routes.csv", route("R1", 10), route("R1", 12))},
	}
	p := &fakePersister{}
	o := newTestOrchestrator(t, `{"collectors": {"files": {"type": "manual", "skip_duplicates": false}}}`, fakes, WithPersister(p))

	report, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	res, _ := report.Result("files")
	assert.Zero(t, res.DuplicatesSkipped)
	assert.Equal(t, 2, res.RecordsAccepted)
	assert.Len(t, p.got, 2)
}

func TestRunPersistsOnlyAcceptedRecords(t *testing.T) {
	missingDriver := route("R2", 10)
	delete(missingDriver, "driver_name")
	fakes := map[string]*fakeCollector{
		"files": {name: "files", fetch: records("routes.csv", route("R1", -5), missingDriver)},
	}
	p := &fakePersister{}
	o := newTestOrchestrator(t, `{
		"collectors": {"files": {"type": "manual", "validator": "strict"}},
		"validators": {"strict": {"rules": [
			{"field_name": "driver_name", "rule_type": "required", "severity": "error", "message": "driver missing"},
			{"field_name": "total_miles", "rule_type": "positive", "severity": "warning"}
		]}}
	}`, fakes, WithPersister(p))

	report, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	require.Len(t, p.got, 1)
	assert.Equal(t, "R1", p.got[0].String(model.FieldRouteID))

	res, _ := report.Result("files")
	assert.Equal(t, model.StatusPartial, res.Status)
	assert.Equal(t, 1, res.RecordsAccepted)
	assert.Equal(t, 1, res.RecordsRejected)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, model.KindValidation, res.Errors[0].Kind)
	assert.Equal(t, 1, res.Errors[0].RecordIndex)
	assert.Contains(t, res.Errors[0].Message, "driver missing")
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, model.FieldTotalMiles, res.Warnings[0].Field)
	assert.Equal(t, model.StatusSuccess, report.Status)
}

func TestRunRejectsRecordsWithoutRouteID(t *testing.T) {
	fakes := map[string]*fakeCollector{
		"files": {name: "files", fetch: records("routes.csv", map[string]interface{}{"route_date": "2024-01-15"})},
	}
	o := newTestOrchestrator(t, `{"collectors": {"files": {"type": "manual"}}}`, fakes)

	report, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	res, _ := report.Result("files")
	assert.Equal(t, model.StatusFailed, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, model.KindNormalization, res.Errors[0].Kind)
	assert.Equal(t, model.FieldRouteID, res.Errors[0].Field)
}

func TestRunFailsCollectorWhenEveryRecordIsRejected(t *testing.T) {
	badDate := func(id string) map[string]interface{} {
		r := route(id, 10)
		r["route_date"] = "not a date"
		return r
	}
	fakes := map[string]*fakeCollector{
		"files": {name: "files", fetch: records("routes.csv", badDate("R1"), badDate("R2"))},
	}
	p := &fakePersister{}
	o := newTestOrchestrator(t, `{"collectors": {"files": {"type": "manual"}}}`, fakes, WithPersister(p))

	report, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	res, _ := report.Result("files")
	assert.Equal(t, 0, res.RecordsAccepted)
	assert.Equal(t, 2, res.RecordsRejected)
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, model.StatusFailed, report.Status)
	assert.False(t, report.Succeeded())
	assert.Empty(t, p.got)
}

func TestRunKeepsPartialWhenOnlyDuplicatesSurvive(t *testing.T) {
	store := dedup.NewMemoryStore()
	first := map[string]*fakeCollector{
		"files": {name: "files", fetch: records("a.csv", route("R1", 10))},
	}
	o := newTestOrchestrator(t, `{"collectors": {"files": {"type": "manual"}}}`, first, WithFingerprintStore(store))
	_, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	second := map[string]*fakeCollector{
		"files": {name: "files", fetch: records("b.csv", route("R1", 10), map[string]interface{}{"route_date": "2024-01-15"})},
	}
	o = newTestOrchestrator(t, `{"collectors": {"files": {"type": "manual"}}}`, second, WithFingerprintStore(store))
	report, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	res, _ := report.Result("files")
	assert.Equal(t, 1, res.DuplicatesSkipped)
	assert.Equal(t, 1, res.RecordsRejected)
	assert.Equal(t, model.StatusPartial, res.Status)
}

type slowPersister struct{}

// Persist succeeds only once the run deadline has passed.
func (slowPersister) Persist(ctx context.Context, _ string, recs []model.CanonicalRecord) []error {
	<-ctx.Done()
	return make([]error, len(recs))
}

func TestRunSkipsAcknowledgeAfterDeadline(t *testing.T) {
	fakes := map[string]*fakeCollector{
		"files": {name: "files", fetch: records("routes.csv", route("R1", 10))},
	}
	o := newTestOrchestrator(t, `{
		"collectors": {"files": {"type": "manual"}},
		"settings": {"default_timeout": "50ms"}
	}`, fakes, WithPersister(slowPersister{}), WithShutdownGrace(time.Second))

	report, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, fakes["files"].ackedOrigins())

	res, _ := report.Result("files")
	require.NotEmpty(t, res.Warnings)
	last := res.Warnings[len(res.Warnings)-1]
	assert.Equal(t, model.KindTimeout, last.Kind)
	assert.Contains(t, last.Message, "acknowledge skipped")
}

func TestRunDoesNotAcknowledgeUnpersistedOrigins(t *testing.T) {
	fakes := map[string]*fakeCollector{
		"files": {name: "files", fetch: records("routes.csv", route("R1", 10))},
	}
	p := &fakePersister{fail: true}
	store := dedup.NewMemoryStore()
	o := newTestOrchestrator(t, `{"collectors": {"files": {"type": "manual"}}}`, fakes,
		WithPersister(p), WithFingerprintStore(store))

	report, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	res, _ := report.Result("files")
	assert.Equal(t, 1, res.RecordsRejected)
	assert.Equal(t, model.KindPersistence, res.Errors[0].Kind)
	assert.Empty(t, fakes["files"].ackedOrigins())

	fps, err := store.LoadFingerprints(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fps)
}

func TestRunWithoutAutoSaveSkipsPersister(t *testing.T) {
	fakes := map[string]*fakeCollector{
		"files": {name: "files", fetch: records("routes.csv", route("R1", 10))},
	}
	p := &fakePersister{}
	o := newTestOrchestrator(t, `{
		"collectors": {"files": {"type": "manual"}},
		"settings": {"auto_save_to_database": false}
	}`, fakes, WithPersister(p))

	report, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	res, _ := report.Result("files")
	assert.Equal(t, 1, res.RecordsAccepted)
	assert.Empty(t, p.got)
}

func TestRunTimeoutFailsUnfinishedCollectors(t *testing.T) {
	fakes := map[string]*fakeCollector{
		"hung": {name: "hung", fetch: func(ctx context.Context, _ int) (*collector.FetchResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
		"fast": {name: "fast", fetch: records("routes.csv", route("R1", 10))},
	}
	o := newTestOrchestrator(t, `{
		"collectors": {"hung": {"type": "manual"}, "fast": {"type": "manual"}},
		"settings": {"default_timeout": "50ms"}
	}`, fakes)

	report, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	hung, _ := report.Result("hung")
	assert.Equal(t, model.StatusFailed, hung.Status)
	assert.Equal(t, model.KindTimeout, hung.Errors[len(hung.Errors)-1].Kind)

	fast, _ := report.Result("fast")
	assert.Equal(t, model.StatusSuccess, fast.Status)
	assert.Equal(t, model.StatusSuccess, report.Status)
}

func TestRunReportsConfigErrorsAndRunsTheRest(t *testing.T) {
	fakes := map[string]*fakeCollector{
		"good": {name: "good", fetch: records("routes.csv", route("R1", 10))},
	}
	o := newTestOrchestrator(t, `{
		"collectors": {
			"bad": {"type": "ftp"},
			"novalidator": {"type": "manual", "validator": "missing"},
			"good": {"type": "manual"},
			"off": {"type": "manual", "enabled": false}
		}
	}`, map[string]*fakeCollector{
		"good":        fakes["good"],
		"novalidator": {name: "novalidator", fetch: records("x")},
	})

	report, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Len(t, report.ConfigErrors, 2)

	bad, _ := report.Result("bad")
	assert.Equal(t, model.StatusFailed, bad.Status)
	assert.Equal(t, model.KindConfiguration, bad.Errors[0].Kind)

	off, _ := report.Result("off")
	assert.Equal(t, model.StatusSkipped, off.Status)

	good, _ := report.Result("good")
	assert.Equal(t, model.StatusSuccess, good.Status)
	assert.Equal(t, 4, report.Summary.TotalCollectors)
	assert.Equal(t, 1, report.Summary.SkippedCollectors)
}

func TestRunFailsWithoutRunnableCollectors(t *testing.T) {
	o := newTestOrchestrator(t, `{
		"collectors": {"off": {"type": "manual", "enabled": false}, "bad": {"type": "ftp"}}
	}`, nil)

	report, err := o.Run(context.Background(), RunOptions{})
	require.ErrorIs(t, err, ErrNoRunnableCollectors)
	require.NotNil(t, report)
	assert.Equal(t, model.StateFailed, report.State)
	assert.Equal(t, model.StatusFailed, report.Status)
	assert.Equal(t, model.StateFailed, o.State())
}

func TestRunLimitsToRequestedSources(t *testing.T) {
	fakes := map[string]*fakeCollector{
		"a": {name: "a", fetch: records("a.csv", route("R1", 10))},
		"b": {name: "b", fetch: records("b.csv", route("R2", 10))},
	}
	o := newTestOrchestrator(t, `{"collectors": {"a": {"type": "manual"}, "b": {"type": "manual"}}}`, fakes)

	report, err := o.Run(context.Background(), RunOptions{RunID: "run-1", Sources: []string{"b", "nope"}})
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	_, ok := report.Result("a")
	assert.False(t, ok)
	b, _ := report.Result("b")
	assert.Equal(t, model.StatusSuccess, b.Status)
	require.Len(t, report.ConfigErrors, 1)
	assert.Equal(t, "nope", report.ConfigErrors[0].Origin)
}

func TestRunDispatchesRepeatedSourceOnce(t *testing.T) {
	fakes := map[string]*fakeCollector{
		"a": {name: "a", fetch: records("a.csv", route("R1", 10))},
	}
	o := newTestOrchestrator(t, `{"collectors": {"a": {"type": "manual"}}}`, fakes)

	report, err := o.Run(context.Background(), RunOptions{Sources: []string{"a", "a"}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.TotalCollectors)
	fakes["a"].mu.Lock()
	assert.Equal(t, 1, fakes["a"].attempts)
	fakes["a"].mu.Unlock()
	assert.Equal(t, []string{"a.csv"}, fakes["a"].ackedOrigins())
}

type memoryRuns struct {
	mu      sync.Mutex
	reports []*model.RunReport
}

func (m *memoryRuns) SaveRun(_ context.Context, r *model.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func TestRunSavesReport(t *testing.T) {
	fakes := map[string]*fakeCollector{"a": {name: "a", fetch: records("a.csv", route("R1", 10))}}
	runs := &memoryRuns{}
	o := newTestOrchestrator(t, `{"collectors": {"a": {"type": "manual"}}}`, fakes, WithRunStore(runs))

	report, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, runs.reports, 1)
	assert.Equal(t, report.RunID, runs.reports[0].RunID)
	assert.Equal(t, model.StateDone, runs.reports[0].State)
	assert.NotEmpty(t, report.RunID)
}

func TestNewFailsOnUnknownRuleType(t *testing.T) {
	cfg, err := config.Parse([]byte(`{
		"collectors": {},
		"validators": {"v": {"rules": [{"field_name": "route_id", "rule_type": "telepathy"}]}}
	}`))
	require.NoError(t, err)
	_, err = New(cfg)
	assert.True(t, errors.Is(err, model.ErrUnknownRuleType))
}

func TestNewRegistersCustomPredicates(t *testing.T) {
	cfg, err := config.Parse([]byte(`{
		"collectors": {},
		"validators": {"v": {"rules": [{"field_name": "total_miles", "rule_type": "custom", "parameters": {"name": "under_thousand"}}]}},
		"settings": {"custom_predicates": {"under_thousand": "value < 1000.0"}}
	}`))
	require.NoError(t, err)
	_, err = New(cfg)
	assert.NoError(t, err)
}

func TestListCollectorsAndTestConnections(t *testing.T) {
	fakes := map[string]*fakeCollector{"a": {name: "a"}}
	o := newTestOrchestrator(t, `{
		"collectors": {"a": {"type": "manual"}, "off": {"type": "manual", "enabled": false}}
	}`, fakes)

	infos := o.ListCollectors()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, "route_data", infos[0].Validator)
	assert.False(t, infos[1].Enabled)

	results := o.TestConnections(context.Background())
	require.Len(t, results, 2)
	assert.True(t, results[0].OK)
	assert.True(t, results[1].Skipped)
}
