package orchestrator

import (
	"sort"
	"sync"
	"time"

	"route-pipeline/internal/model"
)

// resultTracker collects sealed collector results for one run.
type resultTracker struct {
	mu      sync.Mutex
	results map[string]model.CollectionResult
	sealed  bool
}

func newResultTracker() *resultTracker {
	return &resultTracker{results: make(map[string]model.CollectionResult)}
}

// record stores res. Results arriving after seal, or twice for one collector, are dropped.
func (t *resultTracker) record(res model.CollectionResult) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return false
	}
	if _, ok := t.results[res.CollectorName]; ok {
		return false
	}
	t.results[res.CollectorName] = res
	return true
}

func (t *resultTracker) has(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.results[name]
	return ok
}

// seal stops accepting results and returns them ordered by collector name.
func (t *resultTracker) seal() []model.CollectionResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = true
	out := make([]model.CollectionResult, 0, len(t.results))
	for _, r := range t.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollectorName < out[j].CollectorName })
	return out
}

// newResult opens a result for a collector about to run.
func newResult(name string, typ model.CollectorType, started time.Time) model.CollectionResult {
	return model.CollectionResult{
		CollectorName: name,
		CollectorType: typ,
		Errors:        []model.ErrorDetail{},
		Warnings:      []model.ErrorDetail{},
		StartedAt:     started,
	}
}

// finish stamps the end time and settles the status from the counters.
// A result already marked failed or skipped keeps its status. A collector
// whose fetched records were all rejected failed; duplicates count as handled.
func finish(res *model.CollectionResult, at time.Time) {
	res.FinishedAt = at
	res.Duration = at.Sub(res.StartedAt)
	if res.Status != "" {
		return
	}
	switch {
	case res.RecordsRejected == 0:
		res.Status = model.StatusSuccess
	case res.RecordsAccepted == 0 && res.DuplicatesSkipped == 0:
		res.Status = model.StatusFailed
	default:
		res.Status = model.StatusPartial
	}
}

func failResult(res *model.CollectionResult, detail model.ErrorDetail, at time.Time) {
	res.Status = model.StatusFailed
	res.Errors = append(res.Errors, detail)
	finish(res, at)
}

func errorDetail(kind model.ErrorKind, msg string, at time.Time) model.ErrorDetail {
	return model.ErrorDetail{
		Kind:        kind,
		Message:     msg,
		RecordIndex: -1,
		Severity:    model.SeverityError,
		Retryable:   kind == model.KindSourceUnavailable || kind == model.KindRateLimited || kind == model.KindTimeout,
		Timestamp:   at.UTC(),
	}
}

// summarize aggregates results into run totals.
func summarize(results []model.CollectionResult, duration time.Duration) model.RunSummary {
	s := model.RunSummary{TotalCollectors: len(results)}
	for _, r := range results {
		switch r.Status {
		case model.StatusSuccess:
			s.SuccessfulCollectors++
		case model.StatusPartial:
			s.PartialCollectors++
		case model.StatusFailed:
			s.FailedCollectors++
		case model.StatusSkipped:
			s.SkippedCollectors++
		}
		s.RecordsFetched += r.RecordsFetched
		s.RecordsAccepted += r.RecordsAccepted
		s.RecordsRejected += r.RecordsRejected
		s.DuplicatesSkipped += r.DuplicatesSkipped
		s.ErrorCount += len(r.Errors)
		s.WarningCount += len(r.Warnings)
	}
	if secs := duration.Seconds(); secs > 0 {
		s.RecordsPerSecond = float64(s.RecordsFetched) / secs
	}
	return s
}
