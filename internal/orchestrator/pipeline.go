package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"route-pipeline/internal/dedup"
	"route-pipeline/internal/model"
)

// pending is an accepted record waiting for persistence.
type pending struct {
	rec     model.CanonicalRecord
	fp      string
	claimed bool
	origin  string
	index   int
}

// collect runs one collector end to end: fetch with retry, then normalize,
// validate and dedup every record in source order, persist the accepted
// batch, and acknowledge the origins whose records all settled.
func (o *Orchestrator) collect(ctx context.Context, t task, filter *dedup.Filter, logger *slog.Logger) model.CollectionResult {
	name := t.cfg.Name
	logger = logger.With("collector", name, "type", string(t.cfg.Type))
	res := newResult(name, t.cfg.Type, o.now().UTC())
	defer func() {
		o.metrics.ObserveCollection(name, string(res.Status), res.Duration)
		o.metrics.AddRecords(name, "accepted", res.RecordsAccepted)
		o.metrics.AddRecords(name, "rejected", res.RecordsRejected)
		o.metrics.AddRecords(name, "duplicate", res.DuplicatesSkipped)
	}()

	logger.Info("collector started", "max_retries", t.policy.MaxRetries)
	fr, attempts, err := o.fetchWithRetry(ctx, t.collector, t.policy)
	res.Attempts = attempts.attempts
	res.Retries = len(attempts.delays)
	res.BackoffDelays = attempts.delays
	if err != nil {
		res.Errors = append(res.Errors, attempts.failures...)
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, errorDetail(model.KindTimeout, "run deadline exceeded: "+err.Error(), o.now()))
		}
		res.Status = model.StatusFailed
		finish(&res, o.now().UTC())
		logger.Error("collector failed", "attempts", res.Attempts, "error", err)
		return res
	}
	// earlier attempt failures did not cost the collector its result
	for _, f := range attempts.failures {
		f.Severity = model.SeverityWarning
		res.Warnings = append(res.Warnings, f)
	}
	res.Warnings = append(res.Warnings, fr.Warnings...)
	res.RecordsFetched = len(fr.Records)

	unsettled := make(map[string]bool)
	var batch []pending
	release := func() {
		for _, p := range batch {
			if p.claimed {
				filter.Release(p.fp)
			}
		}
	}

	for i, raw := range fr.Records {
		if ctx.Err() != nil {
			release()
			return o.timedOut(res, logger)
		}

		rec, findings, err := t.normalizer.Normalize(raw)
		if err != nil {
			o.reject(&res, raw.Origin, i, model.KindNormalization, opField(err), err.Error())
			continue
		}
		for _, f := range findings {
			res.Warnings = append(res.Warnings, findingDetail(model.KindNormalization, f, raw.Origin, i, o.now()))
		}

		verdict := t.rules.Validate(rec)
		for _, f := range verdict.Failures(model.SeverityWarning) {
			res.Warnings = append(res.Warnings, findingDetail(model.KindValidation, f, raw.Origin, i, o.now()))
		}
		if !verdict.Accepted() {
			o.reject(&res, raw.Origin, i, model.KindValidation, firstFailedField(verdict), verdict.Reason())
			continue
		}

		fp := dedup.Fingerprint(rec)
		claimed := filter.Claim(fp)
		if !claimed && t.cfg.SkipsDuplicates() {
			res.DuplicatesSkipped++
			continue
		}
		batch = append(batch, pending{rec: rec, fp: fp, claimed: claimed, origin: raw.Origin, index: i})
	}

	if ctx.Err() != nil {
		release()
		return o.timedOut(res, logger)
	}

	if o.cfg.AutoSave() && o.persister != nil && len(batch) > 0 {
		recs := make([]model.CanonicalRecord, len(batch))
		for i, p := range batch {
			recs[i] = p.rec
		}
		errs := o.persister.Persist(ctx, name, recs)
		for i, p := range batch {
			var perr error
			if i < len(errs) {
				perr = errs[i]
			}
			if perr == nil {
				res.RecordsAccepted++
				continue
			}
			if p.claimed {
				filter.Release(p.fp)
			}
			unsettled[p.origin] = true
			o.reject(&res, p.origin, p.index, model.KindPersistence, "", perr.Error())
		}
	} else {
		res.RecordsAccepted = len(batch)
	}

	if ctx.Err() != nil {
		// persisted records stay; the sources are read again next run
		res.Warnings = append(res.Warnings, warningDetail(model.KindTimeout, "acknowledge skipped: run deadline exceeded", o.now()))
		logger.Warn("acknowledge skipped after the run deadline", "origins", len(fr.Origins))
	} else if acked := settled(fr.Origins, unsettled); len(acked) > 0 {
		if err := t.collector.Acknowledge(ctx, acked); err != nil {
			res.Warnings = append(res.Warnings, warningDetail(model.KindOf(err), "acknowledge: "+err.Error(), o.now()))
			logger.Warn("acknowledge failed", "origins", len(acked), "error", err)
		}
	}

	finish(&res, o.now().UTC())
	logger.Info("collector finished",
		"status", res.Status,
		"fetched", res.RecordsFetched,
		"accepted", res.RecordsAccepted,
		"rejected", res.RecordsRejected,
		"duplicates", res.DuplicatesSkipped,
		"attempts", res.Attempts)
	return res
}

func (o *Orchestrator) timedOut(res model.CollectionResult, logger *slog.Logger) model.CollectionResult {
	at := o.now().UTC()
	failResult(&res, errorDetail(model.KindTimeout, "run deadline exceeded while processing records", at), at)
	logger.Error("collector timed out", "processed", res.RecordsRejected+res.DuplicatesSkipped)
	return res
}

func (o *Orchestrator) reject(res *model.CollectionResult, origin string, index int, kind model.ErrorKind, field, msg string) {
	res.RecordsRejected++
	res.Errors = append(res.Errors, model.ErrorDetail{
		Kind:        kind,
		Message:     msg,
		Origin:      origin,
		RecordIndex: index,
		Field:       field,
		Severity:    model.SeverityError,
		Timestamp:   o.now().UTC(),
	})
}

func warningDetail(kind model.ErrorKind, msg string, at time.Time) model.ErrorDetail {
	d := errorDetail(kind, msg, at)
	d.Severity = model.SeverityWarning
	return d
}

func findingDetail(kind model.ErrorKind, f model.Finding, origin string, index int, at time.Time) model.ErrorDetail {
	msg := f.Message
	if msg == "" {
		msg = fmt.Sprintf("%s check failed", f.RuleType)
	}
	return model.ErrorDetail{
		Kind:        kind,
		Message:     msg,
		Origin:      origin,
		RecordIndex: index,
		Field:       f.Field,
		Severity:    model.SeverityWarning,
		Timestamp:   at.UTC(),
	}
}

func firstFailedField(v model.Verdict) string {
	if fs := v.Failures(model.SeverityError); len(fs) > 0 {
		return fs[0].Field
	}
	return ""
}

// opField returns the field a normalization error names in its Op.
func opField(err error) string {
	var e *model.Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// settled keeps origins in source order, minus those with unsettled records.
func settled(origins []string, unsettled map[string]bool) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if !unsettled[o] {
			out = append(out, o)
		}
	}
	return out
}
