package orchestrator

import (
	"context"
	"errors"
	"time"

	"route-pipeline/internal/collector"
	"route-pipeline/internal/model"

	"github.com/sethvargo/go-retry"
)

// newBackoff builds the delay sequence for a policy: base, 2*base, 4*base...
// capped at MaxDelay, spread by Jitter, stopping after MaxRetries retries.
func newBackoff(p model.RetryPolicy) retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	if p.Jitter > 0 {
		b = retry.WithJitter(p.Jitter, b)
	}
	return retry.WithMaxRetries(uint64(p.MaxRetries), b)
}

// attemptLog is what the retry loop reports back onto a CollectionResult.
type attemptLog struct {
	attempts int
	delays   []time.Duration
	failures []model.ErrorDetail
}

// fetchWithRetry calls c.Fetch until it succeeds, fails with a non-retryable
// error, exhausts the policy, or ctx ends. Each attempt runs under its own
// timeout; an expired attempt is retried while the run itself is still alive.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, c collector.Collector, p model.RetryPolicy) (*collector.FetchResult, attemptLog, error) {
	var log attemptLog
	inner := newBackoff(p)
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := inner.Next()
		if !stop {
			log.delays = append(log.delays, d)
		}
		return d, stop
	})

	var result *collector.FetchResult
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		log.attempts++
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		defer cancel()

		fr, err := c.Fetch(attemptCtx)
		if err == nil {
			if fr == nil {
				fr = &collector.FetchResult{}
			}
			result = fr
			o.metrics.IncAttempt(c.Name(), "ok")
			return nil
		}

		// The run deadline ends the loop; an attempt deadline alone does not.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && model.KindOf(err) != model.KindTimeout {
			err = model.NewError(model.KindTimeout, c.Name()+" fetch", err)
		}
		kind := model.KindOf(err)
		retryable := model.IsRetryable(err) || kind == model.KindTimeout
		log.failures = append(log.failures, model.ErrorDetail{
			Kind:        kind,
			Message:     err.Error(),
			RecordIndex: -1,
			Severity:    model.SeverityError,
			Retryable:   retryable,
			Attempt:     log.attempts,
			Timestamp:   o.now().UTC(),
		})
		o.metrics.IncAttempt(c.Name(), string(kind))
		o.logger.Debug("fetch attempt failed", "collector", c.Name(), "attempt", log.attempts, "kind", kind, "error", err)
		if retryable {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, log, err
	}
	return result, log, nil
}
