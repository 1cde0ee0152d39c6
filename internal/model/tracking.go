package model

import (
	"time"
)

// CollectionStatus is the outcome of one collector in one run
type CollectionStatus string

const (
	StatusSuccess CollectionStatus = "success"
	StatusPartial CollectionStatus = "partial"
	StatusFailed  CollectionStatus = "failed"
	StatusSkipped CollectionStatus = "skipped"
)

// ErrorDetail represents a detailed error with context
type ErrorDetail struct {
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message"`
	Origin      string    `json:"origin,omitempty"`
	RecordIndex int       `json:"record_index"` // -1 when not tied to a record
	Field       string    `json:"field,omitempty"`
	Severity    Severity  `json:"severity"`
	Retryable   bool      `json:"retryable"`
	Attempt     int       `json:"attempt,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// CollectionResult is the per-collector account of a run
type CollectionResult struct {
	CollectorName     string           `json:"collector_name"`
	CollectorType     CollectorType    `json:"collector_type"`
	Status            CollectionStatus `json:"status"`
	RecordsFetched    int              `json:"records_fetched"`
	RecordsAccepted   int              `json:"records_accepted"`
	RecordsRejected   int              `json:"records_rejected"`
	DuplicatesSkipped int              `json:"duplicates_skipped"`
	Attempts          int              `json:"attempts"`
	Retries           int              `json:"retries"`
	BackoffDelays     []time.Duration  `json:"backoff_delays,omitempty"`
	Errors            []ErrorDetail    `json:"errors"`
	Warnings          []ErrorDetail    `json:"warnings"`
	StartedAt         time.Time        `json:"started_at"`
	FinishedAt        time.Time        `json:"finished_at"`
	Duration          time.Duration    `json:"duration"`
}

// Succeeded reports whether the collector produced usable output.
func (r CollectionResult) Succeeded() bool {
	return r.Status == StatusSuccess || r.Status == StatusPartial
}

// LastError returns the message of the last recorded error, if any.
func (r CollectionResult) LastError() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[len(r.Errors)-1].Message
}

// RunSummary aggregates a run's results
type RunSummary struct {
	TotalCollectors      int     `json:"total_collectors"`
	SuccessfulCollectors int     `json:"successful_collectors"`
	PartialCollectors    int     `json:"partial_collectors"`
	FailedCollectors     int     `json:"failed_collectors"`
	SkippedCollectors    int     `json:"skipped_collectors"`
	RecordsFetched       int     `json:"records_fetched"`
	RecordsAccepted      int     `json:"records_accepted"`
	RecordsRejected      int     `json:"records_rejected"`
	DuplicatesSkipped    int     `json:"duplicates_skipped"`
	ErrorCount           int     `json:"error_count"`
	WarningCount         int     `json:"warning_count"`
	RecordsPerSecond     float64 `json:"records_per_second"`
}

// RunReport is the sealed outcome of one run
type RunReport struct {
	RunID        string             `json:"run_id"`
	State        RunState           `json:"state"`
	Status       CollectionStatus   `json:"status"` // success or failed
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
	Duration     time.Duration      `json:"duration"`
	Results      []CollectionResult `json:"results"`
	ConfigErrors []ErrorDetail      `json:"config_errors,omitempty"`
	Summary      RunSummary         `json:"summary"`
}

// Succeeded reports whether at least one collector was success or partial.
func (r *RunReport) Succeeded() bool {
	for _, res := range r.Results {
		if res.Succeeded() {
			return true
		}
	}
	return false
}

// Result returns the result for a collector by name.
func (r *RunReport) Result(name string) (CollectionResult, bool) {
	for _, res := range r.Results {
		if res.CollectorName == name {
			return res, true
		}
	}
	return CollectionResult{}, false
}
