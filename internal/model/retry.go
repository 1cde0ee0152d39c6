package model

import "time"

// RetryPolicy defines how a failed fetch is retried
type RetryPolicy struct {
	MaxRetries     int           `json:"max_retries"`
	BaseDelay      time.Duration `json:"base_delay"`      // first backoff, doubled per retry
	MaxDelay       time.Duration `json:"max_delay"`       // 0 = uncapped
	Jitter         time.Duration `json:"jitter"`          // +/- per delay
	AttemptTimeout time.Duration `json:"attempt_timeout"` // 0 = bounded by the run only
}

// DefaultRetryPolicy matches the documented settings defaults.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxDelay:   30 * time.Second,
}
