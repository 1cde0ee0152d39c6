package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures across collectors, records and runs
type ErrorKind string

const (
	KindConfiguration     ErrorKind = "configuration_error"
	KindSourceUnavailable ErrorKind = "source_unavailable"
	KindRateLimited       ErrorKind = "rate_limited"
	KindAuth              ErrorKind = "auth_error"
	KindMalformedInput    ErrorKind = "malformed_input"
	KindNormalization     ErrorKind = "normalization_error"
	KindValidation        ErrorKind = "validation_error"
	KindPersistence       ErrorKind = "persistence_error"
	KindTimeout           ErrorKind = "timeout"
	KindUnknownRuleType   ErrorKind = "unknown_rule_type"
	KindInternal          ErrorKind = "internal_error"
)

// Sentinels for errors.Is checks.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrRateLimited       = errors.New("rate limited")
	ErrAuth              = errors.New("authentication failed")
	ErrMalformedInput    = errors.New("malformed input")
	ErrNormalization     = errors.New("normalization failed")
	ErrValidation        = errors.New("validation failed")
	ErrPersistence       = errors.New("persistence failed")
	ErrTimeout           = errors.New("timeout")
	ErrUnknownRuleType   = errors.New("unknown rule type")
)

var sentinels = map[ErrorKind]error{
	KindConfiguration:     ErrConfiguration,
	KindSourceUnavailable: ErrSourceUnavailable,
	KindRateLimited:       ErrRateLimited,
	KindAuth:              ErrAuth,
	KindMalformedInput:    ErrMalformedInput,
	KindNormalization:     ErrNormalization,
	KindValidation:        ErrValidation,
	KindPersistence:       ErrPersistence,
	KindTimeout:           ErrTimeout,
	KindUnknownRuleType:   ErrUnknownRuleType,
}

// Error is a classified failure. Op names the operation or source that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and operation.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind ErrorKind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if s, ok := sentinels[e.Kind]; ok {
		msg = s.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the same kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf classifies any error. Context deadline errors count as timeouts.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for kind, s := range sentinels {
		if errors.Is(err, s) {
			return kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindInternal
}

// IsRetryable reports whether a fetch failing with err may be attempted again.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindSourceUnavailable, KindRateLimited:
		return true
	}
	return false
}
