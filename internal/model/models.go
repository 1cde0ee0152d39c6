package model

import "strings"

// Severity decides whether a failed rule rejects the record
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rule types understood by the validation engine.
const (
	RuleRequired  = "required"
	RulePositive  = "positive"
	RuleRange     = "range"
	RuleRegex     = "regex"
	RuleTypeCheck = "type_check"
	RuleCustom    = "custom"
	RuleLength    = "length"
	RuleChoices   = "choices"
	RuleEmail     = "email"
	RulePhone     = "phone"
	RuleDateRange = "date_range"
)

// ValidationRule is one declarative check applied to a canonical field
type ValidationRule struct {
	FieldName  string                 `json:"field_name"`
	RuleType   string                 `json:"rule_type"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Severity   Severity               `json:"severity,omitempty" validate:"omitempty,oneof=error warning"` // default error
	Message    string                 `json:"message,omitempty"`
}

// EffectiveSeverity defaults an empty severity to error.
func (r ValidationRule) EffectiveSeverity() Severity {
	if strings.EqualFold(string(r.Severity), string(SeverityWarning)) {
		return SeverityWarning
	}
	return SeverityError
}

// Finding is the outcome of one rule against one record
type Finding struct {
	Field    string   `json:"field"`
	RuleType string   `json:"rule_type"`
	Severity Severity `json:"severity"`
	Passed   bool     `json:"passed"`
	Message  string   `json:"message,omitempty"`
}

// Verdict holds every finding for a record in rule order
type Verdict struct {
	Findings []Finding `json:"findings"`
}

// Accepted reports whether no error-severity finding failed.
func (v Verdict) Accepted() bool {
	for _, f := range v.Findings {
		if !f.Passed && f.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Failures returns the failed findings of the given severity.
func (v Verdict) Failures(sev Severity) []Finding {
	var out []Finding
	for _, f := range v.Findings {
		if !f.Passed && f.Severity == sev {
			out = append(out, f)
		}
	}
	return out
}

// Reason joins the messages of failed error findings.
func (v Verdict) Reason() string {
	var parts []string
	for _, f := range v.Failures(SeverityError) {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}
