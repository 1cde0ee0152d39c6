// Package validation evaluates declarative rules against canonical records.
package validation

import (
	"fmt"
	"sync"

	"route-pipeline/internal/model"
)

// Predicate is a caller-supplied check used by "custom" rules.
// value is nil when the field is absent.
type Predicate func(value interface{}, record model.CanonicalRecord, params map[string]interface{}) (bool, error)

// checkFunc evaluates a compiled rule. The string is a failure detail.
type checkFunc func(value interface{}, present bool, rec model.CanonicalRecord) (bool, string)

// builder compiles one rule into a check.
type builder func(e *Engine, rule model.ValidationRule) (checkFunc, error)

// Engine holds the rule dispatch table and the custom predicate registry.
type Engine struct {
	mu     sync.RWMutex
	custom map[string]Predicate
}

// NewEngine returns an engine with no custom predicates.
func NewEngine() *Engine {
	return &Engine{custom: make(map[string]Predicate)}
}

// RegisterCustom makes a predicate available to rules of type "custom".
func (e *Engine) RegisterCustom(name string, p Predicate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.custom[name] = p
}

func (e *Engine) lookup(name string) (Predicate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.custom[name]
	return p, ok
}

// Predicates lists registered custom predicate names.
func (e *Engine) Predicates() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.custom))
	for n := range e.custom {
		names = append(names, n)
	}
	return names
}

type compiledRule struct {
	rule  model.ValidationRule
	check checkFunc
}

// RuleSet is a compiled, immutable list of rules. Safe for concurrent use.
type RuleSet struct {
	rules []compiledRule
}

// Compile resolves every rule against the dispatch table.
// Unknown rule types and unregistered custom predicates fail with ErrUnknownRuleType.
func (e *Engine) Compile(rules []model.ValidationRule) (*RuleSet, error) {
	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for i, rule := range rules {
		b, ok := builders[canonicalRuleType(rule.RuleType)]
		if !ok {
			return nil, model.Errorf(model.KindUnknownRuleType, fmt.Sprintf("rule %d", i), "%q on field %q", rule.RuleType, rule.FieldName)
		}
		check, err := b(e, rule)
		if err != nil {
			return nil, err
		}
		rs.rules = append(rs.rules, compiledRule{rule: rule, check: check})
	}
	return rs, nil
}

// Validate compiles rules and evaluates them against rec.
func (e *Engine) Validate(rec model.CanonicalRecord, rules []model.ValidationRule) (model.Verdict, error) {
	rs, err := e.Compile(rules)
	if err != nil {
		return model.Verdict{}, err
	}
	return rs.Validate(rec), nil
}

// Validate evaluates every rule; there is no short-circuit.
func (rs *RuleSet) Validate(rec model.CanonicalRecord) model.Verdict {
	v := model.Verdict{Findings: make([]model.Finding, 0, len(rs.rules))}
	for _, cr := range rs.rules {
		value, present := rec[cr.rule.FieldName]
		if value == nil {
			present = false
		}
		ok, detail := cr.check(value, present, rec)
		f := model.Finding{
			Field:    cr.rule.FieldName,
			RuleType: canonicalRuleType(cr.rule.RuleType),
			Severity: cr.rule.EffectiveSeverity(),
			Passed:   ok,
		}
		if !ok {
			f.Message = cr.rule.Message
			if f.Message == "" {
				f.Message = detail
			}
		}
		v.Findings = append(v.Findings, f)
	}
	return v
}

// Len returns the number of compiled rules.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// Passthrough is a rule set that accepts every record.
var Passthrough = &RuleSet{}
