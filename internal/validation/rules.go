package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"route-pipeline/internal/model"
	"route-pipeline/pkg/utils"

	"github.com/shopspring/decimal"
)

var builders map[string]builder

func init() {
	builders = map[string]builder{
		model.RuleRequired:  buildRequired,
		model.RulePositive:  buildPositive,
		model.RuleRange:     buildRange,
		model.RuleRegex:     buildRegex,
		model.RuleTypeCheck: buildTypeCheck,
		model.RuleCustom:    buildCustom,
		model.RuleLength:    buildLength,
		model.RuleChoices:   buildChoices,
		model.RuleEmail:     buildEmail,
		model.RulePhone:     buildPhone,
		model.RuleDateRange: buildDateRange,
	}
}

var ruleAliases = map[string]string{
	"pattern": model.RuleRegex,
	"type":    model.RuleTypeCheck,
}

func canonicalRuleType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if a, ok := ruleAliases[t]; ok {
		return a
	}
	return t
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	nonDigits    = regexp.MustCompile(`\D`)
)

func buildRequired(_ *Engine, _ model.ValidationRule) (checkFunc, error) {
	return func(v interface{}, present bool, _ model.CanonicalRecord) (bool, string) {
		if !present {
			return false, "field is required"
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			return false, "field is required"
		}
		return true, ""
	}, nil
}

func buildPositive(_ *Engine, _ model.ValidationRule) (checkFunc, error) {
	return func(v interface{}, present bool, _ model.CanonicalRecord) (bool, string) {
		if !present {
			return true, ""
		}
		f, ok := utils.Numeric(v)
		if !ok {
			return false, fmt.Sprintf("value %v is not a number", v)
		}
		if f <= 0 {
			return false, fmt.Sprintf("value %v must be positive", v)
		}
		return true, ""
	}, nil
}

func buildRange(_ *Engine, rule model.ValidationRule) (checkFunc, error) {
	min, hasMin := paramFloat(rule.Parameters, "min", "min_value")
	max, hasMax := paramFloat(rule.Parameters, "max", "max_value")
	if !hasMin && !hasMax {
		return nil, paramError(rule, "range needs min or max")
	}
	return func(v interface{}, present bool, _ model.CanonicalRecord) (bool, string) {
		if !present {
			return true, ""
		}
		f, ok := utils.Numeric(v)
		if !ok {
			return false, fmt.Sprintf("value %v is not a number", v)
		}
		if hasMin && f < min {
			return false, fmt.Sprintf("value %v below minimum %v", v, min)
		}
		if hasMax && f > max {
			return false, fmt.Sprintf("value %v above maximum %v", v, max)
		}
		return true, ""
	}, nil
}

func buildRegex(_ *Engine, rule model.ValidationRule) (checkFunc, error) {
	pattern, _ := rule.Parameters["pattern"].(string)
	if pattern == "" {
		return nil, paramError(rule, "regex needs a pattern")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, paramError(rule, err.Error())
	}
	return func(v interface{}, present bool, _ model.CanonicalRecord) (bool, string) {
		if !present {
			return true, ""
		}
		if !re.MatchString(fmt.Sprint(v)) {
			return false, fmt.Sprintf("value %v does not match %s", v, pattern)
		}
		return true, ""
	}, nil
}

func buildTypeCheck(_ *Engine, rule model.ValidationRule) (checkFunc, error) {
	want, _ := rule.Parameters["type"].(string)
	if want == "" {
		want, _ = rule.Parameters["expected_type"].(string)
	}
	want = strings.ToLower(want)
	switch want {
	case "string", "str", "int", "integer", "float", "number", "date", "datetime", "bool", "boolean":
	default:
		return nil, paramError(rule, fmt.Sprintf("unsupported type %q", want))
	}
	return func(v interface{}, present bool, _ model.CanonicalRecord) (bool, string) {
		if !present {
			return true, ""
		}
		if isType(v, want) {
			return true, ""
		}
		return false, fmt.Sprintf("value %v is not of type %s", v, want)
	}, nil
}

func isType(v interface{}, want string) bool {
	switch want {
	case "string", "str":
		_, ok := v.(string)
		return ok
	case "int", "integer":
		f, ok := utils.Numeric(v)
		return ok && f == float64(int64(f))
	case "float", "number":
		_, ok := utils.Numeric(v)
		return ok
	case "date", "datetime":
		switch val := v.(type) {
		case time.Time:
			return true
		case string:
			_, err := utils.ParseDate(val)
			return err == nil
		}
		return false
	case "bool", "boolean":
		_, ok := v.(bool)
		return ok
	}
	return false
}

func buildCustom(e *Engine, rule model.ValidationRule) (checkFunc, error) {
	name, _ := rule.Parameters["name"].(string)
	if name == "" {
		name, _ = rule.Parameters["predicate"].(string)
	}
	p, ok := e.lookup(name)
	if !ok {
		return nil, model.Errorf(model.KindUnknownRuleType, "custom", "predicate %q is not registered (field %q)", name, rule.FieldName)
	}
	return func(v interface{}, _ bool, rec model.CanonicalRecord) (bool, string) {
		ok, err := p(v, rec, rule.Parameters)
		if err != nil {
			return false, fmt.Sprintf("predicate %s: %v", name, err)
		}
		if !ok {
			return false, fmt.Sprintf("predicate %s failed", name)
		}
		return true, ""
	}, nil
}

func buildLength(_ *Engine, rule model.ValidationRule) (checkFunc, error) {
	min, hasMin := paramFloat(rule.Parameters, "min_length", "min")
	max, hasMax := paramFloat(rule.Parameters, "max_length", "max")
	if !hasMin && !hasMax {
		return nil, paramError(rule, "length needs min_length or max_length")
	}
	return func(v interface{}, present bool, _ model.CanonicalRecord) (bool, string) {
		if !present {
			return true, ""
		}
		n := float64(len([]rune(fmt.Sprint(v))))
		if hasMin && n < min {
			return false, fmt.Sprintf("length %v below minimum %v", n, min)
		}
		if hasMax && n > max {
			return false, fmt.Sprintf("length %v above maximum %v", n, max)
		}
		return true, ""
	}, nil
}

func buildChoices(_ *Engine, rule model.ValidationRule) (checkFunc, error) {
	raw, _ := rule.Parameters["choices"].([]interface{})
	if len(raw) == 0 {
		if ss, ok := rule.Parameters["choices"].([]string); ok {
			for _, s := range ss {
				raw = append(raw, s)
			}
		}
	}
	if len(raw) == 0 {
		return nil, paramError(rule, "choices needs a non-empty list")
	}
	caseSensitive := true
	if b, ok := rule.Parameters["case_sensitive"].(bool); ok {
		caseSensitive = b
	}
	allowed := make(map[string]bool, len(raw))
	for _, c := range raw {
		s := fmt.Sprint(c)
		if !caseSensitive {
			s = strings.ToLower(s)
		}
		allowed[s] = true
	}
	return func(v interface{}, present bool, _ model.CanonicalRecord) (bool, string) {
		if !present {
			return true, ""
		}
		s := fmt.Sprint(v)
		if !caseSensitive {
			s = strings.ToLower(s)
		}
		if !allowed[s] {
			return false, fmt.Sprintf("value %v is not an allowed choice", v)
		}
		return true, ""
	}, nil
}

func buildEmail(_ *Engine, _ model.ValidationRule) (checkFunc, error) {
	return func(v interface{}, present bool, _ model.CanonicalRecord) (bool, string) {
		if !present {
			return true, ""
		}
		if !emailPattern.MatchString(strings.TrimSpace(fmt.Sprint(v))) {
			return false, fmt.Sprintf("invalid email %v", v)
		}
		return true, ""
	}, nil
}

func buildPhone(_ *Engine, _ model.ValidationRule) (checkFunc, error) {
	return func(v interface{}, present bool, _ model.CanonicalRecord) (bool, string) {
		if !present {
			return true, ""
		}
		digits := nonDigits.ReplaceAllString(fmt.Sprint(v), "")
		if len(digits) == 10 || (len(digits) == 11 && digits[0] == '1') {
			return true, ""
		}
		return false, fmt.Sprintf("invalid phone number %v", v)
	}, nil
}

func buildDateRange(_ *Engine, rule model.ValidationRule) (checkFunc, error) {
	min, hasMin, err := paramDate(rule.Parameters, "min_date")
	if err != nil {
		return nil, paramError(rule, err.Error())
	}
	max, hasMax, err := paramDate(rule.Parameters, "max_date")
	if err != nil {
		return nil, paramError(rule, err.Error())
	}
	if !hasMin && !hasMax {
		return nil, paramError(rule, "date_range needs min_date or max_date")
	}
	return func(v interface{}, present bool, _ model.CanonicalRecord) (bool, string) {
		if !present {
			return true, ""
		}
		var t time.Time
		switch val := v.(type) {
		case time.Time:
			t = val
		case string:
			parsed, err := utils.ParseDate(val)
			if err != nil {
				return false, fmt.Sprintf("value %v is not a date", v)
			}
			t = parsed
		default:
			return false, fmt.Sprintf("value %v is not a date", v)
		}
		if hasMin && t.Before(min) {
			return false, fmt.Sprintf("date %s before %s", t.Format("2006-01-02"), min.Format("2006-01-02"))
		}
		if hasMax && t.After(max) {
			return false, fmt.Sprintf("date %s after %s", t.Format("2006-01-02"), max.Format("2006-01-02"))
		}
		return true, ""
	}, nil
}

func paramFloat(params map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := params[k]
		if !ok || v == nil {
			continue
		}
		if d, ok := v.(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f, true
		}
		if f, ok := utils.Numeric(v); ok {
			return f, true
		}
	}
	return 0, false
}

func paramDate(params map[string]interface{}, key string) (time.Time, bool, error) {
	s, ok := params[key].(string)
	if !ok || s == "" {
		return time.Time{}, false, nil
	}
	t, err := utils.ParseDate(s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%s: cannot parse %q", key, s)
	}
	return t, true, nil
}

func paramError(rule model.ValidationRule, msg string) error {
	return model.Errorf(model.KindConfiguration, "rule "+rule.RuleType+" on "+rule.FieldName, "%s", msg)
}
