// Package normalize maps raw source rows onto canonical route records.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"route-pipeline/internal/model"
	"route-pipeline/pkg/utils"

	"github.com/shopspring/decimal"
)

// DefaultAliases maps cleaned source column names to canonical fields.
var DefaultAliases = map[string]string{
	"id":               model.FieldRouteID,
	"route":            model.FieldRouteID,
	"route_number":     model.FieldRouteID,
	"trip_id":          model.FieldRouteID,
	"load_id":          model.FieldRouteID,
	"date":             model.FieldRouteDate,
	"trip_date":        model.FieldRouteDate,
	"delivery_date":    model.FieldRouteDate,
	"service_date":     model.FieldRouteDate,
	"driver":           model.FieldDriverName,
	"driver_full_name": model.FieldDriverName,
	"vehicle":          model.FieldVehicleID,
	"truck":            model.FieldVehicleID,
	"truck_id":         model.FieldVehicleID,
	"unit":             model.FieldVehicleID,
	"customer":         model.FieldCustomerName,
	"client":           model.FieldCustomerName,
	"shipper":          model.FieldCustomerName,
	"origin":           model.FieldOriginAddress,
	"pickup":           model.FieldOriginAddress,
	"pickup_address":   model.FieldOriginAddress,
	"destination":      model.FieldDestinationAddress,
	"dropoff":          model.FieldDestinationAddress,
	"delivery_address": model.FieldDestinationAddress,
	"miles":            model.FieldTotalMiles,
	"distance":         model.FieldTotalMiles,
	"total_distance":   model.FieldTotalMiles,
	"amount":           model.FieldRevenue,
	"rate":             model.FieldRevenue,
	"total_revenue":    model.FieldRevenue,
	"weight":           model.FieldLoadWeight,
	"load_lbs":         model.FieldLoadWeight,
	"gallons":          model.FieldFuelGallons,
	"fuel_expense":     model.FieldFuelCost,
	"route_status":     model.FieldStatus,
	"email_address":    model.FieldEmail,
	"phone_number":     model.FieldPhone,
	"departure_time":   model.FieldStartTime,
	"arrival_time":     model.FieldEndTime,
}

// Fields every canonical record must carry.
var alwaysRequired = []string{model.FieldRouteID, model.FieldRouteDate}

const (
	prioAlias = iota + 1
	prioIdentity
	prioExplicit
)

// Normalizer applies one collector's column mapping and required columns.
type Normalizer struct {
	mapping  map[string]string
	required []string
}

// New builds a normalizer. Mapping keys are source column names, values canonical names.
func New(mapping map[string]string, required []string) *Normalizer {
	n := &Normalizer{mapping: make(map[string]string, len(mapping))}
	for src, dst := range mapping {
		n.mapping[utils.CleanColumnName(src)] = utils.CleanColumnName(dst)
	}

	seen := map[string]bool{}
	for _, f := range alwaysRequired {
		seen[f] = true
		n.required = append(n.required, f)
	}
	for _, col := range required {
		target, _ := n.resolve(col)
		if target == "" {
			target = utils.CleanColumnName(col)
		}
		if !seen[target] {
			seen[target] = true
			n.required = append(n.required, target)
		}
	}
	return n
}

// Normalize is a one-shot helper around New(...).Normalize.
func Normalize(raw model.RawRecord, mapping map[string]string, required []string) (model.CanonicalRecord, []model.Finding, error) {
	return New(mapping, required).Normalize(raw)
}

// Required returns the canonical fields that must be present.
func (n *Normalizer) Required() []string {
	return append([]string(nil), n.required...)
}

func (n *Normalizer) resolve(column string) (string, int) {
	c := utils.CleanColumnName(column)
	if dst, ok := n.mapping[c]; ok {
		return dst, prioExplicit
	}
	if _, ok := model.CanonicalFields[c]; ok {
		return c, prioIdentity
	}
	if dst, ok := DefaultAliases[c]; ok {
		return dst, prioAlias
	}
	return "", 0
}

// Normalize maps raw onto a canonical record. Unmapped fields are dropped.
// Coercion failures on optional fields null the field and yield warning findings.
func (n *Normalizer) Normalize(raw model.RawRecord) (model.CanonicalRecord, []model.Finding, error) {
	keys := make([]string, 0, len(raw.Fields))
	for k := range raw.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// non-empty values beat empty ones, then explicit > identity > alias
	picked := map[string]interface{}{}
	score := map[string]int{}
	for _, k := range keys {
		target, p := n.resolve(k)
		if target == "" {
			continue
		}
		v := raw.Fields[k]
		s := p
		if !isEmpty(v) {
			s += 10
		}
		if s > score[target] {
			picked[target] = v
			score[target] = s
		}
	}

	requiredSet := make(map[string]bool, len(n.required))
	for _, f := range n.required {
		requiredSet[f] = true
	}

	rec := make(model.CanonicalRecord, len(picked))
	var findings []model.Finding
	for _, field := range sortedKeys(picked) {
		v := picked[field]
		if isEmpty(v) {
			rec[field] = nil
			continue
		}
		kind, ok := model.CanonicalFields[field]
		if !ok {
			kind = model.KindString
		}
		cv, err := coerce(v, kind)
		if err != nil {
			if requiredSet[field] {
				return nil, nil, model.NewError(model.KindNormalization, field, err)
			}
			rec[field] = nil
			findings = append(findings, model.Finding{
				Field:    field,
				RuleType: model.RuleTypeCheck,
				Severity: model.SeverityWarning,
				Message:  err.Error(),
			})
			continue
		}
		rec[field] = cv
	}

	for _, field := range n.required {
		if isEmpty(rec[field]) {
			return nil, nil, model.Errorf(model.KindNormalization, field, "required field %q missing", field)
		}
	}
	return rec, findings, nil
}

func coerce(v interface{}, kind model.FieldKind) (interface{}, error) {
	switch kind {
	case model.KindDate:
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	case model.KindTimestamp:
		return toTime(v)
	case model.KindFloat:
		f, ok := utils.Numeric(v)
		if !ok {
			return nil, fmt.Errorf("cannot convert %v to number", v)
		}
		return f, nil
	case model.KindMoney:
		return toDecimal(v)
	default:
		return toString(v), nil
	}
}

func toTime(v interface{}) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case string:
		t, err := utils.ParseDate(val)
		if err != nil {
			return time.Time{}, fmt.Errorf("cannot parse date %q", val)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("cannot parse date from %T", v)
	}
}

func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, nil
	case string:
		d, err := utils.ParseDecimal(val)
		if err != nil {
			return decimal.Zero, fmt.Errorf("cannot convert %q to amount", val)
		}
		return d, nil
	default:
		f, ok := utils.Numeric(v)
		if !ok {
			return decimal.Zero, fmt.Errorf("cannot convert %v to amount", v)
		}
		return decimal.NewFromFloat(f), nil
	}
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func isEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return utils.IsNA(val)
	}
	return false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
