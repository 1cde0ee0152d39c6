package utils

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseDuration parses a duration string like "5m", falling back to def.
// A bare number is read as seconds.
func ParseDuration(d string, def time.Duration) time.Duration {
	d = strings.TrimSpace(d)
	if d == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(d, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	duration, err := time.ParseDuration(d)
	if err != nil {
		return def
	}
	return duration
}

// DateFormats lists the layouts tried by ParseDate, in order.
var DateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339,
	time.RFC3339Nano,
	"Jan 2, 2006",
	"2 Jan 2006",
	"20060102",
}

var ErrUnparseable = errors.New("unparseable value")

// ParseDate parses s with the first matching layout of DateFormats.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparseable
}

// ParseNumber parses numbers like "1,234.50", "$99" or "(12)" as float64.
func ParseNumber(s string) (float64, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

// ParseDecimal parses a number with thousands separators and currency symbols.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.Map(func(r rune) rune {
		if r == ',' || r == '_' || unicode.IsSpace(r) || strings.ContainsRune("$€£¥", r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, ErrUnparseable
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrUnparseable
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// Numeric converts supported values to float64. ok is false for non-numeric values.
func Numeric(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case decimal.Decimal:
		f, _ := val.Float64()
		return f, true
	case string:
		f, err := ParseNumber(val)
		return f, err == nil
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() >= reflect.Int && rv.Kind() <= reflect.Float64 {
			return rv.Convert(reflect.TypeOf(float64(0))).Float(), true
		}
		return 0, false
	}
}

// CleanColumnName lower-cases a header and replaces spaces and dashes with underscores.
func CleanColumnName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(name)
}

// naTokens are cell values treated as missing.
var naTokens = map[string]bool{
	"": true, "na": true, "n/a": true, "null": true, "none": true, "nan": true, "-": true,
}

// IsNA reports whether a raw cell value means "no value".
func IsNA(s string) bool {
	return naTokens[strings.ToLower(strings.TrimSpace(s))]
}
