package verify

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Compare orders two JSON scalars and returns -1, 0 or 1.
//
// nil sorts before everything else. When both values read as base-10
// numbers (native numeric types or numeric strings) they compare by value.
// Anything else compares by its lower-cased string form.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if na, ok := toNumber(a); ok {
		if nb, ok := toNumber(b); ok {
			return na.compare(nb)
		}
	}

	return strings.Compare(strings.ToLower(stringify(a)), strings.ToLower(stringify(b)))
}

// maxExponent bounds the decimal exponents compared exactly. Values beyond
// it compare as float64.
const maxExponent = 400

// number is a comparable numeric value: exact when its exponent is in
// range, otherwise a float64 that may be ±Inf or 0.
type number struct {
	d     decimal.Decimal
	f     float64
	exact bool
}

func (n number) float() float64 {
	if n.exact {
		return n.d.InexactFloat64()
	}
	return n.f
}

func (n number) compare(o number) int {
	if n.exact && o.exact {
		return n.d.Cmp(o.d)
	}
	return cmp.Compare(n.float(), o.float())
}

func toNumber(v any) (number, bool) {
	if s, ok := v.(string); ok {
		return parseNumber(s)
	}
	if s, ok := v.(json.Number); ok {
		return parseNumber(string(s))
	}
	d, ok := toDecimal(v)
	if !ok {
		return number{}, false
	}
	return number{d: d, exact: true}, true
}

// parseNumber reads a base-10 literal. Literals whose exponent is outside
// ±maxExponent, or too large for the decimal parser, are read as float64.
func parseNumber(s string) (number, bool) {
	s = strings.TrimSpace(s)
	if !isDecimalLiteral(s) {
		return number{}, false
	}
	if d, ok := parseDecimal(s); ok {
		if e := d.Exponent(); e >= -maxExponent && e <= maxExponent {
			return number{d: d, exact: true}, true
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return number{}, false
	}
	return number{f: f}, true
}

// isDecimalLiteral rejects the non-decimal forms strconv accepts, such as
// "Inf", "NaN" and hex floats.
func isDecimalLiteral(s string) bool {
	digit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case r == '+', r == '-', r == '.', r == 'e', r == 'E':
		default:
			return false
		}
	}
	return digit
}

// toDecimal reads v as an exact base-10 number. NaN and infinities are not
// numbers here; they fall through to string ordering.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		f := float64(n)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int8:
		return decimal.NewFromInt(int64(n)), true
	case int16:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return decimal.NewFromUint64(uint64(n)), true
	case uint8:
		return decimal.NewFromUint64(uint64(n)), true
	case uint16:
		return decimal.NewFromUint64(uint64(n)), true
	case uint32:
		return decimal.NewFromUint64(uint64(n)), true
	case uint64:
		return decimal.NewFromUint64(n), true
	}
	return decimal.Decimal{}, false
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// stringify renders a scalar the way it is compared and displayed.
func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return "null"
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case json.Number:
		return s.String()
	case time.Time:
		if s.Hour() == 0 && s.Minute() == 0 && s.Second() == 0 && s.Nanosecond() == 0 {
			return s.Format(time.DateOnly)
		}
		return s.Format("2006-01-02T15:04:05")
	}
	return fmt.Sprint(v)
}

// fieldEqual is the type-tolerant equality used for expected field values:
// numeric kinds compare by value, strings and bools compare exactly, and
// anything else must be deeply equal.
func fieldEqual(actual, expected any) bool {
	an, aok := toFloat64(actual)
	en, eok := toFloat64(expected)
	if aok && eok {
		return an == en
	}

	switch e := expected.(type) {
	case string:
		a, ok := actual.(string)
		return ok && a == e
	case bool:
		a, ok := actual.(bool)
		return ok && a == e
	}
	return reflect.DeepEqual(actual, expected)
}

// toFloat64 converts a native numeric value to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
