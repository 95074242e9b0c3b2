// Package coerce converts cell values between their raw string form and the
// declared column types of a field reference.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"periodetl/internal/domain"
)

// int64 bounds as exact float64 and decimal values.
const (
	minIntFloat = -(1 << 63)
	maxIntFloat = 1 << 63 // exclusive
)

var (
	minIntDecimal = decimal.NewFromInt(math.MinInt64)
	maxIntDecimal = decimal.NewFromInt(math.MaxInt64)

	boolTrue  = map[string]bool{"1": true, "yes": true, "true": true}
	boolFalse = map[string]bool{"0": true, "no": true, "false": true}
)

// To converts v to the Go representation of t:
//
//	str     string
//	int     int64
//	float   float64
//	bool    bool
//	date    Date
//	decimal decimal.Decimal
//
// nil stays nil for every type. An empty or blank string becomes nil for every
// type except str. The untyped column type returns v unchanged.
func To(v any, t domain.ColumnType) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && t != domain.ColTypeString && strings.TrimSpace(s) == "" {
		return nil, nil
	}

	switch t {
	case domain.ColTypeUntyped:
		return v, nil
	case domain.ColTypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return Format(v), nil
	case domain.ColTypeInt:
		return toInt(v)
	case domain.ColTypeFloat:
		return toFloat(v)
	case domain.ColTypeBool:
		return toBool(v)
	case domain.ColTypeDate:
		return toDate(v)
	case domain.ColTypeDecimal:
		return toDecimal(v)
	default:
		return nil, fmt.Errorf("unknown column type %q", t)
	}
}

func toInt(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return nil, fmt.Errorf("%v is not a whole number", n)
		}
		if n < minIntFloat || n >= maxIntFloat {
			return nil, fmt.Errorf("%v is out of int range", n)
		}
		return int64(n), nil
	case json.Number:
		return toInt(string(n))
	case decimal.Decimal:
		if !n.IsInteger() {
			return nil, fmt.Errorf("%s is not a whole number", n)
		}
		if n.LessThan(minIntDecimal) || n.GreaterThan(maxIntDecimal) {
			return nil, fmt.Errorf("%s is out of int range", n)
		}
		return n.IntPart(), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as int", n)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to int", v)
	}
}

// toFloat rejects NaN and infinities; they have no JSON or SQL encoding.
func toFloat(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case json.Number:
		return toFloat(string(n))
	case decimal.Decimal:
		f, _ := n.Float64()
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as float", n)
		}
		return finite(f)
	default:
		return nil, fmt.Errorf("cannot convert %T to float", v)
	}
}

func finite(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%v is not a finite number", f)
	}
	return f, nil
}

// toBool accepts 1/0, yes/no and true/false, case-insensitively.
func toBool(v any) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int64:
		return intBool(b, v)
	case int:
		return intBool(int64(b), v)
	case float64:
		if b == math.Trunc(b) {
			return intBool(int64(b), v)
		}
	case json.Number:
		return toBool(string(b))
	case string:
		key := strings.ToLower(strings.TrimSpace(b))
		if boolTrue[key] {
			return true, nil
		}
		if boolFalse[key] {
			return false, nil
		}
	}
	return nil, fmt.Errorf("cannot convert %s to bool, expected one of: 1, 0, yes, no, true, false", quote(v))
}

func intBool(n int64, orig any) (any, error) {
	switch n {
	case 1:
		return true, nil
	case 0:
		return false, nil
	}
	return nil, fmt.Errorf("cannot convert %s to bool, expected one of: 1, 0, yes, no, true, false", quote(orig))
}

func toDate(v any) (any, error) {
	switch d := v.(type) {
	case Date:
		return d, nil
	case time.Time:
		return NewDate(d), nil
	case string:
		return ParseDate(d)
	default:
		return nil, fmt.Errorf("cannot convert %T to date", v)
	}
}

func toDecimal(v any) (any, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case int64:
		return decimal.NewFromInt(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("%v is not a finite number", n)
		}
		return decimal.NewFromFloat(n), nil
	case json.Number:
		return toDecimal(string(n))
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as decimal", n)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to decimal", v)
	}
}

// Format returns the canonical string form of a coerced value.
// nil formats as the empty string.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case Date:
		return x.String()
	case time.Time:
		return NewDate(x).String()
	case decimal.Decimal:
		return x.String()
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func quote(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return Format(v)
}
