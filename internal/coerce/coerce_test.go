package coerce_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"periodetl/internal/coerce"
	"periodetl/internal/domain"
)

func mustTo(t *testing.T, v any, typ domain.ColumnType) any {
	t.Helper()
	out, err := coerce.To(v, typ)
	require.NoError(t, err)
	return out
}

func TestTo_Bool(t *testing.T) {
	cases := map[any]bool{
		"1": true, "0": false,
		int64(1): true, int64(0): false,
		1.0: true, 0.0: false,
		"Yes": true, "NO": false, "yes": true, "no": false, "YES": true,
		"True": true, "FALSE": false, "true": true, "false": false,
		"  yes  ": true, "  no  ": false,
	}
	for in, want := range cases {
		assert.Equal(t, want, mustTo(t, in, domain.ColTypeBool), "input %#v", in)
	}
}

func TestTo_BoolNulls(t *testing.T) {
	assert.Nil(t, mustTo(t, nil, domain.ColTypeBool))
	assert.Nil(t, mustTo(t, "", domain.ColTypeBool))
}

func TestTo_BoolRejectsUnknown(t *testing.T) {
	_, err := coerce.To("maybe", domain.ColTypeBool)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot convert")

	_, err = coerce.To(int64(2), domain.ColTypeBool)
	require.Error(t, err)

	_, err = coerce.To("invalid", domain.ColTypeBool)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"invalid"`)
}

func TestTo_Int(t *testing.T) {
	assert.Equal(t, int64(42), mustTo(t, "42", domain.ColTypeInt))
	assert.Equal(t, int64(-7), mustTo(t, " -7 ", domain.ColTypeInt))
	assert.Equal(t, int64(3), mustTo(t, 3.0, domain.ColTypeInt))
	assert.Equal(t, int64(12), mustTo(t, json.Number("12"), domain.ColTypeInt))
	assert.Nil(t, mustTo(t, "", domain.ColTypeInt))

	_, err := coerce.To("abc", domain.ColTypeInt)
	assert.Error(t, err)
	_, err = coerce.To(3.5, domain.ColTypeInt)
	assert.Error(t, err)
}

func TestTo_Float(t *testing.T) {
	assert.Equal(t, 1.5, mustTo(t, "1.5", domain.ColTypeFloat))
	assert.Equal(t, 2.0, mustTo(t, int64(2), domain.ColTypeFloat))

	_, err := coerce.To("1,5", domain.ColTypeFloat)
	assert.Error(t, err)
}

func TestTo_FloatRejectsNonFinite(t *testing.T) {
	for _, in := range []any{"NaN", "Inf", "-Inf", "+inf", math.NaN(), math.Inf(1)} {
		_, err := coerce.To(in, domain.ColTypeFloat)
		assert.Error(t, err, "input %#v", in)
	}
}

func TestTo_DecimalRejectsNonFinite(t *testing.T) {
	for _, in := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := coerce.To(in, domain.ColTypeDecimal)
		assert.Error(t, err)
	}
	assert.Equal(t, "2.5", coerce.Format(mustTo(t, 2.5, domain.ColTypeDecimal)))
}

func TestTo_IntRange(t *testing.T) {
	for _, in := range []any{1e20, -1e20, 9223372036854775808.0, decimal.RequireFromString("1e20"), decimal.RequireFromString("-9223372036854775809")} {
		_, err := coerce.To(in, domain.ColTypeInt)
		assert.ErrorContains(t, err, "out of int range", "input %v", in)
	}
	assert.Equal(t, int64(math.MinInt64), mustTo(t, float64(math.MinInt64), domain.ColTypeInt))
	assert.Equal(t, int64(math.MaxInt64), mustTo(t, decimal.NewFromInt(math.MaxInt64), domain.ColTypeInt))
}

func TestTo_String(t *testing.T) {
	assert.Equal(t, "00123", mustTo(t, "00123", domain.ColTypeString))
	assert.Equal(t, "", mustTo(t, "", domain.ColTypeString))
	assert.Equal(t, "17", mustTo(t, int64(17), domain.ColTypeString))
	assert.Equal(t, "2.25", mustTo(t, 2.25, domain.ColTypeString))
}

func TestTo_Date(t *testing.T) {
	d := mustTo(t, "2009-07-01", domain.ColTypeDate)
	assert.Equal(t, "2009-07-01", coerce.Format(d))

	d = mustTo(t, "2010-06-30T00:00:00Z", domain.ColTypeDate)
	assert.Equal(t, "2010-06-30", coerce.Format(d))

	_, err := coerce.To("06/30/2010", domain.ColTypeDate)
	assert.Error(t, err)
}

func TestTo_Decimal(t *testing.T) {
	d := mustTo(t, "10.50", domain.ColTypeDecimal)
	require.IsType(t, decimal.Decimal{}, d)
	assert.True(t, d.(decimal.Decimal).Equal(decimal.RequireFromString("10.5")))

	_, err := coerce.To("ten", domain.ColTypeDecimal)
	assert.Error(t, err)
}

func TestTo_UntypedPassesThrough(t *testing.T) {
	assert.Equal(t, "x", mustTo(t, "x", domain.ColTypeUntyped))
	assert.Equal(t, "", mustTo(t, "", domain.ColTypeUntyped))
}

func TestTo_UnknownType(t *testing.T) {
	_, err := coerce.To("1", domain.ColumnType("uuid"))
	assert.Error(t, err)
}

func TestDate_JSON(t *testing.T) {
	d, err := coerce.ParseDate("2011-06-30")
	require.NoError(t, err)

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2011-06-30"`, string(b))

	var back coerce.Date
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Equal(d.Time))
}
