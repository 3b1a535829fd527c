package advisor

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intProfile(kind ValueKind, lo, hi int64) ColumnProfile {
	return ColumnProfile{
		Name:         "n",
		ObservedMin:  big.NewInt(lo),
		ObservedMax:  big.NewInt(hi),
		RowCount:     100,
		SemanticRole: RoleMetric,
		ValueKind:    kind,
	}
}

func TestClassifyType_Unsigned(t *testing.T) {
	tests := []struct {
		name  string
		lo    int64
		hi    int64
		width int
	}{
		{"zero range", 0, 0, 8},
		{"uint8 max", 0, 255, 8},
		{"uint8 overflow", 0, 256, 16},
		{"uint16 max", 0, 65535, 16},
		{"uint32", 10, 65536, 32},
		{"uint32 max", 0, 4294967295, 32},
		{"uint64", 0, 4294967296, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClassifyType(intProfile(KindUnsignedInteger, tt.lo, tt.hi), ColumnHints{})
			require.NoError(t, err)
			assert.Equal(t, FamilyUint, got.Type.Family)
			assert.Equal(t, tt.width, got.Type.Width)
			assert.NotEmpty(t, got.Rationale)
		})
	}
}

func TestClassifyType_UnsignedUint64Max(t *testing.T) {
	p := intProfile(KindUnsignedInteger, 0, 0)
	p.ObservedMax = new(big.Int).SetUint64(^uint64(0))
	got, err := ClassifyType(p, ColumnHints{})
	require.NoError(t, err)
	assert.Equal(t, "UInt64", got.Type.String())

	p.ObservedMax = new(big.Int).Add(p.ObservedMax, big.NewInt(1))
	_, err = ClassifyType(p, ColumnHints{})
	assert.True(t, errors.Is(err, ErrRangeOverflow), "got %v", err)
}

func TestClassifyType_UnsignedNegativeMin(t *testing.T) {
	_, err := ClassifyType(intProfile(KindUnsignedInteger, -1, 10), ColumnHints{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRangeUnderflow)
	assert.Equal(t, CodeRangeUnderflow, CodeOf(err))
}

func TestClassifyType_Signed(t *testing.T) {
	tests := []struct {
		name  string
		lo    int64
		hi    int64
		width int
	}{
		{"int8 bounds", -128, 127, 8},
		{"int8 low overflow", -129, 0, 16},
		{"int8 high overflow", 0, 128, 16},
		{"int16 bounds", -32768, 32767, 16},
		{"int32", -32769, 0, 32},
		{"int64", -2147483649, 0, 64},
		{"int64 bounds", -9223372036854775808, 9223372036854775807, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClassifyType(intProfile(KindInteger, tt.lo, tt.hi), ColumnHints{})
			require.NoError(t, err)
			assert.Equal(t, FamilyInt, got.Type.Family)
			assert.Equal(t, tt.width, got.Type.Width)
		})
	}
}

func TestClassifyType_SignedOverflow(t *testing.T) {
	p := intProfile(KindInteger, 0, 0)
	p.ObservedMax = new(big.Int).SetUint64(1 << 63)
	_, err := ClassifyType(p, ColumnHints{})
	assert.ErrorIs(t, err, ErrRangeOverflow)
}

func TestClassifyType_MissingRange(t *testing.T) {
	p := intProfile(KindInteger, 0, 0)
	p.ObservedMin = nil
	_, err := ClassifyType(p, ColumnHints{})
	assert.ErrorIs(t, err, ErrInsufficientSample)
}

func TestClassifyType_Float(t *testing.T) {
	p := ColumnProfile{Name: "f", RowCount: 1, SemanticRole: RoleMetric, ValueKind: KindFloat}

	got, err := ClassifyType(p, ColumnHints{})
	require.NoError(t, err)
	assert.Equal(t, "Float32", got.Type.String())

	got, err = ClassifyType(p, ColumnHints{PrecisionSensitive: true})
	require.NoError(t, err)
	assert.Equal(t, "Float64", got.Type.String())
}

func TestClassifyType_Decimal(t *testing.T) {
	p := ColumnProfile{Name: "price", RowCount: 1, SemanticRole: RoleMetric, ValueKind: KindDecimal}
	tests := []struct {
		name    string
		prec    int
		scale   int
		want    string
		wantErr bool
	}{
		{"money", 10, 2, "Decimal(10,2)", false},
		{"scale equals precision", 5, 5, "Decimal(5,5)", false},
		{"max precision", 76, 0, "Decimal(76,0)", false},
		{"zero precision", 0, 0, "", true},
		{"precision too large", 77, 2, "", true},
		{"scale above precision", 4, 5, "", true},
		{"negative scale", 10, -1, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClassifyType(p, ColumnHints{DecimalPrecision: tt.prec, DecimalScale: tt.scale})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDecimalSpec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Type.String())
		})
	}
}

func TestDecimalBackingWidth(t *testing.T) {
	assert.Equal(t, 32, decimalBackingWidth(9))
	assert.Equal(t, 64, decimalBackingWidth(18))
	assert.Equal(t, 128, decimalBackingWidth(38))
	assert.Equal(t, 256, decimalBackingWidth(39))
}

func TestClassifyType_Time(t *testing.T) {
	tests := []struct {
		name string
		kind ValueKind
		tier TimePrecision
		want string
	}{
		{"date default", KindDate, "", "Date"},
		{"datetime default", KindDatetime, "", "DateTime"},
		{"date tier", KindDatetime, PrecisionDate, "Date"},
		{"second", KindDatetime, PrecisionSecond, "DateTime"},
		{"millisecond", KindDatetime, PrecisionMillisecond, "DateTime64(3)"},
		{"microsecond", KindDatetime, PrecisionMicrosecond, "DateTime64(6)"},
		{"nanosecond", KindDatetime, PrecisionNanosecond, "DateTime64(9)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ColumnProfile{Name: "ts", RowCount: 1, SemanticRole: RoleDimension, ValueKind: tt.kind}
			got, err := ClassifyType(p, ColumnHints{TimePrecision: tt.tier})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Type.String())
		})
	}
}

func TestClassifyType_UnknownTimePrecision(t *testing.T) {
	for _, tier := range []TimePrecision{"millis", "fortnight"} {
		p := ColumnProfile{Name: "ts", RowCount: 1, SemanticRole: RoleDimension, ValueKind: KindDatetime}
		_, err := ClassifyType(p, ColumnHints{TimePrecision: tier})
		assert.ErrorIs(t, err, ErrInvalidProfile, string(tier))
		assert.ErrorContains(t, err, string(tier))
	}
}

func TestClassifyType_Other(t *testing.T) {
	base := ColumnProfile{Name: "c", RowCount: 1, SemanticRole: RoleMetadata}

	base.ValueKind = KindBoolean
	got, err := ClassifyType(base, ColumnHints{})
	require.NoError(t, err)
	assert.Equal(t, "Bool", got.Type.String())

	base.ValueKind = KindNested
	got, err = ClassifyType(base, ColumnHints{})
	require.NoError(t, err)
	assert.Equal(t, FamilyNested, got.Type.Family)

	base.ValueKind = KindJSON
	got, err = ClassifyType(base, ColumnHints{JSONSubpaths: []string{"user.id UInt64"}})
	require.NoError(t, err)
	assert.Equal(t, "JSON(user.id UInt64)", got.Type.String())

	base.ValueKind = KindString
	_, err = ClassifyType(base, ColumnHints{})
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestError_Format(t *testing.T) {
	err := newError(CodeRangeOverflow, "events", "id", "too big")
	assert.Equal(t, "RANGE_OVERFLOW Column[events.id]: too big", err.Error())
	assert.Equal(t, "EMPTY_SCHEMA Table[t]: none", newError(CodeEmptySchema, "t", "", "none").Error())
	assert.Equal(t, "INVALID_PROFILE Column[c]", newError(CodeInvalidProfile, "", "c", "").Error())
	assert.False(t, errors.Is(err, ErrRangeUnderflow))

	moved := inTable(newError(CodeRangeOverflow, "", "id", "x"), "events")
	assert.Equal(t, "RANGE_OVERFLOW Column[events.id]: x", moved.Error())
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}
