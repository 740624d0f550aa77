package planner

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTupleKey_NumericNormalization(t *testing.T) {
	want := TupleKey([]any{int64(1), "tech"})
	for _, key := range [][]any{
		{1, "tech"},
		{int32(1), "tech"},
		{uint8(1), "tech"},
		{uint64(1), []byte("tech")},
		{float64(1), "tech"},
	} {
		assert.Equal(t, want, TupleKey(key), "%#v", key)
	}
}

func TestTupleKey_DistinguishesValues(t *testing.T) {
	assert.NotEqual(t, TupleKey([]any{1, "tech"}), TupleKey([]any{"1", "tech"}))
	assert.NotEqual(t, TupleKey([]any{1, "tech"}), TupleKey([]any{2, "tech"}))
	assert.NotEqual(t, TupleKey([]any{"a,b"}), TupleKey([]any{"a", "b"}))
	assert.NotEqual(t, TupleKey([]any{1.5}), TupleKey([]any{1}))
}

func TestTupleKey_Time(t *testing.T) {
	utc := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("plus2", 2*60*60))
	assert.Equal(t, TupleKey([]any{utc}), TupleKey([]any{local}))
	assert.Equal(t, `["2024-05-01T12:00:00Z"]`, TupleKey([]any{utc}))
}

func TestCanonicalJSON(t *testing.T) {
	id := int64(42)
	var nilPtr *int64
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "x@example.com", `"x@example.com"`},
		{"int", 7, `7`},
		{"large uint", uint64(1 << 63), `9223372036854775808`},
		{"fraction", 2.5, `2.5`},
		{"bool", true, `1`},
		{"bool false", false, `0`},
		{"nil", nil, `null`},
		{"pointer", &id, `42`},
		{"nil pointer", nilPtr, `null`},
		{"valuer", sql.NullString{String: "abc", Valid: true}, `"abc"`},
		{"null valuer", sql.NullInt64{}, `null`},
		{"binary", []byte{0xff, 0x00}, `{"$bytes":"/wA="}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalJSON(tt.value))
		})
	}
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, ValuesEqual(int16(3), uint32(3)))
	assert.True(t, ValuesEqual([]byte("abc"), "abc"))
	assert.False(t, ValuesEqual("abc", "abd"))
}
