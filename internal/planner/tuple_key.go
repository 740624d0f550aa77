package planner

import (
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"
)

// TupleKey encodes a key tuple into a stable map key. Values that compare
// equal in SQL lookups encode identically: int(1), int64(1) and true all
// agree, as do []byte("a") and "a".
func TupleKey(values []any) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(CanonicalJSON(v))
	}
	b.WriteByte(']')
	return b.String()
}

// CanonicalJSON renders a single key value in canonical JSON form.
func CanonicalJSON(v any) string {
	encoded, err := json.Marshal(canonicalValue(v))
	if err != nil {
		// Unencodable values fall back to their Go syntax representation.
		encoded, _ = json.Marshal(fmt.Sprintf("%#v", v))
	}
	return string(encoded)
}

// ValuesEqual reports whether two key values are equal under canonical encoding.
func ValuesEqual(a, b any) bool {
	return CanonicalJSON(a) == CanonicalJSON(b)
}

func canonicalValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case bool:
		// BOOL columns are TINYINT(1) and scan back as integers.
		if x {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return canonicalUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return canonicalUint(x)
	case float32:
		return canonicalFloat(float64(x))
	case float64:
		return canonicalFloat(x)
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return map[string]string{"$bytes": base64.StdEncoding.EncodeToString(x)}
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case driver.Valuer:
		val, err := x.Value()
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return canonicalValue(val)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return canonicalValue(rv.Elem().Interface())
	}
	return v
}

func canonicalUint(v uint64) any {
	if v <= math.MaxInt64 {
		return int64(v)
	}
	return v
}

// canonicalFloat folds integral floats into int64 so 2.0 and 2 agree.
func canonicalFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprintf("%v", v)
	}
	if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
		return int64(v)
	}
	return v
}
