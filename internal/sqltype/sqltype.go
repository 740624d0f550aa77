// Package sqltype provides a shared mapping from SQL data types to the semantic value
// types used by loader key columns.
package sqltype

import "strings"

// ValueType is the semantic category of a column value.
type ValueType int

const (
	// TypeUnknown is used for types with no dedicated category (JSON, decimals, blobs).
	TypeUnknown ValueType = iota
	// TypeInteger represents 32-bit-safe integer types.
	TypeInteger
	// TypeBigInt represents 64-bit integer types, including unsigned INT.
	TypeBigInt
	// TypeText represents character types, enums, and sets.
	TypeText
	// TypeBoolean represents BOOL/BOOLEAN and the TINYINT(1) convention.
	TypeBoolean
	// TypeTimestamp represents date and time types.
	TypeTimestamp
	// TypeUnsignedBigInt represents BIGINT UNSIGNED, whose range exceeds int64.
	TypeUnsignedBigInt
)

// MapValueType converts a SQL data type to its semantic value type.
// dataType is INFORMATION_SCHEMA.COLUMNS.DATA_TYPE (or a free-form type name) and
// columnType is the optional full COLUMN_TYPE, used to detect TINYINT(1) and UNSIGNED.
// Matching is case-insensitive and size specifiers are ignored.
func MapValueType(dataType, columnType string) ValueType {
	base := strings.ToUpper(strings.TrimSpace(dataType))
	if idx := strings.Index(base, "("); idx != -1 {
		base = base[:idx]
	}
	full := strings.ToUpper(strings.TrimSpace(columnType))
	if full == "" {
		full = strings.ToUpper(strings.TrimSpace(dataType))
	}
	unsigned := strings.Contains(full, "UNSIGNED")

	switch base {
	case "BOOL", "BOOLEAN":
		return TypeBoolean
	case "TINYINT":
		if strings.HasPrefix(full, "TINYINT(1)") {
			return TypeBoolean
		}
		return TypeInteger
	case "SMALLINT", "MEDIUMINT":
		return TypeInteger
	case "INT", "INTEGER":
		if unsigned {
			return TypeBigInt
		}
		return TypeInteger
	case "BIGINT":
		if unsigned {
			return TypeUnsignedBigInt
		}
		return TypeBigInt
	case "SERIAL":
		return TypeUnsignedBigInt
	case "CHAR", "VARCHAR", "TINYTEXT", "TEXT",
		"MEDIUMTEXT", "LONGTEXT", "ENUM", "SET":
		return TypeText
	case "DATE", "DATETIME", "TIMESTAMP":
		return TypeTimestamp
	default:
		return TypeUnknown
	}
}

// String returns the lowercase name of the value type.
func (t ValueType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeBigInt:
		return "bigint"
	case TypeText:
		return "text"
	case TypeBoolean:
		return "boolean"
	case TypeTimestamp:
		return "timestamp"
	case TypeUnsignedBigInt:
		return "unsigned_bigint"
	default:
		return "unknown"
	}
}

// GoType returns the Go type name that scanned values of this type map to.
func (t ValueType) GoType() string {
	switch t {
	case TypeInteger:
		return "int32"
	case TypeBigInt:
		return "int64"
	case TypeText:
		return "string"
	case TypeBoolean:
		return "bool"
	case TypeTimestamp:
		return "time.Time"
	case TypeUnsignedBigInt:
		return "uint64"
	default:
		return "any"
	}
}

// ParseValueType converts a value type name, as written in the value_type
// field of a schema file, back to a ValueType. Unrecognized names map to TypeUnknown.
func ParseValueType(name string) ValueType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "integer", "int":
		return TypeInteger
	case "bigint", "int64":
		return TypeBigInt
	case "text", "string":
		return TypeText
	case "boolean", "bool":
		return TypeBoolean
	case "timestamp", "time":
		return TypeTimestamp
	case "unsigned_bigint", "uint64":
		return TypeUnsignedBigInt
	default:
		return TypeUnknown
	}
}
