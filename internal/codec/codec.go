// Package codec normalizes decoded column values into printable form.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-mysql-org/go-mysql/mysql"
)

// Normalize decodes byte strings to text and walks into maps and slices.
// Numeric and temporal values pass through unchanged.
func Normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case map[string]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, e := range x {
			m[k] = Normalize(e)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(x))
		for i, e := range x {
			s[i] = Normalize(e)
		}
		return s
	default:
		return v
	}
}

// NormalizeRow applies Normalize to every value of a row
func NormalizeRow(row []interface{}) []interface{} {
	if row == nil {
		return nil
	}
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = Normalize(v)
	}
	return out
}

// IsJSONColumn reports whether the table map type code is JSON
func IsJSONColumn(typ byte) bool {
	return typ == mysql.MYSQL_TYPE_JSON
}

// RewriteJSON turns a native JSON structure into JSON text. Text values
// are already serialized and are returned as is.
func RewriteJSON(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Normalize(v)); err != nil {
		return nil, fmt.Errorf("failed to serialize json value: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
