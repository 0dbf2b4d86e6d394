package document

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
)

// IDField is the identity field every stored document carries.
const IDField = "_id"

// Document is a JSON object.
type Document map[string]any

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidFieldName reports whether name may be used in filters, sorts and
// index definitions. Names are interpolated into json_extract paths, so the
// alphabet is restricted.
func ValidFieldName(name string) bool {
	return fieldNamePattern.MatchString(name)
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return val.Clone()
	case map[string]any:
		return Document(val).Clone()
	case []any:
		arr := make([]any, len(val))
		for i, elem := range val {
			arr[i] = cloneValue(elem)
		}
		return arr
	default:
		return val
	}
}

// Rename moves the value stored under from to to. It reports false when from
// is absent. An existing value under to is overwritten.
func (d Document) Rename(from, to string) bool {
	v, ok := d[from]
	if !ok {
		return false
	}
	delete(d, from)
	d[to] = v
	return true
}

// Int reads field as an integer. Values decoded from JSON, Go integer kinds
// and integral float64 values are accepted.
func (d Document) Int(field string) (int64, error) {
	v, ok := d[field]
	if !ok {
		return 0, fmt.Errorf("field %q: %w", field, ErrMissingField)
	}
	n, ok := AsInt(v)
	if !ok {
		return 0, fmt.Errorf("field %q: %w (got %T)", field, ErrNotInteger, v)
	}
	return n, nil
}

// AsInt converts integer-like values to int64.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

// Project returns a copy of d restricted to fields. An empty field list
// returns the whole document. The identity field is always kept.
func (d Document) Project(fields []string) Document {
	if len(fields) == 0 {
		return d.Clone()
	}
	out := make(Document, len(fields)+1)
	if v, ok := d[IDField]; ok {
		out[IDField] = cloneValue(v)
	}
	for _, f := range fields {
		if v, ok := d[f]; ok {
			out[f] = cloneValue(v)
		}
	}
	return out
}
