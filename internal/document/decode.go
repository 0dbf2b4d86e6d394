package document

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses a JSON object. Integral numbers become int64, everything else
// numeric becomes float64, nested objects become Document.
func Decode(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decode document: not an object")
	}
	return normalizeObject(raw), nil
}

// DecodeValue parses a single JSON value of any type, normalizing numbers the
// way Decode does.
func DecodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode value: trailing data")
	}
	return normalizeValue(raw), nil
}

// FromValue converts any JSON-marshalable value (typically a tagged struct)
// into a Document by round-tripping it through encoding/json.
func FromValue(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return Decode(data)
}

// Into decodes d into the value pointed to by target.
func (d Document) Into(target any) error {
	data, err := MarshalCanonical(d)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode into %T: %w", target, err)
	}
	return nil
}

func normalizeObject(m map[string]any) Document {
	out := make(Document, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, err := val.Float64()
		if err != nil {
			return val.String()
		}
		return f
	case map[string]any:
		return normalizeObject(val)
	case []any:
		for i := range val {
			val[i] = normalizeValue(val[i])
		}
		return val
	default:
		return val
	}
}
