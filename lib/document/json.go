package document

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

// MarshalJSON encodes the document as a JSON object with sorted keys.
// Floats with an integral value are written with a trailing ".0" so that
// they decode back into Float rather than Int.
func (d Document) MarshalJSON() ([]byte, error) {
	return appendJSON(nil, d)
}

// UnmarshalJSON decodes a JSON object. Integral numbers become Int, all
// other numbers become Float.
func (d *Document) UnmarshalJSON(b []byte) error {
	parsed, err := ParseJSON(b)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseJSON decodes a JSON object into a Document.
func ParseJSON(b []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("document: expected a JSON object")
	}
	return FromMap(raw)
}

func appendJSON(buf []byte, v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return append(buf, "null"...), nil
	case Bool:
		return strconv.AppendBool(buf, bool(val)), nil
	case Int:
		return strconv.AppendInt(buf, int64(val), 10), nil
	case Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("document: unsupported float value %v", f)
		}
		start := len(buf)
		buf = strconv.AppendFloat(buf, f, 'g', -1, 64)
		if !bytes.ContainsAny(buf[start:], ".eE") {
			buf = append(buf, ".0"...)
		}
		return buf, nil
	case String:
		s, err := json.Marshal(string(val))
		if err != nil {
			return nil, err
		}
		return append(buf, s...), nil
	case Array:
		buf = append(buf, '[')
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = appendJSON(buf, item); err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case Document:
		buf = append(buf, '{')
		for i, k := range val.Keys() {
			if i > 0 {
				buf = append(buf, ',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, key...)
			buf = append(buf, ':')
			if buf, err = appendJSON(buf, val[k]); err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	default:
		return nil, fmt.Errorf("document: unknown value type %T", v)
	}
}
