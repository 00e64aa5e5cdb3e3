package query

import (
	"fmt"

	"github.com/ValentinKolb/dDoc/lib/document"
)

// Keys of the tagged filter form
const (
	conditionsKey = "conditions"
	kindKey       = "kind"
	fieldKey      = "field"
	valueKey      = "value"
	patternKey    = "pattern"
	flagsKey      = "flags"

	kindEquals  = "eq"
	kindMatches = "regex"
)

// Encode returns the tagged form of the filter, one entry per condition in
// filter order:
//
//	{"conditions": [
//		{"kind": "eq", "field": "name", "value": "Alice"},
//		{"kind": "regex", "field": "name", "pattern": "^A", "flags": "i"},
//	]}
//
// Unlike Document it keeps several conditions on one field and literal
// values that look like operators, so Decode(f.Encode()) matches exactly the
// documents f matches.
func (f Filter) Encode() document.Document {
	conditions := make(document.Array, 0, len(f))
	for _, c := range f {
		switch cond := c.(type) {
		case Equals:
			conditions = append(conditions, document.Document{
				kindKey:  document.String(kindEquals),
				fieldKey: document.String(cond.Field),
				valueKey: document.Clone(cond.Value),
			})
		case Matches:
			conditions = append(conditions, document.Document{
				kindKey:    document.String(kindMatches),
				fieldKey:   document.String(cond.Field),
				patternKey: document.String(cond.Pattern),
				flagsKey:   document.String(cond.Flags),
			})
		}
	}
	return document.Document{conditionsKey: conditions}
}

// Decode is the inverse of Encode. Patterns are compiled, so an invalid
// pattern or flag is reported here.
func Decode(d document.Document) (Filter, error) {
	raw, ok := d[conditionsKey]
	if !ok {
		return nil, fmt.Errorf("query: missing %q", conditionsKey)
	}
	conditions, ok := raw.(document.Array)
	if !ok {
		return nil, fmt.Errorf("query: %q must be an array", conditionsKey)
	}

	f := make(Filter, 0, len(conditions))
	for i, v := range conditions {
		entry, ok := v.(document.Document)
		if !ok {
			return nil, fmt.Errorf("query: condition %d is not a document", i)
		}
		kind, err := stringField(entry, kindKey, i)
		if err != nil {
			return nil, err
		}
		field, err := stringField(entry, fieldKey, i)
		if err != nil {
			return nil, err
		}
		if field == "" {
			return nil, fmt.Errorf("query: condition %d has an empty field name", i)
		}

		switch kind {
		case kindEquals:
			value, ok := entry[valueKey]
			if !ok {
				return nil, fmt.Errorf("query: condition %d has no %q", i, valueKey)
			}
			f = append(f, Eq(field, value))
		case kindMatches:
			pattern, err := stringField(entry, patternKey, i)
			if err != nil {
				return nil, err
			}
			var flags string
			if _, has := entry[flagsKey]; has {
				if flags, err = stringField(entry, flagsKey, i); err != nil {
					return nil, err
				}
			}
			m, err := Regex(field, pattern, flags)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field, err)
			}
			f = append(f, m)
		default:
			return nil, fmt.Errorf("query: condition %d has unknown kind %q", i, kind)
		}
	}
	return f, nil
}

func stringField(entry document.Document, key string, i int) (string, error) {
	v, ok := entry[key].(document.String)
	if !ok {
		return "", fmt.Errorf("query: %q of condition %d must be a string", key, i)
	}
	return string(v), nil
}
