package query

import (
	"fmt"

	"github.com/ValentinKolb/dDoc/lib/document"
)

const (
	regexOp   = "$regex"
	optionsOp = "$options"
)

// Parse translates the dynamic filter shape into a Filter.
//
//	{"name": "Alice"}                                -> Equals
//	{"name": {"$regex": "^a", "$options": "i"}}      -> Matches
//
// Any other nested object, including ones with unknown operators, is compared
// by literal equality against the object itself. Conditions are produced in
// sorted field order.
func Parse(spec document.Document) (Filter, error) {
	f := make(Filter, 0, len(spec))
	for _, field := range spec.Keys() {
		v, _ := spec.Get(field)

		op, ok := v.(document.Document)
		if !ok || !isRegexSpec(op) {
			f = append(f, Eq(field, v))
			continue
		}

		pattern, ok := op[regexOp].(document.String)
		if !ok {
			return nil, fmt.Errorf("query: %s of field %q must be a string", regexOp, field)
		}
		var flags document.String
		if raw, has := op[optionsOp]; has {
			if flags, ok = raw.(document.String); !ok {
				return nil, fmt.Errorf("query: %s of field %q must be a string", optionsOp, field)
			}
		}
		m, err := Regex(field, string(pattern), string(flags))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		f = append(f, m)
	}
	return f, nil
}

// isRegexSpec reports whether the object is exactly {$regex[, $options]}.
func isRegexSpec(op document.Document) bool {
	if _, ok := op[regexOp]; !ok {
		return false
	}
	for k := range op {
		if k != regexOp && k != optionsOp {
			return false
		}
	}
	return true
}
