package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ValentinKolb/dDoc/lib/document"
)

// --------------------------------------------------------------------------
// Conditions
// --------------------------------------------------------------------------

// Condition is a single predicate on one top level field of a document.
// The set of implementations is closed: Equals and Matches.
type Condition interface {
	// Match reports whether the document satisfies the condition.
	Match(doc document.Document) bool
	// FieldName returns the field the condition inspects.
	FieldName() string
	isCondition()
}

// Equals requires the field to be present and strictly equal to Value.
// A missing field never matches, not even against Null.
type Equals struct {
	Field string
	Value document.Value
}

// Matches requires the field to be a string that satisfies the regular
// expression Pattern. Flags is any combination of "i" (case-insensitive),
// "m" (multi-line) and "s" (dot matches newline).
type Matches struct {
	Field   string
	Pattern string
	Flags   string

	re *regexp.Regexp
}

func (Equals) isCondition()  {}
func (Matches) isCondition() {}

func (c Equals) FieldName() string  { return c.Field }
func (c Matches) FieldName() string { return c.Field }

func (c Equals) Match(doc document.Document) bool {
	v, ok := doc.Get(c.Field)
	if !ok {
		return false
	}
	return document.Equal(v, c.Value)
}

func (c Matches) Match(doc document.Document) bool {
	v, ok := doc.Get(c.Field)
	if !ok {
		return false
	}
	s, ok := v.(document.String)
	if !ok {
		return false
	}
	re := c.re
	if re == nil {
		var err error
		if re, err = compile(c.Pattern, c.Flags); err != nil {
			return false
		}
	}
	return re.MatchString(string(s))
}

// Eq returns an equality condition.
func Eq(field string, value document.Value) Equals {
	return Equals{Field: field, Value: value}
}

// Regex returns a compiled pattern condition.
func Regex(field, pattern, flags string) (Matches, error) {
	re, err := compile(pattern, flags)
	if err != nil {
		return Matches{}, err
	}
	return Matches{Field: field, Pattern: pattern, Flags: flags, re: re}, nil
}

// MustRegex is like Regex but panics if the pattern does not compile.
func MustRegex(field, pattern, flags string) Matches {
	m, err := Regex(field, pattern, flags)
	if err != nil {
		panic(err)
	}
	return m
}

func compile(pattern, flags string) (*regexp.Regexp, error) {
	var prefix strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(prefix.String(), f) {
				prefix.WriteRune(f)
			}
		default:
			return nil, fmt.Errorf("query: unsupported regex flag %q", f)
		}
	}
	if prefix.Len() > 0 {
		pattern = "(?" + prefix.String() + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("query: invalid pattern: %w", err)
	}
	return re, nil
}

// --------------------------------------------------------------------------
// Filter
// --------------------------------------------------------------------------

// Filter is a conjunction of conditions. The empty filter matches every
// document.
type Filter []Condition

// ByID returns a filter that selects the document with the given _id.
func ByID(id string) Filter {
	return Filter{Eq(document.IDField, document.String(id))}
}

// Validate compiles every pattern condition of the filter in place and
// returns the first error.
func (f Filter) Validate() error {
	for i, c := range f {
		switch cond := c.(type) {
		case Equals:
			if cond.Field == "" {
				return fmt.Errorf("query: condition %d has an empty field name", i)
			}
		case Matches:
			if cond.Field == "" {
				return fmt.Errorf("query: condition %d has an empty field name", i)
			}
			if cond.re == nil {
				re, err := compile(cond.Pattern, cond.Flags)
				if err != nil {
					return err
				}
				cond.re = re
				f[i] = cond
			}
		case nil:
			return fmt.Errorf("query: condition %d is nil", i)
		}
	}
	return nil
}

// Match reports whether the document satisfies every condition.
func (f Filter) Match(doc document.Document) bool {
	for _, c := range f {
		if !c.Match(doc) {
			return false
		}
	}
	return true
}

// Apply returns the documents that match the filter, preserving order.
func (f Filter) Apply(docs []document.Document) []document.Document {
	out := make([]document.Document, 0, len(docs))
	for _, doc := range docs {
		if f.Match(doc) {
			out = append(out, doc)
		}
	}
	return out
}

// IDEquals returns the _id the filter selects on, if it has an equality
// condition on _id with a string value.
func (f Filter) IDEquals() (string, bool) {
	for _, c := range f {
		eq, ok := c.(Equals)
		if !ok || eq.Field != document.IDField {
			continue
		}
		if id, ok := eq.Value.(document.String); ok {
			return string(id), true
		}
	}
	return "", false
}

// Document converts the filter back into its dynamic form, the inverse of
// Parse. If two conditions share a field the last one wins.
func (f Filter) Document() document.Document {
	out := make(document.Document, len(f))
	for _, c := range f {
		switch cond := c.(type) {
		case Equals:
			out[cond.Field] = document.Clone(cond.Value)
		case Matches:
			m := document.Document{regexOp: document.String(cond.Pattern)}
			if cond.Flags != "" {
				m[optionsOp] = document.String(cond.Flags)
			}
			out[cond.Field] = m
		}
	}
	return out
}
