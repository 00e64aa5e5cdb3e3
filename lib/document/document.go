package document

import (
	"sort"
)

// IDField is the name of the only field every stored document must carry.
const IDField = "_id"

// --------------------------------------------------------------------------
// Value Kinds
// --------------------------------------------------------------------------

// Kind identifies the variant of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindDocument:
		return "document"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Value Variants
// --------------------------------------------------------------------------

// Value is a field value of a document. The set of implementations is closed:
// Null, Bool, Int, Float, String, Array and Document.
type Value interface {
	Kind() Kind
	isValue()
}

type (
	// Null is the absent/empty value.
	Null struct{}
	// Bool is a boolean value.
	Bool bool
	// Int is a signed 64-bit integer.
	Int int64
	// Float is a 64-bit floating point number.
	Float float64
	// String is a UTF-8 string.
	String string
	// Array is an ordered list of values.
	Array []Value
	// Document maps field names to values. Iteration helpers and all
	// encodings visit fields in sorted key order.
	Document map[string]Value
)

func (Null) Kind() Kind     { return KindNull }
func (Bool) Kind() Kind     { return KindBool }
func (Int) Kind() Kind      { return KindInt }
func (Float) Kind() Kind    { return KindFloat }
func (String) Kind() Kind   { return KindString }
func (Array) Kind() Kind    { return KindArray }
func (Document) Kind() Kind { return KindDocument }

func (Null) isValue()     {}
func (Bool) isValue()     {}
func (Int) isValue()      {}
func (Float) isValue()    {}
func (String) isValue()   {}
func (Array) isValue()    {}
func (Document) isValue() {}

// --------------------------------------------------------------------------
// Document Helpers
// --------------------------------------------------------------------------

// Keys returns the field names of the document in sorted order.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of a top level field.
// A field that is present but holds a nil interface is reported as Null.
func (d Document) Get(field string) (Value, bool) {
	v, ok := d[field]
	if !ok {
		return nil, false
	}
	if v == nil {
		return Null{}, true
	}
	return v, true
}

// ID returns the string identifier of the document.
// The boolean is false if the field is missing or not a String.
func (d Document) ID() (string, bool) {
	v, ok := d[IDField]
	if !ok {
		return "", false
	}
	s, ok := v.(String)
	return string(s), ok
}

// HasID reports whether the document carries an _id field of any kind.
func (d Document) HasID() bool {
	_, ok := d[IDField]
	return ok
}

// WithID returns a shallow copy of the document with _id set to id.
func (d Document) WithID(id string) Document {
	out := make(Document, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	out[IDField] = String(id)
	return out
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Clone(d).(Document)
}

// Clone returns a deep copy of a value. A nil value is returned as Null.
func Clone(v Value) Value {
	switch val := v.(type) {
	case nil:
		return Null{}
	case Array:
		out := make(Array, len(val))
		for i, item := range val {
			out[i] = Clone(item)
		}
		return out
	case Document:
		out := make(Document, len(val))
		for k, item := range val {
			out[k] = Clone(item)
		}
		return out
	default:
		// scalars are immutable
		return val
	}
}
