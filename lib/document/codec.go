package document

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// --------------------------------------------------------------------------
// Binary Record Format
// --------------------------------------------------------------------------

/*
A record is one format byte followed by the encoded document:

	record   = codecVersion value(document)
	value    = tag payload
	null     = 0x00
	false    = 0x01
	true     = 0x02
	int      = 0x03 zigzag-varint
	float    = 0x04 8 bytes (IEEE 754, little endian)
	string   = 0x05 uvarint(len) bytes
	array    = 0x06 uvarint(n) value*n
	document = 0x07 uvarint(n) (uvarint(len) key value)*n   keys sorted

The encoding is deterministic: equal documents always produce equal bytes.
*/

const codecVersion = 1

const (
	tagNull byte = iota
	tagFalse
	tagTrue
	tagInt
	tagFloat
	tagString
	tagArray
	tagDocument
)

// maxDepth bounds nesting when decoding untrusted input.
const maxDepth = 100

// ErrCorrupt is returned when a record cannot be decoded.
var ErrCorrupt = errors.New("document: corrupt record")

// Encode serializes a document into the binary record format.
func Encode(d Document) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, codecVersion)
	return appendValue(buf, d)
}

// Decode parses a record produced by Encode.
func Decode(b []byte) (Document, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty record", ErrCorrupt)
	}
	if b[0] != codecVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, b[0])
	}

	v, rest, err := readValue(b[1:], 0)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(rest))
	}
	d, ok := v.(Document)
	if !ok {
		return nil, fmt.Errorf("%w: record is a %s, not a document", ErrCorrupt, v.Kind())
	}
	return d, nil
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func appendValue(buf []byte, v Value) []byte {
	switch val := v.(type) {
	case nil, Null:
		return append(buf, tagNull)
	case Bool:
		if val {
			return append(buf, tagTrue)
		}
		return append(buf, tagFalse)
	case Int:
		buf = append(buf, tagInt)
		return binary.AppendVarint(buf, int64(val))
	case Float:
		buf = append(buf, tagFloat)
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(float64(val)))
	case String:
		buf = append(buf, tagString)
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		return append(buf, val...)
	case Array:
		buf = append(buf, tagArray)
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		for _, item := range val {
			buf = appendValue(buf, item)
		}
		return buf
	case Document:
		buf = append(buf, tagDocument)
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		for _, k := range val.Keys() {
			buf = binary.AppendUvarint(buf, uint64(len(k)))
			buf = append(buf, k...)
			buf = appendValue(buf, val[k])
		}
		return buf
	default:
		panic(fmt.Sprintf("document: unknown value type %T", v))
	}
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

func readValue(b []byte, depth int) (Value, []byte, error) {
	if depth > maxDepth {
		return nil, nil, fmt.Errorf("%w: nesting deeper than %d", ErrCorrupt, maxDepth)
	}
	if len(b) == 0 {
		return nil, nil, fmt.Errorf("%w: unexpected end of input", ErrCorrupt)
	}

	tag, b := b[0], b[1:]
	switch tag {
	case tagNull:
		return Null{}, b, nil
	case tagFalse:
		return Bool(false), b, nil
	case tagTrue:
		return Bool(true), b, nil
	case tagInt:
		i, n := binary.Varint(b)
		if n <= 0 {
			return nil, nil, fmt.Errorf("%w: bad int", ErrCorrupt)
		}
		return Int(i), b[n:], nil
	case tagFloat:
		if len(b) < 8 {
			return nil, nil, fmt.Errorf("%w: short float", ErrCorrupt)
		}
		return Float(math.Float64frombits(binary.LittleEndian.Uint64(b))), b[8:], nil
	case tagString:
		s, rest, err := readString(b)
		if err != nil {
			return nil, nil, err
		}
		return String(s), rest, nil
	case tagArray:
		n, rest, err := readLen(b)
		if err != nil {
			return nil, nil, err
		}
		out := make(Array, 0, n)
		for i := 0; i < n; i++ {
			var item Value
			item, rest, err = readValue(rest, depth+1)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, item)
		}
		return out, rest, nil
	case tagDocument:
		n, rest, err := readLen(b)
		if err != nil {
			return nil, nil, err
		}
		out := make(Document, n)
		for i := 0; i < n; i++ {
			var (
				key  string
				item Value
			)
			key, rest, err = readString(rest)
			if err != nil {
				return nil, nil, err
			}
			item, rest, err = readValue(rest, depth+1)
			if err != nil {
				return nil, nil, err
			}
			out[key] = item
		}
		return out, rest, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrCorrupt, tag)
	}
}

// readLen reads a uvarint element count and sanity checks it against the
// remaining input (every element needs at least one byte).
func readLen(b []byte) (int, []byte, error) {
	n, k := binary.Uvarint(b)
	if k <= 0 {
		return 0, nil, fmt.Errorf("%w: bad length", ErrCorrupt)
	}
	b = b[k:]
	if n > uint64(len(b)) {
		return 0, nil, fmt.Errorf("%w: length %d exceeds input", ErrCorrupt, n)
	}
	return int(n), b, nil
}

func readString(b []byte) (string, []byte, error) {
	n, rest, err := readLen(b)
	if err != nil {
		return "", nil, err
	}
	return string(rest[:n]), rest[n:], nil
}
