package document

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Document {
	return Document{
		"_id":    String("lead-1"),
		"name":   String("Alice"),
		"age":    Int(42),
		"score":  Float(9.5),
		"active": Bool(true),
		"notes":  Null{},
		"tags":   Array{String("kfc"), Int(-3), Float(2)},
		"address": Document{
			"city": String("San Antonio"),
			"zip":  Int(78205),
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	doc := sample()

	rec := Encode(doc)
	back, err := Decode(rec)
	require.NoError(t, err)
	assert.True(t, Equal(doc, back), "decoded document differs: %v", back)

	// keeps the int/float distinction
	assert.Equal(t, KindFloat, back["tags"].(Array)[2].Kind())
	assert.Equal(t, KindInt, back["age"].Kind())
}

func TestEncodeIsDeterministic(t *testing.T) {
	a := sample()
	b := sample()
	assert.Equal(t, Encode(a), Encode(b))
}

func TestEncodeEdgeValues(t *testing.T) {
	doc := Document{
		"min":   Int(math.MinInt64),
		"max":   Int(math.MaxInt64),
		"neg0":  Float(math.Copysign(0, -1)),
		"empty": String(""),
		"utf8":  String("Grüße 🌮"),
		"arr":   Array{},
		"obj":   Document{},
		"nilv":  nil,
	}
	back, err := Decode(Encode(doc))
	require.NoError(t, err)
	assert.Equal(t, Int(math.MinInt64), back["min"])
	assert.Equal(t, Int(math.MaxInt64), back["max"])
	assert.Equal(t, String("Grüße 🌮"), back["utf8"])
	assert.Equal(t, Null{}, back["nilv"])
	assert.Equal(t, Array{}, back["arr"])
	assert.Equal(t, Document{}, back["obj"])
}

func TestDecodeRejectsCorruptInput(t *testing.T) {
	rec := Encode(sample())

	cases := map[string][]byte{
		"empty":        {},
		"wrongVersion": append([]byte{99}, rec[1:]...),
		"truncated":    rec[:len(rec)/2],
		"trailing":     append(append([]byte{}, rec...), 0x00),
		"notDocument":  {codecVersion, tagInt, 0x02},
		"unknownTag":   {codecVersion, 0x7f},
		"hugeLength":   {codecVersion, tagDocument, 0xff, 0xff, 0xff, 0x0f},
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(b)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	doc := sample()

	b, err := doc.MarshalJSON()
	require.NoError(t, err)

	back, err := ParseJSON(b)
	require.NoError(t, err)
	assert.True(t, Equal(doc, back), "got %s", b)
	assert.Equal(t, KindFloat, back["tags"].(Array)[2].Kind(), "2.0 must stay a float")
}

func TestJSONSortedKeys(t *testing.T) {
	doc := Document{"b": Int(1), "a": Int(2), "c": Document{"z": Null{}, "y": Bool(false)}}
	b, err := doc.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":{"y":false,"z":null}}`, string(b))
}

func TestJSONRejectsNaN(t *testing.T) {
	_, err := Document{"x": Float(math.NaN())}.MarshalJSON()
	assert.Error(t, err)
}

func TestParseJSONRequiresObject(t *testing.T) {
	_, err := ParseJSON([]byte(`[1,2]`))
	assert.Error(t, err)
	_, err = ParseJSON([]byte(`null`))
	assert.Error(t, err)
}

func TestFromAny(t *testing.T) {
	doc, err := FromMap(map[string]any{
		"i":   7,
		"u":   uint32(8),
		"f":   float32(1.5),
		"s":   "x",
		"b":   true,
		"n":   nil,
		"ss":  []string{"a", "b"},
		"m":   map[string]int{"k": 1},
		"any": []any{1, "two", 3.0},
	})
	require.NoError(t, err)

	assert.Equal(t, Int(7), doc["i"])
	assert.Equal(t, Int(8), doc["u"])
	assert.Equal(t, Float(1.5), doc["f"])
	assert.Equal(t, Null{}, doc["n"])
	assert.Equal(t, Array{String("a"), String("b")}, doc["ss"])
	assert.Equal(t, Document{"k": Int(1)}, doc["m"])
	assert.Equal(t, Array{Int(1), String("two"), Float(3)}, doc["any"])

	_, err = FromAny(uint64(math.MaxUint64))
	assert.Error(t, err)
	_, err = FromAny(map[int]string{1: "x"})
	assert.Error(t, err)
	_, err = FromAny(make(chan int))
	assert.Error(t, err)
}

func TestToAny(t *testing.T) {
	m := sample().Map()
	assert.Equal(t, "Alice", m["name"])
	assert.Equal(t, int64(42), m["age"])
	assert.Nil(t, m["notes"])
	assert.Equal(t, []any{"kfc", int64(-3), float64(2)}, m["tags"])
	assert.Equal(t, map[string]any{"city": "San Antonio", "zip": int64(78205)}, m["address"])
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Int(1), Float(1)))
	assert.True(t, Equal(Float(1), Int(1)))
	assert.False(t, Equal(Int(1), String("1")))
	assert.False(t, Equal(Null{}, Bool(false)))
	assert.True(t, Equal(nil, Null{}))
	assert.False(t, Equal(Array{Int(1)}, Array{Int(1), Int(2)}))
	assert.False(t, Equal(Document{"a": Int(1)}, Document{"b": Int(1)}))
	assert.True(t, Equal(sample(), sample()))
}

func TestCloneIsDeep(t *testing.T) {
	doc := sample()
	clone := doc.Clone()

	clone["address"].(Document)["city"] = String("Austin")
	clone["tags"].(Array)[0] = String("changed")

	assert.Equal(t, String("San Antonio"), doc["address"].(Document)["city"])
	assert.Equal(t, String("kfc"), doc["tags"].(Array)[0])
}

func TestIDHelpers(t *testing.T) {
	doc := Document{"name": String("x")}
	_, ok := doc.ID()
	assert.False(t, ok)
	assert.False(t, doc.HasID())

	withID := doc.WithID("abc")
	id, ok := withID.ID()
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
	assert.False(t, doc.HasID(), "WithID must not modify the receiver")

	_, ok = Document{"_id": Int(1)}.ID()
	assert.False(t, ok)
}
