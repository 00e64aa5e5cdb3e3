package query

import (
	"testing"

	"github.com/ValentinKolb/dDoc/lib/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func people() []document.Document {
	return []document.Document{
		{"_id": document.String("1"), "name": document.String("Alice"), "age": document.Int(30)},
		{"_id": document.String("2"), "name": document.String("alice"), "age": document.Float(30)},
		{"_id": document.String("3"), "name": document.String("Anne"), "tags": document.Array{document.String("a")}},
		{"_id": document.String("4"), "name": document.String("Bob"), "nick": document.Null{}},
		{"_id": document.String("5"), "name": document.Int(5)},
	}
}

func ids(docs []document.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		id, _ := d.ID()
		out = append(out, id)
	}
	return out
}

func TestEmptyFilterMatchesAll(t *testing.T) {
	assert.Len(t, Filter{}.Apply(people()), 5)
	assert.Len(t, Filter(nil).Apply(people()), 5)
}

func TestEquals(t *testing.T) {
	f := Filter{Eq("name", document.String("Alice"))}
	assert.Equal(t, []string{"1"}, ids(f.Apply(people())))

	// int and float compare numerically
	f = Filter{Eq("age", document.Int(30))}
	assert.Equal(t, []string{"1", "2"}, ids(f.Apply(people())))

	// missing field never matches null
	f = Filter{Eq("nick", document.Null{})}
	assert.Equal(t, []string{"4"}, ids(f.Apply(people())))

	f = Filter{Eq("tags", document.Array{document.String("a")})}
	assert.Equal(t, []string{"3"}, ids(f.Apply(people())))
}

func TestConjunction(t *testing.T) {
	f := Filter{
		Eq("age", document.Int(30)),
		MustRegex("name", "^A", ""),
	}
	assert.Equal(t, []string{"1"}, ids(f.Apply(people())))
}

func TestMatches(t *testing.T) {
	f := Filter{MustRegex("name", "^A", "i")}
	assert.Equal(t, []string{"1", "2", "3"}, ids(f.Apply(people())))

	f = Filter{MustRegex("name", "^A", "")}
	assert.Equal(t, []string{"1", "3"}, ids(f.Apply(people())))

	multi := document.Document{"text": document.String("one\ntwo")}
	assert.False(t, MustRegex("text", "^two", "").Match(multi))
	assert.True(t, MustRegex("text", "^two", "m").Match(multi))
	assert.False(t, MustRegex("text", "one.two", "").Match(multi))
	assert.True(t, MustRegex("text", "one.two", "s").Match(multi))
}

func TestMatchesRequiresString(t *testing.T) {
	f := Filter{MustRegex("name", "5", "")}
	assert.Empty(t, f.Apply(people()))
}

func TestRegexErrors(t *testing.T) {
	_, err := Regex("name", "(", "")
	assert.Error(t, err)
	_, err = Regex("name", "a", "x")
	assert.Error(t, err)

	f := Filter{Matches{Field: "name", Pattern: "["}}
	assert.Error(t, f.Validate())
}

func TestValidateCompilesLiteralMatches(t *testing.T) {
	f := Filter{Matches{Field: "name", Pattern: "^b", Flags: "i"}}
	require.NoError(t, f.Validate())
	assert.NotNil(t, f[0].(Matches).re)
	assert.Equal(t, []string{"4"}, ids(f.Apply(people())))

	assert.Error(t, Filter{Eq("", document.Int(1))}.Validate())
	assert.Error(t, Filter{nil}.Validate())
}

func TestIDEquals(t *testing.T) {
	id, ok := ByID("x").IDEquals()
	assert.True(t, ok)
	assert.Equal(t, "x", id)

	_, ok = Filter{Eq("name", document.String("x"))}.IDEquals()
	assert.False(t, ok)
	_, ok = Filter{Eq("_id", document.Int(1))}.IDEquals()
	assert.False(t, ok)
	_, ok = Filter{MustRegex("_id", "x", "")}.IDEquals()
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	spec := document.MustFromMap(map[string]any{
		"name": map[string]any{"$regex": "^a", "$options": "i"},
		"age":  30,
		"meta": map[string]any{"$gt": 3},
	})
	f, err := Parse(spec)
	require.NoError(t, err)
	require.Len(t, f, 3)

	assert.Equal(t, Eq("age", document.Int(30)), f[0])
	assert.Equal(t, Eq("meta", document.Document{"$gt": document.Int(3)}), f[1])
	m, ok := f[2].(Matches)
	require.True(t, ok)
	assert.Equal(t, "^a", m.Pattern)
	assert.Equal(t, "i", m.Flags)

	assert.Equal(t, []string{"1", "2", "3"}, ids(f[2:].Apply(people())))
}

func TestParseErrors(t *testing.T) {
	cases := map[string]map[string]any{
		"patternNotString": {"name": map[string]any{"$regex": 1}},
		"optionsNotString": {"name": map[string]any{"$regex": "a", "$options": 1}},
		"badPattern":       {"name": map[string]any{"$regex": "("}},
		"badFlag":          {"name": map[string]any{"$regex": "a", "$options": "g"}},
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(document.MustFromMap(spec))
			assert.Error(t, err)
		})
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	f := Filter{
		Eq("age", document.Int(30)),
		MustRegex("name", "^a", "i"),
	}
	back, err := Parse(f.Document())
	require.NoError(t, err)
	assert.Equal(t, f[0], back[0])
	assert.Equal(t, f[1].(Matches).Pattern, back[1].(Matches).Pattern)
	assert.Equal(t, f[1].(Matches).Flags, back[1].(Matches).Flags)
}

func TestEncodeRoundTrip(t *testing.T) {
	f := Filter{
		Eq("name", document.String("Alice")),
		Eq("name", document.String("Bob")),
		Eq("meta", document.Document{"$regex": document.String("^A")}),
		MustRegex("name", "^a", "is"),
	}
	back, err := Decode(f.Encode())
	require.NoError(t, err)
	require.Len(t, back, 4)
	assert.Equal(t, f[0], back[0])
	assert.Equal(t, f[1], back[1])
	assert.Equal(t, f[2], back[2], "literal object stays an equality")
	m, ok := back[3].(Matches)
	require.True(t, ok)
	assert.Equal(t, "^a", m.Pattern)
	assert.Equal(t, "is", m.Flags)

	// conditions on one field are all kept
	assert.Empty(t, back.Apply(people()))

	empty, err := Decode(Filter(nil).Encode())
	require.NoError(t, err)
	assert.Empty(t, empty)

	// survives the binary codec
	wire, err := document.Decode(document.Encode(f.Encode()))
	require.NoError(t, err)
	back, err = Decode(wire)
	require.NoError(t, err)
	assert.Len(t, back, 4)
}

func TestDecodeErrors(t *testing.T) {
	cond := func(fields map[string]any) map[string]any {
		return map[string]any{"conditions": []any{fields}}
	}
	cases := map[string]map[string]any{
		"missingConditions":  {"name": "Alice"},
		"conditionsNotArray": {"conditions": "x"},
		"entryNotDocument":   {"conditions": []any{"x"}},
		"unknownKind":        cond(map[string]any{"kind": "gt", "field": "a", "value": 1}),
		"emptyField":         cond(map[string]any{"kind": "eq", "field": "", "value": 1}),
		"missingValue":       cond(map[string]any{"kind": "eq", "field": "a"}),
		"patternNotString":   cond(map[string]any{"kind": "regex", "field": "a", "pattern": 1}),
		"badPattern":         cond(map[string]any{"kind": "regex", "field": "a", "pattern": "("}),
		"badFlag":            cond(map[string]any{"kind": "regex", "field": "a", "pattern": "a", "flags": "g"}),
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(document.MustFromMap(spec))
			assert.Error(t, err)
		})
	}
}
