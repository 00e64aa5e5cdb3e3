package util

import (
	"testing"

	"github.com/ValentinKolb/dDoc/lib/document"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCollections(t *testing.T) {
	specs, err := ParseCollections("leads:email!,status; notes ;")
	require.NoError(t, err)
	assert.Equal(t, []store.CollectionSpec{
		{Name: "leads", Indexes: []store.IndexSpec{
			{Name: "email", Field: "email", Unique: true},
			{Name: "status", Field: "status"},
		}},
		{Name: "notes"},
	}, specs)

	_, err = ParseCollections(" ; ")
	assert.Error(t, err)
	_, err = ParseCollections("leads:,")
	assert.Error(t, err)
}

func TestParseDocument(t *testing.T) {
	d, err := ParseDocument(`{"name": "Alice", "n": 3, "ratio": 0.5, "tags": ["a"], "addr": {"zip": 89073}}`)
	require.NoError(t, err)
	assert.Equal(t, document.Document{
		"name":  document.String("Alice"),
		"n":     document.Int(3),
		"ratio": document.Float(0.5),
		"tags":  document.Array{document.String("a")},
		"addr":  document.Document{"zip": document.Int(89073)},
	}, d)

	for _, bad := range []string{`[1]`, `null`, `{"a":`, `"text"`} {
		_, err := ParseDocument(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatDocument(t *testing.T) {
	out := FormatDocument(document.Document{"_id": document.String("a"), "n": document.Int(1)})
	assert.Contains(t, out, `"_id": "a"`)
	assert.Contains(t, out, `"n": 1`)
}

func TestWrapString(t *testing.T) {
	wrapped := WrapString("a b c")
	assert.Equal(t, "a b c", wrapped)

	long := WrapString("this sentence is definitely longer than the fifty characters that fit on a line")
	for _, line := range splitLines(long) {
		assert.LessOrEqual(t, len(line), Wrap)
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return append(lines, s[start:])
}
