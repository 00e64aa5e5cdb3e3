package store

import (
	"github.com/ValentinKolb/dDoc/lib/document"
)

// Cursor holds the materialized result of one Find. The result is fixed at
// construction and never observes later writes.
type Cursor struct {
	docs []document.Document
}

// NewCursor takes ownership of docs.
func NewCursor(docs []document.Document) *Cursor {
	return &Cursor{docs: docs}
}

// All drains the cursor into a slice. Every call returns an independent deep
// copy, so draining twice yields equal results.
func (c *Cursor) All() []document.Document {
	out := make([]document.Document, len(c.docs))
	for i, d := range c.docs {
		out[i] = d.Clone()
	}
	return out
}

// Len returns the number of documents in the cursor.
func (c *Cursor) Len() int {
	return len(c.docs)
}

// First returns a copy of the first document, if any.
func (c *Cursor) First() (document.Document, bool) {
	if len(c.docs) == 0 {
		return nil, false
	}
	return c.docs[0].Clone(), true
}
