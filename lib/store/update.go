package store

import (
	"fmt"

	"github.com/ValentinKolb/dDoc/lib/document"
)

const setOp = "$set"

// Update describes a single document mutation. Set lists the top level
// fields that replace the stored ones.
type Update struct {
	Set document.Document
}

// ParseUpdate translates the dynamic form {"$set": {...}} into an Update.
// Any other operator is rejected.
func ParseUpdate(spec document.Document) (Update, error) {
	var u Update
	for _, key := range spec.Keys() {
		if key != setOp {
			return Update{}, NewError(RetCInvalidOperation, fmt.Sprintf("unsupported update operator %q", key))
		}
		set, ok := spec[key].(document.Document)
		if !ok {
			return Update{}, NewError(RetCInvalidOperation, "$set expects a document")
		}
		u.Set = set
	}
	return u, nil
}

// Document converts the update back into its dynamic form.
func (u Update) Document() document.Document {
	set := u.Set.Clone()
	if set == nil {
		set = document.Document{}
	}
	return document.Document{setOp: set}
}

// ApplyUpdate returns a new document with the fields of the update merged
// onto existing. The merge is shallow, nested documents are replaced whole.
// Neither input is modified.
func ApplyUpdate(existing document.Document, update Update) document.Document {
	out := existing.Clone()
	if out == nil {
		out = make(document.Document, len(update.Set))
	}
	for field, value := range update.Set {
		out[field] = document.Clone(value)
	}
	return out
}
