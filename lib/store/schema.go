package store

import (
	"fmt"
	"sort"
	"strings"
)

// Schema declares the collections of a store at one version. Collections
// are additive: a newer version must keep every collection of older ones.
type Schema struct {
	Name        string           `json:"name"`
	Version     uint64           `json:"version"`
	Collections []CollectionSpec `json:"collections"`
}

type CollectionSpec struct {
	Name    string      `json:"name"`
	Indexes []IndexSpec `json:"indexes,omitempty"`
}

// IndexSpec declares a secondary index. Indexes are metadata only, queries
// always scan the whole collection.
type IndexSpec struct {
	Name   string `json:"name"`
	Field  string `json:"field"`
	Unique bool   `json:"unique,omitempty"`
}

// Validate checks the schema before any database is opened.
func (s Schema) Validate() error {
	if s.Name == "" {
		return NewError(RetCInvalidOperation, "schema name must not be empty")
	}
	if s.Version == 0 {
		return NewError(RetCInvalidOperation, "schema version must be at least 1")
	}
	seen := make(map[string]bool, len(s.Collections))
	for _, c := range s.Collections {
		if c.Name == "" {
			return NewError(RetCInvalidOperation, "collection name must not be empty")
		}
		if strings.HasPrefix(c.Name, "__") {
			return NewError(RetCInvalidOperation, fmt.Sprintf("collection name %q is reserved", c.Name))
		}
		if seen[c.Name] {
			return NewError(RetCInvalidOperation, fmt.Sprintf("duplicate collection %q", c.Name))
		}
		seen[c.Name] = true

		indexes := make(map[string]bool, len(c.Indexes))
		for _, idx := range c.Indexes {
			if idx.Name == "" || idx.Field == "" {
				return NewError(RetCInvalidOperation, fmt.Sprintf("index on %q needs a name and a field", c.Name))
			}
			if indexes[idx.Name] {
				return NewError(RetCInvalidOperation, fmt.Sprintf("duplicate index %q on %q", idx.Name, c.Name))
			}
			indexes[idx.Name] = true
		}
	}
	return nil
}

// CollectionNames returns the declared collection names in sorted order.
func (s Schema) CollectionNames() []string {
	names := make([]string, 0, len(s.Collections))
	for _, c := range s.Collections {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

// HasCollection reports whether the schema declares the collection.
func (s Schema) HasCollection(name string) bool {
	for _, c := range s.Collections {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ParseCollectionSpec parses the short form used on the command line:
//
//	leads                  a collection without indexes
//	leads:email,status     indexes named after their fields
//	leads:email!           a trailing "!" marks a unique index
func ParseCollectionSpec(s string) (CollectionSpec, error) {
	name, fields, hasFields := strings.Cut(strings.TrimSpace(s), ":")
	spec := CollectionSpec{Name: strings.TrimSpace(name)}
	if spec.Name == "" {
		return CollectionSpec{}, NewError(RetCInvalidOperation, fmt.Sprintf("invalid collection spec %q", s))
	}
	if !hasFields {
		return spec, nil
	}
	for _, field := range strings.Split(fields, ",") {
		field = strings.TrimSpace(field)
		unique := strings.HasSuffix(field, "!")
		field = strings.TrimSuffix(field, "!")
		if field == "" {
			return CollectionSpec{}, NewError(RetCInvalidOperation, fmt.Sprintf("invalid index in collection spec %q", s))
		}
		spec.Indexes = append(spec.Indexes, IndexSpec{Name: field, Field: field, Unique: unique})
	}
	return spec, nil
}
