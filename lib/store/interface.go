package store

import (
	"context"

	"github.com/ValentinKolb/dDoc/lib/document"
	"github.com/ValentinKolb/dDoc/lib/query"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the entry point of a document store. Local and remote stores
// implement it the same way, so callers can swap providers freely.
// All errors returned by a store are of type *Error.
type IStore interface {
	// Collection returns the facade of a named collection.
	Collection(name string) (ICollection, error)
	// CollectionNames returns the names of all declared collections in sorted order.
	CollectionNames(ctx context.Context) ([]string, error)
	// Close releases the underlying connection. The store can be used again
	// afterward, the next operation starts a fresh connection.
	Close() error
}

// ICollection exposes the document operations of one collection. Every
// operation runs in its own transaction.
type ICollection interface {
	// Name returns the collection name.
	Name() string
	// InsertOne stores a new document. A missing _id is generated.
	// Fails with ErrDuplicateKey if a document with the same _id exists.
	InsertOne(ctx context.Context, doc document.Document) (InsertOneResult, error)
	// Find returns all documents that match the filter in _id order.
	Find(ctx context.Context, filter query.Filter) (*Cursor, error)
	// FindOne returns the first document that matches the filter.
	// The boolean is false if no document matches.
	FindOne(ctx context.Context, filter query.Filter) (document.Document, bool, error)
	// CountDocuments returns the number of documents that match the filter.
	CountDocuments(ctx context.Context, filter query.Filter) (int, error)
	// UpdateOne merges the update into the document selected by the _id of
	// match. A missing document is not an error, it yields zero counts.
	UpdateOne(ctx context.Context, match query.Filter, update Update) (UpdateResult, error)
	// DeleteOne removes the document selected by the _id of match.
	DeleteOne(ctx context.Context, match query.Filter) (DeleteResult, error)
}

// --------------------------------------------------------------------------
// Results
// --------------------------------------------------------------------------

type InsertOneResult struct {
	InsertedID string `json:"insertedId"`
}

type UpdateResult struct {
	MatchedCount  int `json:"matchedCount"`
	ModifiedCount int `json:"modifiedCount"`
}

type DeleteResult struct {
	DeletedCount int `json:"deletedCount"`
}
