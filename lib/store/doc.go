// Package store provides the document store API: named collections of
// schemaless documents with a unique string _id, declared indexes, query
// filters, cursors and single document mutation.
//
// Key Components:
//
//   - IStore / ICollection: The interfaces every provider implements. The
//     method names and result shapes (InsertOneResult, UpdateResult,
//     DeleteResult, Cursor) are the same for the local and the remote store,
//     so callers can fall back from one to the other without changes.
//
//   - Error System: Every error returned by a store is a *Error carrying a
//     RetCode and, where there is one, the underlying cause. Codes can be
//     matched with errors.Is against the sentinels (ErrDuplicateKey,
//     ErrConnection, ...), while errors.Unwrap still reaches the cause.
//
//   - Schema: Declares the collections and their indexes at a version. The
//     schema is applied once per version bump by the engine's upgrade hook.
//
//   - Mutation: Update / ApplyUpdate implement the shallow "$set" merge,
//     IDGenerator produces ids for inserts that omit one.
//
// Implementations:
//
//   - Local Store (lstore): runs collections directly on a db.ObjectDB engine.
//     Available in the "github.com/ValentinKolb/dDoc/lib/store/lstore" package.
//
//   - Remote Store: the rpc client implements IStore over HTTP.
//     Available in the "github.com/ValentinKolb/dDoc/rpc/client" package.
package store
