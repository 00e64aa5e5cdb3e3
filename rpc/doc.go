// Package rpc makes a document store reachable over the network. A server
// serves one local store, clients get a store.IStore that behaves like the
// local one.
//
// The package is organized into several subpackages:
//
//   - common: the Message protocol, server and client configuration and the
//     logger setup shared by all binaries.
//
//   - serializer: Message encodings (binary, JSON, gob).
//
//   - transport: the byte level contract between client and server, with an
//     HTTP implementation.
//
//   - server: opens the configured store and dispatches requests to its
//     collections.
//
//   - client: the remote store.IStore.
package rpc
