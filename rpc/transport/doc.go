// Package transport defines the contract between the document store's RPC
// server and client and the wire that carries their messages.
//
// A transport moves opaque byte slices (serialized common.Message values)
// addressed to a collection. It knows nothing about documents or store
// semantics.
//
// Key Components:
//
//   - IRPCClientTransport: connects to one or more endpoints and sends a
//     request for a collection.
//
//   - IRPCServerTransport: receives requests and hands them to the registered
//     ServerHandleFunc.
//
// The only implementation is the http subpackage.
package transport
