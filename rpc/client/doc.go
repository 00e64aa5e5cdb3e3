// Package client provides a store.IStore that talks to a document server
// over an RPC transport.
//
// NewRPCStore connects the transport and returns a store whose collections
// forward every operation as a common.Message. Callers cannot tell it apart
// from a local store:
//
//   - errors are *store.Error values with the code reported by the server,
//     so errors.Is(err, store.ErrDuplicateKey) works the same way remotely
//   - transport failures surface as store.ErrConnection
//   - Find returns a fully materialized cursor
//
// The names of the declared collections are fetched once and cached until
// Close is called. Requests are not retried here, retries are the business
// of the transport.
//
// Usage:
//
//	s, err := client.NewRPCStore(config, http.NewHttpClientTransport(), serializer.NewBinarySerializer())
//	leads, err := s.Collection("leads")
//	res, err := leads.InsertOne(ctx, document.Document{"name": document.String("Alice")})
package client
