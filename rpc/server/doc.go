// Package server exposes a local document store over an RPC transport.
//
// The server builds an engine opener from its configuration (maple, bolt or
// sqlite), opens the configured database through an lstore.Connection and
// serves every request against the resulting store.IStore.
//
// Key Components:
//
//   - RPCServer: owns the store, the transport and the serializer. Init opens
//     the database eagerly so configuration mistakes (a missing data
//     directory, a schema downgrade) fail on startup instead of on the first
//     request. Handle is the transport.ServerHandleFunc that decodes a
//     request, dispatches it and encodes the response.
//
//   - IRPCServerAdapter: translates a common.Message into a call on a
//     collection of the store. NewIStoreServerAdapter caches the collection
//     facades by name in an xsync map.
//
// Errors never leave the server as transport failures. They are encoded into
// the response with their store.RetCode, so the client re-raises the same
// *store.Error.
//
// Usage:
//
//	s := server.NewRPCServer(config, http.NewHttpServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//		log.Fatal(err)
//	}
package server
