// Package serializer turns common.Message values into bytes and back for the
// document store's RPC layer.
//
// Three implementations share the IRPCSerializer interface:
//
//   - binary: a compact custom format. A two byte flag field marks which
//     message fields are present and only those are written, lengths and
//     counters as uvarints. This is the default for servers and clients.
//
//   - json: goccy/go-json encoding. Larger and slower, but readable with curl
//     and easy to inspect while debugging.
//
//   - gob: Go's gob encoding. Every payload carries its type description,
//     which makes it the largest of the three.
//
// Documents, filters and updates inside a message are already encoded with
// the document package's binary codec, so the choice of serializer never
// changes the kind of a value (an Int stays an Int even under json).
//
// All implementations are stateless and safe for concurrent use.
//
// Usage:
//
//	s, ok := serializer.ByName("binary")
//	data, err := s.Serialize(*common.NewInsertOneRequest(doc))
//	// ... send data ...
//	var resp common.Message
//	err = s.Deserialize(received, &resp)
package serializer
