// Package lstore implements the local document store on top of a db.ObjectDB
// engine. It is the embedded provider: no network, the database lives in
// the process.
//
// Components:
//
//   - Connection: owns the single database handle. The first operation opens
//     the database and runs the schema upgrade; concurrent callers share that
//     open instead of starting their own. Close resets the connection so the
//     next operation opens it again.
//
//   - upgradeSchema: the upgrade hook. It creates missing collections (keyed
//     by _id, no engine auto-increment) and their declared indexes, checking
//     for existing ones first.
//
//   - collection: the ICollection facade. Every operation runs in its own
//     transaction on one object store. Reads scan the whole collection and
//     filter in memory, writes encode documents with the document codec.
//
// Engine errors are converted to *store.Error: ErrKeyExists becomes
// RetCDuplicateKey, unknown collections RetCInvalidOperation, open failures
// RetCConnectionError and everything else RetCTransactionError. The engine
// error stays reachable through errors.Unwrap.
//
// Operations are counted and timed with VictoriaMetrics metrics
// (ddoc_store_ops_total, ddoc_store_errors_total, ddoc_store_op_duration_seconds).
package lstore
