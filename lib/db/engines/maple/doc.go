// Package maple implements an in-memory engine for the db.Opener interface.
// Records live in concurrent maps (xsync.MapOf), one per object store, and
// are optionally written to a snapshot file when a database is closed.
//
// The package focuses on:
//   - Cheap transactions: no copy-on-write, writes are buffered per
//     transaction and applied on commit
//   - Predictable locking: one RW lock per object store plus one per database
//   - Restarts without a storage engine: binary snapshots with a magic number
//     and format version
//
// Key Components:
//
//   - opener: Registry of named databases. Databases live as long as the
//     opener, so closing and reopening a database keeps its data, similar to
//     a browser object store that outlives the page's connection.
//
//   - mapleDatabase: Schema version and object stores of one database. Its
//     RW lock is held shared by every transaction and exclusively by upgrades
//     and Load, which makes an upgrade wait for running transactions and
//     block new ones.
//
//   - tx: A transaction locks the stores of its scope in sorted order,
//     exclusively for read-write and shared for read-only. This serializes
//     writers per store and gives readers a stable view. Writes are kept in
//     a per-transaction overlay (internal.Write) that reads consult first,
//     so a transaction always reads its own writes.
//
//   - Snapshots: Save and Load implement db.Snapshotter with a little endian
//     binary format (see snapshot.go). Load only replaces the state after the
//     whole input has been read.
//
// Thread-safety:
//
// Openers and handles are safe for concurrent use, transactions are not. A
// goroutine must not begin a second transaction on a store while it still
// holds a read-write transaction on it.
//
// Usage:
//
//	opener := maple.NewOpener(&maple.Options{SnapshotDir: "./data"})
//	database, err := opener.Open(ctx, "crm", 1, func(tx db.UpgradeTx, oldV, newV uint64) error {
//		_, err := tx.CreateObjectStore("leads", db.StoreOptions{KeyPath: "_id"})
//		return err
//	})
package maple
