// Package db defines the object database layer the document store is built on.
//
// An object database is a named, versioned container of object stores. Each
// object store maps string keys to opaque byte values and may carry a key path,
// an auto-increment counter and index declarations. All access happens through
// transactions that declare their scope (the stores they touch) and their mode
// (read-only or read-write) up front.
//
// Key Components:
//
//   - Opener: Opens a database by name and version. When the requested version
//     is newer than the stored one, the UpgradeFunc runs inside a single upgrade
//     transaction that may create object stores and indexes. The open fails
//     with ErrVersion when the requested version is lower than the stored one.
//
//   - ObjectDB: A handle to an open database. Begin starts a transaction,
//     GetInfo reports size statistics and SupportsFeature advertises optional
//     capabilities through the Feature flags.
//
//   - Tx / UpgradeTx: A transaction either commits all of its writes or none.
//     Upgrade transactions are finished by Open itself, calling Commit or Abort
//     on them returns ErrInvalidState.
//
//   - ObjectStore: Key-value access scoped to one transaction. GetAll returns
//     records in ascending key order.
//
// Implementations live in the engines sub packages:
//
//   - maple: in-memory, optionally snapshotted to a directory
//   - bolt: a bbolt file per database
//   - sqlite: a SQLite file per database
//
// All engines pass the conformance suite in the testing package.
package db
