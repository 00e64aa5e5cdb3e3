package db

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple  Implementation = "maple"
	ImplBolt   Implementation = "bolt"
	ImplSQLite Implementation = "sqlite"
)

// Feature represents engine features as bit flags
type Feature uint64

const (
	FeatureTransactions  Feature = 1 << iota // Support for Begin/Commit/Abort
	FeatureUpgrade                           // Support for versioned upgrade transactions
	FeatureIndexes                           // Support for index declarations
	FeatureAutoIncrement                     // Support for engine generated keys
	FeatureDurable                           // Committed data survives a process restart
	FeatureSnapshot                          // Support for Save and Load (see Snapshotter)
	FeatureParallelReads                     // Read-only transactions run concurrently
)

func (f Feature) String() string {
	switch f {
	case FeatureTransactions:
		return "Transactions"
	case FeatureUpgrade:
		return "Upgrade"
	case FeatureIndexes:
		return "Indexes"
	case FeatureAutoIncrement:
		return "AutoIncrement"
	case FeatureDurable:
		return "Durable"
	case FeatureSnapshot:
		return "Snapshot"
	case FeatureParallelReads:
		return "ParallelReads"
	default:
		return "Unknown"
	}
}

// Features splits a feature set into its single flags.
func (f Feature) Features() []Feature {
	var out []Feature
	for bit := FeatureTransactions; bit <= FeatureParallelReads; bit <<= 1 {
		if f&bit != 0 {
			out = append(out, bit)
		}
	}
	return out
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// TxMode is the access mode of a transaction.
type TxMode uint8

const (
	ReadOnly TxMode = iota
	ReadWrite
)

func (m TxMode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// StoreOptions configures a new object store.
type StoreOptions struct {
	KeyPath       string `json:"key_path"`       // Field of the stored documents the key is taken from
	AutoIncrement bool   `json:"auto_increment"` // Let the engine generate keys when Add is called with an empty key
}

// IndexOptions configures a new index.
type IndexOptions struct {
	Unique bool `json:"unique"`
}

// IndexInfo describes a declared index.
type IndexInfo struct {
	Name   string `json:"name"`
	Field  string `json:"field"`
	Unique bool   `json:"unique"`
}

// Record is a key/value pair as returned by GetAll.
type Record struct {
	Key   string
	Value []byte
}

// UpgradeFunc is called by Open inside the upgrade transaction when the
// requested version is higher than the stored one. oldVersion is 0 for a
// new database.
type UpgradeFunc func(tx UpgradeTx, oldVersion, newVersion uint64) error

// --------------------------------------------------------------------------
// Engine Interfaces
// --------------------------------------------------------------------------

// Opener opens named databases of one engine.
type Opener interface {
	// Open opens (and creates if necessary) the database with the given name.
	//
	// If version is higher than the stored version, upgrade is called within a
	// single exclusive transaction. If upgrade returns an error the transaction
	// is aborted and neither the changes nor the new version are persisted.
	// A version lower than the stored version fails with ErrVersion.
	Open(ctx context.Context, name string, version uint64, upgrade UpgradeFunc) (ObjectDB, error)

	// Implementation returns the engine identifier.
	Implementation() Implementation
}

// ObjectDB is an open handle to a transactional object-store database.
// All methods are safe for concurrent use.
type ObjectDB interface {
	// Name returns the database name.
	Name() string

	// Version returns the schema version the database was opened at.
	Version() uint64

	// ObjectStoreNames returns the names of all object stores, sorted.
	ObjectStoreNames() []string

	// Begin starts a transaction over the object stores in scope.
	// Read-write transactions on the same store are serialized, read-only
	// transactions see a consistent snapshot of their scope.
	// The transaction must be finished with Commit or Abort.
	//
	// A goroutine must not begin a transaction while it holds another one on
	// the same database. Depending on the engine the second Begin or the
	// Commit of a writer waits for the first transaction and never returns.
	Begin(ctx context.Context, scope []string, mode TxMode) (Tx, error)

	// SupportsFeature checks if the engine supports the specified features.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) bool

	// GetInfo returns information about the database.
	GetInfo() DatabaseInfo

	// Close releases the handle. Transactions begun after Close fail with
	// ErrClosed.
	Close() error
}

// Tx is a transaction over a fixed set of object stores.
// A Tx is not safe for concurrent use.
type Tx interface {
	// Mode returns the access mode.
	Mode() TxMode

	// ObjectStore returns a store that is part of the transaction scope.
	ObjectStore(name string) (ObjectStore, error)

	// Commit persists all writes of the transaction.
	Commit() error

	// Abort discards all writes of the transaction. Calling Abort on a
	// finished transaction is a no-op.
	Abort() error
}

// UpgradeTx is the exclusive transaction passed to an UpgradeFunc. Every
// object store of the database is in scope. Open finishes the transaction
// itself, so Commit and Abort return ErrInvalidState.
type UpgradeTx interface {
	Tx

	// HasObjectStore reports whether the store exists.
	HasObjectStore(name string) bool

	// CreateObjectStore creates a new object store. Fails with
	// ErrStoreExists if it already exists.
	CreateObjectStore(name string, opts StoreOptions) (ObjectStore, error)
}

// ObjectStore is a key ordered partition of records, as seen from within one
// transaction.
type ObjectStore interface {
	Name() string
	KeyPath() string
	AutoIncrement() bool

	// IndexNames returns the names of all declared indexes, sorted.
	IndexNames() []string
	// Index returns the declaration of an index.
	Index(name string) (IndexInfo, bool)
	// CreateIndex declares a new index. Only allowed inside an UpgradeTx,
	// otherwise ErrInvalidState. Fails with ErrIndexExists on a name clash.
	CreateIndex(name, field string, opts IndexOptions) error

	// Add inserts a new record and returns its key. Fails with ErrKeyExists
	// if the key is taken. An empty key is only allowed for auto-increment
	// stores, the engine assigns the next key then.
	Add(key string, value []byte) (string, error)
	// Put inserts or replaces a record.
	Put(key string, value []byte) error
	// Get returns a copy of the value stored under key.
	Get(key string) (value []byte, found bool, err error)
	// GetAll returns all records in key order.
	GetAll() ([]Record, error)
	// Delete removes a record. Deleting a missing key is not an error.
	Delete(key string) error
	// Count returns the number of records.
	Count() (int, error)
}

// Snapshotter is implemented by engines that can serialize a database.
// Check for FeatureSnapshot before asserting it.
type Snapshotter interface {
	// Save persists the current committed state to the writer.
	Save(w io.Writer) error
	// Load replaces the database state with the data read from r.
	Load(r io.Reader) error
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// ValidateName checks database, object store and index names.
// Names starting with a double underscore are reserved for engines.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if strings.HasPrefix(name, "__") {
		return ErrInvalidName
	}
	return nil
}

// AutoIncrementKey formats an engine generated key. Keys are zero padded so
// that their lexical order matches the numeric order.
func AutoIncrementKey(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}
