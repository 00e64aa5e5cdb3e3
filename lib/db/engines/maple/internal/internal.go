package internal

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Store Type (one object store of a database)
// --------------------------------------------------------------------------

// Store holds the committed records of one object store.
//
// Records is only written while Lock is held exclusively. Indexes and Opts
// only change while the owning database is locked for an upgrade or a load.
type Store struct {
	Name    string
	Opts    db.StoreOptions
	Indexes map[string]db.IndexInfo
	Records *xsync.MapOf[string, []byte]
	Seq     atomic.Uint64 // Last auto-increment key that was handed out

	Lock sync.RWMutex // Transaction scope lock
}

// NewStore creates an empty store
func NewStore(name string, opts db.StoreOptions) *Store {
	return &Store{
		Name:    name,
		Opts:    opts,
		Indexes: make(map[string]db.IndexInfo),
		Records: xsync.NewMapOf[string, []byte](),
	}
}

// IndexNames returns the sorted index names
func (s *Store) IndexNames() []string {
	names := make([]string, 0, len(s.Indexes))
	for name := range s.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortedKeys returns all committed keys in order
//
// Thread-safety: The caller must hold Lock (shared or exclusive).
func (s *Store) SortedKeys() []string {
	keys := make([]string, 0, s.Records.Size())
	s.Records.Range(func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	return keys
}

// --------------------------------------------------------------------------
// Write Type (a buffered change of a transaction)
// --------------------------------------------------------------------------

// Write is a pending change to one key. Deleted writes remove the key on commit.
type Write struct {
	Value   []byte
	Deleted bool
}

// CopyBytes returns a copy of b that never aliases stored data
func CopyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
