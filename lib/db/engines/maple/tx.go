package maple

import (
	"fmt"
	"sort"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple/internal"
)

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// tx buffers all writes and applies them on commit. While the transaction
// runs it holds the database lock shared and the lock of every store in its
// scope (exclusive for read-write, shared for read-only), so readers never
// observe a partially applied commit.
type tx struct {
	database *mapleDatabase
	mode     db.TxMode
	scope    map[string]*internal.Store
	order    []*internal.Store // scope in lock order

	writes map[string]map[string]internal.Write // store -> key -> pending write
	seqs   map[string]uint64                    // store -> pending auto-increment counter
	done   bool

	// upgrade transactions only
	upgrade bool
	created map[string]*internal.Store
	indexes map[string]map[string]db.IndexInfo // store -> index name -> declaration
}

// newUpgradeTx creates the exclusive upgrade transaction.
// The caller must hold database.mu exclusively.
func newUpgradeTx(d *mapleDatabase) *tx {
	t := &tx{
		database: d,
		mode:     db.ReadWrite,
		scope:    make(map[string]*internal.Store),
		writes:   make(map[string]map[string]internal.Write),
		upgrade:  true,
		created:  make(map[string]*internal.Store),
		indexes:  make(map[string]map[string]db.IndexInfo),
	}
	d.stores.Range(func(name string, s *internal.Store) bool {
		t.scope[name] = s
		return true
	})
	return t
}

func (t *tx) Mode() db.TxMode {
	return t.mode
}

func (t *tx) ObjectStore(name string) (db.ObjectStore, error) {
	if t.done {
		return nil, db.ErrTxDone
	}
	s, ok := t.scope[name]
	if !ok {
		if t.upgrade {
			return nil, fmt.Errorf("%w: %q", db.ErrStoreNotFound, name)
		}
		return nil, fmt.Errorf("%w: %q", db.ErrNotInScope, name)
	}
	return &storeView{tx: t, store: s}, nil
}

func (t *tx) Commit() error {
	if t.upgrade {
		return db.ErrInvalidState
	}
	if t.done {
		return db.ErrTxDone
	}
	t.apply()
	t.release()
	return nil
}

func (t *tx) Abort() error {
	if t.upgrade {
		return db.ErrInvalidState
	}
	if t.done {
		return nil
	}
	t.discard()
	t.release()
	return nil
}

// apply installs new stores and indexes and writes all buffered records
func (t *tx) apply() {
	for name, s := range t.created {
		t.database.stores.Store(name, s)
	}
	for name, decls := range t.indexes {
		s := t.scope[name]
		for indexName, info := range decls {
			s.Indexes[indexName] = info
		}
	}
	for name, writes := range t.writes {
		s := t.scope[name]
		for key, w := range writes {
			if w.Deleted {
				s.Records.Delete(key)
			} else {
				s.Records.Store(key, w.Value)
			}
		}
	}
	for name, seq := range t.seqs {
		t.scope[name].Seq.Store(seq)
	}
	t.done = true
}

func (t *tx) discard() {
	t.writes = nil
	t.created = nil
	t.indexes = nil
	t.done = true
}

func (t *tx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		if t.mode == db.ReadWrite {
			t.order[i].Lock.Unlock()
		} else {
			t.order[i].Lock.RUnlock()
		}
	}
	t.database.mu.RUnlock()
}

// --------------------------------------------------------------------------
// Upgrade Operations
// --------------------------------------------------------------------------

func (t *tx) HasObjectStore(name string) bool {
	_, ok := t.scope[name]
	return ok
}

func (t *tx) CreateObjectStore(name string, opts db.StoreOptions) (db.ObjectStore, error) {
	if t.done {
		return nil, db.ErrTxDone
	}
	if err := db.ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: object store %q", err, name)
	}
	if _, ok := t.scope[name]; ok {
		return nil, fmt.Errorf("%w: %q", db.ErrStoreExists, name)
	}
	s := internal.NewStore(name, opts)
	t.created[name] = s
	t.scope[name] = s
	return &storeView{tx: t, store: s}, nil
}

// --------------------------------------------------------------------------
// Object Store View
// --------------------------------------------------------------------------

// storeView is an internal.Store as seen from one transaction: committed
// records overlaid with the pending writes of the transaction.
type storeView struct {
	tx    *tx
	store *internal.Store
}

func (v *storeView) Name() string        { return v.store.Name }
func (v *storeView) KeyPath() string     { return v.store.Opts.KeyPath }
func (v *storeView) AutoIncrement() bool { return v.store.Opts.AutoIncrement }

func (v *storeView) IndexNames() []string {
	names := v.store.IndexNames()
	for name := range v.tx.indexes[v.store.Name] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v *storeView) Index(name string) (db.IndexInfo, bool) {
	if info, ok := v.store.Indexes[name]; ok {
		return info, true
	}
	info, ok := v.tx.indexes[v.store.Name][name]
	return info, ok
}

func (v *storeView) CreateIndex(name, field string, opts db.IndexOptions) error {
	if v.tx.done {
		return db.ErrTxDone
	}
	if !v.tx.upgrade {
		return fmt.Errorf("%w: indexes can only be created during an upgrade", db.ErrInvalidState)
	}
	if err := db.ValidateName(name); err != nil {
		return fmt.Errorf("%w: index %q", err, name)
	}
	if _, ok := v.Index(name); ok {
		return fmt.Errorf("%w: %q on %q", db.ErrIndexExists, name, v.store.Name)
	}
	decls, ok := v.tx.indexes[v.store.Name]
	if !ok {
		decls = make(map[string]db.IndexInfo)
		v.tx.indexes[v.store.Name] = decls
	}
	decls[name] = db.IndexInfo{Name: name, Field: field, Unique: opts.Unique}
	return nil
}

// lookup returns the value of key as seen by the transaction (not copied)
func (v *storeView) lookup(key string) ([]byte, bool) {
	if w, ok := v.tx.writes[v.store.Name][key]; ok {
		return w.Value, !w.Deleted
	}
	return v.store.Records.Load(key)
}

func (v *storeView) write(key string, w internal.Write) {
	writes, ok := v.tx.writes[v.store.Name]
	if !ok {
		writes = make(map[string]internal.Write)
		v.tx.writes[v.store.Name] = writes
	}
	writes[key] = w
}

func (v *storeView) checkWrite() error {
	if v.tx.done {
		return db.ErrTxDone
	}
	if v.tx.mode != db.ReadWrite {
		return db.ErrReadOnly
	}
	return nil
}

func (v *storeView) Add(key string, value []byte) (string, error) {
	if err := v.checkWrite(); err != nil {
		return "", err
	}
	if key == "" {
		if !v.store.Opts.AutoIncrement {
			return "", db.ErrEmptyKey
		}
		key = v.nextKey()
	}
	if _, exists := v.lookup(key); exists {
		return "", fmt.Errorf("%w: %q", db.ErrKeyExists, key)
	}
	v.write(key, internal.Write{Value: internal.CopyBytes(value)})
	return key, nil
}

// nextKey hands out the next auto-increment key. The counter is only
// advanced in the store when the transaction commits.
func (v *storeView) nextKey() string {
	if v.tx.seqs == nil {
		v.tx.seqs = make(map[string]uint64)
	}
	seq, ok := v.tx.seqs[v.store.Name]
	if !ok {
		seq = v.store.Seq.Load()
	}
	seq++
	v.tx.seqs[v.store.Name] = seq
	return db.AutoIncrementKey(seq)
}

func (v *storeView) Put(key string, value []byte) error {
	if err := v.checkWrite(); err != nil {
		return err
	}
	if key == "" {
		return db.ErrEmptyKey
	}
	v.write(key, internal.Write{Value: internal.CopyBytes(value)})
	return nil
}

func (v *storeView) Get(key string) ([]byte, bool, error) {
	if v.tx.done {
		return nil, false, db.ErrTxDone
	}
	value, ok := v.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return internal.CopyBytes(value), true, nil
}

func (v *storeView) GetAll() ([]db.Record, error) {
	if v.tx.done {
		return nil, db.ErrTxDone
	}

	keys := v.store.SortedKeys()
	pending := v.tx.writes[v.store.Name]
	if len(pending) > 0 {
		for key, w := range pending {
			if _, committed := v.store.Records.Load(key); !committed && !w.Deleted {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
	}

	records := make([]db.Record, 0, len(keys))
	for _, key := range keys {
		value, ok := v.lookup(key)
		if !ok {
			continue
		}
		records = append(records, db.Record{Key: key, Value: internal.CopyBytes(value)})
	}
	return records, nil
}

func (v *storeView) Delete(key string) error {
	if err := v.checkWrite(); err != nil {
		return err
	}
	v.write(key, internal.Write{Deleted: true})
	return nil
}

func (v *storeView) Count() (int, error) {
	if v.tx.done {
		return 0, db.ErrTxDone
	}
	count := v.store.Records.Size()
	for key, w := range v.tx.writes[v.store.Name] {
		_, committed := v.store.Records.Load(key)
		switch {
		case committed && w.Deleted:
			count--
		case !committed && !w.Deleted:
			count++
		}
	}
	return count, nil
}
