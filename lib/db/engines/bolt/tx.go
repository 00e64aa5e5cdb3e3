package bolt

import (
	"sort"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/pkg/errors"
	bbolt "go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type tx struct {
	handle  *handle
	btx     *bbolt.Tx
	mode    db.TxMode
	scope   map[string]bool // nil for upgrade transactions (everything in scope)
	catalog catalog         // private copy for upgrade transactions
	upgrade bool
	done    bool
}

func (t *tx) Mode() db.TxMode {
	return t.mode
}

func (t *tx) ObjectStore(name string) (db.ObjectStore, error) {
	if t.done {
		return nil, db.ErrTxDone
	}
	meta, ok := t.catalog[name]
	if !ok {
		return nil, errors.Wrapf(db.ErrStoreNotFound, "%q", name)
	}
	if !t.upgrade && !t.scope[name] {
		return nil, errors.Wrapf(db.ErrNotInScope, "%q", name)
	}
	return t.view(meta)
}

func (t *tx) view(meta *storeMeta) (*storeView, error) {
	b := t.btx.Bucket(storesBucket).Bucket([]byte(meta.Name))
	if b == nil {
		return nil, errors.Wrapf(db.ErrStoreNotFound, "bucket of %q is missing", meta.Name)
	}
	return &storeView{tx: t, meta: meta, bucket: b}, nil
}

// Commit commits a read-write transaction. Read-only bbolt transactions
// cannot be committed, they are rolled back instead.
func (t *tx) Commit() error {
	if t.upgrade {
		return db.ErrInvalidState
	}
	if t.done {
		return db.ErrTxDone
	}
	t.done = true
	if t.mode == db.ReadOnly {
		return errors.Wrap(t.btx.Rollback(), "closing read transaction")
	}
	return errors.Wrap(t.btx.Commit(), "committing transaction")
}

func (t *tx) Abort() error {
	if t.upgrade {
		return db.ErrInvalidState
	}
	if t.done {
		return nil
	}
	t.done = true
	return errors.Wrap(t.btx.Rollback(), "rolling back transaction")
}

// --------------------------------------------------------------------------
// Upgrade Operations
// --------------------------------------------------------------------------

func (t *tx) HasObjectStore(name string) bool {
	_, ok := t.catalog[name]
	return ok
}

func (t *tx) CreateObjectStore(name string, opts db.StoreOptions) (db.ObjectStore, error) {
	if t.done {
		return nil, db.ErrTxDone
	}
	if err := db.ValidateName(name); err != nil {
		return nil, errors.Wrapf(err, "object store %q", name)
	}
	if _, ok := t.catalog[name]; ok {
		return nil, errors.Wrapf(db.ErrStoreExists, "%q", name)
	}
	if _, err := t.btx.Bucket(storesBucket).CreateBucket([]byte(name)); err != nil {
		return nil, errors.Wrapf(err, "creating bucket for %q", name)
	}
	meta := &storeMeta{Name: name, Options: opts, Indexes: make(map[string]db.IndexInfo)}
	t.catalog[name] = meta
	return t.view(meta)
}

// --------------------------------------------------------------------------
// Object Store View
// --------------------------------------------------------------------------

// storeView maps an object store onto a bucket. bbolt keeps keys sorted by
// their bytes, so cursor order is key order.
type storeView struct {
	tx     *tx
	meta   *storeMeta
	bucket *bbolt.Bucket
}

func (v *storeView) Name() string        { return v.meta.Name }
func (v *storeView) KeyPath() string     { return v.meta.Options.KeyPath }
func (v *storeView) AutoIncrement() bool { return v.meta.Options.AutoIncrement }

func (v *storeView) IndexNames() []string {
	names := make([]string, 0, len(v.meta.Indexes))
	for name := range v.meta.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v *storeView) Index(name string) (db.IndexInfo, bool) {
	info, ok := v.meta.Indexes[name]
	return info, ok
}

// CreateIndex records the declaration in the catalog copy of the upgrade
// transaction, which is persisted when the upgrade succeeds.
func (v *storeView) CreateIndex(name, field string, opts db.IndexOptions) error {
	if v.tx.done {
		return db.ErrTxDone
	}
	if !v.tx.upgrade {
		return errors.Wrap(db.ErrInvalidState, "indexes can only be created during an upgrade")
	}
	if err := db.ValidateName(name); err != nil {
		return errors.Wrapf(err, "index %q", name)
	}
	if _, ok := v.meta.Indexes[name]; ok {
		return errors.Wrapf(db.ErrIndexExists, "%q on %q", name, v.meta.Name)
	}
	v.meta.Indexes[name] = db.IndexInfo{Name: name, Field: field, Unique: opts.Unique}
	return nil
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
		if !v.meta.Options.AutoIncrement {
			return "", db.ErrEmptyKey
		}
		seq, err := v.bucket.NextSequence()
		if err != nil {
			return "", errors.Wrap(err, "next sequence")
		}
		key = db.AutoIncrementKey(seq)
	}
	if v.bucket.Get([]byte(key)) != nil {
		return "", errors.Wrapf(db.ErrKeyExists, "%q", key)
	}
	if err := v.bucket.Put([]byte(key), value); err != nil {
		return "", errors.Wrap(err, "adding record")
	}
	return key, nil
}

func (v *storeView) Put(key string, value []byte) error {
	if err := v.checkWrite(); err != nil {
		return err
	}
	if key == "" {
		return db.ErrEmptyKey
	}
	return errors.Wrap(v.bucket.Put([]byte(key), value), "putting record")
}

// Get copies the value, bbolt values are only valid during the transaction.
func (v *storeView) Get(key string) ([]byte, bool, error) {
	if v.tx.done {
		return nil, false, db.ErrTxDone
	}
	raw := v.bucket.Get([]byte(key))
	if raw == nil {
		return nil, false, nil
	}
	return copyBytes(raw), true, nil
}

func (v *storeView) GetAll() ([]db.Record, error) {
	if v.tx.done {
		return nil, db.ErrTxDone
	}
	var records []db.Record
	err := v.bucket.ForEach(func(k, value []byte) error {
		records = append(records, db.Record{Key: string(k), Value: copyBytes(value)})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning records")
	}
	return records, nil
}

func (v *storeView) Delete(key string) error {
	if err := v.checkWrite(); err != nil {
		return err
	}
	return errors.Wrap(v.bucket.Delete([]byte(key)), "deleting record")
}

func (v *storeView) Count() (int, error) {
	if v.tx.done {
		return 0, db.ErrTxDone
	}
	count := 0
	c := v.bucket.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		count++
	}
	return count, nil
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
