package sqlite

import (
	"database/sql"
	"sort"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type tx struct {
	handle  *handle
	sqlTx   *sql.Tx
	mode    db.TxMode
	scope   map[string]bool // nil for upgrade transactions
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
	return &storeView{tx: t, meta: meta}, nil
}

func (t *tx) Commit() error {
	if t.upgrade {
		return db.ErrInvalidState
	}
	if t.done {
		return db.ErrTxDone
	}
	t.done = true
	return errors.Wrap(t.sqlTx.Commit(), "committing transaction")
}

func (t *tx) Abort() error {
	if t.upgrade {
		return db.ErrInvalidState
	}
	if t.done {
		return nil
	}
	t.done = true
	return errors.Wrap(t.sqlTx.Rollback(), "rolling back transaction")
}

// --------------------------------------------------------------------------
// Upgrade Operations
// --------------------------------------------------------------------------

func (t *tx) HasObjectStore(name string) bool {
	_, ok := t.catalog[name]
	return ok
}

// CreateObjectStore adds the store to the catalog copy of the upgrade. All
// stores share the ddoc_records table, so no DDL is needed.
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
	meta := &storeMeta{Name: name, Options: opts, Indexes: make(map[string]db.IndexInfo), created: true}
	t.catalog[name] = meta
	return &storeView{tx: t, meta: meta}, nil
}

// --------------------------------------------------------------------------
// Object Store View
// --------------------------------------------------------------------------

type storeView struct {
	tx   *tx
	meta *storeMeta
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

// nextSeq advances the auto-increment counter of the store. Stores created
// by the running upgrade have no catalog row yet, their counter is kept in
// memory and written with the catalog.
func (v *storeView) nextSeq() (uint64, error) {
	if v.meta.created {
		v.meta.Seq++
		return v.meta.Seq, nil
	}
	if _, err := v.tx.sqlTx.Exec(`UPDATE ddoc_stores SET seq = seq + 1 WHERE name = ?`, v.meta.Name); err != nil {
		return 0, errors.Wrap(err, "next sequence")
	}
	var seq uint64
	if err := v.tx.sqlTx.QueryRow(`SELECT seq FROM ddoc_stores WHERE name = ?`, v.meta.Name).Scan(&seq); err != nil {
		return 0, errors.Wrap(err, "next sequence")
	}
	return seq, nil
}

func (v *storeView) Add(key string, value []byte) (string, error) {
	if err := v.checkWrite(); err != nil {
		return "", err
	}
	if key == "" {
		if !v.meta.Options.AutoIncrement {
			return "", db.ErrEmptyKey
		}
		seq, err := v.nextSeq()
		if err != nil {
			return "", err
		}
		key = db.AutoIncrementKey(seq)
	}

	_, err := v.tx.sqlTx.Exec(
		`INSERT INTO ddoc_records (store, key, value) VALUES (?, ?, ?)`,
		v.meta.Name, key, nonNil(value),
	)
	if isConstraintError(err) {
		return "", errors.Wrapf(db.ErrKeyExists, "%q", key)
	}
	if err != nil {
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
	_, err := v.tx.sqlTx.Exec(
		`INSERT INTO ddoc_records (store, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(store, key) DO UPDATE SET value = excluded.value`,
		v.meta.Name, key, nonNil(value),
	)
	return errors.Wrap(err, "putting record")
}

func (v *storeView) Get(key string) ([]byte, bool, error) {
	if v.tx.done {
		return nil, false, db.ErrTxDone
	}
	var value []byte
	err := v.tx.sqlTx.QueryRow(
		`SELECT value FROM ddoc_records WHERE store = ? AND key = ?`, v.meta.Name, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "getting record")
	}
	return value, true, nil
}

// GetAll relies on the BINARY collation of the key column, which orders keys
// like Go compares strings.
func (v *storeView) GetAll() ([]db.Record, error) {
	if v.tx.done {
		return nil, db.ErrTxDone
	}
	rows, err := v.tx.sqlTx.Query(
		`SELECT key, value FROM ddoc_records WHERE store = ? ORDER BY key`, v.meta.Name,
	)
	if err != nil {
		return nil, errors.Wrap(err, "scanning records")
	}
	defer rows.Close()

	var records []db.Record
	for rows.Next() {
		var r db.Record
		if err := rows.Scan(&r.Key, &r.Value); err != nil {
			return nil, errors.Wrap(err, "scanning records")
		}
		records = append(records, r)
	}
	return records, errors.Wrap(rows.Err(), "scanning records")
}

func (v *storeView) Delete(key string) error {
	if err := v.checkWrite(); err != nil {
		return err
	}
	_, err := v.tx.sqlTx.Exec(`DELETE FROM ddoc_records WHERE store = ? AND key = ?`, v.meta.Name, key)
	return errors.Wrap(err, "deleting record")
}

func (v *storeView) Count() (int, error) {
	if v.tx.done {
		return 0, db.ErrTxDone
	}
	var n int
	err := v.tx.sqlTx.QueryRow(`SELECT COUNT(*) FROM ddoc_records WHERE store = ?`, v.meta.Name).Scan(&n)
	return n, errors.Wrap(err, "counting records")
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func isConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

// nonNil keeps nil values from being bound as NULL
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
