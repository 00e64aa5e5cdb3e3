package lstore

import (
	"fmt"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/document"
	"github.com/ValentinKolb/dDoc/lib/store"
)

// upgradeSchema creates the collections and indexes of the schema that do
// not exist yet. It runs inside the upgrade transaction of the engine and
// may find a partially migrated database, so every step checks first.
//
// Collections are keyed by _id with auto-increment disabled, ids come from
// the store's IDGenerator.
func upgradeSchema(tx db.UpgradeTx, schema store.Schema, oldVersion, newVersion uint64) error {
	log.Infof("upgrading %q from version %d to %d", schema.Name, oldVersion, newVersion)

	for _, c := range schema.Collections {
		var (
			s   db.ObjectStore
			err error
		)
		if tx.HasObjectStore(c.Name) {
			s, err = tx.ObjectStore(c.Name)
		} else {
			log.Debugf("creating collection %q", c.Name)
			s, err = tx.CreateObjectStore(c.Name, db.StoreOptions{KeyPath: document.IDField})
		}
		if err != nil {
			return fmt.Errorf("collection %q: %w", c.Name, err)
		}

		for _, idx := range c.Indexes {
			if _, ok := s.Index(idx.Name); ok {
				continue
			}
			log.Debugf("creating index %q on %q.%s", idx.Name, c.Name, idx.Field)
			if err := s.CreateIndex(idx.Name, idx.Field, db.IndexOptions{Unique: idx.Unique}); err != nil {
				return fmt.Errorf("index %q on %q: %w", idx.Name, c.Name, err)
			}
		}
	}
	return nil
}
