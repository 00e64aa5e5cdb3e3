package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/db"
	dbtesting "github.com/ValentinKolb/dDoc/lib/db/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpener(tb testing.TB) db.Opener {
	return NewOpener(&Options{Dir: tb.TempDir()})
}

func Test(t *testing.T) {
	dbtesting.RunObjectDBTests(t, "SQLite", newTestOpener)
}

func Benchmark(b *testing.B) {
	dbtesting.RunObjectDBBenchmarks(b, "SQLite", newTestOpener)
}

func TestFileLayout(t *testing.T) {
	dir := t.TempDir()
	database, err := NewOpener(&Options{Dir: dir}).Open(context.Background(), "crm", 1, nil)
	require.NoError(t, err)
	defer database.Close()

	assert.FileExists(t, filepath.Join(dir, "crm.sqlite"))
	assert.Equal(t, db.ImplSQLite, database.GetInfo().DbType)
	assert.False(t, database.SupportsFeature(db.FeatureSnapshot))
}

func TestCatalogRoundTrip(t *testing.T) {
	ctx := context.Background()
	opener := newTestOpener(t)

	database, err := opener.Open(ctx, "crm", 1, func(tx db.UpgradeTx, _, _ uint64) error {
		s, err := tx.CreateObjectStore("leads", db.StoreOptions{KeyPath: "_id"})
		if err != nil {
			return err
		}
		if err := s.CreateIndex("by_email", "email", db.IndexOptions{Unique: true}); err != nil {
			return err
		}
		auto, err := tx.CreateObjectStore("log", db.StoreOptions{AutoIncrement: true})
		if err != nil {
			return err
		}
		// auto-increment inside the upgrade that created the store
		_, err = auto.Add("", []byte("created"))
		return err
	})
	require.NoError(t, err)
	require.NoError(t, database.Close())

	database, err = opener.Open(ctx, "crm", 1, nil)
	require.NoError(t, err)
	defer database.Close()

	tx, err := database.Begin(ctx, []string{"leads", "log"}, db.ReadWrite)
	require.NoError(t, err)
	defer tx.Abort()

	leads, err := tx.ObjectStore("leads")
	require.NoError(t, err)
	info, ok := leads.Index("by_email")
	assert.True(t, ok)
	assert.Equal(t, db.IndexInfo{Name: "by_email", Field: "email", Unique: true}, info)
	assert.Equal(t, "_id", leads.KeyPath())

	log, err := tx.ObjectStore("log")
	require.NoError(t, err)
	key, err := log.Add("", []byte("after reopen"))
	require.NoError(t, err)
	assert.Equal(t, db.AutoIncrementKey(2), key)
}

func TestSequenceAfterUpgrade(t *testing.T) {
	ctx := context.Background()
	opener := newTestOpener(t)
	upgrade := func(tx db.UpgradeTx, _, _ uint64) error {
		_, err := tx.CreateObjectStore("log", db.StoreOptions{AutoIncrement: true})
		return err
	}

	add := func(database db.ObjectDB, commit bool) string {
		tx, err := database.Begin(ctx, []string{"log"}, db.ReadWrite)
		require.NoError(t, err)
		s, err := tx.ObjectStore("log")
		require.NoError(t, err)
		key, err := s.Add("", []byte("entry"))
		require.NoError(t, err)
		if commit {
			require.NoError(t, tx.Commit())
		} else {
			require.NoError(t, tx.Abort())
		}
		return key
	}

	// the store was created by this handle's upgrade
	database, err := opener.Open(ctx, "crm", 1, upgrade)
	require.NoError(t, err)
	assert.Equal(t, db.AutoIncrementKey(1), add(database, true))
	assert.Equal(t, db.AutoIncrementKey(2), add(database, false))
	assert.Equal(t, db.AutoIncrementKey(2), add(database, true), "aborted add must not advance the counter")
	require.NoError(t, database.Close())

	database, err = opener.Open(ctx, "crm", 1, upgrade)
	require.NoError(t, err)
	defer database.Close()
	assert.Equal(t, db.AutoIncrementKey(3), add(database, true))
}
