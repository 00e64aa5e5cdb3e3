package maple

import (
	"context"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/db"
	dbtesting "github.com/ValentinKolb/dDoc/lib/db/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test(t *testing.T) {
	dbtesting.RunObjectDBTests(t, "MapleDB", func(testing.TB) db.Opener {
		return NewOpener(nil)
	})
}

func TestWithSnapshotDir(t *testing.T) {
	dbtesting.RunObjectDBTests(t, "MapleDB(snapshot)", func(tb testing.TB) db.Opener {
		return NewOpener(&Options{SnapshotDir: tb.TempDir()})
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunObjectDBBenchmarks(b, "MapleDB", func(testing.TB) db.Opener {
		return NewOpener(nil)
	})
}

func TestSnapshotSurvivesNewOpener(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	upgrade := func(tx db.UpgradeTx, _, _ uint64) error {
		_, err := tx.CreateObjectStore("leads", db.StoreOptions{KeyPath: "_id"})
		return err
	}

	first := NewOpener(&Options{SnapshotDir: dir})
	database, err := first.Open(ctx, "crm", 1, upgrade)
	require.NoError(t, err)
	assert.True(t, database.SupportsFeature(db.FeatureDurable))

	tx, err := database.Begin(ctx, []string{"leads"}, db.ReadWrite)
	require.NoError(t, err)
	s, err := tx.ObjectStore("leads")
	require.NoError(t, err)
	_, err = s.Add("lead-1", []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, database.Close())

	// a new opener simulates a process restart
	second := NewOpener(&Options{SnapshotDir: dir})
	database, err = second.Open(ctx, "crm", 1, func(db.UpgradeTx, uint64, uint64) error {
		t.Fatal("upgrade must not run for a restored database")
		return nil
	})
	require.NoError(t, err)
	defer database.Close()

	tx, err = database.Begin(ctx, []string{"leads"}, db.ReadOnly)
	require.NoError(t, err)
	defer tx.Abort()
	s, err = tx.ObjectStore("leads")
	require.NoError(t, err)
	value, ok, err := s.Get("lead-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), value)
}

func TestMemoryOnlyIsNotDurable(t *testing.T) {
	database, err := NewOpener(nil).Open(context.Background(), "mem", 1, nil)
	require.NoError(t, err)
	defer database.Close()
	assert.False(t, database.SupportsFeature(db.FeatureDurable))
	assert.True(t, database.SupportsFeature(db.FeatureSnapshot|db.FeatureParallelReads))
	assert.Empty(t, database.ObjectStoreNames())
}

func TestUpgradeTxCannotBeFinishedByCallback(t *testing.T) {
	_, err := NewOpener(nil).Open(context.Background(), "x", 1, func(tx db.UpgradeTx, _, _ uint64) error {
		return tx.Commit()
	})
	assert.ErrorIs(t, err, db.ErrInvalidState)
}
