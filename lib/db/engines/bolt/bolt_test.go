package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	dbtesting "github.com/ValentinKolb/dDoc/lib/db/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpener(tb testing.TB) db.Opener {
	return NewOpener(&Options{Dir: tb.TempDir(), NoSync: true})
}

func Test(t *testing.T) {
	dbtesting.RunObjectDBTests(t, "Bolt", newTestOpener)
}

func Benchmark(b *testing.B) {
	dbtesting.RunObjectDBBenchmarks(b, "Bolt", newTestOpener)
}

func TestFileLayout(t *testing.T) {
	dir := t.TempDir()
	database, err := NewOpener(&Options{Dir: dir}).Open(context.Background(), "crm", 1, nil)
	require.NoError(t, err)
	defer database.Close()

	assert.FileExists(t, filepath.Join(dir, "crm.bolt"))
	info := database.GetInfo()
	assert.Equal(t, db.ImplBolt, info.DbType)
	assert.True(t, database.SupportsFeature(db.FeatureDurable|db.FeatureParallelReads))
}

func TestSecondHandleTimesOut(t *testing.T) {
	opener := NewOpener(&Options{Dir: t.TempDir(), Timeout: 50 * time.Millisecond})
	first, err := opener.Open(context.Background(), "crm", 1, nil)
	require.NoError(t, err)
	defer first.Close()

	_, err = opener.Open(context.Background(), "crm", 1, nil)
	assert.Error(t, err)
}

func TestReadersSeeLastCommit(t *testing.T) {
	ctx := context.Background()
	// the commit below must not remap the file while the reader is open
	opener := NewOpener(&Options{Dir: t.TempDir(), NoSync: true, InitialMmapSize: 1 << 20})
	database, err := opener.Open(ctx, "crm", 1, func(tx db.UpgradeTx, _, _ uint64) error {
		_, err := tx.CreateObjectStore("leads", db.StoreOptions{})
		return err
	})
	require.NoError(t, err)
	defer database.Close()

	reader, err := database.Begin(ctx, []string{"leads"}, db.ReadOnly)
	require.NoError(t, err)
	defer reader.Abort()

	// the writer runs on its own goroutine, one goroutine never holds two
	// transactions
	done := make(chan error, 1)
	go func() {
		writer, err := database.Begin(ctx, []string{"leads"}, db.ReadWrite)
		if err != nil {
			done <- err
			return
		}
		ws, err := writer.ObjectStore("leads")
		if err != nil {
			_ = writer.Abort()
			done <- err
			return
		}
		if err := ws.Put("a", []byte("1")); err != nil {
			_ = writer.Abort()
			done <- err
			return
		}
		done <- writer.Commit()
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("writer blocked by the open reader")
	}

	rs, err := reader.ObjectStore("leads")
	require.NoError(t, err)
	_, found, err := rs.Get("a")
	require.NoError(t, err)
	assert.False(t, found, "reader began before the commit")

	// a transaction begun after the commit sees the write
	require.NoError(t, reader.Abort())
	fresh, err := database.Begin(ctx, []string{"leads"}, db.ReadOnly)
	require.NoError(t, err)
	defer fresh.Abort()
	fs, err := fresh.ObjectStore("leads")
	require.NoError(t, err)
	value, found, err := fs.Get("a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("1"), value)
}
