package lstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/bolt"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/db/engines/sqlite"
	"github.com/ValentinKolb/dDoc/lib/document"
	"github.com/ValentinKolb/dDoc/lib/query"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = store.Schema{
	Name:    "crm",
	Version: 1,
	Collections: []store.CollectionSpec{
		{Name: "leads", Indexes: []store.IndexSpec{{Name: "email", Field: "email", Unique: true}}},
		{Name: "jobs"},
	},
}

var engines = map[string]func(tb testing.TB) db.Opener{
	"Maple": func(tb testing.TB) db.Opener {
		return maple.NewOpener(nil)
	},
	"Bolt": func(tb testing.TB) db.Opener {
		return bolt.NewOpener(&bolt.Options{Dir: tb.TempDir(), NoSync: true})
	},
	"SQLite": func(tb testing.TB) db.Opener {
		return sqlite.NewOpener(&sqlite.Options{Dir: tb.TempDir()})
	},
}

// forEachEngine runs fn once per engine with a fresh store.
func forEachEngine(t *testing.T, fn func(t *testing.T, s store.IStore, conn *Connection)) {
	for name, newOpener := range engines {
		t.Run(name, func(t *testing.T) {
			conn, err := NewConnection(newOpener(t), testSchema)
			require.NoError(t, err)
			s := NewLocalStore(conn)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s, conn)
		})
	}
}

func leads(t *testing.T, s store.IStore) store.ICollection {
	c, err := s.Collection("leads")
	require.NoError(t, err)
	return c
}

// --------------------------------------------------------------------------
// Collection Properties
// --------------------------------------------------------------------------

func TestRoundTrip(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.IStore, _ *Connection) {
		ctx := context.Background()
		c := leads(t, s)

		d := document.Document{
			"name":  document.String("Alice"),
			"score": document.Float(2.5),
			"tags":  document.Array{document.String("a"), document.Int(1)},
			"addr":  document.Document{"city": document.String("Ulm")},
			"none":  document.Null{},
		}
		res, err := c.InsertOne(ctx, d)
		require.NoError(t, err)
		require.NotEmpty(t, res.InsertedID)
		assert.False(t, d.HasID(), "the caller's document is not modified")

		found, ok, err := c.FindOne(ctx, query.ByID(res.InsertedID))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, d.WithID(res.InsertedID), found)
	})
}

func TestUniqueness(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.IStore, _ *Connection) {
		ctx := context.Background()
		c := leads(t, s)

		_, err := c.InsertOne(ctx, document.Document{"_id": document.String("x"), "v": document.Int(1)})
		require.NoError(t, err)

		_, err = c.InsertOne(ctx, document.Document{"_id": document.String("x"), "v": document.Int(2)})
		require.ErrorIs(t, err, store.ErrDuplicateKey)
		assert.ErrorIs(t, err, db.ErrKeyExists, "the engine error is kept as cause")

		cur, err := c.Find(ctx, query.ByID("x"))
		require.NoError(t, err)
		require.Equal(t, 1, cur.Len())
		assert.Equal(t, document.Int(1), cur.All()[0]["v"])
	})
}

func TestMergeSemantics(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.IStore, _ *Connection) {
		ctx := context.Background()
		c := leads(t, s)

		_, err := c.InsertOne(ctx, document.Document{
			"_id": document.String("x"), "a": document.Int(1), "b": document.Int(2),
		})
		require.NoError(t, err)

		res, err := c.UpdateOne(ctx, query.ByID("x"), store.Update{Set: document.Document{"b": document.Int(9)}})
		require.NoError(t, err)
		assert.Equal(t, store.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, res)

		doc, ok, err := c.FindOne(ctx, query.ByID("x"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, document.Document{
			"_id": document.String("x"), "a": document.Int(1), "b": document.Int(9),
		}, doc)
	})
}

func TestMissingUpdateIsNoop(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.IStore, _ *Connection) {
		ctx := context.Background()
		c := leads(t, s)

		res, err := c.UpdateOne(ctx, query.ByID("missing"), store.Update{Set: document.Document{"a": document.Int(1)}})
		require.NoError(t, err)
		assert.Equal(t, 0, res.ModifiedCount)
		assert.Equal(t, 0, res.MatchedCount)

		n, err := c.CountDocuments(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestUpdateValidation(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.IStore, _ *Connection) {
		ctx := context.Background()
		c := leads(t, s)
		_, err := c.InsertOne(ctx, document.Document{"_id": document.String("x"), "name": document.String("A")})
		require.NoError(t, err)

		_, err = c.UpdateOne(ctx, query.Filter{query.Eq("name", document.String("A"))}, store.Update{})
		assert.ErrorIs(t, err, store.ErrInvalidOperation, "match on a field other than _id")

		_, err = c.UpdateOne(ctx, nil, store.Update{})
		assert.ErrorIs(t, err, store.ErrInvalidOperation, "empty match")

		_, err = c.UpdateOne(ctx, query.ByID("x"), store.Update{Set: document.Document{"_id": document.String("y")}})
		assert.ErrorIs(t, err, store.ErrInvalidOperation, "changing _id")

		// setting _id to its current value is allowed
		res, err := c.UpdateOne(ctx, query.ByID("x"), store.Update{Set: document.Document{"_id": document.String("x")}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.ModifiedCount)
	})
}

func TestFilterEquality(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.IStore, _ *Connection) {
		ctx := context.Background()
		c := leads(t, s)
		for _, name := range []string{"Alice", "alice", "Bob", "Alice"} {
			_, err := c.InsertOne(ctx, document.Document{"name": document.String(name)})
			require.NoError(t, err)
		}
		_, err := c.InsertOne(ctx, document.Document{"other": document.String("Alice")})
		require.NoError(t, err)

		cur, err := c.Find(ctx, query.Filter{query.Eq("name", document.String("Alice"))})
		require.NoError(t, err)
		require.Equal(t, 2, cur.Len())
		for _, d := range cur.All() {
			assert.Equal(t, document.String("Alice"), d["name"])
		}
	})
}

func TestPatternMatch(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.IStore, _ *Connection) {
		ctx := context.Background()
		c := leads(t, s)
		for _, name := range []string{"alice", "Anne", "Bob"} {
			_, err := c.InsertOne(ctx, document.Document{"_id": document.String(name), "name": document.String(name)})
			require.NoError(t, err)
		}

		cur, err := c.Find(ctx, query.Filter{query.MustRegex("name", "^A", "i")})
		require.NoError(t, err)
		var names []string
		for _, d := range cur.All() {
			names = append(names, string(d["name"].(document.String)))
		}
		assert.Equal(t, []string{"Anne", "alice"}, names, "results come in _id order")

		_, err = c.Find(ctx, query.Filter{query.Matches{Field: "name", Pattern: "(", Flags: ""}})
		assert.ErrorIs(t, err, store.ErrInvalidOperation)
	})
}

func TestScenarioThreeInserts(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.IStore, _ *Connection) {
		ctx := context.Background()
		c := leads(t, s)
		for i := 0; i < 3; i++ {
			_, err := c.InsertOne(ctx, document.Document{"n": document.Int(int64(i))})
			require.NoError(t, err)
		}

		n, err := c.CountDocuments(ctx, query.Filter{})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		cur, err := c.Find(ctx, query.Filter{})
		require.NoError(t, err)
		ids := make(map[string]bool)
		for _, d := range cur.All() {
			id, ok := d.ID()
			require.True(t, ok)
			ids[id] = true
		}
		assert.Len(t, ids, 3)
	})
}

func TestCursorIsSnapshot(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.IStore, _ *Connection) {
		ctx := context.Background()
		c := leads(t, s)
		_, err := c.InsertOne(ctx, document.Document{"_id": document.String("1")})
		require.NoError(t, err)

		cur, err := c.Find(ctx, nil)
		require.NoError(t, err)

		_, err = c.InsertOne(ctx, document.Document{"_id": document.String("2")})
		require.NoError(t, err)
		_, err = c.UpdateOne(ctx, query.ByID("1"), store.Update{Set: document.Document{"x": document.Int(1)}})
		require.NoError(t, err)

		assert.Equal(t, []document.Document{{"_id": document.String("1")}}, cur.All())
		assert.Equal(t, cur.All(), cur.All())
	})
}

func TestDeleteOne(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.IStore, _ *Connection) {
		ctx := context.Background()
		c := leads(t, s)
		_, err := c.InsertOne(ctx, document.Document{"_id": document.String("x")})
		require.NoError(t, err)

		res, err := c.DeleteOne(ctx, query.ByID("x"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.DeletedCount)

		res, err = c.DeleteOne(ctx, query.ByID("x"))
		require.NoError(t, err)
		assert.Equal(t, 0, res.DeletedCount)

		_, found, err := c.FindOne(ctx, query.ByID("x"))
		require.NoError(t, err)
		assert.False(t, found)

		// the id can be reused
		_, err = c.InsertOne(ctx, document.Document{"_id": document.String("x")})
		assert.NoError(t, err)
	})
}

func TestInvalidInput(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.IStore, _ *Connection) {
		ctx := context.Background()
		c := leads(t, s)

		_, err := c.InsertOne(ctx, document.Document{"_id": document.Int(1)})
		assert.ErrorIs(t, err, store.ErrInvalidOperation)

		_, err = c.InsertOne(ctx, nil)
		assert.ErrorIs(t, err, store.ErrInvalidOperation)

		_, err = s.Collection("unknown")
		assert.ErrorIs(t, err, store.ErrInvalidOperation)
		assert.ErrorIs(t, err, db.ErrStoreNotFound)

		names, err := s.CollectionNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"jobs", "leads"}, names)
	})
}

func TestCollectionsAreIsolated(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.IStore, _ *Connection) {
		ctx := context.Background()
		jobs, err := s.Collection("jobs")
		require.NoError(t, err)

		_, err = leads(t, s).InsertOne(ctx, document.Document{"_id": document.String("x")})
		require.NoError(t, err)
		_, err = jobs.InsertOne(ctx, document.Document{"_id": document.String("x")})
		require.NoError(t, err, "the same _id in another collection")

		n, err := jobs.CountDocuments(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestConcurrentInserts(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s store.IStore, _ *Connection) {
		ctx := context.Background()
		c := leads(t, s)

		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					if _, err := c.InsertOne(ctx, document.Document{"w": document.Int(int64(i))}); err != nil {
						t.Error(err)
						return
					}
				}
			}()
		}
		wg.Wait()

		n, err := c.CountDocuments(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 100, n)
	})
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// countingOpener counts Open calls and holds each open until released.
type countingOpener struct {
	db.Opener
	opens   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newCountingOpener() *countingOpener {
	return &countingOpener{
		Opener:  maple.NewOpener(nil),
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (o *countingOpener) Open(ctx context.Context, name string, version uint64, upgrade db.UpgradeFunc) (db.ObjectDB, error) {
	o.opens.Add(1)
	o.started <- struct{}{}
	<-o.release
	return o.Opener.Open(ctx, name, version, upgrade)
}

func TestConnectionSingleton(t *testing.T) {
	opener := newCountingOpener()
	conn, err := NewConnection(opener, testSchema)
	require.NoError(t, err)
	defer conn.Close()

	const callers = 8
	handles := make([]db.ObjectDB, callers)
	var wg sync.WaitGroup
	connect := func(i int) {
		defer wg.Done()
		h, err := conn.Connect(context.Background())
		if err != nil {
			t.Error(err)
			return
		}
		handles[i] = h
	}

	wg.Add(1)
	go connect(0)
	<-opener.started
	assert.Equal(t, StateOpening, conn.State())

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go connect(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(opener.release)
	wg.Wait()

	assert.Equal(t, int32(1), opener.opens.Load())
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
	assert.True(t, conn.IsConnected())
	assert.Equal(t, StateOpen, conn.State())

	// re-entrant connect returns the existing handle
	h, err := conn.Connect(context.Background())
	require.NoError(t, err)
	assert.Same(t, handles[0], h)
	assert.Equal(t, int32(1), opener.opens.Load())
}

func TestConnectionCloseAndReconnect(t *testing.T) {
	opener := newCountingOpener()
	close(opener.release)
	conn, err := NewConnection(opener, testSchema)
	require.NoError(t, err)
	s := NewLocalStore(conn)
	ctx := context.Background()

	assert.Equal(t, StateUnopened, conn.State())
	assert.False(t, conn.IsConnected())

	_, err = leads(t, s).InsertOne(ctx, document.Document{"_id": document.String("x")})
	require.NoError(t, err)
	assert.True(t, conn.IsConnected())

	require.NoError(t, s.Close())
	assert.False(t, conn.IsConnected())
	assert.Equal(t, StateClosed, conn.State())

	// the next operation opens again
	_, found, err := leads(t, s).FindOne(ctx, query.ByID("x"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int32(2), opener.opens.Load())
	require.NoError(t, s.Close())
}

func TestConnectWaitHonorsContext(t *testing.T) {
	opener := newCountingOpener()
	conn, err := NewConnection(opener, testSchema)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := conn.Connect(ctx)
		done <- err
	}()
	<-opener.started
	cancel()

	err = <-done
	assert.ErrorIs(t, err, store.ErrConnection)
	assert.ErrorIs(t, err, context.Canceled)

	// the open itself continues for other callers
	close(opener.release)
	h, err := conn.Connect(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.Equal(t, int32(1), opener.opens.Load())
	require.NoError(t, conn.Close())
}

func TestCloseWhileOpening(t *testing.T) {
	opener := newCountingOpener()
	conn, err := NewConnection(opener, testSchema)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := conn.Connect(context.Background())
		done <- err
	}()
	<-opener.started
	require.NoError(t, conn.Close())
	close(opener.release)

	assert.ErrorIs(t, <-done, store.ErrConnection)
	assert.False(t, conn.IsConnected())
	assert.Equal(t, StateClosed, conn.State())

	h, err := conn.Connect(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, h)
	require.NoError(t, conn.Close())
}

func TestReconnectWaitsForDiscardedOpen(t *testing.T) {
	opener := newCountingOpener()
	conn, err := NewConnection(opener, testSchema)
	require.NoError(t, err)
	defer conn.Close()

	first := make(chan error, 1)
	go func() {
		_, err := conn.Connect(context.Background())
		first <- err
	}()
	<-opener.started
	require.NoError(t, conn.Close())

	second := make(chan error, 1)
	go func() {
		_, err := conn.Connect(context.Background())
		second <- err
	}()

	// the new open must not reach the engine while the old one runs
	select {
	case <-opener.started:
		t.Fatal("second open started while the discarded one was running")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int32(1), opener.opens.Load())

	close(opener.release)
	assert.ErrorIs(t, <-first, store.ErrConnection)
	require.NoError(t, <-second)
	assert.Equal(t, int32(2), opener.opens.Load())
	assert.True(t, conn.IsConnected())
}

func TestReconnectWithBolt(t *testing.T) {
	// a second bbolt handle on the same file would wait for the lock and fail
	opener := &countingOpener{
		Opener:  bolt.NewOpener(&bolt.Options{Dir: t.TempDir(), NoSync: true, Timeout: 100 * time.Millisecond}),
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
	conn, err := NewConnection(opener, testSchema)
	require.NoError(t, err)
	defer conn.Close()

	first := make(chan error, 1)
	go func() {
		_, err := conn.Connect(context.Background())
		first <- err
	}()
	<-opener.started
	require.NoError(t, conn.Close())

	second := make(chan error, 1)
	go func() {
		_, err := conn.Connect(context.Background())
		second <- err
	}()
	close(opener.release)

	assert.ErrorIs(t, <-first, store.ErrConnection)
	require.NoError(t, <-second)
	assert.True(t, conn.IsConnected())
}

func TestConnectionErrors(t *testing.T) {
	ctx := context.Background()
	opener := maple.NewOpener(nil)

	v2 := testSchema
	v2.Version = 2
	conn, err := NewConnection(opener, v2)
	require.NoError(t, err)
	_, err = conn.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// a lower version than the stored one
	conn, err = NewConnection(opener, testSchema)
	require.NoError(t, err)
	_, err = conn.Connect(ctx)
	assert.ErrorIs(t, err, store.ErrConnection)
	assert.ErrorIs(t, err, db.ErrVersion)
	assert.Equal(t, StateUnopened, conn.State(), "a failed open resets the state")

	_, err = leads(t, NewLocalStore(conn)).InsertOne(ctx, document.Document{})
	assert.ErrorIs(t, err, store.ErrConnection)

	// invalid schemas are rejected before anything is opened
	_, err = NewConnection(opener, store.Schema{Name: "crm"})
	assert.ErrorIs(t, err, store.ErrInvalidOperation)
}

// --------------------------------------------------------------------------
// Schema Upgrade
// --------------------------------------------------------------------------

func TestSchemaUpgrade(t *testing.T) {
	for name, newOpener := range engines {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			opener := newOpener(t)

			conn, err := NewConnection(opener, testSchema)
			require.NoError(t, err)
			_, err = leads(t, NewLocalStore(conn)).InsertOne(ctx, document.Document{"_id": document.String("kept")})
			require.NoError(t, err)
			require.NoError(t, conn.Close())

			v2 := store.Schema{Name: "crm", Version: 2, Collections: []store.CollectionSpec{
				{Name: "leads", Indexes: []store.IndexSpec{
					{Name: "email", Field: "email", Unique: true},
					{Name: "status", Field: "status"},
				}},
				{Name: "jobs"},
				{Name: "resumes", Indexes: []store.IndexSpec{{Name: "skills", Field: "skills"}}},
			}}
			conn, err = NewConnection(opener, v2)
			require.NoError(t, err)
			defer conn.Close()
			s := NewLocalStore(conn)

			_, found, err := leads(t, s).FindOne(ctx, query.ByID("kept"))
			require.NoError(t, err)
			assert.True(t, found, "collections are additive")

			h, err := conn.Connect(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), h.Version())
			assert.Equal(t, []string{"jobs", "leads", "resumes"}, h.ObjectStoreNames())

			tx, err := h.Begin(ctx, []string{"leads", "resumes"}, db.ReadOnly)
			require.NoError(t, err)
			defer tx.Abort()
			st, err := tx.ObjectStore("leads")
			require.NoError(t, err)
			assert.Equal(t, []string{"email", "status"}, st.IndexNames())
			assert.Equal(t, document.IDField, st.KeyPath())
			assert.False(t, st.AutoIncrement())
		})
	}
}

func TestConnectionInfo(t *testing.T) {
	conn, err := NewConnection(maple.NewOpener(nil), testSchema)
	require.NoError(t, err)
	defer conn.Close()

	info, err := conn.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, db.ImplMaple, info.DbType)
}
