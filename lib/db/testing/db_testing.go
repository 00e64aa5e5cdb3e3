package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/db"
)

// OpenerFactory creates a fresh engine. Engines that need a directory should
// use tb.TempDir() so every test runs on its own files.
type OpenerFactory func(tb testing.TB) db.Opener

const (
	testDB    = "testdb"
	testStore = "people"
	autoStore = "events"
)

// RunObjectDBTests runs a comprehensive test suite for an engine.
func RunObjectDBTests(t *testing.T, name string, factory OpenerFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("OpenAndUpgrade", func(t *testing.T) {
			testOpenAndUpgrade(t, factory(t))
		})

		t.Run("FailedUpgrade", func(t *testing.T) {
			testFailedUpgrade(t, factory(t))
		})

		t.Run("VersionValidation", func(t *testing.T) {
			testVersionValidation(t, factory(t))
		})

		t.Run("Add&Get", func(t *testing.T) {
			testAddGet(t, factory(t))
		})

		t.Run("Put&Delete", func(t *testing.T) {
			testPutDelete(t, factory(t))
		})

		t.Run("GetAllOrder", func(t *testing.T) {
			testGetAllOrder(t, factory(t))
		})

		t.Run("CommitAndAbort", func(t *testing.T) {
			testCommitAbort(t, factory(t))
		})

		t.Run("ReadOnly", func(t *testing.T) {
			testReadOnly(t, factory(t))
		})

		t.Run("FinishedTransaction", func(t *testing.T) {
			testFinishedTx(t, factory(t))
		})

		t.Run("Scope", func(t *testing.T) {
			testScope(t, factory(t))
		})

		t.Run("Indexes", func(t *testing.T) {
			testIndexes(t, factory(t))
		})

		t.Run("AutoIncrement", func(t *testing.T) {
			testAutoIncrement(t, factory(t))
		})

		t.Run("SerializedWrites", func(t *testing.T) {
			testSerializedWrites(t, factory(t))
		})

		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, factory(t))
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory(t))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory(t))
		})

		t.Run("Snapshot", func(t *testing.T) {
			testSnapshot(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// requireFeature skips the test if the database does not support the feature
func requireFeature(t testing.TB, database db.ObjectDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// defaultUpgrade creates the stores used by the tests
func defaultUpgrade(tx db.UpgradeTx, _, _ uint64) error {
	if !tx.HasObjectStore(testStore) {
		s, err := tx.CreateObjectStore(testStore, db.StoreOptions{KeyPath: "_id"})
		if err != nil {
			return err
		}
		if err := s.CreateIndex("by_name", "name", db.IndexOptions{}); err != nil {
			return err
		}
	}
	if !tx.HasObjectStore(autoStore) {
		if _, err := tx.CreateObjectStore(autoStore, db.StoreOptions{AutoIncrement: true}); err != nil {
			return err
		}
	}
	return nil
}

// openDefault opens the test database at version 1 with the default stores
func openDefault(t testing.TB, opener db.Opener) db.ObjectDB {
	t.Helper()
	database, err := opener.Open(context.Background(), testDB, 1, defaultUpgrade)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return database
}

func begin(t testing.TB, database db.ObjectDB, mode db.TxMode, scope ...string) db.Tx {
	t.Helper()
	tx, err := database.Begin(context.Background(), scope, mode)
	if err != nil {
		t.Fatalf("Begin(%v, %s) failed: %v", scope, mode, err)
	}
	return tx
}

func objectStore(t testing.TB, tx db.Tx, name string) db.ObjectStore {
	t.Helper()
	s, err := tx.ObjectStore(name)
	if err != nil {
		t.Fatalf("ObjectStore(%q) failed: %v", name, err)
	}
	return s
}

func commit(t testing.TB, tx db.Tx) {
	t.Helper()
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

// put writes the records in one read-write transaction
func put(t testing.TB, database db.ObjectDB, store string, records map[string]string) {
	t.Helper()
	tx := begin(t, database, db.ReadWrite, store)
	s := objectStore(t, tx, store)
	for k, v := range records {
		if err := s.Put(k, []byte(v)); err != nil {
			t.Fatalf("Put(%q) failed: %v", k, err)
		}
	}
	commit(t, tx)
}

// get reads one record in a read-only transaction
func get(t testing.TB, database db.ObjectDB, store, key string) ([]byte, bool) {
	t.Helper()
	tx := begin(t, database, db.ReadOnly, store)
	defer tx.Abort()
	value, ok, err := objectStore(t, tx, store).Get(key)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return value, ok
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testOpenAndUpgrade(t *testing.T, opener db.Opener) {
	ctx := context.Background()

	var calls [][2]uint64
	upgrade := func(tx db.UpgradeTx, oldVersion, newVersion uint64) error {
		calls = append(calls, [2]uint64{oldVersion, newVersion})
		return defaultUpgrade(tx, oldVersion, newVersion)
	}

	database, err := opener.Open(ctx, testDB, 1, upgrade)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if database.Version() != 1 {
		t.Errorf("Expected version 1, got %d", database.Version())
	}
	if database.Name() != testDB {
		t.Errorf("Expected name %q, got %q", testDB, database.Name())
	}
	names := database.ObjectStoreNames()
	if fmt.Sprint(names) != fmt.Sprint([]string{autoStore, testStore}) {
		t.Errorf("Unexpected object stores %v", names)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// same version: no upgrade
	database, err = opener.Open(ctx, testDB, 1, upgrade)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	_ = database.Close()
	if len(calls) != 1 || calls[0] != [2]uint64{0, 1} {
		t.Fatalf("Expected exactly one upgrade 0->1, got %v", calls)
	}

	// higher version: upgrade with the old version, existing stores are visible
	database, err = opener.Open(ctx, testDB, 3, func(tx db.UpgradeTx, oldVersion, newVersion uint64) error {
		calls = append(calls, [2]uint64{oldVersion, newVersion})
		if !tx.HasObjectStore(testStore) {
			return errors.New("existing store not visible during upgrade")
		}
		_, err := tx.CreateObjectStore("extra", db.StoreOptions{})
		return err
	})
	if err != nil {
		t.Fatalf("Upgrade to version 3 failed: %v", err)
	}
	defer database.Close()
	if len(calls) != 2 || calls[1] != [2]uint64{1, 3} {
		t.Errorf("Expected upgrade 1->3, got %v", calls)
	}
	if database.Version() != 3 {
		t.Errorf("Expected version 3, got %d", database.Version())
	}
	if len(database.ObjectStoreNames()) != 3 {
		t.Errorf("Expected 3 object stores, got %v", database.ObjectStoreNames())
	}
}

func testFailedUpgrade(t *testing.T, opener db.Opener) {
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := opener.Open(ctx, testDB, 1, func(tx db.UpgradeTx, _, _ uint64) error {
		s, err := tx.CreateObjectStore(testStore, db.StoreOptions{})
		if err != nil {
			return err
		}
		if err := s.Put("a", []byte("1")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected upgrade error, got %v", err)
	}

	// nothing of the failed upgrade is persisted, including the version
	database, err := opener.Open(ctx, testDB, 1, func(tx db.UpgradeTx, oldVersion, _ uint64) error {
		if oldVersion != 0 {
			t.Errorf("Expected old version 0 after failed upgrade, got %d", oldVersion)
		}
		if tx.HasObjectStore(testStore) {
			t.Errorf("Store of failed upgrade must not exist")
		}
		return defaultUpgrade(tx, oldVersion, 1)
	})
	if err != nil {
		t.Fatalf("Open after failed upgrade failed: %v", err)
	}
	defer database.Close()

	if _, ok := get(t, database, testStore, "a"); ok {
		t.Errorf("Record written by failed upgrade must not exist")
	}
}

func testVersionValidation(t *testing.T, opener db.Opener) {
	ctx := context.Background()

	database, err := opener.Open(ctx, testDB, 2, defaultUpgrade)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_ = database.Close()

	if _, err := opener.Open(ctx, testDB, 1, defaultUpgrade); !errors.Is(err, db.ErrVersion) {
		t.Errorf("Expected ErrVersion for a lower version, got %v", err)
	}
	if _, err := opener.Open(ctx, testDB, 0, defaultUpgrade); !errors.Is(err, db.ErrVersion) {
		t.Errorf("Expected ErrVersion for version 0, got %v", err)
	}
	if _, err := opener.Open(ctx, "", 1, defaultUpgrade); !errors.Is(err, db.ErrInvalidName) {
		t.Errorf("Expected ErrInvalidName for an empty name, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := opener.Open(cancelled, testDB, 2, defaultUpgrade); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func testAddGet(t *testing.T, opener db.Opener) {
	database := openDefault(t, opener)
	defer database.Close()

	tx := begin(t, database, db.ReadWrite, testStore)
	s := objectStore(t, tx, testStore)

	key, err := s.Add("alice", []byte("v1"))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if key != "alice" {
		t.Errorf("Expected key alice, got %q", key)
	}
	if _, err := s.Add("alice", []byte("v2")); !errors.Is(err, db.ErrKeyExists) {
		t.Errorf("Expected ErrKeyExists within the same transaction, got %v", err)
	}
	if _, err := s.Add("", []byte("v")); !errors.Is(err, db.ErrEmptyKey) {
		t.Errorf("Expected ErrEmptyKey, got %v", err)
	}
	commit(t, tx)

	tx = begin(t, database, db.ReadWrite, testStore)
	if _, err := objectStore(t, tx, testStore).Add("alice", []byte("v3")); !errors.Is(err, db.ErrKeyExists) {
		t.Errorf("Expected ErrKeyExists for a committed key, got %v", err)
	}
	_ = tx.Abort()

	value, ok := get(t, database, testStore, "alice")
	if !ok || !bytes.Equal(value, []byte("v1")) {
		t.Errorf("Expected v1, got %q (found=%v)", value, ok)
	}

	// returned values are copies
	value[0] = 'X'
	value, _ = get(t, database, testStore, "alice")
	if !bytes.Equal(value, []byte("v1")) {
		t.Errorf("Modifying a returned value changed the stored value: %q", value)
	}

	if _, ok := get(t, database, testStore, "nonexistent"); ok {
		t.Errorf("Expected nonexistent key to return found=false")
	}
}

func testPutDelete(t *testing.T, opener db.Opener) {
	database := openDefault(t, opener)
	defer database.Close()

	put(t, database, testStore, map[string]string{"a": "1", "b": "2"})
	put(t, database, testStore, map[string]string{"a": "3"})

	if value, _ := get(t, database, testStore, "a"); string(value) != "3" {
		t.Errorf("Expected Put to overwrite, got %q", value)
	}

	tx := begin(t, database, db.ReadWrite, testStore)
	s := objectStore(t, tx, testStore)
	if err := s.Delete("a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete("missing"); err != nil {
		t.Errorf("Deleting a missing key must not fail: %v", err)
	}
	if _, ok, _ := s.Get("a"); ok {
		t.Errorf("Deleted key visible within the transaction")
	}
	if n, _ := s.Count(); n != 1 {
		t.Errorf("Expected count 1 within the transaction, got %d", n)
	}
	commit(t, tx)

	if _, ok := get(t, database, testStore, "a"); ok {
		t.Errorf("Deleted key still exists")
	}
	if _, ok := get(t, database, testStore, "b"); !ok {
		t.Errorf("Unrelated key was deleted")
	}
}

func testGetAllOrder(t *testing.T, opener db.Opener) {
	database := openDefault(t, opener)
	defer database.Close()

	const n = 200
	records := make(map[string]string, n)
	for _, i := range rand.Perm(n) {
		records[fmt.Sprintf("key-%03d", i)] = strconv.Itoa(i)
	}
	put(t, database, testStore, records)

	tx := begin(t, database, db.ReadWrite, testStore)
	defer tx.Abort()
	s := objectStore(t, tx, testStore)

	// pending writes are merged into the result
	if err := s.Put("key-050a", []byte("new")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete("key-000"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	all, err := s.GetAll()
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != n {
		t.Fatalf("Expected %d records, got %d", n, len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Key >= all[i].Key {
			t.Fatalf("GetAll not in key order at %d: %q >= %q", i, all[i-1].Key, all[i].Key)
		}
	}
	if all[0].Key != "key-001" {
		t.Errorf("Expected first key key-001, got %q", all[0].Key)
	}
	if all[50].Key != "key-050a" || string(all[50].Value) != "new" {
		t.Errorf("Pending record missing from GetAll, got %q=%q", all[50].Key, all[50].Value)
	}

	count, err := s.Count()
	if err != nil || count != n {
		t.Errorf("Expected Count %d, got %d (%v)", n, count, err)
	}
}

func testCommitAbort(t *testing.T, opener db.Opener) {
	database := openDefault(t, opener)
	defer database.Close()

	tx := begin(t, database, db.ReadWrite, testStore)
	s := objectStore(t, tx, testStore)
	if err := s.Put("aborted", []byte("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	// read your own writes
	if value, ok, _ := s.Get("aborted"); !ok || string(value) != "x" {
		t.Errorf("Pending write not visible within the transaction")
	}
	if err := tx.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if _, ok := get(t, database, testStore, "aborted"); ok {
		t.Errorf("Aborted write is visible")
	}

	put(t, database, testStore, map[string]string{"committed": "y"})
	if _, ok := get(t, database, testStore, "committed"); !ok {
		t.Errorf("Committed write is not visible")
	}
}

func testReadOnly(t *testing.T, opener db.Opener) {
	database := openDefault(t, opener)
	defer database.Close()

	tx := begin(t, database, db.ReadOnly, testStore)
	defer tx.Abort()
	if tx.Mode() != db.ReadOnly {
		t.Errorf("Expected read-only mode")
	}
	s := objectStore(t, tx, testStore)

	if _, err := s.Add("a", []byte("1")); !errors.Is(err, db.ErrReadOnly) {
		t.Errorf("Add: expected ErrReadOnly, got %v", err)
	}
	if err := s.Put("a", []byte("1")); !errors.Is(err, db.ErrReadOnly) {
		t.Errorf("Put: expected ErrReadOnly, got %v", err)
	}
	if err := s.Delete("a"); !errors.Is(err, db.ErrReadOnly) {
		t.Errorf("Delete: expected ErrReadOnly, got %v", err)
	}
}

func testFinishedTx(t *testing.T, opener db.Opener) {
	database := openDefault(t, opener)
	defer database.Close()

	tx := begin(t, database, db.ReadWrite, testStore)
	s := objectStore(t, tx, testStore)
	commit(t, tx)

	if err := tx.Commit(); !errors.Is(err, db.ErrTxDone) {
		t.Errorf("Second Commit: expected ErrTxDone, got %v", err)
	}
	if err := tx.Abort(); err != nil {
		t.Errorf("Abort after Commit must be a no-op, got %v", err)
	}
	if _, err := tx.ObjectStore(testStore); !errors.Is(err, db.ErrTxDone) {
		t.Errorf("ObjectStore: expected ErrTxDone, got %v", err)
	}
	if err := s.Put("a", []byte("1")); !errors.Is(err, db.ErrTxDone) {
		t.Errorf("Put: expected ErrTxDone, got %v", err)
	}
	if _, _, err := s.Get("a"); !errors.Is(err, db.ErrTxDone) {
		t.Errorf("Get: expected ErrTxDone, got %v", err)
	}
	if _, err := s.GetAll(); !errors.Is(err, db.ErrTxDone) {
		t.Errorf("GetAll: expected ErrTxDone, got %v", err)
	}
}

func testScope(t *testing.T, opener db.Opener) {
	database := openDefault(t, opener)
	defer database.Close()

	ctx := context.Background()
	if _, err := database.Begin(ctx, []string{"unknown"}, db.ReadOnly); !errors.Is(err, db.ErrStoreNotFound) {
		t.Errorf("Expected ErrStoreNotFound, got %v", err)
	}

	tx := begin(t, database, db.ReadOnly, testStore)
	if _, err := tx.ObjectStore(autoStore); !errors.Is(err, db.ErrNotInScope) {
		t.Errorf("Expected ErrNotInScope, got %v", err)
	}
	_ = tx.Abort()

	// duplicate scope entries are fine
	tx = begin(t, database, db.ReadWrite, testStore, autoStore, testStore)
	_ = tx.Abort()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := database.Begin(cancelled, []string{testStore}, db.ReadOnly); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func testIndexes(t *testing.T, opener db.Opener) {
	database, err := opener.Open(context.Background(), testDB, 1, func(tx db.UpgradeTx, o, n uint64) error {
		if err := defaultUpgrade(tx, o, n); err != nil {
			return err
		}
		s, err := tx.ObjectStore(testStore)
		if err != nil {
			return err
		}
		if err := s.CreateIndex("by_email", "email", db.IndexOptions{Unique: true}); err != nil {
			return err
		}
		if err := s.CreateIndex("by_name", "other", db.IndexOptions{}); !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("expected ErrIndexExists, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()
	requireFeature(t, database, db.FeatureIndexes)

	tx := begin(t, database, db.ReadWrite, testStore)
	defer tx.Abort()
	s := objectStore(t, tx, testStore)

	if names := s.IndexNames(); fmt.Sprint(names) != "[by_email by_name]" {
		t.Errorf("Unexpected index names %v", names)
	}
	info, ok := s.Index("by_email")
	if !ok || info.Field != "email" || !info.Unique {
		t.Errorf("Unexpected index info %+v (found=%v)", info, ok)
	}
	if _, ok := s.Index("missing"); ok {
		t.Errorf("Unknown index reported as found")
	}
	if s.KeyPath() != "_id" || s.AutoIncrement() {
		t.Errorf("Unexpected store options keyPath=%q autoIncrement=%v", s.KeyPath(), s.AutoIncrement())
	}
	if err := s.CreateIndex("late", "x", db.IndexOptions{}); !errors.Is(err, db.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState outside an upgrade, got %v", err)
	}
}

func testAutoIncrement(t *testing.T, opener db.Opener) {
	database := openDefault(t, opener)
	requireFeature(t, database, db.FeatureAutoIncrement)

	tx := begin(t, database, db.ReadWrite, autoStore)
	s := objectStore(t, tx, autoStore)
	if !s.AutoIncrement() {
		t.Fatalf("Expected auto-increment store")
	}
	first, err := s.Add("", []byte("1"))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	second, err := s.Add("", []byte("2"))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if first >= second {
		t.Errorf("Expected ascending keys, got %q then %q", first, second)
	}
	commit(t, tx)
	_ = database.Close()

	// the counter survives a reopen
	database = openDefault(t, opener)
	defer database.Close()
	tx = begin(t, database, db.ReadWrite, autoStore)
	third, err := objectStore(t, tx, autoStore).Add("", []byte("3"))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	commit(t, tx)
	if third <= second {
		t.Errorf("Expected key after %q, got %q", second, third)
	}
}

// testSerializedWrites runs concurrent read-modify-write transactions on one
// key. Lost updates mean the engine does not serialize writers.
func testSerializedWrites(t *testing.T, opener db.Opener) {
	database := openDefault(t, opener)
	defer database.Close()

	put(t, database, testStore, map[string]string{"counter": "0"})

	const workers, rounds = 8, 25
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				if err := increment(database); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("increment failed: %v", err)
	}

	value, _ := get(t, database, testStore, "counter")
	if string(value) != strconv.Itoa(workers*rounds) {
		t.Errorf("Expected counter %d, got %s", workers*rounds, value)
	}
}

func increment(database db.ObjectDB) error {
	tx, err := database.Begin(context.Background(), []string{testStore}, db.ReadWrite)
	if err != nil {
		return err
	}
	defer tx.Abort()
	s, err := tx.ObjectStore(testStore)
	if err != nil {
		return err
	}
	value, _, err := s.Get("counter")
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(string(value))
	if err != nil {
		return err
	}
	if err := s.Put("counter", []byte(strconv.Itoa(n+1))); err != nil {
		return err
	}
	return tx.Commit()
}

func testReopen(t *testing.T, opener db.Opener) {
	database := openDefault(t, opener)
	put(t, database, testStore, map[string]string{"kept": "yes"})
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	database = openDefault(t, opener)
	defer database.Close()
	if value, ok := get(t, database, testStore, "kept"); !ok || string(value) != "yes" {
		t.Errorf("Record lost after reopen: %q (found=%v)", value, ok)
	}
}

func testClosed(t *testing.T, opener db.Opener) {
	database := openDefault(t, opener)
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Errorf("Second Close must be a no-op, got %v", err)
	}
	if _, err := database.Begin(context.Background(), []string{testStore}, db.ReadOnly); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func testInfo(t *testing.T, opener db.Opener) {
	database := openDefault(t, opener)
	defer database.Close()
	put(t, database, testStore, map[string]string{"a": "some value", "b": "another value"})

	info := database.GetInfo()
	if info.DbType != opener.Implementation() {
		t.Errorf("Expected db type %s, got %s", opener.Implementation(), info.DbType)
	}
	if info.SizeBytes <= 0 {
		t.Errorf("Expected a positive size estimate, got %d", info.SizeBytes)
	}
	for _, f := range info.SupportedFeatures {
		if !database.SupportsFeature(f) {
			t.Errorf("Feature %s listed but not supported", f)
		}
	}
	if !database.SupportsFeature(db.FeatureTransactions | db.FeatureUpgrade) {
		t.Errorf("Every engine must support transactions and upgrades")
	}
}

func testSnapshot(t *testing.T, opener db.Opener) {
	database := openDefault(t, opener)
	defer database.Close()
	requireFeature(t, database, db.FeatureSnapshot)

	snap, ok := database.(db.Snapshotter)
	if !ok {
		t.Fatalf("FeatureSnapshot set but %T does not implement db.Snapshotter", database)
	}

	put(t, database, testStore, map[string]string{"a": "1", "b": "2"})

	var buf bytes.Buffer
	if err := snap.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	put(t, database, testStore, map[string]string{"a": "changed", "c": "3"})

	if err := snap.Load(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if value, _ := get(t, database, testStore, "a"); string(value) != "1" {
		t.Errorf("Expected restored value 1, got %q", value)
	}
	if _, ok := get(t, database, testStore, "c"); ok {
		t.Errorf("Record written after Save survived Load")
	}
	if database.Version() != 1 {
		t.Errorf("Expected restored version 1, got %d", database.Version())
	}

	if err := snap.Load(bytes.NewReader([]byte("garbage"))); err == nil {
		t.Errorf("Expected Load to reject invalid input")
	}
	if _, ok := get(t, database, testStore, "b"); !ok {
		t.Errorf("Failed Load must not modify the database")
	}
}
