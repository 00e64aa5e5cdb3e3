package testing

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/db"
)

// RunObjectDBBenchmarks runs all benchmarks for an engine
func RunObjectDBBenchmarks(b *testing.B, name string, factory OpenerFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Add", func(b *testing.B) {
			benchmarkAdd(b, factory(b))
		})

		b.Run("PutExisting", func(b *testing.B) {
			benchmarkPutExisting(b, factory(b))
		})

		b.Run("PutLargeValue", func(b *testing.B) {
			benchmarkPutLargeValue(b, factory(b))
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory(b))
		})

		b.Run("GetAll(1000)", func(b *testing.B) {
			benchmarkGetAll(b, factory(b), 1000)
		})

		b.Run("ParallelGet", func(b *testing.B) {
			benchmarkParallelGet(b, factory(b))
		})

		b.Run("SaveLoad", func(b *testing.B) {
			benchmarkSaveLoad(b, factory(b))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// prefill writes n records with the given value size in batches
func prefill(b *testing.B, database db.ObjectDB, n, valueSize int) []string {
	b.Helper()
	keys := make([]string, n)
	value := bytes.Repeat([]byte("x"), valueSize)

	const batch = 500
	for start := 0; start < n; start += batch {
		tx := begin(b, database, db.ReadWrite, testStore)
		s := objectStore(b, tx, testStore)
		for i := start; i < n && i < start+batch; i++ {
			keys[i] = fmt.Sprintf("key-%08d", i)
			if err := s.Put(keys[i], value); err != nil {
				b.Fatalf("Put failed: %v", err)
			}
		}
		commit(b, tx)
	}
	return keys
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkAdd(b *testing.B, opener db.Opener) {
	database := openDefault(b, opener)
	defer database.Close()
	value := []byte("benchmark-value")
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx, err := database.Begin(ctx, []string{testStore}, db.ReadWrite)
		if err != nil {
			b.Fatal(err)
		}
		s, _ := tx.ObjectStore(testStore)
		if _, err := s.Add(fmt.Sprintf("key-%d", i), value); err != nil {
			b.Fatal(err)
		}
		if err := tx.Commit(); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkPutExisting(b *testing.B, opener db.Opener) {
	database := openDefault(b, opener)
	defer database.Close()
	keys := prefill(b, database, 1000, 64)
	value := []byte("updated-value")
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx, err := database.Begin(ctx, []string{testStore}, db.ReadWrite)
		if err != nil {
			b.Fatal(err)
		}
		s, _ := tx.ObjectStore(testStore)
		if err := s.Put(keys[i%len(keys)], value); err != nil {
			b.Fatal(err)
		}
		if err := tx.Commit(); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkPutLargeValue(b *testing.B, opener db.Opener) {
	database := openDefault(b, opener)
	defer database.Close()
	value := bytes.Repeat([]byte("L"), 1<<20) // 1MB
	ctx := context.Background()

	b.SetBytes(int64(len(value)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx, err := database.Begin(ctx, []string{testStore}, db.ReadWrite)
		if err != nil {
			b.Fatal(err)
		}
		s, _ := tx.ObjectStore(testStore)
		if err := s.Put("large", value); err != nil {
			b.Fatal(err)
		}
		if err := tx.Commit(); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkGet(b *testing.B, opener db.Opener) {
	database := openDefault(b, opener)
	defer database.Close()
	keys := prefill(b, database, 10000, 64)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx, err := database.Begin(ctx, []string{testStore}, db.ReadOnly)
		if err != nil {
			b.Fatal(err)
		}
		s, _ := tx.ObjectStore(testStore)
		if _, ok, err := s.Get(keys[rand.Intn(len(keys))]); err != nil || !ok {
			b.Fatalf("Get failed: found=%v err=%v", ok, err)
		}
		_ = tx.Abort()
	}
}

func benchmarkGetAll(b *testing.B, opener db.Opener, n int) {
	database := openDefault(b, opener)
	defer database.Close()
	prefill(b, database, n, 128)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx, err := database.Begin(ctx, []string{testStore}, db.ReadOnly)
		if err != nil {
			b.Fatal(err)
		}
		s, _ := tx.ObjectStore(testStore)
		all, err := s.GetAll()
		if err != nil || len(all) != n {
			b.Fatalf("GetAll failed: %d records, err=%v", len(all), err)
		}
		_ = tx.Abort()
	}
}

func benchmarkParallelGet(b *testing.B, opener db.Opener) {
	database := openDefault(b, opener)
	defer database.Close()
	keys := prefill(b, database, 10000, 64)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			tx, err := database.Begin(ctx, []string{testStore}, db.ReadOnly)
			if err != nil {
				b.Error(err)
				return
			}
			s, _ := tx.ObjectStore(testStore)
			if _, _, err := s.Get(keys[r.Intn(len(keys))]); err != nil {
				b.Error(err)
			}
			_ = tx.Abort()
		}
	})
}

func benchmarkSaveLoad(b *testing.B, opener db.Opener) {
	database := openDefault(b, opener)
	defer database.Close()
	requireFeature(b, database, db.FeatureSnapshot)
	snap := database.(db.Snapshotter)
	prefill(b, database, 10000, 64)

	var buf bytes.Buffer
	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf.Reset()
			if err := snap.Save(&buf); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Load", func(b *testing.B) {
		data := buf.Bytes()
		for i := 0; i < b.N; i++ {
			if err := snap.Load(bytes.NewReader(data)); err != nil {
				b.Fatal(err)
			}
		}
	})
}
