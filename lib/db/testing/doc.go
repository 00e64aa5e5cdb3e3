// Package testing provides standardised tests and benchmarks for
// engines that implement the db.Opener and db.ObjectDB interfaces.
//
// The package contains:
//   - testing: A conformance suite for the transaction, upgrade and object
//     store contract (isolation, serialized writers, error sentinels)
//   - benchmark: Throughput of common operations, each in its own transaction
//
// Every test gets a fresh opener from the factory, so engines backed by
// files should place them in tb.TempDir().
//
// Example usage:
//
//	factory := func(tb testing.TB) db.Opener {
//		return mydb.NewOpener(tb.TempDir())
//	}
//
//	dbtesting.RunObjectDBTests(t, "MyDB", factory)
//	dbtesting.RunObjectDBBenchmarks(b, "MyDB", factory)
package testing
