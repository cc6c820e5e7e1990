// Package testing provides the conformance suite and benchmarks for
// engines that satisfy the db.KVDB interface.
//
// Every engine runs the same suite from its own package:
//
//	func Test(t *testing.T) {
//		dbtesting.RunKVDBTests(t, "MyDatabase", func() db.KVDB {
//			return NewMyDatabase()
//		})
//	}
//
// Tests that need a feature the engine does not advertise are skipped.
package testing
