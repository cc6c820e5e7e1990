// Package db provides the engine interface that backs a preference namespace.
// It defines a small KVDB interface so that a namespace can live in memory with
// snapshot files, or inside a durable embedded database, without the store
// layer above knowing the difference.
//
// Key Components:
//
//   - KVDB Interface: The core interface all engines satisfy. It provides basic
//     operations (Set, Get, Has, Delete), enumeration (Range) used for diffing
//     and exporting namespaces, and persistence (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that engines
//     advertise through SupportsFeature. FeatureDurable tells the store layer
//     that writes already survive a restart, so no snapshot file has to be
//     written on commit.
//
//   - Database Information: DatabaseInfo reports entry count, an estimated size,
//     the implementation and engine specific metadata.
//
// Note on Write Indices:
//   - Every write carries a logical write index. Engines ignore writes whose
//     index is lower than the index of the stored entry, and the global index
//     only ever grows (SetWriteIdx ignores smaller values).
//
// Related Packages:
//
//   - engines/maple: sharded in-memory engine with a binary snapshot format.
//   - engines/badgerdb: durable engine built on BadgerDB.
//   - testing: RunKVDBTests, the conformance suite every engine runs.
package db
