// Package maple implements a sharded in-memory key-value database (KVDB) used as
// the default engine behind a preference namespace.
//
// Key Components:
//
//   - mapleImpl: The database structure implementing db.KVDB. Keys are spread over
//     shards by a seeded FNV-1a hash; every shard is an xsync.MapOf so reads and
//     writes on different keys never contend on a single lock. The write index is
//     supplied by the caller and only moves forward.
//
//   - Entry: The stored value plus the write index of its last update. Writes with
//     a lower index than the stored one are ignored (stale write detection).
//
// Persistence:
//
//	maple is not durable by itself. Save writes a binary snapshot that the local
//	store places next to the namespace, Load replaces the content atomically:
//
//	  magic "MAPLEPRF" | version u8 | write index u64 | count u64
//	  count x ( keyLen u32 | key | index u64 | valueLen u32 | value )
//
//	All integers are little endian and entries are sorted by key, so two
//	databases with equal content produce byte-identical snapshots.
//
// Usage Example:
//
//	database := maple.NewMapleDB(nil)
//	database.Set("theme", []byte("dark"), 1)
//	value, ok := database.Get("theme")
package maple
