// Package badgerdb implements db.KVDB on top of BadgerDB, an embedded LSM
// key-value store. Unlike maple it is durable by itself (FeatureDurable), so the
// local store does not write snapshot files when a namespace uses this engine.
//
// Every value is stored with an 8 byte little endian write index prefix which
// drives stale write detection. Save and Load use Badger's own backup stream;
// Load drops the existing content first so it replaces, not merges.
//
// Badger holds a directory lock, so a namespace on this engine cannot be
// shared with another process and change notifications only come from writers
// inside the process.
package badgerdb
