// Package lstore implements a local, file backed preference namespace based on
// the store.IStore interface. It wraps any db.KVDB implementation and adds
// staged edits, atomic persistence and ordered change notifications.
//
// Key Features:
//   - Edits are staged in an Editor and applied in a single commit
//   - Only keys whose stored bytes actually changed are reported to listeners
//   - Notifications are delivered on one dispatch goroutine, in commit order
//   - Optional reload of the snapshot file when another writer replaces it
//   - Per-store metrics registry (github.com/rcrowley/go-metrics)
//
// Implementation Details:
//
//   - Persistence: Engines without db.FeatureDurable (maple) are written to
//     <dir>/<name>.prefs on every commit that changed something. The file is
//     written to a temporary file, fsynced and renamed over the old one, so
//     readers only ever see complete snapshots. Durable engines (badger)
//     persist their own writes and no snapshot file is written.
//
//   - Write Index: Every commit and reload takes the next value of an atomic
//     counter and passes it to the engine as the write index.
//
//   - Notifications: Commits push changes onto a lock-free MPSC queue
//     (util.LockFreeMPSC). A single goroutine drains the queue and calls all
//     listeners. A listener that panics is logged and skipped. SyncListeners
//     waits until everything queued so far has been delivered.
//
//   - Reload: With Config.Watch set, an fsnotify watcher observes the
//     directory. When the snapshot file is created or written, it is loaded
//     into a fresh engine and diffed against the live one. A file this store
//     wrote itself diffs to nothing.
//
// Thread Safety:
//
//	All store methods are safe for concurrent use. Commits and reloads are
//	serialized by one mutex. Reads go straight to the engine.
//
// Usage Example:
//
//	s, err := lstore.Open(lstore.Config{
//		Name:    "settings",
//		Dir:     "/var/lib/app/prefs",
//		Mode:    0o600,
//		Factory: func() (db.KVDB, error) { return maple.NewMapleDB(nil), nil },
//		Watch:   true,
//	})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	h := s.Subscribe(func(s store.IStore, c store.Change) {
//		fmt.Println("changed:", c)
//	})
//	defer s.Unsubscribe(h)
//
//	err = s.Edit().PutBool("dark_mode", true).PutInt("font_size", 14).Commit()
package lstore
