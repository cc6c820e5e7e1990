package lstore

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/ValentinKolb/dPrefs/lib/store"
	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
)

// startWatcher watches the directory of the snapshot file. Watching the file
// itself would lose track of it after the first atomic rename.
func (s *storeImpl) startWatcher() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return err
	}
	s.watcher = w
	s.watched = make(chan struct{})
	go s.watch()
	return nil
}

func (s *storeImpl) watch() {
	defer close(s.watched)

	name := filepath.Base(s.path)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if err := s.reload(); err != nil {
				// a half written file fails to load, the next event retries
				log.Debugf("reload of %q skipped: %v", s.name, err)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Warningf("watcher of %q: %v", s.name, err)
		}
	}
}

// reload reads the snapshot file into a fresh engine and applies the
// difference to the live engine. The file is read under writeMu, so it is
// either the last snapshot this store wrote, which is skipped, or the newer
// one of another writer.
func (s *storeImpl) reload() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return store.ErrClosed
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	sum := xxhash.Sum64(raw)
	if s.written.ok && s.written.sum == sum {
		return nil
	}

	fresh, err := s.factory()
	if err != nil {
		return err
	}
	defer fresh.Close()

	if err := fresh.Load(bytes.NewReader(raw)); err != nil {
		return err
	}
	s.written.sum, s.written.ok = sum, true

	idx := s.index.Add(1)
	if fi := fresh.WriteIdx(); fi > idx {
		s.index.Store(fi)
		idx = fi
	}

	var changes []store.Change
	fresh.Range(func(key string, value []byte) bool {
		if old, ok := s.db.Get(key); !ok || !bytes.Equal(old, value) {
			s.db.Set(key, value, idx)
			changes = append(changes, store.Change{Key: key})
		}
		return true
	})

	var removed []string
	s.db.Range(func(key string, _ []byte) bool {
		if !fresh.Has(key) {
			removed = append(removed, key)
		}
		return true
	})
	for _, key := range removed {
		s.db.Delete(key, idx)
		changes = append(changes, store.Change{Key: key})
	}

	if len(changes) == 0 {
		return nil
	}

	s.reloads.Inc(1)
	log.Infof("namespace %q reloaded from disk, %d key(s) changed", s.name, len(changes))
	s.enqueue(changes)
	return nil
}
