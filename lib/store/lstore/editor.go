package lstore

import (
	"sync"

	"github.com/ValentinKolb/dPrefs/lib/store"
	"github.com/ValentinKolb/dPrefs/lib/internal"
)

// op is one staged write, value is nil for removes
type op struct {
	value  []byte
	remove bool
}

// editorImpl stages writes until Commit. The last write to a key wins.
//
// Thread-safety: an editor may be filled from several goroutines, but it is
// meant to be used by one caller.
type editorImpl struct {
	s     *storeImpl
	mu    sync.Mutex
	ops   map[string]op
	order []string
	clear bool
}

func (e *editorImpl) stage(key string, o op) store.Editor {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.ops[key]; !ok {
		e.order = append(e.order, key)
	}
	e.ops[key] = o
	return e
}

func (e *editorImpl) PutBool(key string, value bool) store.Editor {
	return e.stage(key, op{value: internal.EncodeBool(value)})
}

func (e *editorImpl) PutString(key string, value string) store.Editor {
	return e.stage(key, op{value: internal.EncodeString(value)})
}

func (e *editorImpl) PutInt(key string, value int32) store.Editor {
	return e.stage(key, op{value: internal.EncodeInt(value)})
}

func (e *editorImpl) PutFloat(key string, value float32) store.Editor {
	return e.stage(key, op{value: internal.EncodeFloat(value)})
}

func (e *editorImpl) PutLong(key string, value int64) store.Editor {
	return e.stage(key, op{value: internal.EncodeLong(value)})
}

func (e *editorImpl) PutStringSet(key string, value []string) store.Editor {
	return e.stage(key, op{value: internal.EncodeStringSet(value)})
}

func (e *editorImpl) Remove(key string) store.Editor {
	return e.stage(key, op{remove: true})
}

func (e *editorImpl) Clear() store.Editor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clear = true
	return e
}

// Commit hands the staged writes to the store and resets the editor
func (e *editorImpl) Commit() error {
	e.mu.Lock()
	clear, order, ops := e.clear, e.order, e.ops
	e.clear, e.order, e.ops = false, nil, make(map[string]op)
	e.mu.Unlock()

	return e.s.commit(clear, order, ops)
}

func (e *editorImpl) Apply() {
	go func() {
		if err := e.Commit(); err != nil {
			log.Errorf("apply to %q failed: %v", e.s.name, err)
		}
	}()
}
