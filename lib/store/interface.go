package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dPrefs/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates the engine used by a store.
type DBFactory func() (db.KVDB, error)

// IStore is a named, persistent preference namespace.
//
// The typed getters never return the zero value of a missing key: a missing
// key yields def and a nil error. A key holding a value of another type yields
// def together with an error wrapping ErrTypeMismatch.
type IStore interface {
	// Name returns the name of the namespace.
	Name() string

	GetBool(key string, def bool) (bool, error)
	GetString(key string, def string) (string, error)
	GetInt(key string, def int32) (int32, error)
	GetFloat(key string, def float32) (float32, error)
	GetLong(key string, def int64) (int64, error)
	// GetStringSet returns a sorted copy of the stored set.
	GetStringSet(key string, def []string) ([]string, error)

	// Contains reports whether a value is stored for key.
	Contains(key string) bool
	// Keys returns all stored keys, sorted.
	Keys() []string
	// All returns every stored value decoded into its Go type
	// (bool, string, int32, float32, int64 or []string).
	All() map[string]any

	// Edit starts a new edit transaction. Nothing is visible to readers
	// before the editor is committed.
	Edit() Editor

	// Subscribe registers a listener for change notifications.
	// Listeners are called on the store's dispatch goroutine, in commit order.
	Subscribe(l Listener) ListenerHandle
	// Unsubscribe removes a listener. Unknown handles are ignored.
	Unsubscribe(h ListenerHandle)

	// Close stops change delivery and releases the engine.
	Close() error
}

// Syncer is implemented by stores that deliver notifications asynchronously.
type Syncer interface {
	// SyncListeners blocks until every notification queued before the call
	// has been delivered.
	SyncListeners(ctx context.Context) error
}

// Editor stages writes to a store. Put methods return the editor so calls can
// be chained; nothing happens until Commit or Apply.
//
// Like a transaction, Clear is applied before all puts and removes of the same
// editor, no matter the call order.
type Editor interface {
	PutBool(key string, value bool) Editor
	PutString(key string, value string) Editor
	PutInt(key string, value int32) Editor
	PutFloat(key string, value float32) Editor
	PutLong(key string, value int64) Editor
	PutStringSet(key string, value []string) Editor
	Remove(key string) Editor
	Clear() Editor

	// Commit applies the staged writes, persists them durably and blocks
	// until that is done. Listeners are notified afterward.
	Commit() error
	// Apply commits in the background and logs failures.
	Apply()
}

// --------------------------------------------------------------------------
// Change notifications
// --------------------------------------------------------------------------

// Change describes one change notification.
type Change struct {
	// Key is the key whose value changed. Empty when Cleared is set.
	Key string
	// Cleared is set when the whole namespace was cleared.
	Cleared bool
}

func (c Change) String() string {
	if c.Cleared {
		return "Change{cleared}"
	}
	return fmt.Sprintf("Change{Key: %s}", c.Key)
}

// Matches reports whether the change affects key.
func (c Change) Matches(key string) bool {
	return c.Cleared || c.Key == key
}

// Listener is called once per changed key after a commit or an external
// reload. Only keys whose stored value actually changed are reported.
type Listener func(s IStore, change Change)

// ListenerHandle identifies a registered listener.
type ListenerHandle uint64

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrTypeMismatch is returned by the typed getters when a key holds a value of another type.
	ErrTypeMismatch = errors.New("stored value has a different type")
	// ErrClosed is returned when a store is used after Close.
	ErrClosed = errors.New("store is closed")
)

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The wrapped cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("PrefsStoreError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("PrefsStoreError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string, cause error) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  cause,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCPersistError                        // 4: The namespace could not be written durably.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCPersistError:
		return "PersistError"
	default:
		return "Unknown"
	}
}
