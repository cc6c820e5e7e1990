// Package store defines the persistent preference namespace that bound
// properties are built on: typed getters with defaults, an Editor that stages
// writes until a durable Commit, and listeners that are told which key changed.
//
// Key Components:
//
//   - IStore Interface: a named namespace. Reads never fail the caller on a
//     missing key; a value of the wrong type is reported with ErrTypeMismatch
//     next to the default, so callers decide whether to care.
//
//   - Editor: collects puts, removes and a clear, then Commit applies them in
//     one step, persists the namespace and queues one notification per key
//     whose stored bytes changed. Writing the value a key already holds does
//     not notify.
//
//   - Error System: Error carries a RetCode next to the message and wraps the
//     underlying cause, so errors.Is and errors.As work across layers.
//
// Implementations:
//
//   - Local Store (lstore): a namespace in one directory, backed by any
//     db.KVDB engine. With a non-durable engine every commit rewrites a
//     snapshot file, which other processes may rewrite too; the store watches
//     the file and turns those rewrites into change notifications.
package store
