package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple  Implementation = "maple"
	ImplBadger Implementation = "badger"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureSet     Feature = 1 << iota // Support for Set operations
	FeatureGet                         // Support for Get operations
	FeatureDelete                      // Support for Delete operations
	FeatureHas                         // Support for Has operations
	FeatureRange                       // Support for iterating over all entries
	FeatureSave                        // Support for Save operations
	FeatureLoad                        // Support for Load operations
	FeatureDurable                     // Writes survive a process restart without an explicit Save
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureHas:
		return "Has"
	case FeatureRange:
		return "Range"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	case FeatureDurable:
		return "Durable"
	default:
		return "Unknown"
	}
}

// WriteErrorReporter is implemented by engines whose writes can fail. The write
// methods of KVDB return no error, so callers ask after a batch of writes.
type WriteErrorReporter interface {
	// TakeWriteError returns the first write error since the last call and
	// resets it.
	TakeWriteError() error
}

type DatabaseInfo struct {
	Entries           int            `json:"entries"`
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for key-value database implementations backing a
// preference namespace. Keys are plain strings and are preserved by the engine
// so that a namespace can be enumerated and diffed.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry with the given key, value, and writeIndex.
	// If the key already exists with a higher write index, the write is ignored.
	Set(key string, value []byte, writeIndex uint64)

	// Delete removes an entry with the specified key.
	// The key should be removed from the database and not be findable anymore.
	Delete(key string, writeIndex uint64)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	// The returned slice is a copy and safe to modify.
	Get(key string) (value []byte, loaded bool)

	// Has checks whether a key exists in the database.
	Has(key string) (loaded bool)

	// Range calls fn for every entry until fn returns false.
	// The value passed to fn must not be retained.
	Range(fn func(key string, value []byte) bool)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load replaces the database state with the data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Write Index Operations
	// --------------------------------------------------------------------------

	// SetWriteIdx sets the current index of the database only if the provided index is greater than the current index.
	SetWriteIdx(index uint64)

	// WriteIdx returns the current index of the database.
	WriteIdx() (index uint64)

	// Close closes the database.
	Close() (err error)
}
