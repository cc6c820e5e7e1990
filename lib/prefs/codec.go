package prefs

import (
	"fmt"
	"slices"

	"github.com/ValentinKolb/dPrefs/lib/store"
	"github.com/ValentinKolb/dPrefs/lib/internal"
)

// Codec maps one Go type onto the typed accessors of a store. Codecs are
// stateless and shared by all properties of their type, the default is
// passed in by the property.
type Codec[T any] interface {
	// Decode reads key from s. A missing, mistyped or unreadable value yields def.
	Decode(s store.IStore, key string, def T) T
	// Encode stages a put of v on e. It never performs I/O.
	Encode(e store.Editor, key string, v T)
	// Equal reports whether a and b are the same value.
	Equal(a, b T) bool
}

// Copier is implemented by codecs of reference types. Properties hand out
// copies, so a caller changing a returned value changes neither the default
// nor the cell.
type Copier[T any] interface {
	Copy(v T) T
}

// decoded logs a failed read and returns the value the store fell back to
func decoded[T any](s store.IStore, key string, v T, err error) T {
	if err != nil {
		log.Debugf("%s/%s: using default: %v", s.Name(), key, err)
	}
	return v
}

// --------------------------------------------------------------------------
// Built-in codecs
// --------------------------------------------------------------------------

type boolCodec struct{}

func (boolCodec) Decode(s store.IStore, key string, def bool) bool {
	v, err := s.GetBool(key, def)
	return decoded(s, key, v, err)
}
func (boolCodec) Encode(e store.Editor, key string, v bool) { e.PutBool(key, v) }
func (boolCodec) Equal(a, b bool) bool                      { return a == b }

type stringCodec struct{}

func (stringCodec) Decode(s store.IStore, key string, def string) string {
	v, err := s.GetString(key, def)
	return decoded(s, key, v, err)
}
func (stringCodec) Encode(e store.Editor, key string, v string) { e.PutString(key, v) }
func (stringCodec) Equal(a, b string) bool                      { return a == b }

type intCodec struct{}

func (intCodec) Decode(s store.IStore, key string, def int32) int32 {
	v, err := s.GetInt(key, def)
	return decoded(s, key, v, err)
}
func (intCodec) Encode(e store.Editor, key string, v int32) { e.PutInt(key, v) }
func (intCodec) Equal(a, b int32) bool                      { return a == b }

type floatCodec struct{}

func (floatCodec) Decode(s store.IStore, key string, def float32) float32 {
	v, err := s.GetFloat(key, def)
	return decoded(s, key, v, err)
}
func (floatCodec) Encode(e store.Editor, key string, v float32) { e.PutFloat(key, v) }

// Equal treats NaN as equal to itself, a stored NaN would otherwise never settle
func (floatCodec) Equal(a, b float32) bool {
	return a == b || (a != a && b != b)
}

type longCodec struct{}

func (longCodec) Decode(s store.IStore, key string, def int64) int64 {
	v, err := s.GetLong(key, def)
	return decoded(s, key, v, err)
}
func (longCodec) Encode(e store.Editor, key string, v int64) { e.PutLong(key, v) }
func (longCodec) Equal(a, b int64) bool                      { return a == b }

// stringSetCodec works on normalized sets: sorted, without duplicates
type stringSetCodec struct{}

func (stringSetCodec) Decode(s store.IStore, key string, def []string) []string {
	v, err := s.GetStringSet(key, def)
	return decoded(s, key, v, err)
}
func (stringSetCodec) Encode(e store.Editor, key string, v []string) { e.PutStringSet(key, v) }

func (stringSetCodec) Copy(v []string) []string { return slices.Clone(v) }

// Equal compares as sets, so element order and duplicates do not matter
func (stringSetCodec) Equal(a, b []string) bool {
	return slices.Equal(internal.NormalizeSet(a), internal.NormalizeSet(b))
}

var (
	BoolCodec      Codec[bool]     = boolCodec{}
	StringCodec    Codec[string]   = stringCodec{}
	IntCodec       Codec[int32]    = intCodec{}
	FloatCodec     Codec[float32]  = floatCodec{}
	LongCodec      Codec[int64]    = longCodec{}
	StringSetCodec Codec[[]string] = stringSetCodec{}
)

// --------------------------------------------------------------------------
// Enum codec
// --------------------------------------------------------------------------

// EnumValue is a Go enum: a comparable constant type whose String method
// returns the constant's name.
type EnumValue interface {
	comparable
	fmt.Stringer
}

// enumCodec stores the name of a constant as a string
type enumCodec[E EnumValue] struct {
	byName map[string]E
}

// EnumCodec returns a codec for the given constants. Stored names that match
// none of them decode to the default.
func EnumCodec[E EnumValue](values ...E) Codec[E] {
	byName := make(map[string]E, len(values))
	for _, v := range values {
		byName[v.String()] = v
	}
	return enumCodec[E]{byName: byName}
}

func (c enumCodec[E]) Decode(s store.IStore, key string, def E) E {
	name, err := s.GetString(key, "")
	if err != nil {
		return decoded(s, key, def, err)
	}
	if !s.Contains(key) {
		return def
	}
	v, ok := c.byName[name]
	if !ok {
		log.Debugf("%s/%s: %q is not a known constant, using default", s.Name(), key, name)
		return def
	}
	return v
}

func (c enumCodec[E]) Encode(e store.Editor, key string, v E) {
	e.PutString(key, v.String())
}

func (c enumCodec[E]) Equal(a, b E) bool {
	return a == b
}
