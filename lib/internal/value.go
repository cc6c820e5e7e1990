package internal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ValentinKolb/dPrefs/lib/store"
)

// ValueType is the tag byte in front of every stored value
type ValueType byte

const (
	TypeInvalid ValueType = iota
	TypeBool
	TypeString
	TypeInt
	TypeFloat
	TypeLong
	TypeStringSet
)

func (t ValueType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeLong:
		return "long"
	case TypeStringSet:
		return "stringSet"
	default:
		return "invalid"
	}
}

// ErrCorrupt is returned for values that carry a valid tag but a broken payload
var ErrCorrupt = errors.New("corrupt stored value")

// TypeOf returns the tag of a raw value
func TypeOf(raw []byte) ValueType {
	if len(raw) == 0 || raw[0] > byte(TypeStringSet) {
		return TypeInvalid
	}
	return ValueType(raw[0])
}

// payload checks the tag and returns the bytes behind it
func payload(raw []byte, want ValueType) ([]byte, error) {
	if got := TypeOf(raw); got != want {
		return nil, fmt.Errorf("%w: want %s, got %s", store.ErrTypeMismatch, want, got)
	}
	return raw[1:], nil
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func EncodeBool(v bool) []byte {
	if v {
		return []byte{byte(TypeBool), 1}
	}
	return []byte{byte(TypeBool), 0}
}

func EncodeString(v string) []byte {
	out := make([]byte, 1+len(v))
	out[0] = byte(TypeString)
	copy(out[1:], v)
	return out
}

func EncodeInt(v int32) []byte {
	out := make([]byte, 5)
	out[0] = byte(TypeInt)
	binary.LittleEndian.PutUint32(out[1:], uint32(v))
	return out
}

func EncodeFloat(v float32) []byte {
	out := make([]byte, 5)
	out[0] = byte(TypeFloat)
	binary.LittleEndian.PutUint32(out[1:], math.Float32bits(v))
	return out
}

func EncodeLong(v int64) []byte {
	out := make([]byte, 9)
	out[0] = byte(TypeLong)
	binary.LittleEndian.PutUint64(out[1:], uint64(v))
	return out
}

// EncodeStringSet sorts and de-duplicates the set before encoding, so equal
// sets always produce equal bytes.
func EncodeStringSet(v []string) []byte {
	set := NormalizeSet(v)

	size := 1 + 4
	for _, s := range set {
		size += 4 + len(s)
	}

	out := make([]byte, size)
	out[0] = byte(TypeStringSet)
	binary.LittleEndian.PutUint32(out[1:5], uint32(len(set)))
	pos := 5
	for _, s := range set {
		binary.LittleEndian.PutUint32(out[pos:pos+4], uint32(len(s)))
		pos += 4
		copy(out[pos:pos+len(s)], s)
		pos += len(s)
	}
	return out
}

// NormalizeSet returns a sorted copy of v without duplicates. nil stays nil.
func NormalizeSet(v []string) []string {
	if v == nil {
		return nil
	}
	set := make([]string, len(v))
	copy(set, v)
	sort.Strings(set)

	out := set[:0]
	for i, s := range set {
		if i > 0 && s == set[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

func DecodeBool(raw []byte) (bool, error) {
	p, err := payload(raw, TypeBool)
	if err != nil {
		return false, err
	}
	if len(p) != 1 {
		return false, ErrCorrupt
	}
	return p[0] == 1, nil
}

func DecodeString(raw []byte) (string, error) {
	p, err := payload(raw, TypeString)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

func DecodeInt(raw []byte) (int32, error) {
	p, err := payload(raw, TypeInt)
	if err != nil {
		return 0, err
	}
	if len(p) != 4 {
		return 0, ErrCorrupt
	}
	return int32(binary.LittleEndian.Uint32(p)), nil
}

func DecodeFloat(raw []byte) (float32, error) {
	p, err := payload(raw, TypeFloat)
	if err != nil {
		return 0, err
	}
	if len(p) != 4 {
		return 0, ErrCorrupt
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(p)), nil
}

func DecodeLong(raw []byte) (int64, error) {
	p, err := payload(raw, TypeLong)
	if err != nil {
		return 0, err
	}
	if len(p) != 8 {
		return 0, ErrCorrupt
	}
	return int64(binary.LittleEndian.Uint64(p)), nil
}

func DecodeStringSet(raw []byte) ([]string, error) {
	p, err := payload(raw, TypeStringSet)
	if err != nil {
		return nil, err
	}
	if len(p) < 4 {
		return nil, ErrCorrupt
	}

	count := binary.LittleEndian.Uint32(p[:4])
	pos := 4
	// every element needs at least its length prefix
	if uint64(count)*4 > uint64(len(p)-pos) {
		return nil, ErrCorrupt
	}

	set := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(p) {
			return nil, ErrCorrupt
		}
		l := int(binary.LittleEndian.Uint32(p[pos : pos+4]))
		pos += 4
		if l < 0 || pos+l > len(p) {
			return nil, ErrCorrupt
		}
		set = append(set, string(p[pos:pos+l]))
		pos += l
	}
	return set, nil
}

// Decode decodes a value of any type into its Go representation
func Decode(raw []byte) (any, error) {
	switch TypeOf(raw) {
	case TypeBool:
		return DecodeBool(raw)
	case TypeString:
		return DecodeString(raw)
	case TypeInt:
		return DecodeInt(raw)
	case TypeFloat:
		return DecodeFloat(raw)
	case TypeLong:
		return DecodeLong(raw)
	case TypeStringSet:
		return DecodeStringSet(raw)
	default:
		return nil, ErrCorrupt
	}
}
