package internal

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/ValentinKolb/dPrefs/lib/store"
)

func TestScalarValues(t *testing.T) {
	if v, err := DecodeBool(EncodeBool(true)); err != nil || !v {
		t.Errorf("bool: got %v, %v", v, err)
	}
	if v, err := DecodeString(EncodeString("")); err != nil || v != "" {
		t.Errorf("empty string: got %q, %v", v, err)
	}
	for _, want := range []int32{0, -1, math.MinInt32, math.MaxInt32} {
		if v, err := DecodeInt(EncodeInt(want)); err != nil || v != want {
			t.Errorf("int %d: got %d, %v", want, v, err)
		}
	}
	for _, want := range []int64{0, -42, math.MinInt64, math.MaxInt64} {
		if v, err := DecodeLong(EncodeLong(want)); err != nil || v != want {
			t.Errorf("long %d: got %d, %v", want, v, err)
		}
	}
	if v, err := DecodeFloat(EncodeFloat(-1.5)); err != nil || v != -1.5 {
		t.Errorf("float: got %v, %v", v, err)
	}
}

func TestStringSetIsNormalized(t *testing.T) {
	raw := EncodeStringSet([]string{"b", "a", "b", ""})
	got, err := DecodeStringSet(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if want := []string{"", "a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// same set in another order encodes to the same bytes
	if !reflect.DeepEqual(raw, EncodeStringSet([]string{"", "b", "a"})) {
		t.Errorf("equal sets must encode equally")
	}

	empty, err := DecodeStringSet(EncodeStringSet(nil))
	if err != nil || len(empty) != 0 {
		t.Errorf("empty set: got %v, %v", empty, err)
	}
}

func TestTypeMismatch(t *testing.T) {
	_, err := DecodeInt(EncodeString("12"))
	if !errors.Is(err, store.ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
	_, err = DecodeLong(EncodeInt(12))
	if !errors.Is(err, store.ErrTypeMismatch) {
		t.Errorf("int must not be readable as long, got %v", err)
	}
	_, err = DecodeBool(nil)
	if !errors.Is(err, store.ErrTypeMismatch) {
		t.Errorf("empty value: expected ErrTypeMismatch, got %v", err)
	}
}

func TestCorruptPayloads(t *testing.T) {
	cases := map[string][]byte{
		"short int":      {byte(TypeInt), 1, 2},
		"short long":     {byte(TypeLong), 1},
		"set count":      {byte(TypeStringSet), 9, 0, 0, 0},
		"set elem":       {byte(TypeStringSet), 1, 0, 0, 0, 5, 0, 0, 0, 'a'},
		"bool too long":  {byte(TypeBool), 1, 1},
		"set no counter": {byte(TypeStringSet)},
	}
	for name, raw := range cases {
		if _, err := Decode(raw); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: expected ErrCorrupt, got %v", name, err)
		}
	}
	if _, err := Decode([]byte{200}); !errors.Is(err, ErrCorrupt) {
		t.Errorf("unknown tag: expected ErrCorrupt, got %v", err)
	}
}
