package testing

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/ValentinKolb/dPrefs/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs the conformance test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("StaleWrites", func(t *testing.T) {
			testStaleWrites(t, factory())
		})

		t.Run("WriteIdx", func(t *testing.T) {
			testWriteIdx(t, factory())
		})

		t.Run("Range", func(t *testing.T) {
			testRange(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EmptyValues", func(t *testing.T) {
			testEmptyValues(t, factory())
		})

		t.Run("ConcurrentWriters", func(t *testing.T) {
			testConcurrentWriters(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	database.Set(testKey, testValue1, 1)

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.Set(testKey, testValue2, 2)

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, exists = database.Get("nonexistent-key"); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	// Get must return a copy
	result[0] = 'X'
	original, _ := database.Get(testKey)
	if !bytes.Equal(original, testValue2) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	// Set must copy its input
	input := []byte("input")
	database.Set("copy-key", input, 3)
	input[0] = 'X'
	if stored, _ := database.Get("copy-key"); !bytes.Equal(stored, []byte("input")) {
		t.Errorf("Set should copy the value, got %s", stored)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	database.Set("delete-me", []byte("value"), 1)
	database.Delete("delete-me", 2)

	if _, exists := database.Get("delete-me"); exists {
		t.Errorf("Expected key to be gone after Delete")
	}

	// deleting a missing key is a no-op
	database.Delete("never-set", 3)
	if _, exists := database.Get("never-set"); exists {
		t.Errorf("Delete of a missing key must not create it")
	}

	// key can be written again after deletion
	database.Set("delete-me", []byte("again"), 4)
	if v, exists := database.Get("delete-me"); !exists || string(v) != "again" {
		t.Errorf("Expected value 'again' after re-set, got %q (found=%v)", v, exists)
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureHas|db.FeatureDelete)

	if database.Has("has-key") {
		t.Errorf("Expected Has to be false before Set")
	}
	database.Set("has-key", []byte("v"), 1)
	if !database.Has("has-key") {
		t.Errorf("Expected Has to be true after Set")
	}
	database.Delete("has-key", 2)
	if database.Has("has-key") {
		t.Errorf("Expected Has to be false after Delete")
	}
}

func testStaleWrites(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	database.Set("stale", []byte("new"), 10)
	database.Set("stale", []byte("old"), 5)

	if v, _ := database.Get("stale"); string(v) != "new" {
		t.Errorf("Write with a lower index must be ignored, got %q", v)
	}

	database.Delete("stale", 7)
	if !database.Has("stale") {
		t.Errorf("Delete with a lower index must be ignored")
	}

	// equal index overwrites
	database.Set("stale", []byte("same"), 10)
	if v, _ := database.Get("stale"); string(v) != "same" {
		t.Errorf("Write with an equal index must be applied, got %q", v)
	}
}

func testWriteIdx(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)

	database.Set("a", []byte("1"), 42)
	if idx := database.WriteIdx(); idx != 42 {
		t.Errorf("Expected write index 42, got %d", idx)
	}

	database.SetWriteIdx(10)
	if idx := database.WriteIdx(); idx != 42 {
		t.Errorf("Write index must not move backwards, got %d", idx)
	}

	database.SetWriteIdx(100)
	if idx := database.WriteIdx(); idx != 100 {
		t.Errorf("Expected write index 100, got %d", idx)
	}
}

func testRange(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureRange)

	want := map[string]string{}
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("range-%02d", i)
		want[key] = fmt.Sprintf("value-%d", i)
		database.Set(key, []byte(want[key]), uint64(i+1))
	}

	got := map[string]string{}
	database.Range(func(key string, value []byte) bool {
		got[key] = string(value)
		return true
	})

	if len(got) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(got))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Range: expected %s=%s, got %s", k, v, got[k])
		}
	}

	visited := 0
	database.Range(func(string, []byte) bool {
		visited++
		return visited < 5
	})
	if visited != 5 {
		t.Errorf("Range must stop when fn returns false, visited %d", visited)
	}

	info := database.GetInfo()
	if info.Entries != len(want) {
		t.Errorf("GetInfo: expected %d entries, got %d", len(want), info.Entries)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureSave|db.FeatureLoad)

	numEntries := 200
	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-test-key-%d", i)
		value := []byte(fmt.Sprintf("save-load-test-value-%d", i))
		database.Set(key, value, uint64(i+1))
	}

	// database2 has content that must be replaced by Load
	database2.Set("only-in-target", []byte("x"), 1)

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}
	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-test-key-%d", i)
		expected := []byte(fmt.Sprintf("save-load-test-value-%d", i))

		actual, exists := database2.Get(key)
		if !exists {
			t.Errorf("Key %s not found after Load", key)
			continue
		}
		if !bytes.Equal(actual, expected) {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", key, expected, actual)
		}
	}

	if database2.Has("only-in-target") {
		t.Errorf("Load must replace the existing content")
	}
	if database2.WriteIdx() < uint64(numEntries) {
		t.Errorf("Load must restore the write index, got %d", database2.WriteIdx())
	}
}

func testEmptyValues(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	database.Set("empty-value-key", []byte{}, 1)
	result, exists := database.Get("empty-value-key")
	if !exists {
		t.Errorf("Key for empty value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Expected empty value, got %v", result)
	}

	database.Set("nil-value-key", nil, 2)
	result, exists = database.Get("nil-value-key")
	if !exists {
		t.Errorf("Key for nil value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", result)
	}
}

func testConcurrentWriters(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureRange)

	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				database.Set(key, []byte(key), uint64(w*perWriter+i+1))
			}
		}(w)
	}
	wg.Wait()

	var keys []string
	database.Range(func(key string, value []byte) bool {
		if key != string(value) {
			t.Errorf("Value mismatch for %s: %s", key, value)
		}
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	if len(keys) != writers*perWriter {
		t.Errorf("Expected %d keys, got %d", writers*perWriter, len(keys))
	}
}
