package testing

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ValentinKolb/dPrefs/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementation
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	b.Run(name+"/Set", func(b *testing.B) {
		benchmarkSet(b, factory())
	})

	b.Run(name+"/Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run(name+"/Save", func(b *testing.B) {
		benchmarkSave(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkSet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	value := []byte("benchmark-value")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Set(fmt.Sprintf("key-%d", i%1000), value, uint64(i+1))
	}
}

func benchmarkGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureGet)

	for i := 0; i < 1000; i++ {
		database.Set(fmt.Sprintf("key-%d", i), []byte("benchmark-value"), uint64(i+1))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Get(fmt.Sprintf("key-%d", i%1000))
	}
}

// A preference namespace is saved on every commit, so Save cost matters more
// than raw throughput.
func benchmarkSave(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureSave)

	for i := 0; i < 100; i++ {
		database.Set(fmt.Sprintf("key-%d", i), []byte("benchmark-value"), uint64(i+1))
	}

	var buf bytes.Buffer
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		if err := database.Save(&buf); err != nil {
			b.Fatal(err)
		}
	}
}
