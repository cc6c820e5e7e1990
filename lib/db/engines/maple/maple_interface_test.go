package maple

import (
	"strings"
	"testing"

	"github.com/ValentinKolb/dPrefs/lib/db"
	dbtesting "github.com/ValentinKolb/dPrefs/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MapleDB", func() db.KVDB {
		return NewMapleDB(nil)
	})
}

func TestSingleShard(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MapleDB(1 shard)", func() db.KVDB {
		return NewMapleDB(&DBOptions{NumShards: 1})
	})
}

func TestLoadRejectsGarbage(t *testing.T) {
	database := NewMapleDB(nil)
	defer database.Close()

	database.Set("kept", []byte("value"), 1)

	if err := database.Load(strings.NewReader("not a snapshot")); err == nil {
		t.Fatalf("Expected error when loading garbage")
	}
	if v, ok := database.Get("kept"); !ok || string(v) != "value" {
		t.Errorf("Failed Load must not change the content, got %q (found=%v)", v, ok)
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "MapleDB", func() db.KVDB {
		return NewMapleDB(nil)
	})
}
