package util

import (
	"fmt"
	"testing"
)

func TestHashString(t *testing.T) {
	seed := GenerateSeed()
	if HashString("theme", seed) != HashString("theme", seed) {
		t.Fatalf("hash is not deterministic")
	}
	if HashString("theme", 1) == HashString("theme", 2) {
		t.Errorf("seed does not change the hash")
	}

	// keys must spread over all shards
	const shards = 16
	var hits [shards]int
	for i := 0; i < 1600; i++ {
		hits[HashString(fmt.Sprintf("key-%d", i), seed)%shards]++
	}
	for i, n := range hits {
		if n == 0 {
			t.Errorf("shard %d got no keys", i)
		}
	}
}
