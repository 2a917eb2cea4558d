package fec

import (
	"bytes"
	"math/rand"
	"testing"
)

func makeShards(n, size int, seed int64) [][]byte {
	rng := rand.New(rand.NewSource(seed))
	shards := make([][]byte, n)
	for i := range shards {
		shards[i] = make([]byte, size)
		rng.Read(shards[i])
	}
	return shards
}

func TestReconstructFromOriginalsOnly(t *testing.T) {
	orig := makeShards(6, 32, 1)
	dec := NewDecoder(len(orig), 32)
	for i, s := range orig {
		dec.Add(i, s)
	}
	out, err := dec.Reconstruct()
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	for i := range orig {
		if !bytes.Equal(out[i], orig[i]) {
			t.Fatalf("shard %d mismatch", i)
		}
	}
}

func TestReconstructFromRepairOnly(t *testing.T) {
	orig := makeShards(5, 48, 2)
	enc, err := NewEncoder(orig)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	dec := NewDecoder(len(orig), 48)
	for i := 0; i < len(orig); i++ { // need numOrig shards; use all-repair
		dec.Add(len(orig)+i, enc.Repair(i))
	}
	out, err := dec.Reconstruct()
	if err != nil {
		t.Fatalf("Reconstruct from all-repair: %v", err)
	}
	for i := range orig {
		if !bytes.Equal(out[i], orig[i]) {
			t.Fatalf("shard %d mismatch", i)
		}
	}
}

func TestReconstructFromMixedSubset(t *testing.T) {
	orig := makeShards(8, 64, 3)
	enc, err := NewEncoder(orig)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	dec := NewDecoder(len(orig), 64)
	// Drop originals 0, 2, 5; replace them with repair shards 0, 1 and 2 so
	// the set size still equals numOrig.
	for i, s := range orig {
		if i == 0 || i == 2 || i == 5 {
			continue
		}
		dec.Add(i, s)
	}
	dec.Add(len(orig)+0, enc.Repair(0))
	dec.Add(len(orig)+1, enc.Repair(1))
	dec.Add(len(orig)+2, enc.Repair(2))

	if !dec.Ready() {
		t.Fatalf("decoder should be ready with %d shards", len(orig))
	}
	out, err := dec.Reconstruct()
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	for i := range orig {
		if !bytes.Equal(out[i], orig[i]) {
			t.Fatalf("shard %d mismatch after mixed-subset reconstruction", i)
		}
	}
}

func TestReconstructFailsWithTooFewShards(t *testing.T) {
	dec := NewDecoder(10, 16)
	for i := 0; i < 5; i++ {
		dec.Add(i, make([]byte, 16))
	}
	if dec.Ready() {
		t.Fatal("decoder should not be ready with fewer than numOrig shards")
	}
	if _, err := dec.Reconstruct(); err == nil {
		t.Fatal("expected error reconstructing with insufficient shards")
	}
}

func TestGF256MulDivInverse(t *testing.T) {
	for a := 1; a < 256; a++ {
		for b := 1; b < 256; b++ {
			prod := gfMul(byte(a), byte(b))
			if gfDiv(prod, byte(b)) != byte(a) {
				t.Fatalf("gfDiv(gfMul(%d,%d), %d) != %d", a, b, b, a)
			}
		}
	}
}
