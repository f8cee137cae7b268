package rsc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/blockyarchive/blkar/internal/sbx/specs"
)

func shardSet(d int, size int) [][]byte {
	shards := make([][]byte, d)
	for i := range shards {
		shards[i] = make([]byte, size)
		for j := range shards[i] {
			shards[i][j] = byte((i*31 + j) % 256)
		}
	}
	return shards
}

func TestEncodeReconstruct(t *testing.T) {
	params := specs.RSParams{DataShards: 5, ParityShards: 3}
	c, err := New(params)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data := shardSet(5, 496)
	parity, err := c.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(parity) != 3 {
		t.Fatalf("parity count = %d, want 3", len(parity))
	}

	// Drop up to P shards (mixed data and parity) and reconstruct.
	shards := make([][]byte, 8)
	for i, d := range data {
		shards[i] = append([]byte(nil), d...)
	}
	for i, p := range parity {
		shards[5+i] = append([]byte(nil), p...)
	}
	shards[0] = nil
	shards[3] = nil
	shards[6] = nil

	if err := c.Reconstruct(shards); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	for i := 0; i < 5; i++ {
		if !bytes.Equal(shards[i], data[i]) {
			t.Errorf("data shard %d not restored", i)
		}
	}
	if !bytes.Equal(shards[6], parity[1]) {
		t.Errorf("parity shard not restored")
	}
}

func TestReconstructInsufficient(t *testing.T) {
	params := specs.RSParams{DataShards: 4, ParityShards: 2}
	c, err := New(params)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	shards := make([][]byte, 6)
	shards[0] = make([]byte, 16)
	shards[1] = make([]byte, 16)
	shards[2] = make([]byte, 16)
	if err := c.Reconstruct(shards); !errors.Is(err, ErrInsufficientShards) {
		t.Errorf("err = %v, want ErrInsufficientShards", err)
	}
}

func TestEncodeShardSizeMismatch(t *testing.T) {
	c, _ := New(specs.RSParams{DataShards: 2, ParityShards: 1})
	data := [][]byte{make([]byte, 16), make([]byte, 17)}
	if _, err := c.Encode(data); !errors.Is(err, ErrShardSize) {
		t.Errorf("err = %v, want ErrShardSize", err)
	}
}
