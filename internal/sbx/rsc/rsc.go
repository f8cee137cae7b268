// Package rsc provides the Reed-Solomon erasure coder used by parity
// capable container versions, plus the block layout arithmetic that maps
// sequence numbers to on disk positions under burst interleaving.
package rsc

import (
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"

	"github.com/blockyarchive/blkar/internal/sbx/specs"
)

var (
	ErrInsufficientShards = errors.New("insufficient shards for reconstruction")
	ErrShardSize          = errors.New("inconsistent shard size")
)

// Coder is an (n, k) Reed-Solomon erasure coder over GF(2^8).
type Coder struct {
	params specs.RSParams
	enc    reedsolomon.Encoder
}

// New creates a coder for the given parameters.
func New(params specs.RSParams) (*Coder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	enc, err := reedsolomon.New(params.DataShards, params.ParityShards)
	if err != nil {
		return nil, fmt.Errorf("reedsolomon: %w", err)
	}
	return &Coder{params: params, enc: enc}, nil
}

// Params returns the coder's configuration.
func (c *Coder) Params() specs.RSParams {
	return c.params
}

// Encode computes parity shards for the given data shards. All shards
// must be the same length. The input is not modified.
func (c *Coder) Encode(data [][]byte) ([][]byte, error) {
	if len(data) != c.params.DataShards {
		return nil, fmt.Errorf("%w: %d data shards, want %d",
			ErrShardSize, len(data), c.params.DataShards)
	}
	shardLen := len(data[0])
	shards := make([][]byte, c.params.GroupSize())
	for i, d := range data {
		if len(d) != shardLen {
			return nil, fmt.Errorf("%w: shard %d is %d bytes, want %d",
				ErrShardSize, i, len(d), shardLen)
		}
		shards[i] = d
	}
	for i := c.params.DataShards; i < len(shards); i++ {
		shards[i] = make([]byte, shardLen)
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("reedsolomon encode: %w", err)
	}
	return shards[c.params.DataShards:], nil
}

// Reconstruct fills in missing shards in place. Missing shards are nil
// entries; at least DataShards entries must be present.
func (c *Coder) Reconstruct(shards [][]byte) error {
	if len(shards) != c.params.GroupSize() {
		return fmt.Errorf("%w: %d shards, want %d",
			ErrShardSize, len(shards), c.params.GroupSize())
	}
	present := 0
	for _, s := range shards {
		if s != nil {
			present++
		}
	}
	if present < c.params.DataShards {
		return fmt.Errorf("%w: %d of %d shards present, need %d",
			ErrInsufficientShards, present, c.params.GroupSize(),
			c.params.DataShards)
	}
	if err := c.enc.Reconstruct(shards); err != nil {
		return fmt.Errorf("reedsolomon reconstruct: %w", err)
	}
	return nil
}
