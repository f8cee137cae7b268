// Package specs defines the SBX container versions and their parameters.
package specs

import (
	"errors"
	"fmt"
)

// Container version numbers. Versions 1-3 are plain containers, versions
// 17-19 carry Reed-Solomon parity blocks.
const (
	Version1  byte = 1
	Version2  byte = 2
	Version3  byte = 3
	Version17 byte = 17
	Version18 byte = 18
	Version19 byte = 19
)

const (
	// HeaderSize is the fixed size of an SBX block header in bytes.
	HeaderSize = 16

	// FileUIDLen is the length of the file UID field in bytes.
	FileUIDLen = 4

	// LargestBlockSize is the block size of the largest known version.
	LargestBlockSize = 4096

	// ScanBlockSize is the smallest alignment the scanner probes at.
	ScanBlockSize = 128

	// MaxDataShards and MaxParityShards bound the RS configuration.
	MaxDataShards   = 128
	MaxParityShards = 128

	// MaxBurst bounds the burst error resistance parameter.
	MaxBurst = 1000
)

// SignatureBytes is the magic at the start of every block header.
var SignatureBytes = [3]byte{'S', 'B', 'x'}

var (
	ErrUnknownVersion = errors.New("unknown SBX version")
	ErrInvalidRSParam = errors.New("invalid Reed-Solomon parameters")
)

// KnownVersions lists every supported version in ascending order.
var KnownVersions = []byte{Version1, Version2, Version3, Version17, Version18, Version19}

// IsKnownVersion reports whether v is a supported container version.
func IsKnownVersion(v byte) bool {
	switch v {
	case Version1, Version2, Version3, Version17, Version18, Version19:
		return true
	}
	return false
}

// BlockSize returns the total block size in bytes for version v.
func BlockSize(v byte) (int, error) {
	switch v {
	case Version1, Version17:
		return 512, nil
	case Version2, Version18:
		return 128, nil
	case Version3, Version19:
		return 4096, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownVersion, v)
}

// DataSize returns the payload size in bytes for version v.
func DataSize(v byte) (int, error) {
	bs, err := BlockSize(v)
	if err != nil {
		return 0, err
	}
	return bs - HeaderSize, nil
}

// UsesRS reports whether version v carries Reed-Solomon parity blocks.
func UsesRS(v byte) bool {
	switch v {
	case Version17, Version18, Version19:
		return true
	}
	return false
}

// RSParams holds an encode-time Reed-Solomon configuration.
// Burst is encoder-only and is never stored in the container.
type RSParams struct {
	DataShards   int
	ParityShards int
	Burst        int
}

// Validate checks the shard counts and burst resistance against the
// documented ranges.
func (p RSParams) Validate() error {
	if p.DataShards < 1 || p.DataShards > MaxDataShards {
		return fmt.Errorf("%w: data shards %d out of range [1, %d]",
			ErrInvalidRSParam, p.DataShards, MaxDataShards)
	}
	if p.ParityShards < 1 || p.ParityShards > MaxParityShards {
		return fmt.Errorf("%w: parity shards %d out of range [1, %d]",
			ErrInvalidRSParam, p.ParityShards, MaxParityShards)
	}
	if p.DataShards+p.ParityShards > 256 {
		return fmt.Errorf("%w: data + parity shards %d exceed 256",
			ErrInvalidRSParam, p.DataShards+p.ParityShards)
	}
	if p.Burst < 0 || p.Burst > MaxBurst {
		return fmt.Errorf("%w: burst %d out of range [0, %d]",
			ErrInvalidRSParam, p.Burst, MaxBurst)
	}
	return nil
}

// GroupSize returns the number of blocks in one RS block group.
func (p RSParams) GroupSize() int {
	return p.DataShards + p.ParityShards
}
