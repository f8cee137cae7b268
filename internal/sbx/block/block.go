// Package block implements the SBX block codec: the fixed size header,
// CRC stamping and verification, and the metadata TLV payload.
package block

import (
	"errors"
	"fmt"

	"github.com/blockyarchive/blkar/internal/sbx/crc"
	"github.com/blockyarchive/blkar/internal/sbx/specs"
)

var (
	ErrInvalidBlock      = errors.New("invalid block")
	ErrMetadataMalformed = errors.New("malformed metadata")
)

// Kind classifies a block. Data and parity blocks share the same wire
// form; telling them apart needs the RS configuration and the block's
// position within its group.
type Kind int

const (
	KindMeta Kind = iota
	KindData
	KindParity
)

func (k Kind) String() string {
	switch k {
	case KindMeta:
		return "meta"
	case KindData:
		return "data"
	case KindParity:
		return "parity"
	}
	return "unknown"
}

// Block is one SBX block: a header plus a payload of
// BlockSize(version) - HeaderSize bytes.
type Block struct {
	Header  Header
	Payload []byte
}

// New returns a zero payload block of the given version.
func New(version byte, fileUID [specs.FileUIDLen]byte, seqNum uint32) (*Block, error) {
	ds, err := specs.DataSize(version)
	if err != nil {
		return nil, err
	}
	return &Block{
		Header: Header{
			Version: version,
			FileUID: fileUID,
			SeqNum:  seqNum,
		},
		Payload: make([]byte, ds),
	}, nil
}

// BlockSize returns the on disk size of the block.
func (b *Block) BlockSize() int {
	bs, _ := specs.BlockSize(b.Header.Version)
	return bs
}

// IsMeta reports whether the block is a metadata block.
func (b *Block) IsMeta() bool {
	return b.Header.IsMeta()
}

// calcCRC computes the block CRC: CRC-CCITT over the header with a zeroed
// CRC field followed by the payload, seeded with the version number.
func (b *Block) calcCRC() uint16 {
	var hdr [specs.HeaderSize]byte
	saved := b.Header.CRC
	b.Header.CRC = 0
	b.Header.ToBytes(hdr[:])
	b.Header.CRC = saved

	c := crc.Checksum(uint16(b.Header.Version), hdr[:])
	return crc.Update(c, b.Payload)
}

// UpdateCRC stamps the header CRC from the current header and payload.
func (b *Block) UpdateCRC() {
	b.Header.CRC = b.calcCRC()
}

// VerifyCRC reports whether the stored CRC matches the block content.
func (b *Block) VerifyCRC() bool {
	return b.Header.CRC == b.calcCRC()
}

// ToBytes serializes the block into buf, stamping the CRC last.
// buf must be exactly BlockSize(version) bytes.
func (b *Block) ToBytes(buf []byte) error {
	bs, err := specs.BlockSize(b.Header.Version)
	if err != nil {
		return err
	}
	if len(buf) != bs {
		return fmt.Errorf("%w: buffer is %d bytes, want %d",
			ErrInvalidBlock, len(buf), bs)
	}
	if len(b.Payload) != bs-specs.HeaderSize {
		return fmt.Errorf("%w: payload is %d bytes, want %d",
			ErrInvalidBlock, len(b.Payload), bs-specs.HeaderSize)
	}
	b.UpdateCRC()
	if err := b.Header.ToBytes(buf[:specs.HeaderSize]); err != nil {
		return err
	}
	copy(buf[specs.HeaderSize:], b.Payload)
	return nil
}

// FromBytes deserializes a block from buf. If expectedVersion is nonzero
// the block must carry that version. The CRC check is the sole source of
// validity; on any failure no partial state is returned.
func FromBytes(buf []byte, expectedVersion byte) (*Block, error) {
	var h Header
	if err := h.FromBytes(buf); err != nil {
		return nil, err
	}
	if expectedVersion != 0 && h.Version != expectedVersion {
		return nil, fmt.Errorf("%w: version %d, expected %d",
			ErrInvalidBlock, h.Version, expectedVersion)
	}
	bs, err := specs.BlockSize(h.Version)
	if err != nil {
		return nil, err
	}
	if len(buf) < bs {
		return nil, fmt.Errorf("%w: %d bytes, need %d for version %d",
			ErrInvalidBlock, len(buf), bs, h.Version)
	}
	b := &Block{
		Header:  h,
		Payload: append([]byte(nil), buf[specs.HeaderSize:bs]...),
	}
	if !b.VerifyCRC() {
		return nil, fmt.Errorf("%w: CRC mismatch", ErrInvalidBlock)
	}
	return b, nil
}

// KindOf classifies the block given the container's RS configuration.
// rs is nil for plain versions, where every nonzero sequence number is a
// data block.
func (b *Block) KindOf(rs *specs.RSParams) Kind {
	if b.IsMeta() {
		return KindMeta
	}
	if rs == nil {
		return KindData
	}
	member := int(b.Header.SeqNum-1) % rs.GroupSize()
	if member < rs.DataShards {
		return KindData
	}
	return KindParity
}

// Metadata decodes the payload as a metadata TLV set. The block must be
// a metadata block.
func (b *Block) Metadata() (*MetadataSet, error) {
	if !b.IsMeta() {
		return nil, fmt.Errorf("%w: not a metadata block", ErrInvalidBlock)
	}
	return DecodeMetadata(b.Payload)
}

// SetMetadata encodes the TLV set into the payload. The block must be a
// metadata block.
func (b *Block) SetMetadata(s *MetadataSet) error {
	if !b.IsMeta() {
		return fmt.Errorf("%w: not a metadata block", ErrInvalidBlock)
	}
	if err := EncodeMetadata(s, b.Payload); err != nil {
		return err
	}
	b.UpdateCRC()
	return nil
}

// ParseRSParams extracts the PID field from a metadata set, if present.
func ParseRSParams(s *MetadataSet) (*specs.RSParams, error) {
	m := s.Get(MetaPID)
	if m == nil {
		return nil, nil
	}
	if len(m.Bytes) != 2 {
		return nil, fmt.Errorf("%w: PID length %d", ErrMetadataMalformed, len(m.Bytes))
	}
	p := &specs.RSParams{
		DataShards:   int(m.Bytes[0]),
		ParityShards: int(m.Bytes[1]),
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: PID %v", ErrMetadataMalformed, err)
	}
	return p, nil
}
