package block

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/blockyarchive/blkar/internal/sbx/specs"
)

// Header is the 16 byte header at the start of every SBX block.
type Header struct {
	Version byte
	CRC     uint16
	FileUID [specs.FileUIDLen]byte
	SeqNum  uint32
}

// ToBytes writes the header into buf, which must be at least HeaderSize long.
// The CRC field is written as currently stored.
func (h *Header) ToBytes(buf []byte) error {
	if len(buf) < specs.HeaderSize {
		return fmt.Errorf("%w: header buffer too small", ErrInvalidBlock)
	}
	copy(buf[0:3], specs.SignatureBytes[:])
	buf[3] = h.Version
	binary.BigEndian.PutUint16(buf[4:6], h.CRC)
	copy(buf[6:10], h.FileUID[:])
	binary.BigEndian.PutUint32(buf[10:14], h.SeqNum)
	buf[14] = 0
	buf[15] = 0
	return nil
}

// FromBytes parses buf into the header. It checks the signature and that
// the version is known; it does not verify the CRC.
func (h *Header) FromBytes(buf []byte) error {
	if len(buf) < specs.HeaderSize {
		return fmt.Errorf("%w: header buffer too small", ErrInvalidBlock)
	}
	if !bytes.Equal(buf[0:3], specs.SignatureBytes[:]) {
		return fmt.Errorf("%w: bad signature", ErrInvalidBlock)
	}
	if !specs.IsKnownVersion(buf[3]) {
		return fmt.Errorf("%w: %d", specs.ErrUnknownVersion, buf[3])
	}
	h.Version = buf[3]
	h.CRC = binary.BigEndian.Uint16(buf[4:6])
	copy(h.FileUID[:], buf[6:10])
	h.SeqNum = binary.BigEndian.Uint32(buf[10:14])
	return nil
}

// IsMeta reports whether the header designates a metadata block.
func (h *Header) IsMeta() bool {
	return h.SeqNum == 0
}
