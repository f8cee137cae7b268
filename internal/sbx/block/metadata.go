package block

import (
	"encoding/binary"
	"fmt"
)

// Metadata field IDs. Each ID is a 3 byte ASCII tag in the TLV stream.
type MetadataID int

const (
	MetaFNM MetadataID = iota // original file name
	MetaSNM                   // stored SBX file name
	MetaFSZ                   // original file size
	MetaFDT                   // original file last modified time
	MetaSDT                   // SBX file created time
	MetaHSH                   // multihash of the original file
	MetaPID                   // parity configuration (data, parity shards)
)

// Metadata is one decoded TLV record from a metadata block.
type Metadata struct {
	ID MetadataID

	// Exactly one of the following carries the value, selected by ID.
	Str   string // FNM, SNM
	U64   uint64 // FSZ
	I64   int64  // FDT, SDT
	Bytes []byte // HSH (raw multihash), PID (2 bytes)
}

// UnknownMetadata preserves a record whose tag is not recognized.
type UnknownMetadata struct {
	Tag  [3]byte
	Data []byte
}

func (id MetadataID) Tag() [3]byte {
	switch id {
	case MetaFNM:
		return [3]byte{'F', 'N', 'M'}
	case MetaSNM:
		return [3]byte{'S', 'N', 'M'}
	case MetaFSZ:
		return [3]byte{'F', 'S', 'Z'}
	case MetaFDT:
		return [3]byte{'F', 'D', 'T'}
	case MetaSDT:
		return [3]byte{'S', 'D', 'T'}
	case MetaHSH:
		return [3]byte{'H', 'S', 'H'}
	case MetaPID:
		return [3]byte{'P', 'I', 'D'}
	}
	panic("unreachable")
}

func (id MetadataID) String() string {
	t := id.Tag()
	return string(t[:])
}

func metadataIDFromTag(tag [3]byte) (MetadataID, bool) {
	switch string(tag[:]) {
	case "FNM":
		return MetaFNM, true
	case "SNM":
		return MetaSNM, true
	case "FSZ":
		return MetaFSZ, true
	case "FDT":
		return MetaFDT, true
	case "SDT":
		return MetaSDT, true
	case "HSH":
		return MetaHSH, true
	case "PID":
		return MetaPID, true
	}
	return 0, false
}

func (m *Metadata) valueBytes() []byte {
	switch m.ID {
	case MetaFNM, MetaSNM:
		return []byte(m.Str)
	case MetaFSZ:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], m.U64)
		return b[:]
	case MetaFDT, MetaSDT:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(m.I64))
		return b[:]
	case MetaHSH, MetaPID:
		return m.Bytes
	}
	panic("unreachable")
}

// MetadataSet is the decoded content of a metadata block payload.
type MetadataSet struct {
	Fields  []Metadata
	Unknown []UnknownMetadata
}

// Get returns the field with the given ID, or nil.
func (s *MetadataSet) Get(id MetadataID) *Metadata {
	for i := range s.Fields {
		if s.Fields[i].ID == id {
			return &s.Fields[i]
		}
	}
	return nil
}

// Set replaces or appends the field with m's ID.
func (s *MetadataSet) Set(m Metadata) {
	for i := range s.Fields {
		if s.Fields[i].ID == m.ID {
			s.Fields[i] = m
			return
		}
	}
	s.Fields = append(s.Fields, m)
}

// Unset removes the field with the given ID if present.
func (s *MetadataSet) Unset(id MetadataID) {
	for i := range s.Fields {
		if s.Fields[i].ID == id {
			s.Fields = append(s.Fields[:i], s.Fields[i+1:]...)
			return
		}
	}
}

// EncodeMetadata serializes the set into buf (a full block payload).
// The remainder of buf is zero filled and starts with a PAD record whose
// length is capped at 255; zero bytes past that record are left raw.
func EncodeMetadata(s *MetadataSet, buf []byte) error {
	pos := 0
	write := func(tag [3]byte, val []byte) error {
		if len(val) > 255 {
			return fmt.Errorf("%w: field %s too long (%d bytes)",
				ErrMetadataMalformed, string(tag[:]), len(val))
		}
		if pos+3+1+len(val) > len(buf) {
			return fmt.Errorf("%w: metadata does not fit in block",
				ErrMetadataMalformed)
		}
		copy(buf[pos:], tag[:])
		buf[pos+3] = byte(len(val))
		copy(buf[pos+4:], val)
		pos += 4 + len(val)
		return nil
	}

	for i := range s.Fields {
		m := &s.Fields[i]
		if err := write(m.ID.Tag(), m.valueBytes()); err != nil {
			return err
		}
	}
	for i := range s.Unknown {
		u := &s.Unknown[i]
		if err := write(u.Tag, u.Data); err != nil {
			return err
		}
	}

	// Pad out the remainder. A PAD record needs at least its own 4 byte
	// prefix; anything shorter is left as raw zero bytes.
	rem := len(buf) - pos
	if rem >= 4 {
		padLen := rem - 4
		if padLen > 255 {
			padLen = 255
		}
		copy(buf[pos:], "PAD")
		buf[pos+3] = byte(padLen)
		pos += 4
	}
	for ; pos < len(buf); pos++ {
		buf[pos] = 0
	}
	return nil
}

// DecodeMetadata parses a metadata block payload into a MetadataSet.
// Unknown tags are preserved verbatim and PAD records are dropped.
// Parsing stops at a record whose tag is three zero bytes or when fewer
// than four bytes remain.
func DecodeMetadata(buf []byte) (*MetadataSet, error) {
	s := &MetadataSet{}
	seen := map[MetadataID]bool{}
	pos := 0
	for pos+4 <= len(buf) {
		var tag [3]byte
		copy(tag[:], buf[pos:pos+3])
		if tag == [3]byte{0, 0, 0} {
			break
		}
		length := int(buf[pos+3])
		if pos+4+length > len(buf) {
			return nil, fmt.Errorf("%w: record %q overruns block",
				ErrMetadataMalformed, string(tag[:]))
		}
		val := buf[pos+4 : pos+4+length]
		pos += 4 + length

		if string(tag[:]) == "PAD" {
			continue
		}

		id, known := metadataIDFromTag(tag)
		if !known {
			s.Unknown = append(s.Unknown, UnknownMetadata{
				Tag:  tag,
				Data: append([]byte(nil), val...),
			})
			continue
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate field %s",
				ErrMetadataMalformed, id)
		}
		seen[id] = true

		m := Metadata{ID: id}
		switch id {
		case MetaFNM, MetaSNM:
			m.Str = string(val)
		case MetaFSZ:
			if length != 8 {
				return nil, fmt.Errorf("%w: FSZ length %d",
					ErrMetadataMalformed, length)
			}
			m.U64 = binary.BigEndian.Uint64(val)
		case MetaFDT, MetaSDT:
			if length != 8 {
				return nil, fmt.Errorf("%w: %s length %d",
					ErrMetadataMalformed, id, length)
			}
			m.I64 = int64(binary.BigEndian.Uint64(val))
		case MetaHSH, MetaPID:
			m.Bytes = append([]byte(nil), val...)
		}
		s.Fields = append(s.Fields, m)
	}
	return s, nil
}
