// Package scanner locates valid SBX blocks in a byte stream of unknown
// alignment. Candidates are probed at the smallest container alignment
// (128 bytes, which also covers the 512 and 4096 byte variants) and a
// candidate is accepted iff its signature matches, its version is known
// and its CRC verifies.
package scanner

import (
	"bytes"
	"io"

	"github.com/blockyarchive/blkar/internal/sbx/block"
	"github.com/blockyarchive/blkar/internal/sbx/specs"
)

// Options configure a scan.
type Options struct {
	// FromByte and ToByte bound the scanned range. A negative FromByte is
	// clamped to zero; a ToByte of zero or less than FromByte yields an
	// empty scan. ToByte < 0 means "until end of stream".
	FromByte int64
	ToByte   int64

	// ExpectedVersion restricts matches to one version when nonzero.
	ExpectedVersion byte

	// ExpectedUID restricts matches to one file UID when non nil.
	ExpectedUID *[specs.FileUIDLen]byte

	// StepByRefBlock makes the scanner adopt the first matching block as
	// a reference: subsequent candidates are probed at that block's size
	// granularity and filtered by its version and UID. When false every
	// 128 byte alignment is probed for the whole scan, which picks up
	// blocks of multiple containers (rescue mode).
	StepByRefBlock bool

	// Misalign probes every byte offset instead of 128 byte alignments,
	// recovering containers that are sector shifted by a non aligned
	// amount. Considerably slower.
	Misalign bool
}

// Result is one located block.
type Result struct {
	Offset int64
	Block  *block.Block
}

// Scanner is a restartable lazy block iterator.
type Scanner struct {
	r    io.ReaderAt
	size int64
	opts Options

	pos  int64
	end  int64
	step int64

	ref *block.Block

	buf [specs.LargestBlockSize]byte
}

// New creates a scanner over r, whose total size must be given.
func New(r io.ReaderAt, size int64, opts Options) *Scanner {
	s := &Scanner{r: r, size: size, opts: opts}
	s.Reset()
	return s
}

// Reset restarts the scan from the beginning of the configured range.
func (s *Scanner) Reset() {
	from := s.opts.FromByte
	if from < 0 {
		from = 0
	}
	end := s.size
	if s.opts.ToByte >= 0 && s.opts.ToByte < end {
		end = s.opts.ToByte
	}
	s.pos = from
	s.end = end
	s.step = specs.ScanBlockSize
	if s.opts.Misalign {
		s.step = 1
	}
	s.ref = nil
}

// RefBlock returns the adopted reference block, if any.
func (s *Scanner) RefBlock() *block.Block {
	return s.ref
}

// Next returns the next valid block at or after the current position.
// It returns io.EOF when the range is exhausted.
func (s *Scanner) Next() (Result, error) {
	for s.pos+specs.HeaderSize <= s.end {
		off := s.pos

		blk, size, err := s.tryAt(off)
		if err != nil {
			return Result{}, err
		}
		if blk == nil {
			s.pos += s.step
			continue
		}

		if s.opts.StepByRefBlock && s.ref == nil {
			s.ref = blk
			s.step = int64(size)
		}
		s.pos = off + int64(size)
		return Result{Offset: off, Block: blk}, nil
	}
	return Result{}, io.EOF
}

// tryAt probes one candidate position. A nil block with nil error means
// no valid block starts there.
func (s *Scanner) tryAt(off int64) (*block.Block, int, error) {
	// Cheap header probe before committing to a full block read.
	hdr := s.buf[:specs.HeaderSize]
	if _, err := io.ReadFull(io.NewSectionReader(s.r, off, specs.HeaderSize), hdr); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	if !bytes.Equal(hdr[0:3], specs.SignatureBytes[:]) {
		return nil, 0, nil
	}
	version := hdr[3]
	if !specs.IsKnownVersion(version) {
		return nil, 0, nil
	}
	if s.opts.ExpectedVersion != 0 && version != s.opts.ExpectedVersion {
		return nil, 0, nil
	}
	if s.ref != nil && version != s.ref.Header.Version {
		return nil, 0, nil
	}

	size, err := specs.BlockSize(version)
	if err != nil {
		return nil, 0, nil
	}
	if off+int64(size) > s.end {
		return nil, 0, nil
	}

	buf := s.buf[:size]
	if _, err := io.ReadFull(io.NewSectionReader(s.r, off, int64(size)), buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, nil
		}
		return nil, 0, err
	}

	blk, err := block.FromBytes(buf, 0)
	if err != nil {
		return nil, 0, nil
	}
	if s.opts.ExpectedUID != nil && blk.Header.FileUID != *s.opts.ExpectedUID {
		return nil, 0, nil
	}
	if s.ref != nil && blk.Header.FileUID != s.ref.Header.FileUID {
		return nil, 0, nil
	}
	return blk, size, nil
}

// FindRefBlock scans for a reference block: the first metadata block,
// falling back to the first data block when no metadata block is found.
// When anyBlockType is set the scan stops at the first block of any kind.
// It returns the block and its offset, or ok=false when none is found.
func FindRefBlock(r io.ReaderAt, size int64, opts Options, anyBlockType bool) (Result, bool, error) {
	sc := New(r, size, opts)
	var firstData *Result
	for {
		res, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, false, err
		}
		if res.Block.IsMeta() {
			return res, true, nil
		}
		if firstData == nil {
			r := res
			firstData = &r
			if anyBlockType {
				break
			}
		}
	}
	if firstData != nil {
		return *firstData, true, nil
	}
	return Result{}, false, nil
}
