package rsc

import (
	"github.com/blockyarchive/blkar/internal/sbx/specs"
)

// Layout describes the block geometry of one container: where the
// metadata copies sit, how many data and parity blocks exist, and the
// burst interleave permutation applied to the data region.
//
// Sequence numbers are logical: seq 0 is the metadata block, seq 1
// onward covers data and parity blocks in group order (D data blocks
// then P parity blocks per group). The interleave permutes only the
// physical placement inside the data region; the metadata copies always
// occupy the first blocks of the file.
type Layout struct {
	Version  byte
	RS       *specs.RSParams // nil for plain versions
	FileSize uint64

	blockSize  int
	dataSize   int
	dataBlocks uint64
	groups     uint64
}

// NewLayout computes the geometry for a container holding fileSize bytes.
func NewLayout(version byte, rs *specs.RSParams, fileSize uint64) (*Layout, error) {
	bs, err := specs.BlockSize(version)
	if err != nil {
		return nil, err
	}
	ds := bs - specs.HeaderSize
	l := &Layout{
		Version:   version,
		RS:        rs,
		FileSize:  fileSize,
		blockSize: bs,
		dataSize:  ds,
	}
	l.dataBlocks = (fileSize + uint64(ds) - 1) / uint64(ds)
	if rs != nil {
		l.groups = (l.dataBlocks + uint64(rs.DataShards) - 1) / uint64(rs.DataShards)
	}
	return l, nil
}

// BlockSize returns the container's block size in bytes.
func (l *Layout) BlockSize() int { return l.blockSize }

// DataSize returns the per block payload size in bytes.
func (l *Layout) DataSize() int { return l.dataSize }

// DataBlocks returns the number of data blocks holding file content.
// The final group of a parity container is padded with zero payload data
// blocks beyond this count.
func (l *Layout) DataBlocks() uint64 { return l.dataBlocks }

// Groups returns the number of RS block groups (zero for plain versions).
func (l *Layout) Groups() uint64 { return l.groups }

// MetaBlockCount returns the number of metadata blocks at the front of
// the container: the metadata block plus its parity copies.
func (l *Layout) MetaBlockCount() uint64 {
	if l.RS == nil {
		return 1
	}
	return 1 + uint64(l.RS.ParityShards)
}

// DataRegionBlocks returns the number of blocks in the data region,
// including parity and final group zero padding.
func (l *Layout) DataRegionBlocks() uint64 {
	if l.RS == nil {
		return l.dataBlocks
	}
	return l.groups * uint64(l.RS.GroupSize())
}

// TotalBlocks returns the total block count of the container.
func (l *Layout) TotalBlocks() uint64 {
	return l.MetaBlockCount() + l.DataRegionBlocks()
}

// ContainerSize returns the container's total byte size.
func (l *Layout) ContainerSize() uint64 {
	return l.TotalBlocks() * uint64(l.blockSize)
}

// LastSeqNum returns the highest sequence number in the container, or
// zero when the container holds only metadata.
func (l *Layout) LastSeqNum() uint32 {
	return uint32(l.DataRegionBlocks())
}

// interleavePhys maps a logical data region index to its physical index
// for the given burst resistance. Blocks are transposed inside super
// groups of (D+P)*burst blocks: one super group holds burst RS groups,
// and the transpose places one block of each group per column of burst
// consecutive blocks, so a physical burst of up to burst blocks damages
// at most one block per group. A partial super group at the tail keeps
// logical order, since the transpose is only a bijection over a full
// super group.
func (l *Layout) interleavePhys(logical uint64, burst int) uint64 {
	if l.RS == nil || burst <= 0 {
		return logical
	}
	cols := uint64(l.RS.GroupSize())
	super := cols * uint64(burst)
	g := logical / super
	if (g+1)*super > l.DataRegionBlocks() {
		return logical
	}
	j := logical % super
	return g*super + (j%cols)*uint64(burst) + j/cols
}

// interleaveLogical is the inverse of interleavePhys.
func (l *Layout) interleaveLogical(phys uint64, burst int) uint64 {
	if l.RS == nil || burst <= 0 {
		return phys
	}
	cols := uint64(l.RS.GroupSize())
	super := cols * uint64(burst)
	g := phys / super
	if (g+1)*super > l.DataRegionBlocks() {
		return phys
	}
	j := phys % super
	return g*super + (j%uint64(burst))*cols + j/uint64(burst)
}

// MetaBlockPositions returns the byte offsets of the metadata block and
// every parity copy of it.
func (l *Layout) MetaBlockPositions() []uint64 {
	n := l.MetaBlockCount()
	pos := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		pos[i] = i * uint64(l.blockSize)
	}
	return pos
}

// SeqToOffset returns the byte offset of the block with the given
// sequence number under the given burst resistance. Sequence numbers
// start at 1 for the data region; seq 0 maps to offset 0 (the primary
// metadata block).
func (l *Layout) SeqToOffset(seq uint32, burst int) uint64 {
	if seq == 0 {
		return 0
	}
	logical := uint64(seq - 1)
	phys := l.interleavePhys(logical, burst)
	return (l.MetaBlockCount() + phys) * uint64(l.blockSize)
}

// OffsetToSeq returns the sequence number expected at the given byte
// offset. Offsets in the metadata region report seq 0. It returns false
// if the offset is not block aligned or lies past the data region.
func (l *Layout) OffsetToSeq(offset uint64, burst int) (uint32, bool) {
	if offset%uint64(l.blockSize) != 0 {
		return 0, false
	}
	idx := offset / uint64(l.blockSize)
	if idx < l.MetaBlockCount() {
		return 0, true
	}
	phys := idx - l.MetaBlockCount()
	if phys >= l.DataRegionBlocks() {
		return 0, false
	}
	return uint32(l.interleaveLogical(phys, burst) + 1), true
}

// GroupOf returns the RS group index and member index of a sequence
// number. Member indexes below DataShards are data blocks, the rest are
// parity. Plain versions report group 0 and member seq-1.
func (l *Layout) GroupOf(seq uint32) (group uint64, member int) {
	if seq == 0 {
		return 0, 0
	}
	if l.RS == nil {
		return 0, int(seq - 1)
	}
	logical := uint64(seq - 1)
	return logical / uint64(l.RS.GroupSize()), int(logical % uint64(l.RS.GroupSize()))
}

// GroupSeqNums returns the sequence numbers of every block in a group,
// data blocks first.
func (l *Layout) GroupSeqNums(group uint64) []uint32 {
	if l.RS == nil {
		return nil
	}
	n := l.RS.GroupSize()
	seqs := make([]uint32, n)
	base := group*uint64(n) + 1
	for i := 0; i < n; i++ {
		seqs[i] = uint32(base + uint64(i))
	}
	return seqs
}

// FileChunk returns the byte range of the original file covered by a
// data block, given its group and member index. ok is false for parity
// members and for zero padding blocks past the end of the file.
func (l *Layout) FileChunk(group uint64, member int) (start, length uint64, ok bool) {
	var chunkIdx uint64
	if l.RS == nil {
		chunkIdx = group*1 + uint64(member)
	} else {
		if member >= l.RS.DataShards {
			return 0, 0, false
		}
		chunkIdx = group*uint64(l.RS.DataShards) + uint64(member)
	}
	if chunkIdx >= l.dataBlocks {
		return 0, 0, false
	}
	start = chunkIdx * uint64(l.dataSize)
	length = uint64(l.dataSize)
	if start+length > l.FileSize {
		length = l.FileSize - start
	}
	return start, length, true
}

// DetectBurst picks the smallest burst value in [0, maxTried] for which
// every observed (offset, seq) pair matches the layout's placement
// formula. Observations with seq 0 are ignored. Returns false when no
// candidate fits.
func (l *Layout) DetectBurst(offsets []uint64, seqs []uint32, maxTried int) (int, bool) {
	for b := 0; b <= maxTried; b++ {
		fits := true
		for i, off := range offsets {
			if seqs[i] == 0 {
				continue
			}
			if l.SeqToOffset(seqs[i], b) != off {
				fits = false
				break
			}
		}
		if fits {
			return b, true
		}
	}
	return 0, false
}
