package rsc

import (
	"testing"

	"github.com/blockyarchive/blkar/internal/sbx/specs"
)

func TestLayoutPlainGeometry(t *testing.T) {
	l, err := NewLayout(specs.Version1, nil, 1000)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	// 1000 bytes / 496 byte payload = 3 data blocks.
	if l.DataBlocks() != 3 {
		t.Errorf("DataBlocks = %d, want 3", l.DataBlocks())
	}
	if l.MetaBlockCount() != 1 {
		t.Errorf("MetaBlockCount = %d, want 1", l.MetaBlockCount())
	}
	if l.ContainerSize() != 4*512 {
		t.Errorf("ContainerSize = %d, want %d", l.ContainerSize(), 4*512)
	}
}

func TestLayoutEmptyRSContainer(t *testing.T) {
	rs := &specs.RSParams{DataShards: 10, ParityShards: 2}
	l, err := NewLayout(specs.Version17, rs, 0)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	// One metadata block plus its parity copies, no data groups.
	if l.ContainerSize() != 3*512 {
		t.Errorf("ContainerSize = %d, want %d", l.ContainerSize(), 3*512)
	}
	if l.TotalBlocks() != 3 {
		t.Errorf("TotalBlocks = %d, want 3", l.TotalBlocks())
	}
}

func TestLayoutRSGeometry(t *testing.T) {
	rs := &specs.RSParams{DataShards: 4, ParityShards: 2}
	l, err := NewLayout(specs.Version17, rs, 496*9) // 9 data blocks
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	if l.DataBlocks() != 9 {
		t.Errorf("DataBlocks = %d, want 9", l.DataBlocks())
	}
	if l.Groups() != 3 {
		t.Errorf("Groups = %d, want 3", l.Groups())
	}
	// Final group is padded out, so the data region holds 3 full groups.
	if l.DataRegionBlocks() != 18 {
		t.Errorf("DataRegionBlocks = %d, want 18", l.DataRegionBlocks())
	}
	if l.TotalBlocks() != 3+18 {
		t.Errorf("TotalBlocks = %d, want 21", l.TotalBlocks())
	}
	if l.LastSeqNum() != 18 {
		t.Errorf("LastSeqNum = %d, want 18", l.LastSeqNum())
	}
}

func TestGroupOfAndSeqNums(t *testing.T) {
	rs := &specs.RSParams{DataShards: 3, ParityShards: 2}
	l, _ := NewLayout(specs.Version17, rs, 496*6)

	g, m := l.GroupOf(1)
	if g != 0 || m != 0 {
		t.Errorf("GroupOf(1) = %d,%d", g, m)
	}
	g, m = l.GroupOf(5)
	if g != 0 || m != 4 {
		t.Errorf("GroupOf(5) = %d,%d", g, m)
	}
	g, m = l.GroupOf(6)
	if g != 1 || m != 0 {
		t.Errorf("GroupOf(6) = %d,%d", g, m)
	}

	seqs := l.GroupSeqNums(1)
	want := []uint32{6, 7, 8, 9, 10}
	for i, s := range seqs {
		if s != want[i] {
			t.Errorf("GroupSeqNums(1)[%d] = %d, want %d", i, s, want[i])
		}
	}
}

func TestInterleaveBijection(t *testing.T) {
	rs := &specs.RSParams{DataShards: 4, ParityShards: 2}
	// 5 full super groups at burst 3: 5 * 6*3 = 90 blocks = 60 data
	// blocks worth of file.
	l, _ := NewLayout(specs.Version17, rs, 496*60)
	if l.DataRegionBlocks() != 90 {
		t.Fatalf("DataRegionBlocks = %d, want 90", l.DataRegionBlocks())
	}

	for _, burst := range []int{0, 1, 3, 7} {
		seen := make(map[uint64]uint32)
		for seq := uint32(1); seq <= l.LastSeqNum(); seq++ {
			off := l.SeqToOffset(seq, burst)
			if prev, dup := seen[off]; dup {
				t.Fatalf("burst %d: offset %d assigned to seq %d and %d",
					burst, off, prev, seq)
			}
			seen[off] = seq

			back, ok := l.OffsetToSeq(off, burst)
			if !ok || back != seq {
				t.Fatalf("burst %d: OffsetToSeq(SeqToOffset(%d)) = %d, %v",
					burst, seq, back, ok)
			}
		}
	}
}

func TestInterleaveBurstDispersal(t *testing.T) {
	rs := &specs.RSParams{DataShards: 4, ParityShards: 2}
	l, _ := NewLayout(specs.Version17, rs, 496*60)
	burst := 3

	// Any run of burst consecutive physical blocks must touch at most
	// one block per RS group.
	bs := uint64(l.BlockSize())
	dataStart := l.MetaBlockCount() * bs
	for startPhys := uint64(0); startPhys+uint64(burst) <= 90; startPhys++ {
		groups := make(map[uint64]int)
		for i := uint64(0); i < uint64(burst); i++ {
			off := dataStart + (startPhys+i)*bs
			seq, ok := l.OffsetToSeq(off, burst)
			if !ok {
				t.Fatalf("OffsetToSeq failed at physical %d", startPhys+i)
			}
			g, _ := l.GroupOf(seq)
			groups[g]++
		}
		for g, n := range groups {
			if n > 1 {
				t.Fatalf("burst at physical %d hits group %d %d times",
					startPhys, g, n)
			}
		}
	}
}

func TestFileChunkTruncation(t *testing.T) {
	rs := &specs.RSParams{DataShards: 2, ParityShards: 1}
	// 1.5 payloads worth of file: second data block half full.
	l, _ := NewLayout(specs.Version17, rs, 496+200)

	start, length, ok := l.FileChunk(0, 0)
	if !ok || start != 0 || length != 496 {
		t.Errorf("chunk 0 = %d,%d,%v", start, length, ok)
	}
	start, length, ok = l.FileChunk(0, 1)
	if !ok || start != 496 || length != 200 {
		t.Errorf("chunk 1 = %d,%d,%v", start, length, ok)
	}
	// Parity member has no file chunk.
	if _, _, ok := l.FileChunk(0, 2); ok {
		t.Errorf("parity member reported a file chunk")
	}
}

func TestDetectBurst(t *testing.T) {
	rs := &specs.RSParams{DataShards: 4, ParityShards: 2}
	l, _ := NewLayout(specs.Version17, rs, 496*60)

	for _, burst := range []int{0, 1, 3, 5} {
		var offsets []uint64
		var seqs []uint32
		for seq := uint32(1); seq <= 30; seq++ {
			offsets = append(offsets, l.SeqToOffset(seq, burst))
			seqs = append(seqs, seq)
		}
		got, ok := l.DetectBurst(offsets, seqs, 10)
		if !ok {
			t.Fatalf("DetectBurst(burst=%d) found nothing", burst)
		}
		// The smallest consistent burst wins; it must produce the same
		// placement as the one used for encoding (burst 1 degenerates
		// to the burst 0 layout).
		for seq := uint32(1); seq <= l.LastSeqNum(); seq++ {
			if l.SeqToOffset(seq, got) != l.SeqToOffset(seq, burst) {
				t.Fatalf("burst %d: detected %d places seq %d differently",
					burst, got, seq)
			}
		}
	}
}
