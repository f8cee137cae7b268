package scanner

import (
	"bytes"
	"io"
	"testing"

	"github.com/blockyarchive/blkar/internal/sbx/block"
	"github.com/blockyarchive/blkar/internal/sbx/specs"
)

var testUID = [specs.FileUIDLen]byte{1, 2, 3, 4}

// buildContainer assembles a little container: one metadata block and
// n data blocks.
func buildContainer(t *testing.T, version byte, n int) []byte {
	t.Helper()
	bs, err := specs.BlockSize(version)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	buf := make([]byte, bs)

	meta, err := block.New(version, testUID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := meta.SetMetadata(&block.MetadataSet{}); err != nil {
		t.Fatal(err)
	}
	if err := meta.ToBytes(buf); err != nil {
		t.Fatal(err)
	}
	out.Write(buf)

	for seq := uint32(1); seq <= uint32(n); seq++ {
		blk, err := block.New(version, testUID, seq)
		if err != nil {
			t.Fatal(err)
		}
		for i := range blk.Payload {
			blk.Payload[i] = byte(seq)
		}
		if err := blk.ToBytes(buf); err != nil {
			t.Fatal(err)
		}
		out.Write(buf)
	}
	return out.Bytes()
}

func collect(t *testing.T, sc *Scanner) []Result {
	t.Helper()
	var results []Result
	for {
		res, err := sc.Next()
		if err == io.EOF {
			return results
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		results = append(results, res)
	}
}

func TestScanCleanContainer(t *testing.T) {
	data := buildContainer(t, specs.Version1, 5)
	sc := New(bytes.NewReader(data), int64(len(data)), Options{
		ToByte:         -1,
		StepByRefBlock: true,
	})
	results := collect(t, sc)
	if len(results) != 6 {
		t.Fatalf("found %d blocks, want 6", len(results))
	}
	for i, res := range results {
		if res.Offset != int64(i*512) {
			t.Errorf("block %d at offset %d, want %d", i, res.Offset, i*512)
		}
		if res.Block.Header.SeqNum != uint32(i) {
			t.Errorf("block %d seq = %d", i, res.Block.Header.SeqNum)
		}
	}
}

func TestScanAlignedGarbagePrefix(t *testing.T) {
	container := buildContainer(t, specs.Version1, 3)
	garbage := bytes.Repeat([]byte{0xAA}, 3*specs.ScanBlockSize)
	data := append(garbage, container...)

	sc := New(bytes.NewReader(data), int64(len(data)), Options{
		ToByte:         -1,
		StepByRefBlock: true,
	})
	results := collect(t, sc)
	if len(results) != 4 {
		t.Fatalf("found %d blocks, want 4", len(results))
	}
	if results[0].Offset != int64(len(garbage)) {
		t.Errorf("first block at %d, want %d", results[0].Offset, len(garbage))
	}
}

func TestScanMisalignedPrefix(t *testing.T) {
	container := buildContainer(t, specs.Version2, 3)
	data := append([]byte{1, 2, 3, 4, 5, 6, 7}, container...)

	// Aligned scanning misses everything; misaligned probing finds all.
	aligned := New(bytes.NewReader(data), int64(len(data)), Options{
		ToByte:         -1,
		StepByRefBlock: true,
	})
	if got := collect(t, aligned); len(got) != 0 {
		t.Fatalf("aligned scan found %d blocks in shifted stream", len(got))
	}

	misaligned := New(bytes.NewReader(data), int64(len(data)), Options{
		ToByte:   -1,
		Misalign: true,
	})
	results := collect(t, misaligned)
	if len(results) != 4 {
		t.Fatalf("misaligned scan found %d blocks, want 4", len(results))
	}
	if results[0].Offset != 7 {
		t.Errorf("first block at %d, want 7", results[0].Offset)
	}
}

func TestScanVersionAndUIDFilter(t *testing.T) {
	a := buildContainer(t, specs.Version1, 2)
	b := buildContainer(t, specs.Version2, 2)
	data := append(append([]byte(nil), a...), b...)

	// Unfiltered scan picks up both containers.
	all := New(bytes.NewReader(data), int64(len(data)), Options{ToByte: -1})
	if got := collect(t, all); len(got) != 6 {
		t.Fatalf("unfiltered scan found %d blocks, want 6", len(got))
	}

	// Version filter keeps only the second container.
	filtered := New(bytes.NewReader(data), int64(len(data)), Options{
		ToByte:          -1,
		ExpectedVersion: specs.Version2,
	})
	results := collect(t, filtered)
	if len(results) != 3 {
		t.Fatalf("filtered scan found %d blocks, want 3", len(results))
	}
	for _, res := range results {
		if res.Block.Header.Version != specs.Version2 {
			t.Errorf("filter leaked version %d", res.Block.Header.Version)
		}
	}
}

func TestScanRefBlockAdoption(t *testing.T) {
	a := buildContainer(t, specs.Version1, 2)
	other := buildContainer(t, specs.Version2, 2)
	data := append(append([]byte(nil), a...), other...)

	sc := New(bytes.NewReader(data), int64(len(data)), Options{
		ToByte:         -1,
		StepByRefBlock: true,
	})
	results := collect(t, sc)
	// After adopting the first container's metadata block as reference,
	// the second container is filtered out by version and UID.
	if len(results) != 3 {
		t.Fatalf("found %d blocks, want 3", len(results))
	}
	if sc.RefBlock() == nil || sc.RefBlock().Header.Version != specs.Version1 {
		t.Errorf("reference block not adopted correctly")
	}
}

func TestScanCorruptBlockSkipped(t *testing.T) {
	data := buildContainer(t, specs.Version1, 4)
	// Corrupt the payload of the block with seq 2.
	data[2*512+100] ^= 0xFF

	sc := New(bytes.NewReader(data), int64(len(data)), Options{
		ToByte:         -1,
		StepByRefBlock: true,
	})
	results := collect(t, sc)
	if len(results) != 4 {
		t.Fatalf("found %d blocks, want 4", len(results))
	}
	for _, res := range results {
		if res.Block.Header.SeqNum == 2 {
			t.Errorf("corrupt block reported as valid")
		}
	}
}

func TestScanRange(t *testing.T) {
	data := buildContainer(t, specs.Version1, 4)

	// Negative from clamps to zero, To bounds the scan.
	sc := New(bytes.NewReader(data), int64(len(data)), Options{
		FromByte:       -100,
		ToByte:         2 * 512,
		StepByRefBlock: true,
	})
	if got := collect(t, sc); len(got) != 2 {
		t.Fatalf("ranged scan found %d blocks, want 2", len(got))
	}

	// Zero To yields an empty scan.
	empty := New(bytes.NewReader(data), int64(len(data)), Options{
		ToByte:         0,
		StepByRefBlock: true,
	})
	if got := collect(t, empty); len(got) != 0 {
		t.Fatalf("empty range found %d blocks", len(got))
	}
}

func TestFindRefBlockPrefersMeta(t *testing.T) {
	data := buildContainer(t, specs.Version1, 3)
	// Corrupt the metadata block; the fallback is the first data block.
	data[20] ^= 0xFF
	res, ok, err := FindRefBlock(bytes.NewReader(data), int64(len(data)),
		Options{ToByte: -1, StepByRefBlock: true}, false)
	if err != nil || !ok {
		t.Fatalf("FindRefBlock: ok=%v err=%v", ok, err)
	}
	if res.Block.IsMeta() {
		t.Errorf("corrupt metadata block returned as reference")
	}
	if res.Block.Header.SeqNum != 1 {
		t.Errorf("fallback seq = %d, want 1", res.Block.Header.SeqNum)
	}
}
