package block

import (
	"errors"
	"testing"

	"github.com/blockyarchive/blkar/internal/sbx/specs"
)

var testUID = [specs.FileUIDLen]byte{0xDE, 0xAD, 0xBE, 0xEF}

func TestBlockRoundTrip(t *testing.T) {
	blk, err := New(specs.Version1, testUID, 42)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := range blk.Payload {
		blk.Payload[i] = byte(i % 251)
	}

	buf := make([]byte, blk.BlockSize())
	if err := blk.ToBytes(buf); err != nil {
		t.Fatalf("ToBytes: %v", err)
	}

	got, err := FromBytes(buf, 0)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got.Header.Version != specs.Version1 {
		t.Errorf("version = %d, want %d", got.Header.Version, specs.Version1)
	}
	if got.Header.FileUID != testUID {
		t.Errorf("uid = %v, want %v", got.Header.FileUID, testUID)
	}
	if got.Header.SeqNum != 42 {
		t.Errorf("seq = %d, want 42", got.Header.SeqNum)
	}
	for i := range got.Payload {
		if got.Payload[i] != byte(i%251) {
			t.Fatalf("payload byte %d = %d, want %d", i, got.Payload[i], byte(i%251))
		}
	}
}

func TestBitFlipFailsCRC(t *testing.T) {
	blk, err := New(specs.Version2, testUID, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf := make([]byte, blk.BlockSize())
	if err := blk.ToBytes(buf); err != nil {
		t.Fatalf("ToBytes: %v", err)
	}

	// Flip single bits in header (past the CRC field) and payload.
	for _, pos := range []int{6, 10, specs.HeaderSize, len(buf) - 1} {
		buf[pos] ^= 0x80
		if _, err := FromBytes(buf, 0); !errors.Is(err, ErrInvalidBlock) {
			t.Errorf("flip at %d: err = %v, want ErrInvalidBlock", pos, err)
		}
		buf[pos] ^= 0x80
	}
	if _, err := FromBytes(buf, 0); err != nil {
		t.Fatalf("restored block failed: %v", err)
	}
}

func TestExpectedVersionMismatch(t *testing.T) {
	blk, _ := New(specs.Version1, testUID, 1)
	buf := make([]byte, blk.BlockSize())
	blk.ToBytes(buf)

	if _, err := FromBytes(buf, specs.Version2); err == nil {
		t.Errorf("version mismatch not detected")
	}
	if _, err := FromBytes(buf, specs.Version1); err != nil {
		t.Errorf("matching expected version rejected: %v", err)
	}
}

func TestBadSignature(t *testing.T) {
	blk, _ := New(specs.Version1, testUID, 1)
	buf := make([]byte, blk.BlockSize())
	blk.ToBytes(buf)
	buf[0] = 'X'
	if _, err := FromBytes(buf, 0); err == nil {
		t.Errorf("bad signature accepted")
	}
}

func TestKindOf(t *testing.T) {
	rs := &specs.RSParams{DataShards: 3, ParityShards: 2}

	meta, _ := New(specs.Version17, testUID, 0)
	if meta.KindOf(rs) != KindMeta {
		t.Errorf("seq 0 not classified as meta")
	}

	// Group of 5: seqs 1-3 data, 4-5 parity, then repeating.
	kinds := map[uint32]Kind{
		1: KindData, 2: KindData, 3: KindData,
		4: KindParity, 5: KindParity,
		6: KindData, 9: KindParity,
	}
	for seq, want := range kinds {
		blk, _ := New(specs.Version17, testUID, seq)
		if got := blk.KindOf(rs); got != want {
			t.Errorf("seq %d: kind = %v, want %v", seq, got, want)
		}
	}

	plain, _ := New(specs.Version1, testUID, 4)
	if plain.KindOf(nil) != KindData {
		t.Errorf("plain nonzero seq not classified as data")
	}
}
