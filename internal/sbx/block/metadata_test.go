package block

import (
	"errors"
	"testing"

	"github.com/blockyarchive/blkar/internal/sbx/specs"
)

func metaPayload(t *testing.T, s *MetadataSet, version byte) []byte {
	t.Helper()
	ds, err := specs.DataSize(version)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, ds)
	if err := EncodeMetadata(s, buf); err != nil {
		t.Fatalf("EncodeMetadata: %v", err)
	}
	return buf
}

func TestMetadataRoundTrip(t *testing.T) {
	in := &MetadataSet{}
	in.Set(Metadata{ID: MetaFNM, Str: "report.pdf"})
	in.Set(Metadata{ID: MetaSNM, Str: "report.pdf.sbx"})
	in.Set(Metadata{ID: MetaFSZ, U64: 1048576})
	in.Set(Metadata{ID: MetaFDT, I64: 1700000000})
	in.Set(Metadata{ID: MetaSDT, I64: -1})
	in.Set(Metadata{ID: MetaHSH, Bytes: []byte{0x12, 0x04, 1, 2, 3, 4}})
	in.Set(Metadata{ID: MetaPID, Bytes: []byte{10, 2}})

	buf := metaPayload(t, in, specs.Version1)
	out, err := DecodeMetadata(buf)
	if err != nil {
		t.Fatalf("DecodeMetadata: %v", err)
	}

	if got := out.Get(MetaFNM); got == nil || got.Str != "report.pdf" {
		t.Errorf("FNM = %v", got)
	}
	if got := out.Get(MetaFSZ); got == nil || got.U64 != 1048576 {
		t.Errorf("FSZ = %v", got)
	}
	if got := out.Get(MetaSDT); got == nil || got.I64 != -1 {
		t.Errorf("SDT = %v", got)
	}
	if got := out.Get(MetaPID); got == nil || len(got.Bytes) != 2 || got.Bytes[0] != 10 {
		t.Errorf("PID = %v", got)
	}
	if len(out.Fields) != 7 {
		t.Errorf("decoded %d fields, want 7", len(out.Fields))
	}
}

func TestUnknownTagPreserved(t *testing.T) {
	in := &MetadataSet{}
	in.Set(Metadata{ID: MetaFNM, Str: "x"})
	in.Unknown = append(in.Unknown, UnknownMetadata{
		Tag:  [3]byte{'Z', 'Z', 'Q'},
		Data: []byte{9, 8, 7},
	})

	buf := metaPayload(t, in, specs.Version1)
	out, err := DecodeMetadata(buf)
	if err != nil {
		t.Fatalf("DecodeMetadata: %v", err)
	}
	if len(out.Unknown) != 1 {
		t.Fatalf("unknown records = %d, want 1", len(out.Unknown))
	}
	u := out.Unknown[0]
	if string(u.Tag[:]) != "ZZQ" || len(u.Data) != 3 || u.Data[0] != 9 {
		t.Errorf("unknown record not preserved: %+v", u)
	}

	// Re-encoding keeps it verbatim.
	buf2 := metaPayload(t, out, specs.Version1)
	out2, err := DecodeMetadata(buf2)
	if err != nil {
		t.Fatalf("second DecodeMetadata: %v", err)
	}
	if len(out2.Unknown) != 1 || string(out2.Unknown[0].Tag[:]) != "ZZQ" {
		t.Errorf("unknown record lost on re-encode")
	}
}

func TestDuplicateTagRejected(t *testing.T) {
	buf := make([]byte, 112)
	// Two FSZ records back to back.
	pos := 0
	for i := 0; i < 2; i++ {
		copy(buf[pos:], "FSZ")
		buf[pos+3] = 8
		pos += 12
	}
	if _, err := DecodeMetadata(buf); !errors.Is(err, ErrMetadataMalformed) {
		t.Errorf("duplicate FSZ accepted: %v", err)
	}
}

func TestRecordOverrunRejected(t *testing.T) {
	buf := make([]byte, 32)
	copy(buf, "FNM")
	buf[3] = 255 // runs past the buffer
	if _, err := DecodeMetadata(buf); !errors.Is(err, ErrMetadataMalformed) {
		t.Errorf("overrun accepted: %v", err)
	}
}

func TestMetadataTooLargeRejected(t *testing.T) {
	in := &MetadataSet{}
	long := make([]byte, 200)
	in.Set(Metadata{ID: MetaFNM, Str: string(long)})
	in.Set(Metadata{ID: MetaSNM, Str: string(long)})

	ds, _ := specs.DataSize(specs.Version2) // 112 byte payload
	buf := make([]byte, ds)
	if err := EncodeMetadata(in, buf); !errors.Is(err, ErrMetadataMalformed) {
		t.Errorf("oversized metadata accepted: %v", err)
	}
}

func TestSetUnset(t *testing.T) {
	s := &MetadataSet{}
	s.Set(Metadata{ID: MetaSNM, Str: "a"})
	s.Set(Metadata{ID: MetaSNM, Str: "b"})
	if len(s.Fields) != 1 || s.Get(MetaSNM).Str != "b" {
		t.Errorf("Set did not replace: %+v", s.Fields)
	}
	s.Unset(MetaSNM)
	if s.Get(MetaSNM) != nil {
		t.Errorf("Unset did not remove the field")
	}
}
