package multihash

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestSHA256KnownVector(t *testing.T) {
	h, err := New(CodeSHA256)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Write([]byte("abc"))
	sum := h.Sum()

	wantDigest, _ := hex.DecodeString(
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")
	want := append([]byte{0x12, 0x20}, wantDigest...)
	if !bytes.Equal(sum, want) {
		t.Errorf("Sum = %x, want %x", sum, want)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	for _, code := range []uint64{CodeSHA1, CodeSHA256, CodeSHA512, CodeBLAKE2b512} {
		h, err := New(code)
		if err != nil {
			t.Fatalf("New(0x%x): %v", code, err)
		}
		h.Write([]byte("some data"))
		sum := h.Sum()

		d, err := Decode(sum)
		if err != nil {
			t.Fatalf("Decode(0x%x): %v", code, err)
		}
		if d.Code != code {
			t.Errorf("code = 0x%x, want 0x%x", d.Code, code)
		}
		if len(d.Digest) != DigestLen(code) {
			t.Errorf("digest len = %d, want %d", len(d.Digest), DigestLen(code))
		}
		if !d.Checkable() {
			t.Errorf("code 0x%x not checkable", code)
		}
	}
}

func TestUnknownCodeNotCheckable(t *testing.T) {
	// Function code 0x55 with a 4 byte digest. Decoding must succeed;
	// the hash is just not checkable.
	raw := []byte{0x55, 0x04, 1, 2, 3, 4}
	d, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Checkable() {
		t.Errorf("unknown code reported checkable")
	}
	if !bytes.Equal(d.Digest, []byte{1, 2, 3, 4}) {
		t.Errorf("digest = %v", d.Digest)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := [][]byte{
		{},
		{0x12},
		{0x12, 0x20, 1, 2, 3}, // digest shorter than recorded
	}
	for _, c := range cases {
		if _, err := Decode(c); err == nil {
			t.Errorf("Decode(%v) did not fail", c)
		}
	}
}

func TestPlaceholderShape(t *testing.T) {
	for _, code := range []uint64{CodeSHA1, CodeSHA256, CodeSHA512, CodeBLAKE2b512} {
		p := Placeholder(code)
		d, err := Decode(p)
		if err != nil {
			t.Fatalf("Decode placeholder 0x%x: %v", code, err)
		}
		if len(d.Digest) != DigestLen(code) {
			t.Errorf("placeholder digest len = %d, want %d", len(d.Digest), DigestLen(code))
		}
		// Placeholder must have the same length as a real multihash so
		// the metadata record can be patched in place.
		h, _ := New(code)
		h.Write([]byte("x"))
		if len(h.Sum()) != len(p) {
			t.Errorf("placeholder len %d != real multihash len %d", len(p), len(h.Sum()))
		}
	}
}

func TestCodeByName(t *testing.T) {
	cases := map[string]uint64{
		"sha1":        CodeSHA1,
		"SHA256":      CodeSHA256,
		"sha512":      CodeSHA512,
		"blake2b-512": CodeBLAKE2b512,
	}
	for name, want := range cases {
		got, err := CodeByName(name)
		if err != nil {
			t.Fatalf("CodeByName(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("CodeByName(%q) = 0x%x, want 0x%x", name, got, want)
		}
	}
	if _, err := CodeByName("md5"); err == nil {
		t.Errorf("md5 accepted")
	}
}
