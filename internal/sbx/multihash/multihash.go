// Package multihash wraps streaming digests in the self describing
// multihash encoding: varint function code, varint digest length, digest.
package multihash

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrUnsupportedFunc = errors.New("unsupported multihash function")
	ErrMalformed       = errors.New("malformed multihash")
)

// Multihash function codes for the supported digests.
const (
	CodeSHA1       uint64 = 0x11
	CodeSHA256     uint64 = 0x12
	CodeSHA512     uint64 = 0x13
	CodeBLAKE2b512 uint64 = 0xb240
)

// Hasher is a streaming digest that finalizes into a multihash.
type Hasher struct {
	code uint64
	h    hash.Hash
}

// New returns a Hasher for the given function code.
func New(code uint64) (*Hasher, error) {
	var h hash.Hash
	switch code {
	case CodeSHA1:
		h = sha1.New()
	case CodeSHA256:
		h = sha256.New()
	case CodeSHA512:
		h = sha512.New()
	case CodeBLAKE2b512:
		var err error
		h, err = blake2b.New512(nil)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: 0x%x", ErrUnsupportedFunc, code)
	}
	return &Hasher{code: code, h: h}, nil
}

// NewByName maps a CLI algorithm name to a Hasher.
func NewByName(name string) (*Hasher, error) {
	code, err := CodeByName(name)
	if err != nil {
		return nil, err
	}
	return New(code)
}

// CodeByName maps a CLI algorithm name to a multihash function code.
func CodeByName(name string) (uint64, error) {
	switch strings.ToLower(name) {
	case "sha1":
		return CodeSHA1, nil
	case "sha256":
		return CodeSHA256, nil
	case "sha512":
		return CodeSHA512, nil
	case "blake2b-512", "blake2b_512":
		return CodeBLAKE2b512, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFunc, name)
}

// Write feeds data into the digest.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum finalizes the digest and returns the full multihash bytes.
func (h *Hasher) Sum() []byte {
	digest := h.h.Sum(nil)
	out := make([]byte, 0, binary.MaxVarintLen64*2+len(digest))
	out = binary.AppendUvarint(out, h.code)
	out = binary.AppendUvarint(out, uint64(len(digest)))
	return append(out, digest...)
}

// DigestLen returns the digest length in bytes for a supported code.
func DigestLen(code uint64) int {
	switch code {
	case CodeSHA1:
		return 20
	case CodeSHA256:
		return 32
	case CodeSHA512, CodeBLAKE2b512:
		return 64
	}
	return 0
}

// Placeholder returns a multihash with a zeroed digest for the given
// code, used to reserve space before the real digest is known.
func Placeholder(code uint64) []byte {
	n := DigestLen(code)
	out := make([]byte, 0, binary.MaxVarintLen64*2+n)
	out = binary.AppendUvarint(out, code)
	out = binary.AppendUvarint(out, uint64(n))
	return append(out, make([]byte, n)...)
}

// Decoded is a parsed multihash.
type Decoded struct {
	Code   uint64
	Digest []byte
}

// Checkable reports whether the function code is one this build can
// recompute. Unknown codes are preserved but not checkable.
func (d Decoded) Checkable() bool {
	switch d.Code {
	case CodeSHA1, CodeSHA256, CodeSHA512, CodeBLAKE2b512:
		return true
	}
	return false
}

// Decode parses a multihash. An unknown function code is not an error;
// callers check Checkable before recomputing.
func Decode(b []byte) (Decoded, error) {
	code, n := binary.Uvarint(b)
	if n <= 0 {
		return Decoded{}, fmt.Errorf("%w: bad function code varint", ErrMalformed)
	}
	b = b[n:]
	length, n := binary.Uvarint(b)
	if n <= 0 {
		return Decoded{}, fmt.Errorf("%w: bad length varint", ErrMalformed)
	}
	b = b[n:]
	if uint64(len(b)) != length {
		return Decoded{}, fmt.Errorf("%w: digest is %d bytes, recorded %d",
			ErrMalformed, len(b), length)
	}
	return Decoded{Code: code, Digest: append([]byte(nil), b...)}, nil
}

// FuncName returns a display name for a function code.
func FuncName(code uint64) string {
	switch code {
	case CodeSHA1:
		return "SHA1"
	case CodeSHA256:
		return "SHA256"
	case CodeSHA512:
		return "SHA512"
	case CodeBLAKE2b512:
		return "BLAKE2b-512"
	}
	return fmt.Sprintf("unknown(0x%x)", code)
}
