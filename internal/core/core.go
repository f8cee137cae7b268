// Package core implements the blkar pipelines: encode, decode, check,
// show, update, repair, sort, rescue and calc. Each pipeline takes a
// mode specific parameter record, streams blocks through the codec and
// emits progress and statistics through a report.Reporter.
package core

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/sbx/block"
	"github.com/blockyarchive/blkar/internal/sbx/rsc"
	"github.com/blockyarchive/blkar/internal/sbx/specs"
	"github.com/blockyarchive/blkar/internal/scanner"
)

var (
	ErrUsage        = errors.New("invalid parameters")
	ErrCancelled    = errors.New("operation cancelled")
	ErrUIDMismatch  = errors.New("file UID mismatch")
	ErrNoMetadata   = errors.New("no valid metadata block found")
	ErrHashMismatch = errors.New("hash mismatch")
)

// queueDepth bounds the pipeline stage queues to cap memory use.
const queueDepth = 64

// maxBurstTried bounds the decoder's burst resistance guessing.
const maxBurstTried = 100

// ParseUID parses a hex file UID from the command line.
func ParseUID(s string) ([specs.FileUIDLen]byte, error) {
	var uid [specs.FileUIDLen]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return uid, fmt.Errorf("%w: bad UID %q: %v", ErrUsage, s, err)
	}
	if len(b) != specs.FileUIDLen {
		return uid, fmt.Errorf("%w: UID must be %d bytes, got %d",
			ErrUsage, specs.FileUIDLen, len(b))
	}
	copy(uid[:], b)
	return uid, nil
}

// UIDString renders a file UID for reports.
func UIDString(uid [specs.FileUIDLen]byte) string {
	return hex.EncodeToString(uid[:])
}

// refBlockInfo is what the pipelines extract from a container's
// reference metadata block.
type refBlockInfo struct {
	Offset   int64
	Block    *block.Block
	Meta     *block.MetadataSet
	Version  byte
	FileUID  [specs.FileUIDLen]byte
	RS       *specs.RSParams
	FileSize uint64 // zero when FSZ is absent
	HasFSZ   bool
}

// findRefBlock locates the reference metadata block of a container and
// decodes its fields. expectedVersion and expectedUID are optional
// filters (zero value disables).
func findRefBlock(f *os.File, expectedVersion byte, expectedUID *[specs.FileUIDLen]byte) (*refBlockInfo, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	res, ok, err := scanner.FindRefBlock(f, info.Size(), scanner.Options{
		ToByte:          -1,
		ExpectedVersion: expectedVersion,
		ExpectedUID:     expectedUID,
		StepByRefBlock:  true,
	}, false)
	if err != nil {
		return nil, err
	}
	if !ok && expectedUID != nil {
		return nil, fmt.Errorf("%w: no container with UID %s",
			ErrUIDMismatch, UIDString(*expectedUID))
	}
	if !ok || !res.Block.IsMeta() {
		return nil, ErrNoMetadata
	}

	ref := &refBlockInfo{
		Offset:  res.Offset,
		Block:   res.Block,
		Version: res.Block.Header.Version,
		FileUID: res.Block.Header.FileUID,
	}
	ref.Meta, err = res.Block.Metadata()
	if err != nil {
		return nil, err
	}
	if specs.UsesRS(ref.Version) {
		ref.RS, err = block.ParseRSParams(ref.Meta)
		if err != nil {
			return nil, err
		}
		if ref.RS == nil {
			return nil, fmt.Errorf("%w: parity version %d without PID field",
				block.ErrMetadataMalformed, ref.Version)
		}
	}
	if m := ref.Meta.Get(block.MetaFSZ); m != nil {
		ref.FileSize = m.U64
		ref.HasFSZ = true
	}
	return ref, nil
}

// layoutFor builds the container layout from a reference block. When
// FSZ is missing the total size is estimated from the container file
// size.
func layoutFor(ref *refBlockInfo, containerSize int64, rep *report.Reporter) (*rsc.Layout, error) {
	if !ref.HasFSZ {
		rep.Note("Warning: no recorded file size, estimating block count from container size")
		bs, err := specs.BlockSize(ref.Version)
		if err != nil {
			return nil, err
		}
		ds := bs - specs.HeaderSize
		metaBlocks := int64(1)
		if ref.RS != nil {
			metaBlocks += int64(ref.RS.ParityShards)
		}
		dataRegion := containerSize/int64(bs) - metaBlocks
		if dataRegion < 0 {
			dataRegion = 0
		}
		// Estimate: assume every data region block capacity is used.
		var est uint64
		if ref.RS != nil {
			groups := uint64(dataRegion) / uint64(ref.RS.GroupSize())
			est = groups * uint64(ref.RS.DataShards) * uint64(ds)
		} else {
			est = uint64(dataRegion) * uint64(ds)
		}
		return rsc.NewLayout(ref.Version, ref.RS, est)
	}
	return rsc.NewLayout(ref.Version, ref.RS, ref.FileSize)
}
