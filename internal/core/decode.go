package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/blockyarchive/blkar/internal/fsutil"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/sbx/block"
	"github.com/blockyarchive/blkar/internal/sbx/multihash"
	"github.com/blockyarchive/blkar/internal/sbx/rsc"
	"github.com/blockyarchive/blkar/internal/sbx/specs"
	"github.com/blockyarchive/blkar/internal/scanner"
)

// DecodeParams configures the decode pipeline.
type DecodeParams struct {
	InFile  string
	OutFile string

	// ExpectedVersion restricts the reference block scan when nonzero.
	ExpectedVersion byte

	// ExpectedUID restricts the container UID when non nil.
	ExpectedUID *[specs.FileUIDLen]byte

	// BurstHint overrides burst resistance guessing when non nil.
	BurstHint *int

	Force   bool
	Verbose bool
}

// Decode reconstructs the original file from a container. Unrecoverable
// groups are zero filled and counted; they do not abort the pipeline.
func Decode(ctx context.Context, p DecodeParams, rep *report.Reporter) (*report.Stats, error) {
	start := time.Now()

	in, err := os.Open(p.InFile)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	inInfo, err := in.Stat()
	if err != nil {
		return nil, err
	}

	ref, err := findRefBlock(in, p.ExpectedVersion, p.ExpectedUID)
	if err != nil {
		return nil, err
	}
	layout, err := layoutFor(ref, inInfo.Size(), rep)
	if err != nil {
		return nil, err
	}

	stats := &report.Stats{
		SBXVersion:  int(ref.Version),
		FileUID:     UIDString(ref.FileUID),
		BlockSize:   layout.BlockSize(),
		FileSize:    layout.FileSize,
		TotalBlocks: layout.TotalBlocks(),
	}
	if ref.RS != nil {
		stats.DataShards = ref.RS.DataShards
		stats.ParityShards = ref.RS.ParityShards
	}

	burst := 0
	if ref.RS != nil {
		if p.BurstHint != nil {
			burst = *p.BurstHint
		} else {
			burst = detectBurst(in, inInfo.Size(), layout, ref)
		}
		stats.Burst = burst
	}

	out, err := fsutil.CreateOutputFile(p.OutFile, p.Force)
	if err != nil {
		return stats, err
	}
	defer out.Close()
	bw := bufio.NewWriter(out)

	var recorded *multihash.Decoded
	if m := ref.Meta.Get(block.MetaHSH); m != nil {
		if d, err := multihash.Decode(m.Bytes); err == nil {
			recorded = &d
			h := fmt.Sprintf("%x", d.Digest)
			stats.RecordedHash = &h
		}
	}

	var hasher *multihash.Hasher
	if recorded != nil && recorded.Checkable() {
		hasher, _ = multihash.New(recorded.Code)
	} else if recorded != nil {
		rep.Note("Recorded hash uses %s, which cannot be checked by this build",
			multihash.FuncName(recorded.Code))
	}

	var bytesOut uint64
	emit := func(payload []byte, group uint64, member int) error {
		_, length, ok := layout.FileChunk(group, member)
		if !ok {
			return nil
		}
		chunk := payload[:length]
		if hasher != nil {
			hasher.Write(chunk)
		}
		if _, err := bw.Write(chunk); err != nil {
			return err
		}
		bytesOut += uint64(length)
		return nil
	}

	readBlock := func(seq uint32) *block.Block {
		off := int64(layout.SeqToOffset(seq, burst))
		bs := layout.BlockSize()
		buf := make([]byte, bs)
		if _, err := io.ReadFull(io.NewSectionReader(in, off, int64(bs)), buf); err != nil {
			return nil
		}
		blk, err := block.FromBytes(buf, ref.Version)
		if err != nil {
			return nil
		}
		if blk.Header.FileUID != ref.FileUID || blk.Header.SeqNum != seq {
			return nil
		}
		return blk
	}

	if ref.RS == nil {
		for seq := uint32(1); uint64(seq) <= layout.DataBlocks(); seq++ {
			select {
			case <-ctx.Done():
				return stats, fmt.Errorf("%w: decode interrupted", ErrCancelled)
			default:
			}
			blk := readBlock(seq)
			if blk == nil {
				stats.BlocksFailedCheck++
				stats.GroupsUnrecover++
				blk, _ = block.New(ref.Version, ref.FileUID, seq)
			} else {
				stats.DataBlocksDecoded++
			}
			if err := emit(blk.Payload, 0, int(seq-1)); err != nil {
				return stats, err
			}
			rep.Progress(report.Progress{BytesIn: uint64(seq) * uint64(layout.BlockSize()),
				BytesOut: bytesOut, BlocksWritten: uint64(seq), TotalBytes: layout.ContainerSize()})
		}
	} else {
		coder, err := rsc.New(*ref.RS)
		if err != nil {
			return stats, err
		}
		for g := uint64(0); g < layout.Groups(); g++ {
			select {
			case <-ctx.Done():
				return stats, fmt.Errorf("%w: decode interrupted", ErrCancelled)
			default:
			}
			seqs := layout.GroupSeqNums(g)
			shards := make([][]byte, len(seqs))
			present := 0
			for i, seq := range seqs {
				if blk := readBlock(seq); blk != nil {
					shards[i] = blk.Payload
					present++
					stats.DataBlocksDecoded++
				} else {
					stats.BlocksFailedCheck++
				}
			}
			if present < len(seqs) && present >= ref.RS.DataShards {
				if err := coder.Reconstruct(shards); err != nil {
					return stats, err
				}
				stats.BlocksRepaired += uint64(len(seqs) - present)
			} else if present < ref.RS.DataShards {
				stats.GroupsUnrecover++
				if p.Verbose {
					rep.Note("Group %d unrecoverable: %d of %d blocks present",
						g, present, len(seqs))
				}
				for i := range shards[:ref.RS.DataShards] {
					if shards[i] == nil {
						shards[i] = make([]byte, layout.DataSize())
					}
				}
			}
			for i := 0; i < ref.RS.DataShards; i++ {
				if err := emit(shards[i], g, i); err != nil {
					return stats, err
				}
			}
			rep.Progress(report.Progress{
				BytesIn:       (g + 1) * uint64(ref.RS.GroupSize()) * uint64(layout.BlockSize()),
				BytesOut:      bytesOut,
				BlocksWritten: (g + 1) * uint64(ref.RS.GroupSize()),
				TotalBytes:    layout.ContainerSize(),
			})
		}
	}

	if err := bw.Flush(); err != nil {
		return stats, err
	}
	if err := out.Sync(); err != nil {
		return stats, err
	}

	if hasher != nil {
		sum := hasher.Sum()
		d, _ := multihash.Decode(sum)
		h := fmt.Sprintf("%x", d.Digest)
		stats.HashOfOutputFile = &h
		matches := stats.RecordedHash != nil && *stats.RecordedHash == h
		stats.HashMatches = &matches
		if !matches {
			rep.Note("%s: output file does not match recorded hash", ErrHashMismatch)
		}
	}

	stats.TimeElapsedSecs = time.Since(start).Seconds()
	return stats, nil
}

// detectBurst samples valid blocks from the front of the data region
// and picks the smallest burst resistance whose placement formula
// matches every observation. Defaults to zero when nothing fits.
func detectBurst(in io.ReaderAt, size int64, layout *rsc.Layout, ref *refBlockInfo) int {
	sc := scanner.New(in, size, scanner.Options{
		FromByte:        int64(layout.MetaBlockCount()) * int64(layout.BlockSize()),
		ToByte:          -1,
		ExpectedVersion: ref.Version,
		ExpectedUID:     &ref.FileUID,
		StepByRefBlock:  true,
	})
	limit := (1 + ref.RS.ParityShards) * maxBurstTried
	var offsets []uint64
	var seqs []uint32
	for len(offsets) < limit {
		res, err := sc.Next()
		if err != nil {
			break
		}
		if res.Block.IsMeta() {
			continue
		}
		offsets = append(offsets, uint64(res.Offset))
		seqs = append(seqs, res.Block.Header.SeqNum)
	}
	if b, ok := layout.DetectBurst(offsets, seqs, maxBurstTried); ok {
		return b
	}
	return 0
}
