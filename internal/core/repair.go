package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/blockyarchive/blkar/internal/fsutil"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/sbx/block"
	"github.com/blockyarchive/blkar/internal/sbx/rsc"
	"github.com/blockyarchive/blkar/internal/sbx/specs"
)

// RepairParams configures the repair pipeline.
type RepairParams struct {
	InFile          string
	ExpectedVersion byte
	BurstHint       *int
	DryRun          bool
	Verbose         bool
}

// Repair rewrites corrupt or missing blocks in place using the
// container's parity blocks. The metadata copies are reconstructed by
// majority vote, data groups by Reed-Solomon.
func Repair(ctx context.Context, p RepairParams, rep *report.Reporter) (*report.Stats, error) {
	start := time.Now()

	flags := os.O_RDWR
	if p.DryRun {
		flags = os.O_RDONLY
	}
	in, err := os.OpenFile(p.InFile, flags, 0)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	inInfo, err := in.Stat()
	if err != nil {
		return nil, err
	}

	ref, err := findRefBlock(in, p.ExpectedVersion, nil)
	if err != nil {
		return nil, err
	}
	if !specs.UsesRS(ref.Version) {
		return nil, fmt.Errorf("%w: version %d carries no parity, nothing to repair with",
			ErrUsage, ref.Version)
	}
	layout, err := layoutFor(ref, inInfo.Size(), rep)
	if err != nil {
		return nil, err
	}

	stats := &report.Stats{
		SBXVersion:   int(ref.Version),
		FileUID:      UIDString(ref.FileUID),
		BlockSize:    layout.BlockSize(),
		FileSize:     layout.FileSize,
		TotalBlocks:  layout.TotalBlocks(),
		DataShards:   ref.RS.DataShards,
		ParityShards: ref.RS.ParityShards,
	}

	burst := 0
	if p.BurstHint != nil {
		burst = *p.BurstHint
	} else {
		burst = detectBurst(in, inInfo.Size(), layout, ref)
	}
	stats.Burst = burst

	bs := layout.BlockSize()

	readAt := func(off int64, wantSeq uint32) *block.Block {
		buf := make([]byte, bs)
		if _, err := io.ReadFull(io.NewSectionReader(in, off, int64(bs)), buf); err != nil {
			return nil
		}
		blk, err := block.FromBytes(buf, ref.Version)
		if err != nil {
			return nil
		}
		if blk.Header.FileUID != ref.FileUID || blk.Header.SeqNum != wantSeq {
			return nil
		}
		return blk
	}

	if err := repairMetaRegion(ctx, p, in, layout, ref, readAt, stats, rep); err != nil {
		return stats, err
	}

	coder, err := rsc.New(*ref.RS)
	if err != nil {
		return stats, err
	}

	for g := uint64(0); g < layout.Groups(); g++ {
		select {
		case <-ctx.Done():
			return stats, fmt.Errorf("%w: repair interrupted", ErrCancelled)
		default:
		}
		seqs := layout.GroupSeqNums(g)
		shards := make([][]byte, len(seqs))
		missing := make([]int, 0, len(seqs))
		for i, seq := range seqs {
			off := int64(layout.SeqToOffset(seq, burst))
			if blk := readAt(off, seq); blk != nil {
				shards[i] = blk.Payload
				stats.DataBlocksDecoded++
			} else {
				missing = append(missing, i)
				stats.BlocksFailedCheck++
			}
			stats.BlocksProcessed++
		}
		if len(missing) == 0 {
			continue
		}
		if err := coder.Reconstruct(shards); err != nil {
			stats.BlocksRepairFail += uint64(len(missing))
			if p.Verbose {
				rep.Note("Group %d unrecoverable: %d blocks missing", g, len(missing))
			}
			continue
		}
		for _, i := range missing {
			seq := seqs[i]
			blk, err := block.New(ref.Version, ref.FileUID, seq)
			if err != nil {
				return stats, err
			}
			copy(blk.Payload, shards[i])
			buf := make([]byte, bs)
			if err := blk.ToBytes(buf); err != nil {
				return stats, err
			}
			off := int64(layout.SeqToOffset(seq, burst))
			if p.Verbose {
				rep.Note("Repaired block %d at %d (0x%X)", seq, off, off)
			}
			if !p.DryRun {
				if err := fsutil.WriteBlockAt(in, off, buf); err != nil {
					return stats, err
				}
			}
			stats.BlocksRepaired++
		}
		rep.Progress(report.Progress{
			BytesIn:    (g + 1) * uint64(ref.RS.GroupSize()) * uint64(bs),
			TotalBytes: layout.ContainerSize(),
		})
	}

	if !p.DryRun {
		if err := in.Sync(); err != nil {
			return stats, err
		}
	}
	stats.TimeElapsedSecs = time.Since(start).Seconds()
	return stats, nil
}

// repairMetaRegion reconstructs the metadata copies by majority vote
// among the CRC valid copies, breaking ties toward the lowest offset.
func repairMetaRegion(ctx context.Context, p RepairParams, in *os.File,
	layout *rsc.Layout, ref *refBlockInfo,
	readAt func(int64, uint32) *block.Block,
	stats *report.Stats, rep *report.Reporter) error {

	positions := layout.MetaBlockPositions()
	payloads := make([][]byte, len(positions))
	for i, pos := range positions {
		if blk := readAt(int64(pos), 0); blk != nil {
			payloads[i] = blk.Payload
		}
	}

	// Majority vote over the valid copies. Candidates are tried in
	// offset order so a tie settles on the lowest offset.
	winner := -1
	winnerCount := 0
	for i, pi := range payloads {
		if pi == nil {
			continue
		}
		count := 0
		for _, pj := range payloads {
			if pj != nil && bytes.Equal(pi, pj) {
				count++
			}
		}
		if count > winnerCount {
			winner, winnerCount = i, count
		}
	}
	if winner < 0 {
		return ErrNoMetadata
	}

	blk, err := block.New(ref.Version, ref.FileUID, 0)
	if err != nil {
		return err
	}
	copy(blk.Payload, payloads[winner])
	buf := make([]byte, layout.BlockSize())
	if err := blk.ToBytes(buf); err != nil {
		return err
	}

	for i, pos := range positions {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: repair interrupted", ErrCancelled)
		default:
		}
		stats.BlocksProcessed++
		if payloads[i] != nil && bytes.Equal(payloads[i], payloads[winner]) {
			stats.MetaBlocksDecoded++
			continue
		}
		stats.BlocksFailedCheck++
		if p.Verbose {
			rep.Note("Replaced invalid metadata block at %d (0x%X)", pos, pos)
		}
		if !p.DryRun {
			if err := fsutil.WriteBlockAt(in, int64(pos), buf); err != nil {
				return err
			}
		}
		stats.BlocksRepaired++
	}
	return nil
}
