package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/sbx/block"
)

// CheckParams configures the check pipeline.
type CheckParams struct {
	InFile          string
	ExpectedVersion byte
	BurstHint       *int
	Verbose         bool
	ReportBlank     bool
}

// Check verifies every block's CRC and, for parity versions, whether
// each RS group retains enough blocks to be recoverable.
func Check(ctx context.Context, p CheckParams, rep *report.Reporter) (*report.Stats, error) {
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

	ref, err := findRefBlock(in, p.ExpectedVersion, nil)
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

	bs := layout.BlockSize()
	buf := make([]byte, bs)

	checkAt := func(off int64, wantSeq uint32) (ok, blank bool) {
		if _, err := io.ReadFull(io.NewSectionReader(in, off, int64(bs)), buf); err != nil {
			return false, false
		}
		blk, err := block.FromBytes(buf, ref.Version)
		if err != nil {
			return false, isBlank(buf)
		}
		if blk.Header.FileUID != ref.FileUID || blk.Header.SeqNum != wantSeq {
			return false, false
		}
		return true, false
	}

	// Metadata region.
	for _, pos := range layout.MetaBlockPositions() {
		if ok, blank := checkAt(int64(pos), 0); ok {
			stats.MetaBlocksDecoded++
		} else {
			stats.BlocksFailedCheck++
			if blank && p.ReportBlank {
				stats.BlankBlocks++
			}
			if p.Verbose {
				rep.Note("Metadata block at %d (0x%X) failed check", pos, pos)
			}
		}
		stats.BlocksProcessed++
	}

	// Data region: verify each sequence number at its expected position
	// and tally per group recoverability for parity versions.
	var groupPresent int
	lastSeq := layout.LastSeqNum()
	for seq := uint32(1); seq <= lastSeq; seq++ {
		select {
		case <-ctx.Done():
			return stats, fmt.Errorf("%w: check interrupted", ErrCancelled)
		default:
		}
		off := int64(layout.SeqToOffset(seq, burst))
		ok, blank := checkAt(off, seq)
		stats.BlocksProcessed++
		if ok {
			stats.DataBlocksDecoded++
		} else {
			stats.BlocksFailedCheck++
			if blank && p.ReportBlank {
				stats.BlankBlocks++
			}
			if p.Verbose {
				rep.Note("Block %d at %d (0x%X) failed check", seq, off, off)
			}
		}

		if ref.RS != nil {
			if ok {
				groupPresent++
			}
			_, member := layout.GroupOf(seq)
			if member == ref.RS.GroupSize()-1 {
				if groupPresent < ref.RS.DataShards {
					stats.GroupsUnrecover++
					g, _ := layout.GroupOf(seq)
					if p.Verbose {
						rep.Note("Group %d unrecoverable: %d of %d blocks valid",
							g, groupPresent, ref.RS.GroupSize())
					}
				}
				groupPresent = 0
			}
		}

		rep.Progress(report.Progress{
			BytesIn:    uint64(seq) * uint64(bs),
			TotalBytes: layout.ContainerSize(),
		})
	}

	stats.TimeElapsedSecs = time.Since(start).Seconds()
	return stats, nil
}

func isBlank(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
